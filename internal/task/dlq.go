package task

import "time"

const DLQType = "mail.dlq"

// DeadLetter wraps a message the worker could not execute at all: an
// undecodable or schema-incompatible payload. Delivery failures are NOT
// dead-lettered; they end as failed task results.
type DeadLetter struct {
	Type    string `json:"type"`    // "mail.dlq"
	Version string `json:"version"` // schema version
	At      string `json:"at"`      // RFC3339 time the DLQ was emitted
	Reason  string `json:"reason"`  // human/debug text
	Raw     []byte `json:"raw"`     // original message body, verbatim
}

func NewDeadLetter(raw []byte, reason string) DeadLetter {
	return DeadLetter{
		Type:    DLQType,
		Version: "v1",
		At:      time.Now().Format(time.RFC3339Nano),
		Reason:  reason,
		Raw:     raw,
	}
}

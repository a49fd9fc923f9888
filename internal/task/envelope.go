// Package task defines the queued delivery unit and its worker-side
// execution: render one recipient's content, invoke the mail transport
// with bounded retry, and record exactly one terminal result.
package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jin09/BulkMail/internal/batch"
)

const (
	// TypeTask tags a delivery unit envelope on the wire.
	TypeTask = "mail.task"

	// SchemaVersion of the envelope. Bump on incompatible changes;
	// workers reject versions they do not understand.
	SchemaVersion = "v1"
)

// Envelope is the serialized delivery unit carried by the queue: one
// recipient's personalized send, self-contained so any worker can
// execute it.
type Envelope struct {
	Type            string            `json:"type"`
	Version         string            `json:"version"`
	TaskID          string            `json:"task_id"`
	BatchID         string            `json:"batch_id"`
	Recipient       string            `json:"recipient"`
	Subject         string            `json:"subject"`
	Body            string            `json:"body"`
	Personalization map[string]string `json:"personalization,omitempty"`
	SubmittedAt     string            `json:"submitted_at"` // RFC3339
	TraceHeaders    map[string]string `json:"trace_headers,omitempty"`
}

// NewEnvelope wraps one split unit for the queue.
func NewEnvelope(taskID, batchID string, u batch.Unit, traceHeaders map[string]string) Envelope {
	return Envelope{
		Type:            TypeTask,
		Version:         SchemaVersion,
		TaskID:          taskID,
		BatchID:         batchID,
		Recipient:       u.Recipient,
		Subject:         u.Subject,
		Body:            u.Body,
		Personalization: u.Personalization,
		SubmittedAt:     time.Now().UTC().Format(time.RFC3339),
		TraceHeaders:    traceHeaders,
	}
}

// Decode parses and validates a queued envelope. Messages that fail here
// are undeliverable and belong on the dead-letter topic, not back on the
// queue.
func Decode(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode task envelope: %w", err)
	}
	if e.Type != TypeTask {
		return Envelope{}, fmt.Errorf("unexpected envelope type %q", e.Type)
	}
	if e.Version != SchemaVersion {
		return Envelope{}, fmt.Errorf("unsupported envelope version %q", e.Version)
	}
	if e.TaskID == "" || e.BatchID == "" {
		return Envelope{}, fmt.Errorf("envelope missing task or batch id")
	}
	if e.Recipient == "" {
		return Envelope{}, fmt.Errorf("envelope missing recipient")
	}
	return e, nil
}

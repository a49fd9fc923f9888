// Package batch models a caller-submitted bulk mail request and splits it
// into independently deliverable per-recipient units.
package batch

import (
	"fmt"
	"net/mail"
)

// Request is one caller-submitted batch: a recipient list, templated
// subject/body, and personalization data. Immutable once submitted.
type Request struct {
	Recipients []string
	Subject    string
	Body       string

	// Defaults are batch-level personalization values applied to every
	// recipient unless overridden by a recipient-specific entry.
	Defaults map[string]string

	// Personalization maps a recipient address to its placeholder values.
	// Recipients without an entry render with Defaults only.
	Personalization map[string]map[string]string
}

// Unit is the smallest independently executable piece of work: one
// recipient's personalized send. Produced by Split, consumed exactly once
// by a worker.
type Unit struct {
	Recipient       string
	Subject         string
	Body            string
	Personalization map[string]string
}

// ValidationError reports a malformed batch. The batch is never enqueued.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid batch: %s: %s", e.Field, e.Detail)
}

// Split produces one Unit per recipient, in the order the caller supplied
// them. Each unit's personalization record layers the recipient-specific
// entries over the batch-level defaults.
func Split(req Request) ([]Unit, error) {
	if len(req.Recipients) == 0 {
		return nil, &ValidationError{Field: "recipients", Detail: "must not be empty"}
	}
	units := make([]Unit, 0, len(req.Recipients))
	for _, rcpt := range req.Recipients {
		if err := ValidateAddress(rcpt); err != nil {
			return nil, &ValidationError{Field: "recipients", Detail: err.Error()}
		}
		units = append(units, Unit{
			Recipient:       rcpt,
			Subject:         req.Subject,
			Body:            req.Body,
			Personalization: resolve(req.Defaults, req.Personalization[rcpt]),
		})
	}
	return units, nil
}

// ValidateAddress checks the local-part@domain shape of a bare address.
// Display names ("Bob <bob@x.com>") are rejected: the queue and the status
// report key results by the bare address.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("empty address")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return fmt.Errorf("malformed address %q", addr)
	}
	if parsed.Address != addr {
		return fmt.Errorf("address %q must be bare local-part@domain", addr)
	}
	return nil
}

func resolve(defaults, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

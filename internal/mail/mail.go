// Package mail abstracts the outbound mail transport. The rest of the
// system only sees the Sender interface and the transient/permanent error
// split; which provider actually carries the message is a deployment
// choice.
package mail

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Message is one rendered, ready-to-send mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message. Implementations must wrap failures
// in TransientError or PermanentError so the executor can decide whether
// to retry.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// TransientError marks a failure worth retrying: timeouts, temporary
// provider rejections, connection resets.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that retrying cannot fix, e.g. the
// provider rejected the address outright.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as non-retryable. Returns nil for nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Reason buckets a send failure for metrics labels.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout"):
		return "timeout"
	case strings.Contains(lower, "connection refused"):
		return "connection_refused"
	case strings.Contains(lower, "no such host"), strings.Contains(lower, "dns"):
		return "dns_error"
	case IsPermanent(err):
		return "permanent_reject"
	case IsTransient(err):
		return "provider_reject"
	}
	return "other"
}

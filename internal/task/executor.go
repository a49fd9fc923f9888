package task

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jin09/BulkMail/internal/logging"
	"github.com/jin09/BulkMail/internal/mail"
	"github.com/jin09/BulkMail/internal/metrics"
	"github.com/jin09/BulkMail/internal/results"
	"github.com/jin09/BulkMail/internal/template"
)

// RetryPolicy bounds the per-unit send attempts. MaxAttempts counts the
// first try; Backoff[n] delays the attempt after failure n+1, the last
// entry repeating if attempts outnumber entries.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration
	JitterPct   float64
}

// DefaultRetryPolicy is the fixed bounded-retry contract.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		Backoff:     []time.Duration{time.Second, 5 * time.Second, 25 * time.Second},
		JitterPct:   0.25,
	}
}

// delay returns the jittered backoff before the attempt following failed
// attempt number `attempt` (1-based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	base := p.Backoff[idx]
	j := 1 + (rand.Float64()*2-1)*p.JitterPct
	if j < 0.1 {
		j = 0.1
	}
	return time.Duration(float64(base) * j)
}

// Outcome is the terminal result of executing one delivery unit.
type Outcome struct {
	Status   results.Status
	Error    string
	Attempts int
}

// Executor runs delivery units: render, send with bounded retry, record
// the terminal result. Failures stay inside the unit; nothing here can
// touch a sibling task.
type Executor struct {
	sender mail.Sender
	store  results.Store
	retry  RetryPolicy
	logger *logging.Logger

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor wires a transport, a result store and a retry policy.
func NewExecutor(sender mail.Sender, store results.Store, retry RetryPolicy, logger *logging.Logger) *Executor {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	if logger == nil {
		logger = logging.New("bulkmail")
	}
	return &Executor{
		sender: sender,
		store:  store,
		retry:  retry,
		logger: logger,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute renders and sends one unit, then writes its terminal result.
// The returned error reports result-store trouble only; delivery failure
// is carried in the Outcome. Safe to re-run for the same unit: the
// store's compare-and-set makes the duplicate terminal write a no-op.
func (e *Executor) Execute(ctx context.Context, env Envelope) (Outcome, error) {
	subject := template.Render(env.Subject, env.Personalization)
	body := template.Render(env.Body, env.Personalization)
	msg := mail.Message{To: env.Recipient, Subject: subject, Body: body}

	start := time.Now()
	out, err := e.attemptSend(ctx, env, msg)
	if err != nil {
		// Shutdown mid-backoff: the task stays pending and the queue
		// redelivers it to another worker.
		return out, err
	}
	metrics.RecordSend(string(out.Status), time.Since(start))

	if err := e.store.Complete(ctx, env.TaskID, out.Status, out.Error); err != nil {
		var conflict *results.ConflictError
		if errors.As(err, &conflict) {
			// A terminal result changed out from under us. This is an
			// internal invariant violation, not a delivery failure.
			metrics.RecordConflict()
			e.logger.WithContext(ctx).
				WithBatch(env.BatchID).WithTask(env.TaskID).WithRecipient(env.Recipient).
				WithError(conflict).
				Error("result store inconsistency")
			return out, nil
		}
		return out, err
	}
	return out, nil
}

func (e *Executor) attemptSend(ctx context.Context, env Envelope, msg mail.Message) (Outcome, error) {
	var lastErr error
	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		err := e.sender.Send(ctx, msg)
		if err == nil {
			return Outcome{Status: results.StatusSuccess, Attempts: attempt}, nil
		}
		lastErr = err

		if mail.IsPermanent(err) {
			e.logger.WithContext(ctx).
				WithBatch(env.BatchID).WithTask(env.TaskID).WithRecipient(env.Recipient).
				WithError(err).
				Warn("permanent delivery failure, not retrying")
			return Outcome{Status: results.StatusFailed, Error: err.Error(), Attempts: attempt}, nil
		}

		if attempt == e.retry.MaxAttempts {
			break
		}
		metrics.RecordRetry(mail.Reason(err))
		delay := e.retry.delay(attempt)
		e.logger.WithContext(ctx).
			WithBatch(env.BatchID).WithTask(env.TaskID).WithRecipient(env.Recipient).
			WithFields(map[string]any{"attempt": attempt, "delay": delay.String()}).
			WithError(err).
			Info("transient delivery failure, retrying")
		if serr := e.sleep(ctx, delay); serr != nil {
			return Outcome{Status: results.StatusPending, Attempts: attempt}, serr
		}
	}
	return Outcome{Status: results.StatusFailed, Error: lastErr.Error(), Attempts: e.retry.MaxAttempts}, nil
}

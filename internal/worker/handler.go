// Package worker consumes queued delivery tasks and runs them through
// the executor. One handler instance is shared by all consumer
// goroutines, so everything here must be safe for concurrent use.
package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nsqio/go-nsq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jin09/BulkMail/internal/logging"
	"github.com/jin09/BulkMail/internal/metrics"
	"github.com/jin09/BulkMail/internal/results"
	"github.com/jin09/BulkMail/internal/task"
	"github.com/jin09/BulkMail/internal/tracing"
)

// publisher is the slice of the NSQ producer used for dead-lettering.
type publisher interface {
	Publish(topic string, body []byte) error
}

// Handler executes one queued delivery task per message.
//
// Requeue policy: a returned error makes NSQ redeliver the message, so
// errors are reserved for infrastructure trouble (result store down,
// shutdown mid-task). Anything decided about the mail itself, including
// exhausted retries, ends in a terminal result and a nil return.
// Undecodable payloads go to the dead-letter topic and are not retried.
type Handler struct {
	exec     *task.Executor
	store    results.Store
	dlq      publisher
	dlqTopic string
	logger   *logging.Logger
}

func NewHandler(exec *task.Executor, store results.Store, dlq publisher, dlqTopic string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.New("bulkmail-worker")
	}
	return &Handler{exec: exec, store: store, dlq: dlq, dlqTopic: dlqTopic, logger: logger}
}

// HandleMessage implements nsq.Handler.
func (h *Handler) HandleMessage(m *nsq.Message) error {
	return h.process(context.Background(), m.Body)
}

func (h *Handler) process(ctx context.Context, body []byte) error {
	env, err := task.Decode(body)
	if err != nil {
		h.deadLetter(ctx, body, err)
		return nil
	}

	ctx = tracing.ExtractTraceFromNSQ(ctx, env.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "worker.execute",
		attribute.String("batch.id", env.BatchID),
		attribute.String("task.id", env.TaskID),
	)
	defer span.End()

	log := h.logger.WithContext(ctx).
		WithBatch(env.BatchID).WithTask(env.TaskID).WithRecipient(env.Recipient)

	// Redelivered messages whose result is already terminal are skipped
	// without touching the transport.
	if res, err := h.store.Get(ctx, env.TaskID); err == nil && res.Status.Terminal() {
		log.WithField("status", string(res.Status)).Debug("task already terminal, skipping redelivery")
		return nil
	} else if err != nil && !errors.Is(err, results.ErrNotFound) {
		tracing.SetSpanError(ctx, err)
		return err
	}

	out, err := h.exec.Execute(ctx, env)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		log.WithError(err).Warn("task not completed, returning to queue")
		return err
	}

	log.WithFields(map[string]any{
		"status":   string(out.Status),
		"attempts": out.Attempts,
	}).Info("task completed")
	return nil
}

func (h *Handler) deadLetter(ctx context.Context, body []byte, cause error) {
	metrics.RecordDLQ("malformed_payload")
	h.logger.WithContext(ctx).WithError(cause).
		WithField("bytes", len(body)).
		Error("undecodable task payload, dead-lettering")

	dl, err := json.Marshal(task.NewDeadLetter(body, cause.Error()))
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("encode dead letter")
		return
	}
	if err := h.dlq.Publish(h.dlqTopic, dl); err != nil {
		// The broker just delivered this message, so a publish failure
		// here is rare. The payload is preserved in the log above.
		h.logger.WithContext(ctx).WithError(err).Error("publish dead letter")
	}
}

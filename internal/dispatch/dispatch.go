// Package dispatch is the submit side of the pipeline: split a batch
// request into per-recipient delivery units, record them as pending, and
// hand every unit to the queue in a single all-or-nothing publish.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jin09/BulkMail/internal/batch"
	"github.com/jin09/BulkMail/internal/logging"
	"github.com/jin09/BulkMail/internal/metrics"
	"github.com/jin09/BulkMail/internal/results"
	"github.com/jin09/BulkMail/internal/task"
	"github.com/jin09/BulkMail/internal/tracing"
)

// Producer is the slice of the NSQ producer the dispatcher needs.
type Producer interface {
	Publish(topic string, body []byte) error
	MultiPublish(topic string, body [][]byte) error
}

// DispatchError reports a failure to hand the batch to the queue. The
// API maps it to 503: the request was well-formed, the infrastructure
// was not available.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string { return "dispatch: " + e.Err.Error() }
func (e *DispatchError) Unwrap() error { return e.Err }

// Dispatcher turns accepted batch requests into queued delivery tasks.
type Dispatcher struct {
	producer Producer
	store    results.Store
	topic    string
	logger   *logging.Logger
}

func NewDispatcher(producer Producer, store results.Store, topic string, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.New("bulkmail")
	}
	return &Dispatcher{producer: producer, store: store, topic: topic, logger: logger}
}

// Submit validates and splits the request, seeds every task as pending,
// and enqueues all units with one MultiPublish. Either every unit is
// queued and the batch id returned, or nothing observable remains of the
// submission.
//
// Validation failures come back as *batch.ValidationError; queue and
// store trouble as *DispatchError.
func (d *Dispatcher) Submit(ctx context.Context, req batch.Request) (string, error) {
	units, err := batch.Split(req)
	if err != nil {
		return "", err
	}

	batchID := uuid.NewString()
	ctx, span := tracing.StartSpan(ctx, "dispatch.submit",
		attribute.String("batch.id", batchID),
		attribute.Int("batch.size", len(units)),
	)
	defer span.End()

	handle := results.Handle{
		BatchID:    batchID,
		TaskIDs:    make([]string, len(units)),
		Recipients: make([]string, len(units)),
		CreatedAt:  time.Now().UTC(),
	}
	pending := make([]results.TaskResult, len(units))
	bodies := make([][]byte, len(units))
	traceHeaders := tracing.PropagateTraceToNSQ(ctx)

	for i, u := range units {
		taskID := uuid.NewString()
		handle.TaskIDs[i] = taskID
		handle.Recipients[i] = u.Recipient
		pending[i] = results.TaskResult{
			TaskID:    taskID,
			BatchID:   batchID,
			Recipient: u.Recipient,
		}
		body, err := json.Marshal(task.NewEnvelope(taskID, batchID, u, traceHeaders))
		if err != nil {
			tracing.SetSpanError(ctx, err)
			return "", &DispatchError{Err: fmt.Errorf("encode task %s: %w", taskID, err)}
		}
		bodies[i] = body
	}

	if err := d.store.InitBatch(ctx, handle, pending); err != nil {
		tracing.SetSpanError(ctx, err)
		return "", &DispatchError{Err: fmt.Errorf("init batch: %w", err)}
	}

	if err := d.producer.MultiPublish(d.topic, bodies); err != nil {
		tracing.SetSpanError(ctx, err)
		// Roll back the pending rows so a failed submission leaves no
		// phantom batch behind. Best effort: the rows are harmless if
		// the delete also fails, they just never leave pending.
		if derr := d.store.DeleteBatch(ctx, handle); derr != nil {
			d.logger.WithContext(ctx).WithBatch(batchID).WithError(derr).
				Warn("rollback of failed submission did not complete")
		}
		return "", &DispatchError{Err: fmt.Errorf("enqueue batch: %w", err)}
	}

	metrics.RecordBatchSubmitted(len(units))
	d.logger.WithContext(ctx).WithBatch(batchID).
		WithField("tasks", len(units)).
		Info("batch accepted and enqueued")
	return batchID, nil
}

package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/jin09/BulkMail/internal/results"
)

// RecipientStatus is one row of a batch status report.
type RecipientStatus struct {
	TaskID    string         `json:"task_id"`
	Recipient string         `json:"recipient"`
	Status    results.Status `json:"status"`
	Error     string         `json:"error,omitempty"`
}

// BatchStatus is the caller-facing view of a batch: one row per
// recipient in submission order, plus rollup counts.
type BatchStatus struct {
	BatchID         string            `json:"batch_id"`
	CreatedAt       time.Time         `json:"created_at"`
	Recipients      []RecipientStatus `json:"recipients"`
	Pending         int               `json:"pending"`
	Succeeded       int               `json:"succeeded"`
	Failed          int               `json:"failed"`
	OverallComplete bool              `json:"overall_complete"`
}

// Aggregator assembles batch status reports from the result store.
type Aggregator struct {
	store results.Store
}

func NewAggregator(store results.Store) *Aggregator {
	return &Aggregator{store: store}
}

// Status reports the current state of every recipient in the batch.
// Returns results.ErrBatchNotFound for an unknown batch id. The report
// is a snapshot: rows still pending may already be in flight.
func (a *Aggregator) Status(ctx context.Context, batchID string) (BatchStatus, error) {
	handle, err := a.store.Handle(ctx, batchID)
	if err != nil {
		return BatchStatus{}, err
	}

	st := BatchStatus{
		BatchID:    handle.BatchID,
		CreatedAt:  handle.CreatedAt,
		Recipients: make([]RecipientStatus, 0, len(handle.TaskIDs)),
	}
	for i, taskID := range handle.TaskIDs {
		row := RecipientStatus{TaskID: taskID, Status: results.StatusPending}
		if i < len(handle.Recipients) {
			row.Recipient = handle.Recipients[i]
		}
		res, err := a.store.Get(ctx, taskID)
		switch {
		case errors.Is(err, results.ErrNotFound):
			// Row vanished under us, e.g. an expired result entry.
			// Report it pending rather than failing the whole batch.
		case err != nil:
			return BatchStatus{}, err
		default:
			row.Status = res.Status
			row.Error = res.Error
		}
		switch row.Status {
		case results.StatusSuccess:
			st.Succeeded++
		case results.StatusFailed:
			st.Failed++
		default:
			st.Pending++
		}
		st.Recipients = append(st.Recipients, row)
	}
	st.OverallComplete = st.Pending == 0
	return st, nil
}

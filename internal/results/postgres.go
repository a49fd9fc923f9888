package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable alternative to Redis, for deployments that
// want batch history to survive restarts and be queryable with SQL.
// Schema lives in migrations/001_init.sql.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool; the caller owns its lifecycle.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping verifies connectivity, for health checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) InitBatch(ctx context.Context, h Handle, pending []TaskResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("init batch %s: %w", h.BatchID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO bulkmail.batches(id, created_at)
		VALUES ($1, $2)`,
		h.BatchID, h.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert batch %s: %w", h.BatchID, err)
	}

	batch := &pgx.Batch{}
	for i, r := range pending {
		batch.Queue(`
			INSERT INTO bulkmail.tasks(id, batch_id, position, recipient, status)
			VALUES ($1, $2, $3, $4, 'pending')`,
			r.TaskID, h.BatchID, i, r.Recipient)
	}
	br := tx.SendBatch(ctx, batch)
	for range pending {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert tasks for batch %s: %w", h.BatchID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("insert tasks for batch %s: %w", h.BatchID, err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) Handle(ctx context.Context, batchID string) (Handle, error) {
	var h Handle
	h.BatchID = batchID
	err := s.pool.QueryRow(ctx, `
		SELECT created_at FROM bulkmail.batches WHERE id = $1`,
		batchID,
	).Scan(&h.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Handle{}, ErrBatchNotFound
	}
	if err != nil {
		return Handle{}, fmt.Errorf("get batch %s: %w", batchID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, recipient
		FROM bulkmail.tasks
		WHERE batch_id = $1
		ORDER BY position ASC`,
		batchID,
	)
	if err != nil {
		return Handle{}, fmt.Errorf("get tasks for batch %s: %w", batchID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, recipient string
		if err := rows.Scan(&id, &recipient); err != nil {
			return Handle{}, err
		}
		h.TaskIDs = append(h.TaskIDs, id)
		h.Recipients = append(h.Recipients, recipient)
	}
	if err := rows.Err(); err != nil {
		return Handle{}, err
	}
	return h, nil
}

func (s *PostgresStore) Get(ctx context.Context, taskID string) (TaskResult, error) {
	var (
		res     TaskResult
		errText sql.NullString
	)
	res.TaskID = taskID
	err := s.pool.QueryRow(ctx, `
		SELECT batch_id, recipient, status, error, updated_at
		FROM bulkmail.tasks
		WHERE id = $1`,
		taskID,
	).Scan(&res.BatchID, &res.Recipient, &res.Status, &errText, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TaskResult{}, ErrNotFound
	}
	if err != nil {
		return TaskResult{}, fmt.Errorf("get task %s: %w", taskID, err)
	}
	if errText.Valid {
		res.Error = errText.String
	}
	return res, nil
}

func (s *PostgresStore) Complete(ctx context.Context, taskID string, status Status, errDetail string) error {
	if !status.Terminal() {
		return fmt.Errorf("complete task %s: status %q is not terminal", taskID, status)
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE bulkmail.tasks
		SET status = $2, error = NULLIF($3, ''), updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		taskID, string(status), errDetail,
	)
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	// No pending row updated: either the task is unknown, the identical
	// terminal value is already set (redelivery no-op), or it conflicts.
	existing, err := s.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if existing.Status == status {
		return nil
	}
	return &ConflictError{TaskID: taskID, Existing: existing.Status, Attempted: status}
}

func (s *PostgresStore) DeleteBatch(ctx context.Context, h Handle) error {
	// tasks cascade from the batch row
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM bulkmail.batches WHERE id = $1`,
		h.BatchID,
	); err != nil {
		return fmt.Errorf("delete batch %s: %w", h.BatchID, err)
	}
	return nil
}

// compile-time interface checks
var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

package results

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, 0)
}

func seedBatch(t *testing.T, s *RedisStore) Handle {
	t.Helper()
	h := Handle{
		BatchID:    "batch-1",
		TaskIDs:    []string{"task-1", "task-2"},
		Recipients: []string{"e1@x.com", "e2@x.com"},
		CreatedAt:  time.Now().UTC(),
	}
	pending := []TaskResult{
		{TaskID: "task-1", BatchID: h.BatchID, Recipient: "e1@x.com", Status: StatusPending, UpdatedAt: h.CreatedAt},
		{TaskID: "task-2", BatchID: h.BatchID, Recipient: "e2@x.com", Status: StatusPending, UpdatedAt: h.CreatedAt},
	}
	require.NoError(t, s.InitBatch(context.Background(), h, pending))
	return h
}

func TestRedisStoreInitAndGet(t *testing.T) {
	s := newTestStore(t)
	h := seedBatch(t, s)
	ctx := context.Background()

	got, err := s.Handle(ctx, h.BatchID)
	require.NoError(t, err)
	assert.Equal(t, h.BatchID, got.BatchID)
	assert.Equal(t, h.TaskIDs, got.TaskIDs)
	assert.Equal(t, h.Recipients, got.Recipients)

	for i, id := range h.TaskIDs {
		res, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, res.Status)
		assert.Equal(t, h.Recipients[i], res.Recipient)
		assert.Equal(t, h.BatchID, res.BatchID)
	}
}

func TestRedisStoreNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Handle(ctx, "nope")
	assert.ErrorIs(t, err, ErrBatchNotFound)

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Complete(ctx, "nope", StatusSuccess, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreCompleteTransitions(t *testing.T) {
	s := newTestStore(t)
	seedBatch(t, s)
	ctx := context.Background()

	// pending -> success
	require.NoError(t, s.Complete(ctx, "task-1", StatusSuccess, ""))
	res, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.False(t, res.UpdatedAt.IsZero())

	// pending -> failed with error detail
	require.NoError(t, s.Complete(ctx, "task-2", StatusFailed, "mailbox full"))
	res, err = s.Get(ctx, "task-2")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "mailbox full", res.Error)
}

func TestRedisStoreDuplicateTerminalWriteIsNoop(t *testing.T) {
	s := newTestStore(t)
	seedBatch(t, s)
	ctx := context.Background()

	require.NoError(t, s.Complete(ctx, "task-1", StatusSuccess, ""))
	// At-least-once redelivery replays the same terminal write.
	require.NoError(t, s.Complete(ctx, "task-1", StatusSuccess, ""))

	res, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
}

func TestRedisStoreConflictingTerminalWrite(t *testing.T) {
	s := newTestStore(t)
	seedBatch(t, s)
	ctx := context.Background()

	require.NoError(t, s.Complete(ctx, "task-1", StatusSuccess, ""))

	err := s.Complete(ctx, "task-1", StatusFailed, "late failure")
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict), "expected *ConflictError, got %v", err)
	assert.Equal(t, "task-1", conflict.TaskID)
	assert.Equal(t, StatusSuccess, conflict.Existing)
	assert.Equal(t, StatusFailed, conflict.Attempted)

	// The stored value must be untouched.
	res, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Empty(t, res.Error)
}

func TestRedisStoreRejectsNonTerminalComplete(t *testing.T) {
	s := newTestStore(t)
	seedBatch(t, s)

	err := s.Complete(context.Background(), "task-1", StatusPending, "")
	require.Error(t, err)
}

func TestRedisStoreDeleteBatch(t *testing.T) {
	s := newTestStore(t)
	h := seedBatch(t, s)
	ctx := context.Background()

	require.NoError(t, s.DeleteBatch(ctx, h))

	_, err := s.Handle(ctx, h.BatchID)
	assert.ErrorIs(t, err, ErrBatchNotFound)
	for _, id := range h.TaskIDs {
		_, err := s.Get(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

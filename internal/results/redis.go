package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	batchKeyPrefix = "bulkmail:batch:"
	taskKeyPrefix  = "bulkmail:task:"
)

// completeScript implements the pending -> terminal compare-and-set.
// Returns 1 on transition, 0 when the identical terminal value is already
// set (idempotent redelivery), -1 on a conflicting terminal value, -2 when
// the task is unknown.
var completeScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
  return -2
end
if cur == 'pending' then
  redis.call('HSET', KEYS[1], 'status', ARGV[1], 'error', ARGV[2], 'updated_at', ARGV[3])
  return 1
end
if cur == ARGV[1] then
  return 0
end
return -1
`)

// RedisStore keeps the batch handle as a JSON value and each task result
// as a hash keyed by task id. Each task owns a distinct key, so concurrent
// workers never contend.
type RedisStore struct {
	client *redis.Client

	// TTL bounds how long finished batches linger. Zero keeps them forever.
	TTL time.Duration
}

// NewRedisStore wraps an existing client; the caller owns its lifecycle.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, TTL: ttl}
}

// Ping verifies connectivity, for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) InitBatch(ctx context.Context, h Handle, pending []TaskResult) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode handle: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, batchKeyPrefix+h.BatchID, raw, s.TTL)
	for _, r := range pending {
		key := taskKeyPrefix + r.TaskID
		pipe.HSet(ctx, key, map[string]any{
			"batch_id":   r.BatchID,
			"recipient":  r.Recipient,
			"status":     string(StatusPending),
			"error":      "",
			"updated_at": r.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
		if s.TTL > 0 {
			pipe.Expire(ctx, key, s.TTL)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("init batch %s: %w", h.BatchID, err)
	}
	return nil
}

func (s *RedisStore) Handle(ctx context.Context, batchID string) (Handle, error) {
	raw, err := s.client.Get(ctx, batchKeyPrefix+batchID).Result()
	if errors.Is(err, redis.Nil) {
		return Handle{}, ErrBatchNotFound
	}
	if err != nil {
		return Handle{}, fmt.Errorf("get handle %s: %w", batchID, err)
	}
	var h Handle
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return Handle{}, fmt.Errorf("decode handle %s: %w", batchID, err)
	}
	return h, nil
}

func (s *RedisStore) Get(ctx context.Context, taskID string) (TaskResult, error) {
	fields, err := s.client.HGetAll(ctx, taskKeyPrefix+taskID).Result()
	if err != nil {
		return TaskResult{}, fmt.Errorf("get task %s: %w", taskID, err)
	}
	if len(fields) == 0 {
		return TaskResult{}, ErrNotFound
	}
	res := TaskResult{
		TaskID:    taskID,
		BatchID:   fields["batch_id"],
		Recipient: fields["recipient"],
		Status:    Status(fields["status"]),
		Error:     fields["error"],
	}
	if ts := fields["updated_at"]; ts != "" {
		if t, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
			res.UpdatedAt = t
		}
	}
	return res, nil
}

func (s *RedisStore) Complete(ctx context.Context, taskID string, status Status, errDetail string) error {
	if !status.Terminal() {
		return fmt.Errorf("complete task %s: status %q is not terminal", taskID, status)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rc, err := completeScript.Run(ctx, s.client,
		[]string{taskKeyPrefix + taskID},
		string(status), errDetail, now,
	).Int()
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	switch rc {
	case 1, 0:
		return nil
	case -2:
		return ErrNotFound
	default:
		existing, gerr := s.Get(ctx, taskID)
		if gerr != nil {
			return &ConflictError{TaskID: taskID, Attempted: status}
		}
		return &ConflictError{TaskID: taskID, Existing: existing.Status, Attempted: status}
	}
}

func (s *RedisStore) DeleteBatch(ctx context.Context, h Handle) error {
	keys := make([]string, 0, len(h.TaskIDs)+1)
	keys = append(keys, batchKeyPrefix+h.BatchID)
	for _, id := range h.TaskIDs {
		keys = append(keys, taskKeyPrefix+id)
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete batch %s: %w", h.BatchID, err)
	}
	return nil
}

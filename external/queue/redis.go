// Package queue provides the pending-dispatch queue backends: redis when
// REDIS_URL is configured so pending deliveries survive a restart, in-memory
// otherwise.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scribelab/scribed/internal/dispatch"
)

const redisKey = "scribed:dispatch:pending"

type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, item dispatch.Pending) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal pending dispatch: %w", err)
	}
	// Score by enqueue time so reconciliation drains oldest first.
	score := float64(item.EnqueuedAt.UnixNano())
	if item.EnqueuedAt.IsZero() {
		score = float64(time.Now().UnixNano())
	}
	if err := q.client.ZAdd(ctx, redisKey, redis.Z{Score: score, Member: string(data)}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue pending dispatch: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, max int) ([]dispatch.Pending, error) {
	if max <= 0 {
		max = 1
	}
	members, err := q.client.ZPopMin(ctx, redisKey, int64(max)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to pop pending dispatches: %w", err)
	}
	items := make([]dispatch.Pending, 0, len(members))
	for _, m := range members {
		raw, ok := m.Member.(string)
		if !ok {
			continue
		}
		var item dispatch.Pending
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			// A corrupt entry is dropped rather than wedging the queue.
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, redisKey).Result()
}

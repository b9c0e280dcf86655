package distengine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// redisQueue wraps a Redis list as a FIFO of task IDs. Enqueue uses
// LPUSH and the dev-mode worker drains it with BRPOP, mirroring the
// reliable-FIFO pattern used elsewhere in this codebase for task
// queues.
type redisQueue struct {
	client *redis.Client
	key    string
}

func newRedisQueue(client *redis.Client, key string) *redisQueue {
	return &redisQueue{client: client, key: key}
}

func (q *redisQueue) Push(ctx context.Context, taskID string) error {
	return q.client.LPush(ctx, q.key, taskID).Err()
}

// Pop blocks for up to timeout waiting for a task ID. Returns
// ("", false, nil) on timeout with no error.
func (q *redisQueue) Pop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	result, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, err
	}
	if len(result) < 2 {
		return "", false, fmt.Errorf("unexpected BRPOP result shape: %v", result)
	}
	return result[1], true, nil
}

func (q *redisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	return int(n), err
}

// Position returns the 1-based rank of taskID in the queue, or nil if
// it is not (or no longer) queued. Backed by LPOS, which Redis added
// in 6.0.6 expressly for this kind of ranking query.
func (q *redisQueue) Position(ctx context.Context, taskID string) (*int, error) {
	rank, err := q.client.LPos(ctx, q.key, taskID, redis.LPosArgs{}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	// LPos counts from the head; BRPOP drains from the tail, so the
	// item that will be served next is the one with the highest
	// index. Re-express as distance from the tail, 1-based.
	length, err := q.Len(ctx)
	if err != nil {
		return nil, err
	}
	pos := int(length) - int(rank)
	return &pos, nil
}

func (q *redisQueue) Remove(ctx context.Context, taskID string) error {
	return q.client.LRem(ctx, q.key, 0, taskID).Err()
}

package distengine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/docling-project/docling-task-orchestrator/task"
)

// redisProjection is the durable, TTL-bounded copy of a Task that
// survives the in-memory cache being empty (process restart, or a
// status query landing on a different replica). It implements
// reconciler.Projection directly.
type redisProjection struct {
	client *redis.Client
	ttl    time.Duration
	keyFn  func(string) string
}

func newRedisProjection(client *redis.Client, ttl time.Duration, keyFn func(string) string) *redisProjection {
	return &redisProjection{client: client, ttl: ttl, keyFn: keyFn}
}

func (p *redisProjection) Load(ctx context.Context, taskID string) (*task.Task, bool, error) {
	data, err := p.client.Get(ctx, p.keyFn(taskID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var t task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, false, err
	}
	return &t, true, nil
}

func (p *redisProjection) Store(ctx context.Context, t *task.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, p.keyFn(t.ID), data, p.ttl).Err()
}

func (p *redisProjection) Delete(ctx context.Context, taskID string) error {
	return p.client.Del(ctx, p.keyFn(taskID)).Err()
}

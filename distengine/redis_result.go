package distengine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/docling-project/docling-task-orchestrator/orchestrator"
)

// redisResultStore holds the actual Result payload behind the opaque
// result_key handle named in a Task's ResultHandle field. Kept
// separate from the metadata projection so bulk projection reads
// (queue position, status polling) never have to pull potentially
// large document bodies off the wire.
type redisResultStore struct {
	client *redis.Client
	ttl    time.Duration
	keyFn  func(string) string
}

func newRedisResultStore(client *redis.Client, ttl time.Duration, keyFn func(string) string) *redisResultStore {
	return &redisResultStore{client: client, ttl: ttl, keyFn: keyFn}
}

func (s *redisResultStore) Put(ctx context.Context, taskID string, result *orchestrator.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.keyFn(taskID), data, s.ttl).Err()
}

func (s *redisResultStore) Get(ctx context.Context, taskID string) (*orchestrator.Result, error) {
	data, err := s.client.Get(ctx, s.keyFn(taskID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var result orchestrator.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *redisResultStore) Delete(ctx context.Context, taskID string) error {
	return s.client.Del(ctx, s.keyFn(taskID)).Err()
}

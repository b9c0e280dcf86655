package distengine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/docling-project/docling-task-orchestrator/reconciler"
	"github.com/docling-project/docling-task-orchestrator/task"
)

// jobRecord is the authoritative queue-side state for one task, as
// the external queue service would report it. It is intentionally a
// thin slice of Task: only what a worker reports back, never the
// original request payload.
type jobRecord struct {
	Status         task.Status        `json:"status"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	ProcessingMeta task.ProcessingMeta `json:"processing_meta"`
	StartedAt      *time.Time         `json:"started_at,omitempty"`
	FinishedAt     *time.Time         `json:"finished_at,omitempty"`
	ResultHandle   string             `json:"result_handle,omitempty"`
}

// redisJobStore persists jobRecords under a TTL so an abandoned or
// crashed worker's job naturally expires instead of lingering
// forever — the expiry is exactly what lets the reconciler detect an
// orphaned task.
type redisJobStore struct {
	client *redis.Client
	ttl    time.Duration
	keyFn  func(string) string
}

func newRedisJobStore(client *redis.Client, ttl time.Duration, keyFn func(string) string) *redisJobStore {
	return &redisJobStore{client: client, ttl: ttl, keyFn: keyFn}
}

func (s *redisJobStore) Put(ctx context.Context, taskID string, rec jobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.keyFn(taskID), data, s.ttl).Err()
}

func (s *redisJobStore) Get(ctx context.Context, taskID string) (*jobRecord, bool, error) {
	data, err := s.client.Get(ctx, s.keyFn(taskID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var rec jobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (s *redisJobStore) Delete(ctx context.Context, taskID string) error {
	return s.client.Del(ctx, s.keyFn(taskID)).Err()
}

// queueReaderAdapter implements reconciler.QueueReader over a
// redisJobStore, translating Redis faults into the gone/transient
// distinction the reconciler's merge algorithm depends on.
type queueReaderAdapter struct {
	store *redisJobStore
}

func (a *queueReaderAdapter) GetJob(ctx context.Context, taskID string) (*reconciler.JobStatus, bool, error) {
	rec, found, err := a.store.Get(ctx, taskID)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, true, nil
	}
	return &reconciler.JobStatus{
		Status:         rec.Status,
		ErrorMessage:   rec.ErrorMessage,
		ProcessingMeta: rec.ProcessingMeta,
		StartedAt:      rec.StartedAt,
		FinishedAt:     rec.FinishedAt,
		ResultHandle:   rec.ResultHandle,
	}, false, nil
}

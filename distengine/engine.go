// Package distengine implements the distributed orchestrator backend:
// a durable, Redis-backed task queue plus durable projection, with an
// optional in-process pool of "dev workers" that can drain the same
// queue a separately-deployed worker fleet would drain in production.
//
// Status queries are served by the state reconciler
// (github.com/docling-project/docling-task-orchestrator/reconciler),
// which this package wires against three Redis-backed sources of
// truth plus an in-memory cache.
package distengine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/docling-project/docling-task-orchestrator/bus"
	"github.com/docling-project/docling-task-orchestrator/corelog"
	"github.com/docling-project/docling-task-orchestrator/orchestrator"
	"github.com/docling-project/docling-task-orchestrator/pipeline"
	"github.com/docling-project/docling-task-orchestrator/reconciler"
	"github.com/docling-project/docling-task-orchestrator/resilience"
	"github.com/docling-project/docling-task-orchestrator/task"
	"github.com/docling-project/docling-task-orchestrator/telemetry"
)

// Config configures the distributed engine.
type Config struct {
	// RedisURL is a redis:// connection string, e.g.
	// "redis://localhost:6379/0".
	RedisURL string
	// KeyPrefix namespaces every key this engine touches.
	KeyPrefix string

	// NumWorkers is the size of the in-process dev-worker pool spawned
	// by ProcessQueue. Production deployments typically run workers as
	// a separate fleet and may set this to 0.
	NumWorkers int
	// QueueMaxSize bounds admission; 0 means unbounded.
	QueueMaxSize int

	ResultsTTL time.Duration
	FailureTTL time.Duration

	// SyncPollInterval and MaxSyncWait bound TaskStatus's wait-for-update
	// behavior: with no local process able to push a completion event
	// for work done by an external worker fleet, a wait is satisfied by
	// polling the reconciler at this interval, capped to MaxSyncWait.
	SyncPollInterval time.Duration
	MaxSyncWait      time.Duration

	SweepInterval time.Duration
	MaxAge        time.Duration

	Logger corelog.Logger
}

// DefaultConfig returns the distributed engine's default configuration.
func DefaultConfig() Config {
	return Config{
		RedisURL:         "redis://localhost:6379/0",
		KeyPrefix:        "docling:tasks:",
		NumWorkers:       0,
		ResultsTTL:       4 * time.Hour,
		FailureTTL:       4 * time.Hour,
		SyncPollInterval: 500 * time.Millisecond,
		MaxSyncWait:      30 * time.Second,
		SweepInterval:    300 * time.Second,
		MaxAge:           3600 * time.Second,
	}
}

// Engine is the Redis-backed orchestrator.Engine implementation.
type Engine struct {
	cfg    Config
	prefix string

	client     *redis.Client
	queue      *redisQueue
	jobs       *redisJobStore
	projection *redisProjection
	resultsDB  *redisResultStore
	cache      *memCache
	rec        *reconciler.Reconciler

	bus     *bus.Bus
	cleanup *bus.Cleanup

	breaker  *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig

	converter pipeline.Converter
	chunker   pipeline.Chunker

	logger corelog.Logger

	workers *devWorkerPool
	reap    *reaper
}

var _ orchestrator.Engine = (*Engine)(nil)

// New builds a distributed Engine over a freshly-created Redis client.
func New(cfg Config, converter pipeline.Converter, chunker pipeline.Chunker) (*Engine, error) {
	if cfg.RedisURL == "" {
		cfg.RedisURL = "redis://localhost:6379/0"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "docling:tasks:"
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	return NewWithClient(cfg, client, converter, chunker), nil
}

// NewWithClient builds a distributed Engine over an already-constructed
// client, which tests substitute with a miniredis-backed instance.
func NewWithClient(cfg Config, client *redis.Client, converter pipeline.Converter, chunker pipeline.Chunker) *Engine {
	logger := corelog.WithComponent(cfg.Logger, "distengine")

	e := &Engine{
		cfg:       cfg,
		prefix:    cfg.KeyPrefix,
		client:    client,
		cache:     newMemCache(),
		bus:       bus.New(logger),
		breaker:   resilience.NewCircuitBreaker(5, 30*time.Second),
		retryCfg:  resilience.DefaultRetryConfig(),
		converter: converter,
		chunker:   chunker,
		logger:    logger,
	}

	e.queue = newRedisQueue(client, e.queueKey())
	e.jobs = newRedisJobStore(client, jobTTL(cfg), e.jobKey)
	e.projection = newRedisProjection(client, cfg.ResultsTTL, e.metadataKey)
	e.resultsDB = newRedisResultStore(client, cfg.ResultsTTL, e.resultKey)
	e.rec = reconciler.New(&queueReaderAdapter{store: e.jobs}, e.projection, e.cache)
	e.cleanup = bus.NewCleanup(e.evict, logger)
	e.workers = newDevWorkerPool(e)
	e.reap = newReaper(e)

	return e
}

// jobTTL is the lifetime of the authoritative queue-side job record.
// It must outlive ordinary processing but expire reliably on worker
// crash or storage eviction, which is exactly the event the orphan
// detector in the reconciler keys off.
func jobTTL(cfg Config) time.Duration {
	if cfg.FailureTTL > 0 {
		return cfg.FailureTTL
	}
	return 4 * time.Hour
}

// Enqueue implements orchestrator.Engine.
func (e *Engine) Enqueue(ctx context.Context, typ task.Type, sources []task.Source, opts task.Options, target task.Target) (*task.Task, error) {
	if err := task.Validate(sources, target); err != nil {
		return nil, orchestrator.NewError("Enqueue", orchestrator.KindInvalidRequest, "", err.Error(), err)
	}

	if e.cfg.QueueMaxSize > 0 {
		n, err := e.queue.Len(ctx)
		if err == nil && n >= e.cfg.QueueMaxSize {
			return nil, orchestrator.NewError("Enqueue", orchestrator.KindQueueFull, "", "distributed queue is full", nil)
		}
	}

	t := task.New(typ, sources, opts, target)
	t.ProcessingMeta.NumDocs = len(sources)

	if err := e.projection.Store(ctx, t); err != nil {
		return nil, orchestrator.NewError("Enqueue", orchestrator.KindUpstreamUnavailable, t.ID, "failed to persist task projection", err)
	}
	if err := e.jobs.Put(ctx, t.ID, jobRecord{Status: task.StatusPending, ProcessingMeta: t.ProcessingMeta}); err != nil {
		return nil, orchestrator.NewError("Enqueue", orchestrator.KindUpstreamUnavailable, t.ID, "failed to persist job record", err)
	}
	e.cache.Set(t)

	err := resilience.Retry(ctx, e.retryCfg, func() error {
		return e.breaker.Execute(ctx, func() error {
			return e.queue.Push(ctx, t.ID)
		})
	})
	if err != nil {
		e.logger.Error("failed to enqueue task onto durable queue", map[string]interface{}{
			"task_id": t.ID,
			"error":   err.Error(),
		})
		return nil, orchestrator.NewError("Enqueue", orchestrator.KindUpstreamUnavailable, t.ID, "failed to enqueue task", err)
	}

	e.logger.Info("task enqueued", map[string]interface{}{"task_id": t.ID, "task_type": string(typ)})
	telemetry.EmitEnqueued(ctx, string(typ))
	return t.Snapshot(), nil
}

func (e *Engine) reconcile(ctx context.Context, taskID string) (*task.Task, error) {
	t, found, err := e.rec.Reconcile(ctx, taskID)
	if err != nil {
		return nil, orchestrator.NewError("reconcile", orchestrator.KindUpstreamUnavailable, taskID, "failed to reconcile task state", err)
	}
	if !found {
		return nil, orchestrator.NewError("reconcile", orchestrator.KindTaskNotFound, taskID, "no such task", nil)
	}
	return t, nil
}

// TaskStatus implements orchestrator.Engine. With no in-process signal
// for work an external worker fleet performs, a positive wait is
// served by polling the reconciler at SyncPollInterval rather than by
// the subscriber bus (which only fires for events this process itself
// publishes, i.e. dev-worker-processed tasks).
func (e *Engine) TaskStatus(ctx context.Context, taskID string, wait time.Duration) (*task.Task, error) {
	t, err := e.reconcile(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if wait <= 0 || t.Status.IsTerminal() {
		return t, nil
	}

	if e.cfg.MaxSyncWait > 0 && wait > e.cfg.MaxSyncWait {
		wait = e.cfg.MaxSyncWait
	}
	interval := e.cfg.SyncPollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return t, nil
		case <-ticker.C:
			if cur, cerr := e.reconcile(ctx, taskID); cerr == nil {
				t = cur
				if t.Status.IsTerminal() {
					return t, nil
				}
			}
			if !time.Now().Before(deadline) {
				return t, nil
			}
		}
	}
}

// QueuePosition implements orchestrator.Engine.
func (e *Engine) QueuePosition(ctx context.Context, taskID string) (*int, error) {
	return e.queue.Position(ctx, taskID)
}

// QueueSize implements orchestrator.Engine.
func (e *Engine) QueueSize(ctx context.Context) (int, error) {
	return e.queue.Len(ctx)
}

// TaskResult implements orchestrator.Engine.
func (e *Engine) TaskResult(ctx context.Context, taskID string) (*orchestrator.Result, error) {
	t, err := e.reconcile(ctx, taskID)
	if err != nil {
		return nil, nil
	}
	if t.Status != task.StatusSuccess || t.ResultHandle == "" {
		return nil, nil
	}
	return e.resultsDB.Get(ctx, taskID)
}

// DeleteTask implements orchestrator.Engine.
func (e *Engine) DeleteTask(ctx context.Context, taskID string) error {
	if err := e.cleanup.FireNow(ctx, taskID); err != nil {
		return err
	}
	telemetry.EmitEvicted(ctx, "delete")
	return nil
}

func (e *Engine) evict(ctx context.Context, taskID string) error {
	if t, ok := e.cache.Get(taskID); ok {
		removeScratchDir(t.ScratchDir, e.logger)
	}
	e.cache.Delete(taskID)
	_ = e.queue.Remove(ctx, taskID)
	_ = e.jobs.Delete(ctx, taskID)
	_ = e.projection.Delete(ctx, taskID)
	_ = e.resultsDB.Delete(ctx, taskID)
	return nil
}

// ClearResults implements orchestrator.Engine. The distributed engine
// can only sweep tasks its own cache has observed; a full secondary
// index over every projection key is out of scope for the in-memory
// cache this engine carries.
func (e *Engine) ClearResults(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	count := 0
	for _, t := range e.cache.snapshotAll() {
		if t.Status.IsTerminal() && t.FinishedAt != nil && t.FinishedAt.Before(cutoff) {
			if err := e.cleanup.FireNow(ctx, t.ID); err == nil {
				count++
			}
		}
	}
	if count > 0 {
		telemetry.EmitEvicted(ctx, "ttl_sweep")
	}
	return count, nil
}

// ClearConverters implements orchestrator.Engine.
func (e *Engine) ClearConverters(ctx context.Context) error {
	if cc, ok := e.converter.(pipeline.CacheClearer); ok {
		if err := cc.ClearCaches(ctx); err != nil {
			return err
		}
	}
	if cc, ok := e.chunker.(pipeline.CacheClearer); ok {
		return cc.ClearCaches(ctx)
	}
	return nil
}

// WarmUp implements orchestrator.Engine.
func (e *Engine) WarmUp(ctx context.Context) error {
	if wu, ok := e.converter.(pipeline.WarmUpper); ok {
		if err := wu.WarmUp(ctx); err != nil {
			return err
		}
	}
	if wu, ok := e.chunker.(pipeline.WarmUpper); ok {
		return wu.WarmUp(ctx)
	}
	return nil
}

// Ready implements orchestrator.Engine by checking connectivity to
// Redis, the supplemented equivalent of the Python engine's
// check_connection().
func (e *Engine) Ready(ctx context.Context) error {
	return e.client.Ping(ctx).Err()
}

// SubscribeProgress implements orchestrator.Engine. Only dev-worker
// processed tasks publish to the local bus; callers relying on an
// external worker fleet should poll TaskStatus with a wait instead.
func (e *Engine) SubscribeProgress(ctx context.Context, taskID string) (<-chan *task.Task, error) {
	t, err := e.reconcile(ctx, taskID)
	if err != nil {
		return nil, err
	}

	out := make(chan *task.Task, subscriberRelayBuffer)
	ch, cancel := e.bus.Subscribe(taskID)

	if t.Status.IsTerminal() {
		out <- t
		close(out)
		cancel()
		return out, nil
	}

	go func() {
		defer cancel()
		defer close(out)
		for {
			select {
			case snap, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
				if snap.Status.IsTerminal() {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

const subscriberRelayBuffer = 4

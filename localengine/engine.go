// Package localengine implements the in-process orchestrator backend:
// a fixed-size worker pool draining a channel-like FIFO queue of
// task_ids, invoking the injected pipeline collaborators directly in
// the same process.
package localengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docling-project/docling-task-orchestrator/bus"
	"github.com/docling-project/docling-task-orchestrator/corelog"
	"github.com/docling-project/docling-task-orchestrator/orchestrator"
	"github.com/docling-project/docling-task-orchestrator/pipeline"
	"github.com/docling-project/docling-task-orchestrator/task"
	"github.com/docling-project/docling-task-orchestrator/telemetry"
)

// unboundedCapacity is the channel buffer used to stand in for an
// "unbounded" FIFO when Config.QueueMaxSize is 0. Large enough that
// practical workloads never observe back-pressure from it.
const unboundedCapacity = 1 << 16

// Config configures the local engine.
type Config struct {
	// NumWorkers is the number of concurrent worker goroutines. Must
	// be >= 1.
	NumWorkers int
	// QueueMaxSize bounds the admission queue. 0 means effectively
	// unbounded (the spec's default local-engine behavior).
	QueueMaxSize int
	// MaxAge and SweepInterval configure the zombie-task reaper that
	// trims long-finished terminal tasks out of memory. The local
	// engine has no external queue to lose track of, so it never
	// reclassifies a task to failure — it only forgets old terminal
	// ones.
	SweepInterval time.Duration
	MaxAge        time.Duration

	Logger corelog.Logger
}

// DefaultConfig returns the local engine's default configuration.
func DefaultConfig() Config {
	return Config{
		NumWorkers:    5,
		QueueMaxSize:  0,
		SweepInterval: 300 * time.Second,
		MaxAge:        3600 * time.Second,
	}
}

// Engine is the in-process orchestrator.Engine implementation.
type Engine struct {
	cfg       Config
	converter pipeline.Converter
	chunker   pipeline.Chunker
	bus       *bus.Bus
	cleanup   *bus.Cleanup
	logger    corelog.Logger

	mu    sync.RWMutex
	tasks map[string]*task.Task
	// pending preserves FIFO order for QueuePosition.
	pending []string

	resultsMu sync.RWMutex
	results   map[string]*orchestrator.Result

	queue chan string

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	stopSweep chan struct{}
}

// New builds a local Engine. converter handles TypeConvert tasks,
// chunker handles TypeChunk tasks; either may be nil if that task type
// will never be submitted.
func New(cfg Config, converter pipeline.Converter, chunker pipeline.Chunker) *Engine {
	if cfg.NumWorkers < 1 {
		cfg.NumWorkers = 1
	}
	cap := cfg.QueueMaxSize
	if cap <= 0 {
		cap = unboundedCapacity
	}

	logger := corelog.WithComponent(cfg.Logger, "localengine")

	e := &Engine{
		cfg:       cfg,
		converter: converter,
		chunker:   chunker,
		bus:       bus.New(logger),
		logger:    logger,
		tasks:     make(map[string]*task.Task),
		results:   make(map[string]*orchestrator.Result),
		queue:     make(chan string, cap),
	}
	e.cleanup = bus.NewCleanup(e.evict, logger)
	return e
}

var _ orchestrator.Engine = (*Engine)(nil)

// Enqueue implements orchestrator.Engine.
func (e *Engine) Enqueue(ctx context.Context, typ task.Type, sources []task.Source, opts task.Options, target task.Target) (*task.Task, error) {
	if err := task.Validate(sources, target); err != nil {
		return nil, orchestrator.NewError("Enqueue", orchestrator.KindInvalidRequest, "", err.Error(), err)
	}

	t := task.New(typ, sources, opts, target)
	t.ProcessingMeta.NumDocs = len(sources)

	e.mu.Lock()
	e.tasks[t.ID] = t
	e.pending = append(e.pending, t.ID)
	e.mu.Unlock()

	select {
	case e.queue <- t.ID:
	default:
		e.mu.Lock()
		delete(e.tasks, t.ID)
		e.removePendingLocked(t.ID)
		e.mu.Unlock()
		return nil, orchestrator.NewError("Enqueue", orchestrator.KindQueueFull, t.ID, "local queue is full", nil)
	}

	e.logger.Info("task enqueued", map[string]interface{}{"task_id": t.ID, "task_type": string(typ)})
	telemetry.EmitEnqueued(ctx, string(typ))
	return t.Snapshot(), nil
}

func (e *Engine) removePendingLocked(taskID string) {
	for i, id := range e.pending {
		if id == taskID {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

// TaskStatus implements orchestrator.Engine.
func (e *Engine) TaskStatus(ctx context.Context, taskID string, wait time.Duration) (*task.Task, error) {
	e.mu.RLock()
	t, ok := e.tasks[taskID]
	e.mu.RUnlock()
	if !ok {
		return nil, orchestrator.NewError("TaskStatus", orchestrator.KindTaskNotFound, taskID, "no such task", nil)
	}

	if wait > 0 {
		return e.bus.LongPoll(ctx, taskID, wait, t.Snapshot()), nil
	}
	return t.Snapshot(), nil
}

// QueuePosition implements orchestrator.Engine.
func (e *Engine) QueuePosition(ctx context.Context, taskID string) (*int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for i, id := range e.pending {
		if id == taskID {
			pos := i + 1
			return &pos, nil
		}
	}
	return nil, nil
}

// QueueSize implements orchestrator.Engine.
func (e *Engine) QueueSize(ctx context.Context) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.pending), nil
}

// TaskResult implements orchestrator.Engine.
func (e *Engine) TaskResult(ctx context.Context, taskID string) (*orchestrator.Result, error) {
	e.mu.RLock()
	t, ok := e.tasks[taskID]
	e.mu.RUnlock()
	if !ok || t.Status != task.StatusSuccess || t.ResultHandle == "" {
		return nil, nil
	}

	e.resultsMu.RLock()
	res := e.results[t.ResultHandle]
	e.resultsMu.RUnlock()
	return res, nil
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
	e.mu.Lock()
	t, ok := e.tasks[taskID]
	if ok {
		delete(e.tasks, taskID)
		e.removePendingLocked(taskID)
	}
	e.mu.Unlock()

	if ok && t.ResultHandle != "" {
		e.resultsMu.Lock()
		delete(e.results, t.ResultHandle)
		e.resultsMu.Unlock()
	}
	if ok {
		removeScratchDir(t.ScratchDir, e.logger)
	}
	return nil
}

// ClearResults implements orchestrator.Engine.
func (e *Engine) ClearResults(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	e.mu.RLock()
	var victims []string
	for id, t := range e.tasks {
		if t.Status.IsTerminal() && t.FinishedAt != nil && t.FinishedAt.Before(cutoff) {
			victims = append(victims, id)
		}
	}
	e.mu.RUnlock()

	for _, id := range victims {
		_ = e.cleanup.FireNow(ctx, id)
	}
	if len(victims) > 0 {
		telemetry.EmitEvicted(ctx, "ttl_sweep")
	}
	return len(victims), nil
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

// Ready implements orchestrator.Engine. The local engine is ready as
// soon as it has workers running.
func (e *Engine) Ready(ctx context.Context) error {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if !running {
		return fmt.Errorf("local engine worker pool is not running")
	}
	return nil
}

// SubscribeProgress implements orchestrator.Engine.
func (e *Engine) SubscribeProgress(ctx context.Context, taskID string) (<-chan *task.Task, error) {
	e.mu.RLock()
	t, ok := e.tasks[taskID]
	e.mu.RUnlock()
	if !ok {
		return nil, orchestrator.NewError("SubscribeProgress", orchestrator.KindTaskNotFound, taskID, "no such task", nil)
	}

	out := make(chan *task.Task, subscriberRelayBuffer)
	ch, cancel := e.bus.Subscribe(taskID)

	if t.Status.IsTerminal() {
		out <- t.Snapshot()
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

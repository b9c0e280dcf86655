package distengine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/docling-project/docling-task-orchestrator/orchestrator"
	"github.com/docling-project/docling-task-orchestrator/task"
	"github.com/docling-project/docling-task-orchestrator/telemetry"
)

// devWorkerPool is the supplemented "dev mode" worker pool: a set of
// in-process goroutines that drain the same durable queue a
// separately-deployed worker fleet would drain, so a developer (or a
// test) can exercise the full distributed path without standing up a
// second process. Mirrors the reference engine's practice of spawning
// worker goroutines directly when no external pool is configured.
type devWorkerPool struct {
	e *Engine

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newDevWorkerPool(e *Engine) *devWorkerPool {
	return &devWorkerPool{e: e}
}

// ProcessQueue implements orchestrator.Engine. Starts the reaper and
// NumWorkers dev-mode worker goroutines; a NumWorkers of 0 means this
// process expects an external worker fleet, so only the reaper starts.
func (e *Engine) ProcessQueue(ctx context.Context) error {
	e.reap.start(ctx)
	return e.workers.start(ctx)
}

// Shutdown implements orchestrator.Engine.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.reap.stop()
	return e.workers.stop(ctx)
}

func (p *devWorkerPool) start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if p.e.cfg.NumWorkers <= 0 {
		p.e.logger.Info("no dev workers configured; expecting an external worker fleet", nil)
		return nil
	}

	p.running = true
	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.e.cfg.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run(workerCtx, fmt.Sprintf("dev-worker-%d", i+1))
	}

	p.e.logger.Info("dev worker pool started", map[string]interface{}{"num_workers": p.e.cfg.NumWorkers})
	return nil
}

func (p *devWorkerPool) stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *devWorkerPool) run(ctx context.Context, workerID string) {
	defer p.wg.Done()
	const popTimeout = 2 * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		taskID, ok, err := p.e.queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.e.logger.Warn("dev worker pop failed", map[string]interface{}{"worker_id": workerID, "error": err.Error()})
			continue
		}
		if !ok {
			continue
		}
		p.process(ctx, workerID, taskID)
	}
}

func (p *devWorkerPool) process(ctx context.Context, workerID, taskID string) {
	e := p.e

	t, found, err := e.projection.Load(ctx, taskID)
	if err != nil || !found {
		e.logger.Warn("dev worker could not load task projection", map[string]interface{}{"task_id": taskID})
		return
	}

	t.MarkStarted()
	if dir := allocScratchDir(t.ID, e.logger); dir != "" {
		t.ScratchDir = dir
		t.Options.ScratchDir = dir
	}
	_ = e.jobs.Put(ctx, taskID, jobRecord{
		Status:         t.Status,
		ProcessingMeta: t.ProcessingMeta,
		StartedAt:      t.StartedAt,
	})
	e.cache.Set(t)
	e.bus.Publish(t)
	telemetry.EmitDequeued(ctx, string(t.Type))

	ctx, span := telemetry.StartSpan(ctx, "distengine.process_task")
	defer span.End()

	timeout := t.Options.DocumentTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	taskCtx, taskCancel := context.WithTimeout(ctx, timeout)
	defer taskCancel()

	result, execErr := p.execute(taskCtx, t)

	switch {
	case taskCtx.Err() == context.DeadlineExceeded:
		t.MarkFailure(fmt.Sprintf("task exceeded timeout of %v", timeout))
		t.ProcessingMeta.IncFailed()
	case execErr != nil:
		t.MarkFailure(execErr.Error())
		t.ProcessingMeta.IncFailed()
	default:
		if err := e.resultsDB.Put(ctx, taskID, result); err != nil {
			t.MarkFailure(fmt.Sprintf("failed to persist result: %v", err))
			t.ProcessingMeta.IncFailed()
		} else {
			t.ProcessingMeta.IncSucceeded()
			t.MarkSuccess(taskID)
		}
	}

	_ = e.jobs.Put(ctx, taskID, jobRecord{
		Status:         t.Status,
		ErrorMessage:   t.ErrorMessage,
		ProcessingMeta: t.ProcessingMeta,
		StartedAt:      t.StartedAt,
		FinishedAt:     t.FinishedAt,
		ResultHandle:   t.ResultHandle,
	})
	_ = e.projection.Store(ctx, t)
	e.cache.Set(t)
	e.bus.Publish(t)

	e.logger.Info("dev worker completed task", map[string]interface{}{
		"task_id":   taskID,
		"worker_id": workerID,
		"status":    string(t.Status),
	})
	if execErr != nil {
		telemetry.RecordSpanError(ctx, execErr)
	}
	telemetry.EmitCompleted(ctx, string(t.Type), string(t.Status))
}

func (p *devWorkerPool) execute(ctx context.Context, t *task.Task) (result *orchestrator.Result, err error) {
	e := p.e
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			e.logger.Error("dev worker handler panicked", map[string]interface{}{
				"task_id": t.ID,
				"panic":   r,
				"stack":   string(debug.Stack()),
			})
		}
	}()

	switch t.Type {
	case task.TypeConvert:
		if e.converter == nil {
			return nil, fmt.Errorf("no converter configured")
		}
		return e.converter.Convert(ctx, t.Sources, t.Options)
	case task.TypeChunk:
		if e.chunker == nil {
			return nil, fmt.Errorf("no chunker configured")
		}
		return e.chunker.Chunk(ctx, t.Sources, t.Options)
	default:
		return nil, fmt.Errorf("unknown task type: %s", t.Type)
	}
}

package localengine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/docling-project/docling-task-orchestrator/orchestrator"
	"github.com/docling-project/docling-task-orchestrator/task"
	"github.com/docling-project/docling-task-orchestrator/telemetry"
	"github.com/google/uuid"
)

// ProcessQueue implements orchestrator.Engine. It starts NumWorkers
// goroutines draining the admission queue, plus the zombie-task
// reaper. Idempotent: a second call while already running is a no-op.
func (e *Engine) ProcessQueue(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	workerCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.stopSweep = make(chan struct{})
	e.mu.Unlock()

	for i := 0; i < e.cfg.NumWorkers; i++ {
		e.wg.Add(1)
		go e.runWorker(workerCtx, fmt.Sprintf("local-worker-%d", i+1))
	}

	e.wg.Add(1)
	go e.runReaper(workerCtx)

	e.logger.Info("local engine started", map[string]interface{}{"num_workers": e.cfg.NumWorkers})
	return nil
}

// Shutdown implements orchestrator.Engine.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) runWorker(ctx context.Context, workerID string) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case taskID := <-e.queue:
			e.processTask(ctx, workerID, taskID)
		}
	}
}

func (e *Engine) processTask(ctx context.Context, workerID string, taskID string) {
	e.mu.Lock()
	t, ok := e.tasks[taskID]
	if ok {
		e.removePendingLocked(taskID)
	}
	e.mu.Unlock()
	if !ok {
		// Task was deleted/cleared while still queued.
		return
	}

	t.MarkStarted()
	if dir := allocScratchDir(t.ID, e.logger); dir != "" {
		t.ScratchDir = dir
		t.Options.ScratchDir = dir
	}
	e.bus.Publish(t)
	telemetry.EmitDequeued(ctx, string(t.Type))

	ctx, span := telemetry.StartSpan(ctx, "localengine.process_task")
	defer span.End()

	timeout := t.Options.DocumentTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	taskCtx, taskCancel := context.WithTimeout(ctx, timeout)
	defer taskCancel()

	result, err := e.execute(taskCtx, t)

	if taskCtx.Err() == context.DeadlineExceeded {
		t.MarkFailure(fmt.Sprintf("task exceeded timeout of %v", timeout))
		t.ProcessingMeta.IncFailed()
		e.finalize(t)
		telemetry.EmitCompleted(ctx, string(t.Type), string(task.StatusFailure))
		return
	}

	if err != nil {
		t.MarkFailure(err.Error())
		t.ProcessingMeta.IncFailed()
		e.finalize(t)
		telemetry.RecordSpanError(ctx, err)
		telemetry.EmitCompleted(ctx, string(t.Type), string(task.StatusFailure))
		return
	}

	handle := uuid.New().String()
	e.resultsMu.Lock()
	e.results[handle] = result
	e.resultsMu.Unlock()

	t.ProcessingMeta.IncSucceeded()
	t.MarkSuccess(handle)
	e.finalize(t)
	telemetry.EmitCompleted(ctx, string(t.Type), string(task.StatusSuccess))

	e.logger.Info("task completed", map[string]interface{}{
		"task_id":   t.ID,
		"worker_id": workerID,
	})
}

func (e *Engine) finalize(t *task.Task) {
	e.mu.Lock()
	e.tasks[t.ID] = t
	e.mu.Unlock()
	e.bus.Publish(t)
}

// execute invokes the configured pipeline collaborator with panic
// recovery, since a misbehaving converter/chunker must not take down
// the whole worker pool.
func (e *Engine) execute(ctx context.Context, t *task.Task) (result *orchestrator.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			err = fmt.Errorf("handler panic: %v", r)
			e.logger.Error("task handler panicked", map[string]interface{}{
				"task_id": t.ID,
				"panic":   r,
				"stack":   stack,
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

// runReaper periodically trims terminal tasks older than MaxAge out
// of the in-memory map. This is an orthogonal belt-and-braces cleanup:
// it never reclassifies non-terminal tasks.
func (e *Engine) runReaper(ctx context.Context) {
	defer e.wg.Done()

	interval := e.cfg.SweepInterval
	if interval <= 0 {
		interval = 300 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

func (e *Engine) sweep() {
	maxAge := e.cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 3600 * time.Second
	}
	cutoff := time.Now().Add(-maxAge)

	e.mu.Lock()
	var victims []string
	for id, t := range e.tasks {
		if t.Status.IsTerminal() && t.FinishedAt != nil && t.FinishedAt.Before(cutoff) {
			victims = append(victims, id)
		}
	}
	var scratchDirs []string
	for _, id := range victims {
		scratchDirs = append(scratchDirs, e.tasks[id].ScratchDir)
		delete(e.tasks, id)
	}
	e.mu.Unlock()

	for _, dir := range scratchDirs {
		removeScratchDir(dir, e.logger)
	}

	if len(victims) > 0 {
		e.logger.Debug("zombie reaper swept terminal tasks", map[string]interface{}{"count": len(victims)})
	}
}

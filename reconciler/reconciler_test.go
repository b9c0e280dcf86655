package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docling-project/docling-task-orchestrator/task"
)

type fakeQueue struct {
	jobs map[string]*JobStatus
	errs map[string]error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[string]*JobStatus), errs: make(map[string]error)}
}

func (f *fakeQueue) GetJob(ctx context.Context, taskID string) (*JobStatus, bool, error) {
	if err, ok := f.errs[taskID]; ok {
		return nil, false, err
	}
	job, ok := f.jobs[taskID]
	if !ok {
		return nil, true, nil
	}
	return job, false, nil
}

type fakeProjection struct {
	tasks map[string]*task.Task
	err   error
}

func newFakeProjection() *fakeProjection {
	return &fakeProjection{tasks: make(map[string]*task.Task)}
}

func (f *fakeProjection) Load(ctx context.Context, taskID string) (*task.Task, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, false, nil
	}
	return t.Snapshot(), true, nil
}

func (f *fakeProjection) Store(ctx context.Context, t *task.Task) error {
	f.tasks[t.ID] = t.Snapshot()
	return nil
}

func (f *fakeProjection) Delete(ctx context.Context, taskID string) error {
	delete(f.tasks, taskID)
	return nil
}

type fakeCache struct {
	tasks map[string]*task.Task
}

func newFakeCache() *fakeCache {
	return &fakeCache{tasks: make(map[string]*task.Task)}
}

func (f *fakeCache) Get(taskID string) (*task.Task, bool) {
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, false
	}
	return t.Snapshot(), true
}

func (f *fakeCache) Set(t *task.Task) {
	f.tasks[t.ID] = t.Snapshot()
}

func (f *fakeCache) Delete(taskID string) {
	delete(f.tasks, taskID)
}

func newTestTask(status task.Status) *task.Task {
	t := task.New(task.TypeConvert, []task.Source{{Kind: task.SourceFile, Filename: "a.pdf"}}, task.Options{}, task.Target{Kind: task.TargetInBody})
	t.Status = status
	return t
}

func TestReconcile_QueueHit_AdoptsStatusAndWritesThrough(t *testing.T) {
	queue, proj, cache := newFakeQueue(), newFakeProjection(), newFakeCache()
	r := New(queue, proj, cache)

	seed := newTestTask(task.StatusPending)
	proj.Store(context.Background(), seed)
	cache.Set(seed)

	queue.jobs[seed.ID] = &JobStatus{Status: task.StatusStarted}

	got, found, err := r.Reconcile(context.Background(), seed.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, task.StatusStarted, got.Status)

	cached, ok := cache.Get(seed.ID)
	require.True(t, ok)
	assert.Equal(t, task.StatusStarted, cached.Status)

	projected, ok, _ := proj.Load(context.Background(), seed.ID)
	require.True(t, ok)
	assert.Equal(t, task.StatusStarted, projected.Status)
}

func TestReconcile_JobGoneAfterTerminal_IsNormalCleanup(t *testing.T) {
	queue, proj, cache := newFakeQueue(), newFakeProjection(), newFakeCache()
	r := New(queue, proj, cache)

	done := newTestTask(task.StatusSuccess)
	proj.Store(context.Background(), done)
	cache.Set(done)
	// queue record expired: not present in queue.jobs -> gone=true

	got, found, err := r.Reconcile(context.Background(), done.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, task.StatusSuccess, got.Status)
	assert.Empty(t, got.ErrorMessage)

	_, ok := cache.Get(done.ID)
	assert.False(t, ok, "cache tracking should be cleared after normal completion cleanup")
}

func TestReconcile_JobGoneWhileNonTerminal_IsOrphaned(t *testing.T) {
	queue, proj, cache := newFakeQueue(), newFakeProjection(), newFakeCache()
	r := New(queue, proj, cache)

	running := newTestTask(task.StatusStarted)
	proj.Store(context.Background(), running)
	cache.Set(running)
	// no queue.jobs entry -> gone=true

	got, found, err := r.Reconcile(context.Background(), running.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, task.StatusFailure, got.Status)
	assert.Contains(t, got.ErrorMessage, "orphaned")
	assert.Contains(t, got.ErrorMessage, "started")

	projected, ok, _ := proj.Load(context.Background(), running.ID)
	require.True(t, ok)
	assert.Equal(t, task.StatusFailure, projected.Status)
}

func TestReconcile_TransientQueueError_FallsBackToProjection(t *testing.T) {
	queue, proj, cache := newFakeQueue(), newFakeProjection(), newFakeCache()
	r := New(queue, proj, cache)

	running := newTestTask(task.StatusStarted)
	proj.Store(context.Background(), running)
	queue.errs[running.ID] = errors.New("connection reset")

	got, found, err := r.Reconcile(context.Background(), running.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, task.StatusStarted, got.Status, "a transient fault must not be mistaken for an orphan")
}

func TestReconcile_NoRecordAnywhere_NotFound(t *testing.T) {
	queue, proj, cache := newFakeQueue(), newFakeProjection(), newFakeCache()
	r := New(queue, proj, cache)

	_, found, err := r.Reconcile(context.Background(), "missing-task")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReconcile_WriteThrough_NeverStompsTerminalCache(t *testing.T) {
	queue, proj, cache := newFakeQueue(), newFakeProjection(), newFakeCache()
	r := New(queue, proj, cache)

	finished := newTestTask(task.StatusFailure)
	finished.ErrorMessage = "boom"
	cache.Set(finished)
	proj.Store(context.Background(), finished)

	// A stale queue record claims the task is still running -- this
	// must never be allowed to un-terminate an already-failed task.
	queue.jobs[finished.ID] = &JobStatus{Status: task.StatusStarted}

	got, found, err := r.Reconcile(context.Background(), finished.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, task.StatusStarted, got.Status, "Reconcile itself reports the merged view")

	cached, ok := cache.Get(finished.ID)
	require.True(t, ok)
	assert.Equal(t, task.StatusFailure, cached.Status, "write-through must not stomp the terminal cached state")
}

func TestReconcile_CacheMiss_FallsBackToProjectionAsBase(t *testing.T) {
	queue, proj, cache := newFakeQueue(), newFakeProjection(), newFakeCache()
	r := New(queue, proj, cache)

	pending := newTestTask(task.StatusPending)
	proj.Store(context.Background(), pending)
	// cache empty, simulating a process restart

	queue.jobs[pending.ID] = &JobStatus{Status: task.StatusStarted, StartedAt: timePtr(time.Now())}

	got, found, err := r.Reconcile(context.Background(), pending.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, task.StatusStarted, got.Status)
	assert.Equal(t, pending.Sources, got.Sources, "fields the queue record doesn't carry must survive the merge")
}

func timePtr(t time.Time) *time.Time { return &t }

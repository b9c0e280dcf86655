// Package reconciler implements the state reconciler: the component
// that merges the authoritative queue-side job record with the
// durable projection and the in-memory cache to produce one
// consistent Task status, detecting and resolving orphaned ("zombie")
// jobs along the way.
//
// The reconciler is deliberately decoupled from Redis (or any
// concrete queue service): it depends only on the three narrow
// interfaces below, so the merge algorithm can be exercised with
// fakes independent of any backing store.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/docling-project/docling-task-orchestrator/task"
	"github.com/docling-project/docling-task-orchestrator/telemetry"
)

// JobStatus is the authoritative queue-side view of one task, as
// reported by the external queue service.
type JobStatus struct {
	Status         task.Status
	ErrorMessage   string
	ProcessingMeta task.ProcessingMeta
	StartedAt      *time.Time
	FinishedAt     *time.Time
	ResultHandle   string
}

// QueueReader queries the authoritative queue service for a job's
// current status.
//
// Contract: a nil error with gone=true means the queue service gave
// an explicit "no such job" answer. A non-nil error means a transient
// fault (timeout, connection failure) and gone must be false. Any
// other combination is a caller bug.
type QueueReader interface {
	GetJob(ctx context.Context, taskID string) (job *JobStatus, gone bool, err error)
}

// Projection reads and writes the durable, TTL-bounded copy of a Task
// held outside the process for cross-restart visibility.
type Projection interface {
	Load(ctx context.Context, taskID string) (t *task.Task, found bool, err error)
	Store(ctx context.Context, t *task.Task) error
	Delete(ctx context.Context, taskID string) error
}

// Cache is the in-memory last-resort fallback.
type Cache interface {
	Get(taskID string) (*task.Task, bool)
	Set(t *task.Task)
	Delete(taskID string)
}

// Reconciler merges the three sources of truth into one Task.
type Reconciler struct {
	Queue      QueueReader
	Projection Projection
	Cache      Cache
}

// New builds a Reconciler over the given sources of truth.
func New(queue QueueReader, projection Projection, cache Cache) *Reconciler {
	return &Reconciler{Queue: queue, Projection: projection, Cache: cache}
}

// orphanMessage is the synthesized error_message for a task whose
// queue-side record vanished while its projected status was still
// non-terminal.
func orphanMessage(oldStatus task.Status) string {
	return fmt.Sprintf("Task orphaned: queue job expired while status was %s. Likely caused by worker restart or storage eviction.", oldStatus)
}

// Reconcile implements the TaskStatus merge algorithm described in
// the state-reconciler design: query the queue first, fall back to
// the durable projection, fall back to the in-memory cache, applying
// the one-way orphan correction when the queue record has vanished
// while the projection was still non-terminal.
//
// Returns a nil Task with found=false and a nil error when no record
// exists anywhere (callers should surface TaskNotFound).
func (r *Reconciler) Reconcile(ctx context.Context, taskID string) (t *task.Task, found bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reconciler.reconcile", attribute.String("task_id", taskID))
	defer span.End()

	job, gone, qErr := r.Queue.GetJob(ctx, taskID)

	if qErr == nil && !gone {
		// Step 1, hit: adopt queue-side status and write through.
		merged := r.mergeFromJob(ctx, taskID, job)
		r.writeThrough(ctx, merged)
		return merged, true, nil
	}

	// Step 2: consult the durable projection.
	proj, projFound, projErr := r.Projection.Load(ctx, taskID)
	if projErr != nil {
		return r.cacheFallback(taskID)
	}

	switch {
	case projFound && proj.Status.IsTerminal() && gone:
		// Job completed and its queue record expired — normal.
		r.cleanupTracking(ctx, taskID)
		return proj, true, nil

	case projFound && !proj.Status.IsTerminal() && gone:
		// Orphan detected: the one allowed non-terminal -> terminal
		// correction outside the normal worker path.
		orphan := proj.Snapshot()
		orphan.MarkFailure(orphanMessage(proj.Status))
		r.writeThrough(ctx, orphan)
		r.cleanupTracking(ctx, taskID)
		telemetry.EmitOrphaned(ctx, taskID)
		return orphan, true, nil

	case projFound && !proj.Status.IsTerminal() && !gone:
		// Transient queue error: revalidate once.
		job2, gone2, qErr2 := r.Queue.GetJob(ctx, taskID)
		if qErr2 == nil && !gone2 && job2.Status != proj.Status {
			merged := r.mergeFromJob(ctx, taskID, job2)
			r.writeThrough(ctx, merged)
			return merged, true, nil
		}
		return proj, true, nil

	case !projFound && gone:
		// No record anywhere.
		r.Cache.Delete(taskID)
		return nil, false, nil

	default: // !projFound && transient
		return r.cacheFallback(taskID)
	}
}

func (r *Reconciler) cacheFallback(taskID string) (*task.Task, bool, error) {
	if cached, ok := r.Cache.Get(taskID); ok {
		return cached, true, nil
	}
	return nil, false, nil
}

func (r *Reconciler) cleanupTracking(ctx context.Context, taskID string) {
	r.Cache.Delete(taskID)
}

// mergeFromJob layers a queue-side JobStatus onto the best available
// base record: the in-memory cache first, falling back to the durable
// projection (e.g. after a process restart has emptied the cache) so
// fields the queue record never carries — sources, options, target,
// created_at — are not lost.
func (r *Reconciler) mergeFromJob(ctx context.Context, taskID string, job *JobStatus) *task.Task {
	var base *task.Task
	if cached, ok := r.Cache.Get(taskID); ok {
		base = cached.Snapshot()
	} else if proj, found, err := r.Projection.Load(ctx, taskID); err == nil && found {
		base = proj
	} else {
		base = &task.Task{ID: taskID}
	}

	base.Status = job.Status
	base.ErrorMessage = job.ErrorMessage
	base.ProcessingMeta = job.ProcessingMeta
	if job.StartedAt != nil {
		base.StartedAt = job.StartedAt
	}
	if job.FinishedAt != nil {
		base.FinishedAt = job.FinishedAt
	}
	if job.ResultHandle != "" {
		base.ResultHandle = job.ResultHandle
	}
	return base
}

// writeThrough persists merged to the durable projection and the
// in-memory cache, honoring the rule that a write-through must never
// stomp an already-terminal cached status: the cached terminal state
// may have been produced by another path (an out-of-band watchdog,
// or a concurrent reconcile call) and is authoritative.
func (r *Reconciler) writeThrough(ctx context.Context, merged *task.Task) {
	if cached, ok := r.Cache.Get(merged.ID); ok && cached.Status.IsTerminal() {
		return
	}
	r.Cache.Set(merged)
	_ = r.Projection.Store(ctx, merged)
}

// Package orchestrator defines the uniform contract every engine
// backend (local, distributed) implements, plus the shared request
// and error types the contract operates over. It is the "orchestrator
// interface" component of the task orchestration core: callers never
// talk to localengine or distengine directly, only to this interface.
package orchestrator

import (
	"context"
	"time"

	"github.com/docling-project/docling-task-orchestrator/task"
)

// Engine is the contract every orchestrator backend implements.
// Implementations: localengine.Engine (in-process worker pool),
// distengine.Engine (Redis-backed, out-of-process workers).
//
// All operations are asynchronous to the workload they describe; none
// block the caller beyond the documented wait semantics of TaskStatus
// and the admission semantics of Enqueue.
type Engine interface {
	// Enqueue constructs a fresh Task, admits it to the backing
	// queue, and returns immediately. Fails with KindQueueFull if the
	// engine is saturated (bounded queues only) and KindInvalidRequest
	// if sources is empty or the target is malformed.
	Enqueue(ctx context.Context, typ task.Type, sources []task.Source, opts task.Options, target task.Target) (*task.Task, error)

	// TaskStatus returns the current projection for taskID. When wait
	// is greater than zero, it blocks up to that duration or until the
	// task reaches a terminal status, whichever comes first; a
	// non-terminal transition (pending to started) does not end the
	// wait. Fails with
	// KindTaskNotFound if no record exists anywhere.
	TaskStatus(ctx context.Context, taskID string, wait time.Duration) (*task.Task, error)

	// QueuePosition returns the 1-based position of taskID among
	// pending tasks, or nil if the task is not pending (already
	// started/terminal, or unknown).
	QueuePosition(ctx context.Context, taskID string) (*int, error)

	// QueueSize returns the number of tasks currently waiting in the
	// backing queue (not counting in-flight tasks).
	QueueSize(ctx context.Context) (int, error)

	// TaskResult returns the delivered result for taskID if it is in
	// Success status and the result has not been evicted. It returns
	// nil, nil (no error) if the result is unavailable for any reason
	// other than a backend fault — callers distinguish via TaskStatus.
	TaskResult(ctx context.Context, taskID string) (*Result, error)

	// DeleteTask idempotently evicts taskID: in-memory record,
	// durable projection, worker-side result, and scratch_dir.
	DeleteTask(ctx context.Context, taskID string) error

	// ClearResults evicts every terminal task whose FinishedAt is
	// older than olderThan.
	ClearResults(ctx context.Context, olderThan time.Duration) (int, error)

	// ClearConverters asks the pipeline layer to drop warmed caches.
	// Orchestrator state is unaffected.
	ClearConverters(ctx context.Context) error

	// ProcessQueue starts the engine's worker loop. Safe to call more
	// than once; subsequent calls are no-ops while already running.
	ProcessQueue(ctx context.Context) error

	// SubscribeProgress returns a lazy, restartable stream of Task
	// snapshots for taskID, terminated by a terminal snapshot.
	SubscribeProgress(ctx context.Context, taskID string) (<-chan *task.Task, error)

	// Ready reports whether the engine is able to accept and process
	// work: the local engine checks that its worker pool is running,
	// the distributed engine checks that Redis answers a ping (it does
	// not check for live workers).
	Ready(ctx context.Context) error

	// WarmUp asks the pipeline layer to pre-warm any caches it keeps
	// (the inverse of ClearConverters). No-op if the pipeline does not
	// support it.
	WarmUp(ctx context.Context) error

	// Shutdown stops background workers and releases resources owned
	// by the engine. It does not evict any Task state.
	Shutdown(ctx context.Context) error
}

package bus

import (
	"context"
	"time"

	"github.com/docling-project/docling-task-orchestrator/task"
)

// LongPoll implements the wait-in-request half of TaskStatus: if
// current is already terminal it is returned unchanged; otherwise the
// caller subscribes internally, waits up to wait (or until ctx is
// done), then unsubscribes and returns the latest snapshot observed
// (or current, if nothing arrived before the deadline).
func (b *Bus) LongPoll(ctx context.Context, taskID string, wait time.Duration, current *task.Task) *task.Task {
	if current == nil || current.Status.IsTerminal() || wait <= 0 {
		return current
	}

	ch, cancel := b.Subscribe(taskID)
	defer cancel()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	latest := current
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return latest
			}
			latest = snap
			if snap.Status.IsTerminal() {
				return latest
			}
		case <-timer.C:
			return latest
		case <-ctx.Done():
			return latest
		}
	}
}

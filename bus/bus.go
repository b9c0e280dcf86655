// Package bus implements the subscriber notification fabric: the
// internal publish/subscribe layer that delivers Task snapshots to
// long-poll and streaming callers, plus the cleanup machinery (single-
// use result eviction and bulk clear), which runs independently of
// Publish.
//
// Subscribers are indexed by task_id on the Bus itself rather than
// referenced from the Task record, breaking what would otherwise be a
// cyclic reference between a Task and its listeners.
package bus

import (
	"sync"

	"github.com/docling-project/docling-task-orchestrator/corelog"
	"github.com/docling-project/docling-task-orchestrator/task"
)

// subscriberBufferSize bounds each subscriber's channel. A slow
// subscriber may miss intermediate snapshots once its channel fills,
// but the terminal snapshot is always attempted, including a
// best-effort re-send if the non-blocking send is dropped.
const subscriberBufferSize = 8

type subscriber struct {
	ch chan *task.Task
}

// Bus publishes Task state transitions to whoever is waiting on them.
type Bus struct {
	mu    sync.Mutex
	byTask map[string][]*subscriber

	logger corelog.Logger
}

// New creates an empty Bus.
func New(logger corelog.Logger) *Bus {
	return &Bus{
		byTask: make(map[string][]*subscriber),
		logger: corelog.WithComponent(logger, "bus"),
	}
}

// Subscribe registers interest in taskID's state transitions. The
// returned channel receives a snapshot on every Publish call for that
// task and is closed once a terminal snapshot has been delivered.
// cancel unregisters the subscriber but does not close the channel.
// The caller must always call cancel, even after the channel closes,
// to avoid leaking the subscriber entry if the stream is abandoned
// mid-flight.
func (b *Bus) Subscribe(taskID string) (ch <-chan *task.Task, cancel func()) {
	sub := &subscriber{ch: make(chan *task.Task, subscriberBufferSize)}

	b.mu.Lock()
	b.byTask[taskID] = append(b.byTask[taskID], sub)
	b.mu.Unlock()

	var once sync.Once
	cancelFn := func() {
		once.Do(func() {
			b.remove(taskID, sub)
		})
	}

	return sub.ch, cancelFn
}

func (b *Bus) remove(taskID string, target *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.byTask[taskID]
	for i, s := range subs {
		if s == target {
			b.byTask[taskID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.byTask[taskID]) == 0 {
		delete(b.byTask, taskID)
	}
}

// Publish delivers a snapshot of t to every current subscriber of
// t.ID. Delivery is non-blocking: a subscriber whose channel is full
// drops the snapshot, except that a terminal snapshot is always
// attempted with one best-effort re-send after a drop, and the
// subscriber's channel is closed afterward so streaming callers see
// end-of-stream.
func (b *Bus) Publish(t *task.Task) {
	snap := t.Snapshot()

	b.mu.Lock()
	subs := append([]*subscriber(nil), b.byTask[t.ID]...)
	if snap.Status.IsTerminal() {
		delete(b.byTask, t.ID)
	}
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s, snap)
	}
}

func (b *Bus) deliver(s *subscriber, snap *task.Task) {
	select {
	case s.ch <- snap:
	default:
		if snap.Status.IsTerminal() {
			// Best-effort re-send: drain one stale entry to make room,
			// then retry once. The terminal snapshot must get through.
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- snap:
			default:
			}
		}
		if b.logger != nil {
			b.logger.Debug("subscriber channel full, snapshot dropped", map[string]interface{}{
				"task_id": snap.ID,
				"status":  string(snap.Status),
			})
		}
	}
	if snap.Status.IsTerminal() {
		close(s.ch)
	}
}

// SubscriberCount returns the number of active subscribers for
// taskID. Used for diagnostics/tests.
func (b *Bus) SubscriberCount(taskID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byTask[taskID])
}

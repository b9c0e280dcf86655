package distengine

import (
	"sync"

	"github.com/docling-project/docling-task-orchestrator/task"
)

// memCache is the in-memory last-resort fallback the reconciler
// consults when both the queue and the durable projection are
// unreachable. It implements reconciler.Cache.
type memCache struct {
	mu   sync.RWMutex
	byID map[string]*task.Task
}

func newMemCache() *memCache {
	return &memCache{byID: make(map[string]*task.Task)}
}

func (c *memCache) Get(taskID string) (*task.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byID[taskID]
	if !ok {
		return nil, false
	}
	return t.Snapshot(), true
}

func (c *memCache) Set(t *task.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[t.ID] = t.Snapshot()
}

func (c *memCache) Delete(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, taskID)
}

// snapshotAll returns every cached task, used by ClearResults' age scan.
func (c *memCache) snapshotAll() []*task.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*task.Task, 0, len(c.byID))
	for _, t := range c.byID {
		out = append(out, t.Snapshot())
	}
	return out
}

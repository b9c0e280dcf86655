package bus

import (
	"context"
	"sync"
	"time"

	"github.com/docling-project/docling-task-orchestrator/corelog"
)

// DeleteFunc evicts a single task: in-memory record, durable
// projection, worker-side result, and scratch_dir. Implemented by
// each engine; Cleanup only decides *when* to call it.
type DeleteFunc func(ctx context.Context, taskID string) error

// Cleanup owns the deletion closures every Task is registered with on
// creation (the "scoped resource acquisition" pattern): a closure
// fired on eviction or single-use fetch, invoked at most once per
// task regardless of how many triggers race to fire it.
type Cleanup struct {
	mu      sync.Mutex
	fired   map[string]*sync.Once
	deleteFn DeleteFunc
	logger  corelog.Logger
}

// NewCleanup builds a Cleanup that evicts tasks via deleteFn.
func NewCleanup(deleteFn DeleteFunc, logger corelog.Logger) *Cleanup {
	return &Cleanup{
		fired:    make(map[string]*sync.Once),
		deleteFn: deleteFn,
		logger:   corelog.WithComponent(logger, "bus.cleanup"),
	}
}

func (c *Cleanup) onceFor(taskID string) *sync.Once {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.fired[taskID]
	if !ok {
		o = &sync.Once{}
		c.fired[taskID] = o
	}
	return o
}

// FireNow evicts taskID immediately, idempotently. Safe to call
// concurrently with ScheduleSingleUse for the same task: whichever
// fires first wins, the other is a no-op.
func (c *Cleanup) FireNow(ctx context.Context, taskID string) error {
	var err error
	c.onceFor(taskID).Do(func() {
		err = c.deleteFn(ctx, taskID)
	})
	return err
}

// ScheduleSingleUse arranges for taskID to be evicted after delay,
// used when single_use_results is enabled and a caller has just
// fetched the task's result. If delay is zero or negative, eviction
// happens immediately.
func (c *Cleanup) ScheduleSingleUse(taskID string, delay time.Duration) {
	if delay <= 0 {
		go func() {
			if err := c.FireNow(context.Background(), taskID); err != nil && c.logger != nil {
				c.logger.Warn("single-use cleanup failed", map[string]interface{}{
					"task_id": taskID,
					"error":   err.Error(),
				})
			}
		}()
		return
	}

	time.AfterFunc(delay, func() {
		if err := c.FireNow(context.Background(), taskID); err != nil && c.logger != nil {
			c.logger.Warn("single-use cleanup failed", map[string]interface{}{
				"task_id": taskID,
				"error":   err.Error(),
			})
		}
	})
}

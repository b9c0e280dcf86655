package bus

import (
	cronlib "github.com/robfig/cron/v3"

	"context"

	"github.com/docling-project/docling-task-orchestrator/corelog"
)

// ClearFunc runs one bulk-clear pass (an Engine.ClearResults call) and
// reports how many tasks it evicted.
type ClearFunc func(ctx context.Context) (int, error)

// BulkScheduler runs a ClearFunc on a cron schedule. It is independent
// of the per-task FireNow/ScheduleSingleUse cleanup above: that path
// evicts one task as soon as its result is consumed or deleted, this
// one periodically sweeps every terminal task older than the age its
// ClearFunc passes to ClearResults, the way an operator would schedule
// a periodic "vacuum" job.
type BulkScheduler struct {
	cron   *cronlib.Cron
	clear  ClearFunc
	logger corelog.Logger
}

// NewBulkScheduler builds a BulkScheduler that invokes clear on
// whatever schedule Schedule registers.
func NewBulkScheduler(clear ClearFunc, logger corelog.Logger) *BulkScheduler {
	return &BulkScheduler{
		cron:   cronlib.New(),
		clear:  clear,
		logger: corelog.WithComponent(logger, "bus.bulkcleanup"),
	}
}

// Schedule registers clear to run on expr, a standard 5-field cron
// expression (robfig/cron also accepts "@every 5m"-style descriptors).
// Returns an error if expr does not parse. Safe to call more than once
// to register multiple schedules.
func (s *BulkScheduler) Schedule(expr string) error {
	_, err := s.cron.AddFunc(expr, func() {
		n, err := s.clear(context.Background())
		if err != nil {
			s.logger.Warn("bulk clear pass failed", map[string]interface{}{"error": err.Error()})
			return
		}
		if n > 0 {
			s.logger.Info("bulk clear evicted tasks", map[string]interface{}{"count": n})
		}
	})
	return err
}

// Start begins running registered schedules in the background.
func (s *BulkScheduler) Start() {
	s.cron.Start()
}

// Stop waits for any in-flight clear pass to finish, then stops
// scheduling new ones.
func (s *BulkScheduler) Stop() {
	<-s.cron.Stop().Done()
}

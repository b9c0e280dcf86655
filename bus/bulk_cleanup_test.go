package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docling-project/docling-task-orchestrator/corelog"
)

func TestBulkScheduler_RunsOnSchedule(t *testing.T) {
	calls := make(chan struct{}, 8)
	s := NewBulkScheduler(func(ctx context.Context) (int, error) {
		calls <- struct{}{}
		return 3, nil
	}, corelog.NoOpLogger{})

	require.NoError(t, s.Schedule("@every 30ms"))
	s.Start()
	defer s.Stop()

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled bulk clear never fired")
	}
}

func TestBulkScheduler_RejectsInvalidExpression(t *testing.T) {
	s := NewBulkScheduler(func(ctx context.Context) (int, error) { return 0, nil }, corelog.NoOpLogger{})
	assert.Error(t, s.Schedule("not a cron expression"))
}

func TestBulkScheduler_StopWaitsForInFlightPass(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := NewBulkScheduler(func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 0, nil
	}, corelog.NoOpLogger{})

	require.NoError(t, s.Schedule("@every 10ms"))
	s.Start()

	<-started
	close(release)
	s.Stop()
}

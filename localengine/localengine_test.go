package localengine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docling-project/docling-task-orchestrator/orchestrator"
	"github.com/docling-project/docling-task-orchestrator/pipeline"
	"github.com/docling-project/docling-task-orchestrator/task"
)

func testSources() []task.Source {
	return []task.Source{{Kind: task.SourceFile, Filename: "doc.pdf", Base64: "Zm9v"}}
}

func testTarget() task.Target {
	return task.Target{Kind: task.TargetInBody}
}

func okConverter(result *orchestrator.Result) pipeline.Converter {
	return pipeline.ConverterFunc(func(ctx context.Context, sources []task.Source, opts task.Options) (*orchestrator.Result, error) {
		return result, nil
	})
}

func failingConverter(msg string) pipeline.Converter {
	return pipeline.ConverterFunc(func(ctx context.Context, sources []task.Source, opts task.Options) (*orchestrator.Result, error) {
		return nil, fmt.Errorf("%s", msg)
	})
}

func TestEngine_EnqueueAndProcess_Succeeds(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg, okConverter(&orchestrator.Result{Documents: []orchestrator.Document{{Filename: "a.md"}}}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.ProcessQueue(ctx))
	defer e.Shutdown(context.Background())

	got, err := e.Enqueue(ctx, task.TypeConvert, testSources(), task.Options{}, testTarget())
	require.NoError(t, err)

	final, err := e.TaskStatus(ctx, got.ID, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, task.StatusSuccess, final.Status)

	result, err := e.TaskResult(ctx, got.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.Documents, 1)
}

func TestEngine_Process_HandlerFailure_RecordsErrorMessage(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg, failingConverter("pdf parse error"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.ProcessQueue(ctx))
	defer e.Shutdown(context.Background())

	got, err := e.Enqueue(ctx, task.TypeConvert, testSources(), task.Options{}, testTarget())
	require.NoError(t, err)

	final, err := e.TaskStatus(ctx, got.ID, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailure, final.Status)
	assert.Contains(t, final.ErrorMessage, "pdf parse error")
}

func TestEngine_Enqueue_QueueFullBackPressure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueMaxSize = 1
	cfg.NumWorkers = 1
	// No ProcessQueue call: the single queued item is never drained,
	// so the second Enqueue must observe a full queue.
	e := New(cfg, okConverter(&orchestrator.Result{}), nil)

	ctx := context.Background()
	_, err := e.Enqueue(ctx, task.TypeConvert, testSources(), task.Options{}, testTarget())
	require.NoError(t, err)

	_, err = e.Enqueue(ctx, task.TypeConvert, testSources(), task.Options{}, testTarget())
	require.Error(t, err)

	var orchErr *orchestrator.Error
	require.ErrorAs(t, err, &orchErr)
	assert.Equal(t, orchestrator.KindQueueFull, orchErr.Kind)
}

func TestEngine_Enqueue_RejectsInvalidRequest(t *testing.T) {
	e := New(DefaultConfig(), okConverter(&orchestrator.Result{}), nil)

	_, err := e.Enqueue(context.Background(), task.TypeConvert, nil, task.Options{}, testTarget())
	require.Error(t, err)
	var orchErr *orchestrator.Error
	require.ErrorAs(t, err, &orchErr)
	assert.Equal(t, orchestrator.KindInvalidRequest, orchErr.Kind)
}

func TestEngine_QueuePosition_TracksFIFOOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumWorkers = 0
	e := New(cfg, okConverter(&orchestrator.Result{}), nil)
	ctx := context.Background()

	first, err := e.Enqueue(ctx, task.TypeConvert, testSources(), task.Options{}, testTarget())
	require.NoError(t, err)
	second, err := e.Enqueue(ctx, task.TypeConvert, testSources(), task.Options{}, testTarget())
	require.NoError(t, err)

	pos1, err := e.QueuePosition(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, pos1)
	assert.Equal(t, 1, *pos1)

	pos2, err := e.QueuePosition(ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, pos2)
	assert.Equal(t, 2, *pos2)

	size, err := e.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestEngine_DeleteTask_EvictsResultAndStatus(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg, okConverter(&orchestrator.Result{Documents: []orchestrator.Document{{Filename: "a.md"}}}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.ProcessQueue(ctx))
	defer e.Shutdown(context.Background())

	got, err := e.Enqueue(ctx, task.TypeConvert, testSources(), task.Options{}, testTarget())
	require.NoError(t, err)

	_, err = e.TaskStatus(ctx, got.ID, 2*time.Second)
	require.NoError(t, err)

	require.NoError(t, e.DeleteTask(ctx, got.ID))

	_, err = e.TaskStatus(ctx, got.ID, 0)
	require.Error(t, err)
	assert.True(t, orchestrator.IsNotFound(err))
}

func TestEngine_SubscribeProgress_ReceivesTerminalSnapshot(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg, okConverter(&orchestrator.Result{}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.ProcessQueue(ctx))
	defer e.Shutdown(context.Background())

	got, err := e.Enqueue(ctx, task.TypeConvert, testSources(), task.Options{}, testTarget())
	require.NoError(t, err)

	ch, err := e.SubscribeProgress(ctx, got.ID)
	require.NoError(t, err)

	var last *task.Task
	for snap := range ch {
		last = snap
	}
	require.NotNil(t, last)
	assert.True(t, last.Status.IsTerminal())
}

func TestEngine_Ready_FalseUntilProcessQueueStarted(t *testing.T) {
	e := New(DefaultConfig(), okConverter(&orchestrator.Result{}), nil)
	assert.Error(t, e.Ready(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.ProcessQueue(ctx))
	defer e.Shutdown(context.Background())
	assert.NoError(t, e.Ready(context.Background()))
}

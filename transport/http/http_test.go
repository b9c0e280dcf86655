package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docling-project/docling-task-orchestrator/config"
	"github.com/docling-project/docling-task-orchestrator/orchestrator"
	"github.com/docling-project/docling-task-orchestrator/task"
)

// fakeEngine is a minimal orchestrator.Engine stand-in, following the
// teacher's practice of testing HTTP handlers against hand-written
// fakes rather than a real backend (task_api_test.go uses the same
// in-memory queue/store fakes).
type fakeEngine struct {
	tasks map[string]*task.Task
	result *orchestrator.Result
	deleted []string
	readyErr error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{tasks: make(map[string]*task.Task)}
}

func (f *fakeEngine) Enqueue(ctx context.Context, typ task.Type, sources []task.Source, opts task.Options, target task.Target) (*task.Task, error) {
	if err := task.Validate(sources, target); err != nil {
		return nil, orchestrator.NewError("Enqueue", orchestrator.KindInvalidRequest, "", err.Error(), err)
	}
	t := task.New(typ, sources, opts, target)
	f.tasks[t.ID] = t
	return t.Snapshot(), nil
}

func (f *fakeEngine) TaskStatus(ctx context.Context, taskID string, wait time.Duration) (*task.Task, error) {
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, orchestrator.NewError("TaskStatus", orchestrator.KindTaskNotFound, taskID, "not found", nil)
	}
	return t.Snapshot(), nil
}

func (f *fakeEngine) QueuePosition(ctx context.Context, taskID string) (*int, error) {
	t, ok := f.tasks[taskID]
	if !ok || t.Status != task.StatusPending {
		return nil, nil
	}
	pos := 1
	return &pos, nil
}

func (f *fakeEngine) QueueSize(ctx context.Context) (int, error) { return len(f.tasks), nil }

func (f *fakeEngine) TaskResult(ctx context.Context, taskID string) (*orchestrator.Result, error) {
	t, ok := f.tasks[taskID]
	if !ok || t.Status != task.StatusSuccess {
		return nil, nil
	}
	return f.result, nil
}

func (f *fakeEngine) DeleteTask(ctx context.Context, taskID string) error {
	delete(f.tasks, taskID)
	f.deleted = append(f.deleted, taskID)
	return nil
}

func (f *fakeEngine) ClearResults(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

func (f *fakeEngine) ClearConverters(ctx context.Context) error { return nil }
func (f *fakeEngine) ProcessQueue(ctx context.Context) error    { return nil }

func (f *fakeEngine) SubscribeProgress(ctx context.Context, taskID string) (<-chan *task.Task, error) {
	ch := make(chan *task.Task)
	close(ch)
	return ch, nil
}

func (f *fakeEngine) Ready(ctx context.Context) error { return f.readyErr }
func (f *fakeEngine) WarmUp(ctx context.Context) error { return nil }
func (f *fakeEngine) Shutdown(ctx context.Context) error { return nil }

func newTestServer(t *testing.T, engine orchestrator.Engine) *Server {
	t.Helper()
	cfg, err := config.New()
	require.NoError(t, err)
	return NewServer(engine, cfg, DevelopmentCORSConfig())
}

func TestHandleSubmit_EnqueuesAndReturnsSnapshot(t *testing.T) {
	engine := newFakeEngine()
	s := newTestServer(t, engine)

	body := submitRequest{
		Sources: []sourceWire{{Kind: "file", Filename: "a.pdf", Base64: "Zm9v"}},
		Target:  targetWire{Kind: "in-body"},
	}
	buf, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/convert", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp snapshotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "convert", resp.TaskType)
	assert.Equal(t, "pending", resp.TaskStatus)
	assert.NotEmpty(t, resp.TaskID)
}

func TestHandleSubmit_RejectsEmptySources(t *testing.T) {
	engine := newFakeEngine()
	s := newTestServer(t, engine)

	body := submitRequest{Target: targetWire{Kind: "in-body"}}
	buf, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/convert", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStatus_UnknownTaskReturns404(t *testing.T) {
	engine := newFakeEngine()
	s := newTestServer(t, engine)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/missing/status/poll", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleResult_PendingTaskReturns404WithWaitMessage(t *testing.T) {
	engine := newFakeEngine()
	t0 := task.New(task.TypeConvert, []task.Source{{Kind: task.SourceFile, Filename: "a", Base64: "Zm9v"}}, task.Options{}, task.Target{Kind: task.TargetInBody})
	engine.tasks[t0.ID] = t0
	s := newTestServer(t, engine)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+t0.ID+"/result", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "Please wait")
}

func TestHandleResult_SuccessReturnsDocuments(t *testing.T) {
	engine := newFakeEngine()
	t0 := task.New(task.TypeConvert, []task.Source{{Kind: task.SourceFile, Filename: "a", Base64: "Zm9v"}}, task.Options{}, task.Target{Kind: task.TargetInBody})
	t0.MarkSuccess("handle-1")
	engine.tasks[t0.ID] = t0
	engine.result = &orchestrator.Result{Documents: []orchestrator.Document{{Filename: "a.md", Content: "# hi"}}}
	s := newTestServer(t, engine)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+t0.ID+"/result", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp resultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "a.md", resp.Documents[0].Filename)
}

func TestHandleResult_FailureReturnsPipelineFailure(t *testing.T) {
	engine := newFakeEngine()
	t0 := task.New(task.TypeConvert, []task.Source{{Kind: task.SourceFile, Filename: "a", Base64: "Zm9v"}}, task.Options{}, task.Target{Kind: task.TargetInBody})
	t0.MarkFailure("pipeline exploded")
	engine.tasks[t0.ID] = t0
	s := newTestServer(t, engine)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+t0.ID+"/result", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleDelete_RemovesTask(t *testing.T) {
	engine := newFakeEngine()
	t0 := task.New(task.TypeConvert, []task.Source{{Kind: task.SourceFile, Filename: "a", Base64: "Zm9v"}}, task.Options{}, task.Target{Kind: task.TargetInBody})
	engine.tasks[t0.ID] = t0
	s := newTestServer(t, engine)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/tasks/"+t0.ID, nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, engine.deleted, t0.ID)
}

func TestHandleHealthz_ReportsReadyError(t *testing.T) {
	engine := newFakeEngine()
	engine.readyErr = assertError("redis unreachable")
	s := newTestServer(t, engine)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSMiddleware_AppliesHeadersForAllowedOrigin(t *testing.T) {
	engine := newFakeEngine()
	s := NewServer(engine, mustConfig(t), &CORSConfig{Enabled: true, AllowedOrigins: []string{"https://example.com"}, AllowedMethods: []string{"GET"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func mustConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.New()
	require.NoError(t, err)
	return cfg
}

type assertError string

func (e assertError) Error() string { return string(e) }

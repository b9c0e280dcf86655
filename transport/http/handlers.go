package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/docling-project/docling-task-orchestrator/task"
)

// handleSubmit returns a handler for the convert/chunk submission
// endpoints, which share one request/response shape (spec.md §6).
func (s *Server) handleSubmit(taskType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_REQUEST")
			return
		}

		sources := make([]task.Source, 0, len(req.Sources))
		for _, sw := range req.Sources {
			src, err := sw.toDomain()
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error(), "INVALID_REQUEST")
				return
			}
			sources = append(sources, src)
		}

		target, err := req.Target.toDomain()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_REQUEST")
			return
		}

		opts := toOptions(req.Options)

		t, err := s.engine.Enqueue(ctx, task.Type(taskType), sources, opts, target)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		var position *int
		if p, err := s.engine.QueuePosition(ctx, t.ID); err == nil {
			position = p
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(toSnapshotResponse(t, position, nil))
	}
}

// toOptions splits the opaque options map into the one field the
// orchestrator reads itself (document_timeout) and everything else,
// preserved verbatim for the pipeline layer.
func toOptions(raw map[string]interface{}) task.Options {
	opts := task.Options{Raw: raw}
	if raw == nil {
		return opts
	}
	if v, ok := raw["document_timeout"]; ok {
		switch tv := v.(type) {
		case string:
			if d, err := time.ParseDuration(tv); err == nil {
				opts.DocumentTimeout = d
			}
		case float64:
			opts.DocumentTimeout = time.Duration(tv) * time.Second
		}
	}
	return opts
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := mux.Vars(r)["id"]

	var wait time.Duration
	if v := r.URL.Query().Get("wait"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			wait = time.Duration(secs * float64(time.Second))
		}
	}

	t, err := s.engine.TaskStatus(ctx, taskID, wait)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var position *int
	if !t.Status.IsTerminal() {
		if p, err := s.engine.QueuePosition(ctx, taskID); err == nil {
			position = p
		}
	}

	var queueSize *int
	if t.Status == task.StatusPending {
		if n, err := s.engine.QueueSize(ctx); err == nil {
			queueSize = &n
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toSnapshotResponse(t, position, queueSize))
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := mux.Vars(r)["id"]

	t, err := s.engine.TaskStatus(ctx, taskID, 0)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	switch t.Status {
	case task.StatusFailure:
		writeError(w, http.StatusUnprocessableEntity, t.ErrorMessage, "PIPELINE_FAILURE")
		return
	case task.StatusPending, task.StatusStarted:
		writeError(w, http.StatusNotFound, "Task result not found. Please wait for a completion status.", "RESULT_NOT_READY")
		return
	}

	result, err := s.engine.TaskResult(ctx, taskID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "Task result not found. Please wait for a completion status.", "RESULT_NOT_READY")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if t.Target.Kind == task.TargetInBody {
		_ = json.NewEncoder(w).Encode(toResultResponse(result))
	} else {
		_ = json.NewEncoder(w).Encode(deliveryResponse{DeliveryRef: result.DeliveryRef})
	}

	if s.cfg.SingleUseResults {
		s.scheduleSingleUseDelete(taskID)
	}
}

// scheduleSingleUseDelete evicts taskID after cfg.ResultRemovalDelay,
// mirroring bus.Cleanup.ScheduleSingleUse's delay semantics at the
// transport layer, via the Engine's own idempotent DeleteTask rather
// than reaching into either engine's internal Cleanup.
func (s *Server) scheduleSingleUseDelete(taskID string) {
	delay := s.cfg.ResultRemovalDelay
	del := func() {
		if err := s.engine.DeleteTask(context.Background(), taskID); err != nil {
			s.logger.Warn("single-use result cleanup failed", map[string]interface{}{
				"task_id": taskID,
				"error":   err.Error(),
			})
		}
	}
	if delay <= 0 {
		go del()
		return
	}
	time.AfterFunc(delay, del)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := mux.Vars(r)["id"]

	if err := s.engine.DeleteTask(ctx, taskID); err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"task_id": taskID, "status": "deleted"})
}

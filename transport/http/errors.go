package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/docling-project/docling-task-orchestrator/orchestrator"
)

// writeError writes a JSON error response, mirroring the teacher's
// writeError helper in orchestration/task_api.go.
func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}

// writeEngineError inspects err for an *orchestrator.Error and maps its
// Kind to an HTTP status and error code, per spec.md §7's taxonomy. A
// bare error with no Kind is treated as an internal fault.
func writeEngineError(w http.ResponseWriter, err error) {
	var oerr *orchestrator.Error
	if !errors.As(err, &oerr) {
		writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL")
		return
	}
	status, code := kindToStatus(oerr.Kind)
	writeError(w, status, oerr.Error(), code)
}

func kindToStatus(kind orchestrator.Kind) (int, string) {
	switch kind {
	case orchestrator.KindInvalidRequest:
		return http.StatusBadRequest, "INVALID_REQUEST"
	case orchestrator.KindQueueFull:
		return http.StatusServiceUnavailable, "QUEUE_FULL"
	case orchestrator.KindTaskNotFound:
		return http.StatusNotFound, "TASK_NOT_FOUND"
	case orchestrator.KindUnauthenticated:
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case orchestrator.KindTimeout:
		return http.StatusGatewayTimeout, "TIMEOUT"
	case orchestrator.KindUpstreamUnavailable:
		return http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"
	case orchestrator.KindPipelineFailure:
		return http.StatusUnprocessableEntity, "PIPELINE_FAILURE"
	case orchestrator.KindOrphaned:
		return http.StatusConflict, "ORPHANED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

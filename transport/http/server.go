package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/docling-project/docling-task-orchestrator/config"
	"github.com/docling-project/docling-task-orchestrator/corelog"
	"github.com/docling-project/docling-task-orchestrator/orchestrator"
)

// CORSConfig mirrors the teacher's core.CORSConfig shape, kept local to
// this package rather than threaded through config.Config: CORS is a
// transport-presentation concern, not an orchestrator tunable.
type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig returns CORS disabled, matching the teacher's
// secure-by-default posture.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		Enabled:        false,
		AllowedOrigins: []string{},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}
}

// DevelopmentCORSConfig allows everything. Never use outside local
// development.
func DevelopmentCORSConfig() *CORSConfig {
	return &CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           86400,
	}
}

// Server is the HTTP presentation over a single orchestrator.Engine.
type Server struct {
	engine orchestrator.Engine
	cfg    *config.Config
	cors   *CORSConfig
	logger corelog.Logger
}

// NewServer builds a Server. corsCfg may be nil, in which case CORS is
// disabled (DefaultCORSConfig).
func NewServer(engine orchestrator.Engine, cfg *config.Config, corsCfg *CORSConfig) *Server {
	if corsCfg == nil {
		corsCfg = DefaultCORSConfig()
	}
	return &Server{
		engine: engine,
		cfg:    cfg,
		cors:   corsCfg,
		logger: corelog.WithComponent(cfg.Logger(), "transport/http"),
	}
}

// Routes builds the router for every endpoint spec.md §6 names. Route
// layout follows the teacher's /api/v1/tasks prefix, adapted to two
// task types and the submission/status/result/stream/delete shape this
// core exposes instead of the teacher's submit/get/cancel shape.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	r.HandleFunc("/api/v1/tasks/convert", s.handleSubmit("convert")).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/tasks/chunk", s.handleSubmit("chunk")).Methods(http.MethodPost)

	r.HandleFunc("/api/v1/tasks/{id}/status/poll", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/tasks/{id}/result", s.handleResult).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/tasks/{id}/stream", s.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/tasks/{id}", s.handleDelete).Methods(http.MethodDelete)

	return s.corsMiddleware(r)
}

// corsMiddleware applies CORS headers the way the teacher's
// CORSMiddleware does, adapted to gorilla's http.Handler composition.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cors.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		if isOriginAllowed(origin, s.cors.AllowedOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if s.cors.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if len(s.cors.AllowedMethods) > 0 {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(s.cors.AllowedMethods, ", "))
			}
			if len(s.cors.AllowedHeaders) > 0 {
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(s.cors.AllowedHeaders, ", "))
			}
			if len(s.cors.ExposedHeaders) > 0 {
				w.Header().Set("Access-Control-Expose-Headers", strings.Join(s.cors.ExposedHeaders, ", "))
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isOriginAllowed mirrors the teacher's core.isOriginAllowed: exact
// match, "*", "*.sub.domain" wildcards, and "host:*" wildcard ports.
func isOriginAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
		if idx := strings.Index(a, "*."); idx >= 0 {
			before, after := a[:idx], a[idx+2:]
			if strings.HasPrefix(origin, before) && strings.HasSuffix(origin, after) {
				remaining := strings.TrimSuffix(strings.TrimPrefix(origin, before), after)
				if len(remaining) > 0 {
					return true
				}
			}
		}
		if strings.Contains(a, ":*") {
			base := strings.Split(a, ":*")[0]
			if strings.HasPrefix(origin, base+":") {
				return true
			}
		}
	}
	return false
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.engine.Ready(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error(), "NOT_READY")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Package app wires the orchestrator core's pieces into one runnable
// process: configuration, engine selection, the bulk-clear schedule,
// and the HTTP transport, mirroring the teacher's practice of keeping
// wiring (as opposed to business logic) in a thin top-level package
// that cmd/ does almost nothing but call into.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/docling-project/docling-task-orchestrator/bus"
	"github.com/docling-project/docling-task-orchestrator/config"
	"github.com/docling-project/docling-task-orchestrator/corelog"
	"github.com/docling-project/docling-task-orchestrator/distengine"
	"github.com/docling-project/docling-task-orchestrator/localengine"
	"github.com/docling-project/docling-task-orchestrator/orchestrator"
	"github.com/docling-project/docling-task-orchestrator/pipeline"
	httpapi "github.com/docling-project/docling-task-orchestrator/transport/http"
)

// Orchestrator owns the process-level lifecycle: it builds whichever
// backend config.Config selects, starts its worker loop and bulk-clear
// schedule, and serves the HTTP transport, stopping everything in the
// reverse order on Shutdown.
type Orchestrator struct {
	cfg    *config.Config
	engine orchestrator.Engine
	bulk   *bus.BulkScheduler
	server *httpapi.Server
	logger corelog.Logger
}

// New builds an Orchestrator from cfg, wiring converter/chunker into
// whichever engine cfg.Engine selects. Either collaborator may be nil
// if the deployment never submits that task type.
func New(cfg *config.Config, converter pipeline.Converter, chunker pipeline.Chunker) (*Orchestrator, error) {
	logger := corelog.WithComponent(cfg.Logger(), "app")

	engine, err := buildEngine(cfg, converter, chunker)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	bulk := bus.NewBulkScheduler(func(ctx context.Context) (int, error) {
		return engine.ClearResults(ctx, cfg.MaxAge)
	}, logger)
	if cfg.SweepInterval > 0 {
		expr := fmt.Sprintf("@every %s", cfg.SweepInterval.String())
		if err := bulk.Schedule(expr); err != nil {
			return nil, fmt.Errorf("schedule bulk clear: %w", err)
		}
	}

	server := httpapi.NewServer(engine, cfg, nil)

	return &Orchestrator{cfg: cfg, engine: engine, bulk: bulk, server: server, logger: logger}, nil
}

func buildEngine(cfg *config.Config, converter pipeline.Converter, chunker pipeline.Chunker) (orchestrator.Engine, error) {
	switch cfg.Engine {
	case config.EngineLocal:
		lcfg := localengine.DefaultConfig()
		lcfg.NumWorkers = cfg.NumWorkers
		lcfg.QueueMaxSize = cfg.QueueMaxSize
		lcfg.SweepInterval = cfg.SweepInterval
		lcfg.MaxAge = cfg.MaxAge
		lcfg.Logger = cfg.Logger()
		return localengine.New(lcfg, converter, chunker), nil
	case config.EngineDistributed:
		dcfg := distengine.DefaultConfig()
		dcfg.RedisURL = cfg.RedisURL
		dcfg.KeyPrefix = cfg.KeyPrefix
		dcfg.NumWorkers = cfg.NumWorkers
		dcfg.QueueMaxSize = cfg.QueueMaxSize
		dcfg.ResultsTTL = cfg.ResultsTTL
		dcfg.FailureTTL = cfg.FailureTTL
		dcfg.SyncPollInterval = cfg.SyncPollInterval
		dcfg.MaxSyncWait = cfg.MaxSyncWait
		dcfg.SweepInterval = cfg.SweepInterval
		dcfg.MaxAge = cfg.MaxAge
		dcfg.Logger = cfg.Logger()
		return distengine.New(dcfg, converter, chunker)
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

// Handler returns the HTTP handler serving every endpoint spec.md §6
// names, for callers that want to embed it in their own http.Server
// (TLS termination, additional middleware, etc).
func (o *Orchestrator) Handler() http.Handler {
	return o.server.Routes()
}

// Start brings up the worker loop and the bulk-clear schedule. It does
// not start an HTTP listener itself; callers serve Handler() however
// fits their deployment (plain http.Server, a mux shared with other
// routes, TLS, ...).
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.engine.ProcessQueue(ctx); err != nil {
		return fmt.Errorf("start worker loop: %w", err)
	}
	o.bulk.Start()
	o.logger.Info("orchestrator started", map[string]interface{}{"engine": string(o.cfg.Engine)})
	return nil
}

// Shutdown stops the bulk-clear schedule and the engine's worker loop,
// in that order, waiting up to the context's deadline.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.bulk.Stop()
	if err := o.engine.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown engine: %w", err)
	}
	o.logger.Info("orchestrator stopped", nil)
	return nil
}

// Ready reports whether the underlying engine can accept work.
func (o *Orchestrator) Ready(ctx context.Context) error {
	return o.engine.Ready(ctx)
}

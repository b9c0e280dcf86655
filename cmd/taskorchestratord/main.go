// Command taskorchestratord runs the document conversion task
// orchestrator as a standalone HTTP service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docling-project/docling-task-orchestrator/app"
	"github.com/docling-project/docling-task-orchestrator/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	logger := cfg.Logger()

	// No in-tree Converter/Chunker implementation ships with this
	// module (spec.md's Non-goals exclude the pipeline internals); a
	// real deployment supplies its own via app.New.
	orc, err := app.New(cfg, nil, nil)
	if err != nil {
		logger.Error("failed to build orchestrator", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orc.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    addr(),
		Handler: orc.Handler(),
	}

	go func() {
		logger.Info("listening", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", map[string]interface{}{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if err := orc.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", map[string]interface{}{"error": err.Error()})
	}
}

func addr() string {
	if v := os.Getenv("DOCLING_ORCHESTRATOR_ADDR"); v != "" {
		return v
	}
	return ":8000"
}

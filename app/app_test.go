package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docling-project/docling-task-orchestrator/config"
	"github.com/docling-project/docling-task-orchestrator/orchestrator"
	"github.com/docling-project/docling-task-orchestrator/pipeline"
	"github.com/docling-project/docling-task-orchestrator/task"
)

func noopConverter() pipeline.ConverterFunc {
	return func(ctx context.Context, sources []task.Source, opts task.Options) (*orchestrator.Result, error) {
		return &orchestrator.Result{Documents: []orchestrator.Document{{Filename: "out.md"}}}, nil
	}
}

func TestNew_BuildsLocalEngineByDefault(t *testing.T) {
	cfg, err := config.New()
	require.NoError(t, err)

	o, err := New(cfg, noopConverter(), nil)
	require.NoError(t, err)
	require.NotNil(t, o.Handler())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, o.Start(ctx))
	assert.NoError(t, o.Ready(ctx))
	require.NoError(t, o.Shutdown(ctx))
}

func TestNew_RejectsUnknownEngine(t *testing.T) {
	cfg := config.Default()
	cfg.Engine = "bogus"

	_, err := New(cfg, noopConverter(), nil)
	assert.Error(t, err)
}

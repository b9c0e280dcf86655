// Package pipeline declares the contracts the orchestrator core
// depends on for the actual document conversion and chunking work.
// Both are pure functions from the orchestrator's point of view: the
// core never inspects their internals, only calls them and reacts to
// the returned Result or error. Concrete implementations (OCR, PDF
// parsing, table recognition, the chunker) live outside this module.
package pipeline

import (
	"context"

	"github.com/docling-project/docling-task-orchestrator/orchestrator"
	"github.com/docling-project/docling-task-orchestrator/task"
)

// Converter turns a Task's sources into a Result under the given
// options. Implementations should honor ctx cancellation at their
// next checkpoint; the orchestrator does not interrupt compute, it
// only signals via context.
type Converter interface {
	Convert(ctx context.Context, sources []task.Source, opts task.Options) (*orchestrator.Result, error)
}

// Chunker splits the documents named by sources into chunks. Sources
// are opaque to the orchestrator exactly as they are for Converter;
// for a chunk task they typically name an already-converted document
// rather than a raw input file.
type Chunker interface {
	Chunk(ctx context.Context, sources []task.Source, opts task.Options) (*orchestrator.Result, error)
}

// WarmUpper is an optional capability a Converter or Chunker may
// implement to pre-warm expensive internal caches (model weights,
// compiled pipelines) ahead of first use.
type WarmUpper interface {
	WarmUp(ctx context.Context) error
}

// CacheClearer is an optional capability a Converter or Chunker may
// implement to drop warmed caches on request (Engine.ClearConverters).
type CacheClearer interface {
	ClearCaches(ctx context.Context) error
}

// ConverterFunc adapts a plain function to the Converter interface.
type ConverterFunc func(ctx context.Context, sources []task.Source, opts task.Options) (*orchestrator.Result, error)

func (f ConverterFunc) Convert(ctx context.Context, sources []task.Source, opts task.Options) (*orchestrator.Result, error) {
	return f(ctx, sources, opts)
}

// ChunkerFunc adapts a plain function to the Chunker interface.
type ChunkerFunc func(ctx context.Context, sources []task.Source, opts task.Options) (*orchestrator.Result, error)

func (f ChunkerFunc) Chunk(ctx context.Context, sources []task.Source, opts task.Options) (*orchestrator.Result, error) {
	return f(ctx, sources, opts)
}

// Package task defines the Task record that every orchestrator engine
// tracks end-to-end: its identity, lifecycle, inputs, and result
// handle. This is the single central entity the rest of the
// orchestrator (queueing, worker pools, the state reconciler, and the
// subscriber bus) operates on.
package task

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of work a Task represents.
type Type string

const (
	TypeConvert Type = "convert"
	TypeChunk   Type = "chunk"
)

// Status is the lifecycle state of a Task.
//
// Lifecycle: Pending -> (Started) -> (Success | Failure). Started may
// be skipped if a worker transitions a task directly to a terminal
// state. Success and Failure are terminal: once the authoritative
// store records one of them, a Task never transitions again, except
// for the one-way orphan correction the reconciler applies (see the
// reconciler package).
type Status string

const (
	StatusPending Status = "pending"
	StatusStarted Status = "started"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// IsTerminal reports whether s is a final status.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// NewID returns a fresh, globally unique task identifier: a 128-bit
// random value rendered as lowercase hex with dashes. Collisions are
// impossible by construction (spec invariant: task_id uniqueness).
func NewID() string {
	return strings.ToLower(uuid.New().String())
}

// ProcessingMeta tracks document-level counters for a Task. The
// invariant num_processed == num_succeeded + num_failed always holds;
// callers should use IncSucceeded/IncFailed rather than mutating the
// fields directly so the invariant is never broken.
type ProcessingMeta struct {
	NumDocs       int `json:"num_docs"`
	NumProcessed  int `json:"num_processed"`
	NumSucceeded  int `json:"num_succeeded"`
	NumFailed     int `json:"num_failed"`
}

// IncSucceeded records one more successfully processed document.
func (m *ProcessingMeta) IncSucceeded() {
	m.NumSucceeded++
	m.NumProcessed = m.NumSucceeded + m.NumFailed
}

// IncFailed records one more failed document.
func (m *ProcessingMeta) IncFailed() {
	m.NumFailed++
	m.NumProcessed = m.NumSucceeded + m.NumFailed
}

// TargetKind discriminates where a Task's result is delivered.
type TargetKind string

const (
	TargetInBody       TargetKind = "in-body"
	TargetZipArchive   TargetKind = "zip-archive"
	TargetPresignedPUT TargetKind = "presigned-put-url"
	TargetObjectStore  TargetKind = "object-store"
)

// Target describes where a Task's result should be delivered.
type Target struct {
	Kind TargetKind `json:"kind"`

	// PUT target fields.
	PresignedURL string `json:"presigned_url,omitempty"`

	// Object-store target fields.
	Endpoint  string `json:"endpoint,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

// SourceKind discriminates the shape of a Task input.
type SourceKind string

const (
	SourceFile SourceKind = "file"
	SourceHTTP SourceKind = "http"
	SourceS3   SourceKind = "s3"
)

// Source is one input descriptor. It is opaque to the orchestrator:
// the pipeline layer (Converter/Chunker) is the only consumer of its
// payload fields.
type Source struct {
	Kind SourceKind `json:"kind"`

	// file
	Filename string `json:"filename,omitempty"`
	Base64   string `json:"base64,omitempty"`

	// http
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// s3
	S3Endpoint  string `json:"s3_endpoint,omitempty"`
	S3AccessKey string `json:"s3_access_key,omitempty"`
	S3SecretKey string `json:"s3_secret_key,omitempty"`
	S3Bucket    string `json:"s3_bucket,omitempty"`
	S3KeyPrefix string `json:"s3_key_prefix,omitempty"`
	S3VerifySSL bool   `json:"s3_verify_ssl,omitempty"`
}

// Options is the opaque pipeline configuration blob. The orchestrator
// never interprets its contents; it is preserved bit-for-bit and
// passed to the Converter/Chunker, with two exceptions: DocumentTimeout,
// which the orchestrator reads to bound per-task execution, and
// ScratchDir, which the orchestrator itself sets (not reads) to the
// task's allocated scratch directory before invoking the pipeline, so
// a Converter/Chunker that needs on-disk working space knows where it
// is allowed to write.
type Options struct {
	DocumentTimeout time.Duration          `json:"document_timeout,omitempty"`
	ScratchDir      string                 `json:"scratch_dir,omitempty"`
	Raw             map[string]interface{} `json:"raw,omitempty"`
}

// Task is the single central entity tracked by the orchestrator.
type Task struct {
	ID     string `json:"task_id"`
	Type   Type   `json:"task_type"`
	Status Status `json:"task_status"`

	Sources []Source `json:"sources"`
	Options Options  `json:"options"`
	Target  Target   `json:"target"`

	ProcessingMeta ProcessingMeta `json:"processing_meta"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	// ResultHandle is an opaque reference to the delivered result: an
	// in-process pointer for the local engine, or an external result
	// key for the distributed engine. It is present iff Status is
	// Success and the result has not been evicted.
	ResultHandle string `json:"result_handle,omitempty"`

	// ScratchDir is a filesystem path owned exclusively by this task
	// for intermediate artifacts. Removed no later than final task
	// eviction.
	ScratchDir string `json:"scratch_dir,omitempty"`
}

// New constructs a fresh, pending Task with a newly assigned ID.
func New(typ Type, sources []Source, opts Options, target Target) *Task {
	return &Task{
		ID:        NewID(),
		Type:      typ,
		Status:    StatusPending,
		Sources:   sources,
		Options:   opts,
		Target:    target,
		CreatedAt: time.Now().UTC(),
	}
}

// Snapshot returns a shallow copy of t suitable for publishing to
// subscribers or returning from a status query without handing out a
// reference to the live record (which callers must not mutate).
func (t *Task) Snapshot() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.StartedAt != nil {
		started := *t.StartedAt
		cp.StartedAt = &started
	}
	if t.FinishedAt != nil {
		finished := *t.FinishedAt
		cp.FinishedAt = &finished
	}
	cp.Sources = append([]Source(nil), t.Sources...)
	return &cp
}

// MarkStarted transitions a Task to Started, setting StartedAt if it
// isn't already set. A task may skip this state entirely, so it is
// valid to call MarkSuccess/MarkFailure directly from Pending.
func (t *Task) MarkStarted() {
	if t.Status.IsTerminal() {
		return
	}
	t.Status = StatusStarted
	if t.StartedAt == nil {
		now := time.Now().UTC()
		t.StartedAt = &now
	}
}

// MarkSuccess transitions a Task to the terminal Success state and
// attaches the delivered result handle.
func (t *Task) MarkSuccess(resultHandle string) {
	if t.Status.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	t.Status = StatusSuccess
	t.FinishedAt = &now
	t.ResultHandle = resultHandle
}

// MarkFailure transitions a Task to the terminal Failure state with a
// human-readable error message. errorMessage must be non-empty: the
// invariant is that error_message is set iff task_status == failure.
func (t *Task) MarkFailure(errorMessage string) {
	if t.Status.IsTerminal() {
		return
	}
	if errorMessage == "" {
		errorMessage = "task failed"
	}
	now := time.Now().UTC()
	t.Status = StatusFailure
	t.FinishedAt = &now
	t.ErrorMessage = errorMessage
}

// Package httpapi is the HTTP presentation layer for the orchestrator
// core: submission, status, result, deletion, and streaming endpoints
// over a single orchestrator.Engine. It is ambient (spec.md's
// Non-goals exclude "telemetry hookup beyond the counters", not a
// wire surface), grounded directly on the teacher's own
// `orchestration/task_api.go` for handler shape and error-response
// style, on `core/cors.go` for the CORS middleware, and on
// `TheEntropyCollective-noisefs`'s `cmd/*-webui` for gorilla/mux
// routing and on the teacher's own (build-tag-gated)
// `ui/transports/websocket/websocket.go` for the streaming transport.
package httpapi

import (
	"fmt"

	"github.com/docling-project/docling-task-orchestrator/orchestrator"
	"github.com/docling-project/docling-task-orchestrator/task"
)

// sourceWire is the wire shape of one task.Source, matching spec.md §6
// literally: `{kind=file, filename, base64}` | `{kind=http, url,
// headers?}` | `{kind=s3, endpoint, access_key, secret_key, bucket,
// key_prefix?, verify_ssl}`.
type sourceWire struct {
	Kind string `json:"kind"`

	Filename string `json:"filename,omitempty"`
	Base64   string `json:"base64,omitempty"`

	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	Endpoint  string `json:"endpoint,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
	VerifySSL bool   `json:"verify_ssl,omitempty"`
}

func (s sourceWire) toDomain() (task.Source, error) {
	switch task.SourceKind(s.Kind) {
	case task.SourceFile:
		return task.Source{Kind: task.SourceFile, Filename: s.Filename, Base64: s.Base64}, nil
	case task.SourceHTTP:
		return task.Source{Kind: task.SourceHTTP, URL: s.URL, Headers: s.Headers}, nil
	case task.SourceS3:
		return task.Source{
			Kind:        task.SourceS3,
			S3Endpoint:  s.Endpoint,
			S3AccessKey: s.AccessKey,
			S3SecretKey: s.SecretKey,
			S3Bucket:    s.Bucket,
			S3KeyPrefix: s.KeyPrefix,
			S3VerifySSL: s.VerifySSL,
		}, nil
	default:
		return task.Source{}, fmt.Errorf("unknown source kind %q", s.Kind)
	}
}

// targetWire is the wire shape of a task.Target: one of `{kind:
// in-body}` | `{kind: zip}` | `{kind: put, url}` | `{kind: s3, ...}`.
type targetWire struct {
	Kind string `json:"kind"`

	URL string `json:"url,omitempty"`

	Endpoint  string `json:"endpoint,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

func (t targetWire) toDomain() (task.Target, error) {
	switch t.Kind {
	case "in-body", "":
		return task.Target{Kind: task.TargetInBody}, nil
	case "zip":
		return task.Target{Kind: task.TargetZipArchive}, nil
	case "put":
		return task.Target{Kind: task.TargetPresignedPUT, PresignedURL: t.URL}, nil
	case "s3":
		return task.Target{Kind: task.TargetObjectStore, Endpoint: t.Endpoint, Bucket: t.Bucket, KeyPrefix: t.KeyPrefix}, nil
	default:
		return task.Target{}, fmt.Errorf("unknown target kind %q", t.Kind)
	}
}

// submitRequest is the request body shared by the convert and chunk
// submission endpoints (spec.md §6: "same shape").
type submitRequest struct {
	Sources []sourceWire           `json:"sources"`
	Options map[string]interface{} `json:"options"`
	Target  targetWire             `json:"target"`
}

// taskMetaWire mirrors task.ProcessingMeta for the wire.
type taskMetaWire struct {
	NumDocs      int `json:"num_docs"`
	NumProcessed int `json:"num_processed"`
	NumSucceeded int `json:"num_succeeded"`
	NumFailed    int `json:"num_failed"`
}

// snapshotResponse is the Task snapshot shape spec.md §6 specifies for
// both the submission response and the status endpoint.
type snapshotResponse struct {
	TaskID       string       `json:"task_id"`
	TaskType     string       `json:"task_type"`
	TaskStatus   string       `json:"task_status"`
	TaskPosition *int         `json:"task_position,omitempty"`
	TaskMeta     taskMetaWire `json:"task_meta"`
	QueueSize    *int         `json:"queue_size,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

func toSnapshotResponse(t *task.Task, position, queueSize *int) snapshotResponse {
	return snapshotResponse{
		TaskID:     t.ID,
		TaskType:   string(t.Type),
		TaskStatus: string(t.Status),
		TaskPosition: position,
		TaskMeta: taskMetaWire{
			NumDocs:      t.ProcessingMeta.NumDocs,
			NumProcessed: t.ProcessingMeta.NumProcessed,
			NumSucceeded: t.ProcessingMeta.NumSucceeded,
			NumFailed:    t.ProcessingMeta.NumFailed,
		},
		QueueSize:    queueSize,
		ErrorMessage: t.ErrorMessage,
	}
}

// documentWire mirrors orchestrator.Document for the wire.
type documentWire struct {
	Filename string                 `json:"filename"`
	Content  string                 `json:"content,omitempty"`
	Chunks   []string               `json:"chunks,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// resultResponse is the JSON body returned for an in-body target. For
// zip/put/s3 targets the result is acknowledged by deliveryResponse
// instead (the payload itself was already written to delivery_ref by
// the pipeline layer).
type resultResponse struct {
	Documents []documentWire `json:"documents,omitempty"`
}

// deliveryResponse acknowledges a result delivered out-of-band (zip
// archive, presigned PUT, or object store), naming where it landed.
type deliveryResponse struct {
	DeliveryRef string `json:"delivery_ref"`
}

func toResultResponse(r *orchestrator.Result) resultResponse {
	docs := make([]documentWire, 0, len(r.Documents))
	for _, d := range r.Documents {
		docs = append(docs, documentWire{
			Filename: d.Filename,
			Content:  d.Content,
			Chunks:   d.Chunks,
			Metadata: d.Metadata,
		})
	}
	return resultResponse{Documents: docs}
}

// errorResponse is the standard error body, matching the teacher's
// ErrorResponse in orchestration/task_api.go.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

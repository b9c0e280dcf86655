package orchestrator

import (
	"errors"
	"fmt"
)

// Kind is the error taxonomy carried through every orchestrator
// operation. Transport layers (HTTP, RPC) map Kind to status codes;
// the orchestrator core itself never encodes a transport concern.
type Kind string

const (
	KindInvalidRequest      Kind = "InvalidRequest"
	KindQueueFull           Kind = "QueueFull"
	KindTaskNotFound        Kind = "TaskNotFound"
	KindUnauthenticated     Kind = "Unauthenticated"
	KindTimeout             Kind = "Timeout"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	KindPipelineFailure     Kind = "PipelineFailure"
	KindOrphaned            Kind = "Orphaned"
)

// Sentinel errors for errors.Is comparisons against a bare Kind.
var (
	ErrInvalidRequest      = errors.New(string(KindInvalidRequest))
	ErrQueueFull           = errors.New(string(KindQueueFull))
	ErrTaskNotFound        = errors.New(string(KindTaskNotFound))
	ErrUnauthenticated     = errors.New(string(KindUnauthenticated))
	ErrTimeout             = errors.New(string(KindTimeout))
	ErrUpstreamUnavailable = errors.New(string(KindUpstreamUnavailable))
	ErrPipelineFailure     = errors.New(string(KindPipelineFailure))
	ErrOrphaned            = errors.New(string(KindOrphaned))
)

func sentinelFor(kind Kind) error {
	switch kind {
	case KindInvalidRequest:
		return ErrInvalidRequest
	case KindQueueFull:
		return ErrQueueFull
	case KindTaskNotFound:
		return ErrTaskNotFound
	case KindUnauthenticated:
		return ErrUnauthenticated
	case KindTimeout:
		return ErrTimeout
	case KindUpstreamUnavailable:
		return ErrUpstreamUnavailable
	case KindPipelineFailure:
		return ErrPipelineFailure
	case KindOrphaned:
		return ErrOrphaned
	default:
		return errors.New(string(kind))
	}
}

// Error is the structured error type returned by Engine operations.
// It carries enough context for both logging and transport-layer
// status mapping.
type Error struct {
	Op      string // operation that failed, e.g. "Enqueue"
	Kind    Kind
	TaskID  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		if e.TaskID != "" {
			return fmt.Sprintf("%s [%s]: %s", e.Op, e.TaskID, e.Message)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap exposes the wrapped cause, if any, so errors.As and repeated
// errors.Unwrap can reach it.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind, so that
// errors.Is(err, orchestrator.ErrTaskNotFound) matches regardless of
// whether a cause was attached with Err.
func (e *Error) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

// NewError builds an *Error for op/kind with an optional wrapped
// cause.
func NewError(op string, kind Kind, taskID, message string, cause error) *Error {
	return &Error{Op: op, Kind: kind, TaskID: taskID, Message: message, Err: cause}
}

// IsRetryable reports whether err represents a transient condition
// worth retrying (queue/store connectivity), as opposed to a
// permanent rejection.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}

// IsNotFound reports whether err is a TaskNotFound error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// internal/common/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the closed set of failure classes the consumer runtime dispatches
// on. Retry-vs-terminal decisions are plain conditionals over this enum, not
// an error-type hierarchy.
type Kind int

const (
	// KindTransient covers broker/database timeouts and transport failures.
	// The envelope is not acknowledged and the broker redelivers it.
	KindTransient Kind = iota

	// KindMalformed covers deserialization and schema failures. The envelope
	// is dead-lettered and acknowledged to avoid infinite redelivery.
	KindMalformed

	// KindResourceExhausted means the protected downstream rejected the call
	// because its circuit breaker is open. Dead-lettered and acknowledged so
	// the partition does not stall behind a failing resource.
	KindResourceExhausted

	// KindNotFound means the referenced record does not exist. Never
	// retryable; dead-lettered and acknowledged.
	KindNotFound

	// KindDuplicate is the idempotency short-circuit: the record was already
	// in a terminal state. Not an error condition; logged and acknowledged.
	KindDuplicate
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "TRANSIENT"
	case KindMalformed:
		return "MALFORMED"
	case KindResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindDuplicate:
		return "DUPLICATE"
	}
	return "UNKNOWN"
}

// PipelineError is a classified processing failure.
type PipelineError struct {
	Kind      Kind
	Reason    string
	Err       error
	Timestamp time.Time
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("PipelineError[%s]: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("PipelineError[%s]: %s", e.Kind, e.Reason)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func newError(kind Kind, reason string, err error) *PipelineError {
	return &PipelineError{
		Kind:      kind,
		Reason:    reason,
		Err:       err,
		Timestamp: time.Now().UTC(),
	}
}

// Transient wraps a failure that the broker's redelivery should retry.
func Transient(reason string, err error) *PipelineError {
	return newError(KindTransient, reason, err)
}

// Malformed wraps a payload that cannot be deserialized or fails validation.
func Malformed(reason string, err error) *PipelineError {
	return newError(KindMalformed, reason, err)
}

// ResourceExhausted signals a fail-fast rejection by an open circuit breaker.
func ResourceExhausted(reason string) *PipelineError {
	return newError(KindResourceExhausted, reason, nil)
}

// NotFound signals that the referenced application record does not exist.
func NotFound(applicationID string) *PipelineError {
	return newError(KindNotFound, fmt.Sprintf("application %s not found", applicationID), nil)
}

// Duplicate signals the idempotency short-circuit for an already-terminal record.
func Duplicate(applicationID string) *PipelineError {
	return newError(KindDuplicate, fmt.Sprintf("application %s already processed", applicationID), nil)
}

// KindOf extracts the failure class from an error chain. ok is false for
// unclassified (programmer) errors, which must crash the consumer task
// instead of being silently dispatched.
func KindOf(err error) (Kind, bool) {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Kind, true
	}
	return 0, false
}

// ReasonOf returns the human-readable reason recorded on a classified error,
// falling back to err.Error() for anything else.
func ReasonOf(err error) string {
	var perr *PipelineError
	if errors.As(err, &perr) {
		if perr.Err != nil {
			return fmt.Sprintf("%s: %v", perr.Reason, perr.Err)
		}
		return perr.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

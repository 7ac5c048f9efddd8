// Package qerr defines the error kinds surfaced by the job orchestrator.
package qerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents a stable error category that callers can switch on.
type Kind string

const (
	KindInternal        Kind = "internal"
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindNotFound        Kind = "not_found"
	KindTransient       Kind = "transient_cluster"
	KindWorkloadFailure Kind = "workload_failure"
	KindRejected        Kind = "rejected"
)

// Error carries a Kind, a human readable message and the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	JobID   string
	err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.JobID != "" {
		msg = fmt.Sprintf("job %s: %s", e.JobID, msg)
	}
	if e.err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Is matches another *Error of the same kind, so sentinels like ErrNotFound
// work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return t.Message == "" && t.JobID == "" && t.err == nil && t.Kind == e.Kind
}

// ForJob returns a copy of the error tagged with a job id.
func (e *Error) ForJob(jobID string) *Error {
	c := *e
	c.JobID = jobID
	return &c
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrTransient       = &Error{Kind: KindTransient}
	ErrWorkloadFailure = &Error{Kind: KindWorkloadFailure}
	ErrRejected        = &Error{Kind: KindRejected}
)

// New wraps an error with the provided kind. If err is nil a nil is returned.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, err: err}
}

// Wrap attaches a kind and a message to err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), err: err}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Rejected(err error, format string, args ...any) *Error {
	return Wrap(KindRejected, err, format, args...)
}

func Transient(err error, format string, args ...any) *Error {
	return Wrap(KindTransient, err, format, args...)
}

// WorkloadFailure describes a job whose main container did not succeed.
func WorkloadFailure(jobID string, format string, args ...any) *Error {
	return &Error{Kind: KindWorkloadFailure, JobID: jobID, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind helps callers compare kinds without type assertions.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRejected:
		return http.StatusForbidden
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

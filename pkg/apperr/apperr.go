// Package apperr defines the error taxonomy shared by every pipeline stage.
//
// Stages wrap collaborator failures in an *Error carrying a Kind. The kind
// decides whether the retry policy tries again, whether a unit ends DEFERRED
// or FAILED, and which label a failure event is recorded under.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindUnknown             Kind = "unknown"
	KindNetwork             Kind = "network"
	KindQuota               Kind = "quota"
	KindExtraction          Kind = "extraction"
	KindValidation          Kind = "validation"
	KindArchivalUnavailable Kind = "archival_unavailable"
	KindUnsupported         Kind = "unsupported"
)

// ErrDeferred is returned once a retry policy has given up on a retryable error.
// The unit is left for a later run.
var ErrDeferred = errors.New("deferred: retries exhausted")

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Kind, so errors.Is(err, apperr.Quota("", nil)) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New builds a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Network(op string, err error) *Error    { return New(KindNetwork, op, err) }
func Quota(op string, err error) *Error      { return New(KindQuota, op, err) }
func Extraction(op string, err error) *Error { return New(KindExtraction, op, err) }
func Validation(op string, err error) *Error { return New(KindValidation, op, err) }
func Unsupported(op string, err error) *Error {
	return New(KindUnsupported, op, err)
}
func ArchivalUnavailable(op string, err error) *Error {
	return New(KindArchivalUnavailable, op, err)
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is transient. Only network and quota
// failures are retried.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindQuota:
		return true
	}
	return false
}

// IsDeferred reports whether err means the unit should be deferred to a later run.
func IsDeferred(err error) bool {
	return errors.Is(err, ErrDeferred)
}

// FromHTTPStatus classifies a non-2xx response status. Throttling and server
// errors are transient; other client errors are not worth retrying.
func FromHTTPStatus(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 429 || status == 408 || status >= 500:
		return Network(op, fmt.Errorf("unexpected status %d", status))
	default:
		return Validation(op, fmt.Errorf("unexpected status %d", status))
	}
}

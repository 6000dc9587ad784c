package apperror

import (
	"errors"
	"fmt"
)

// Kind is the stable, caller-visible classification of a failure.
type Kind string

const (
	KindIngestionFailed         Kind = "IngestionFailed"
	KindSessionNotFound         Kind = "SessionNotFound"
	KindModelCallFailed         Kind = "ModelCallFailed"
	KindInternalProcessingError Kind = "InternalProcessingError"
	KindInvalidRequest          Kind = "InvalidRequest"
)

// Error carries a Kind, a human-readable detail and the wrapped cause.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrSessionNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons
var (
	ErrIngestionFailed = &Error{Kind: KindIngestionFailed, Detail: "ingestion failed"}
	ErrSessionNotFound = &Error{Kind: KindSessionNotFound, Detail: "session expired or invalid"}
	ErrModelCallFailed = &Error{Kind: KindModelCallFailed, Detail: "model call failed"}
	ErrInternal        = &Error{Kind: KindInternalProcessingError, Detail: "internal processing error"}
	ErrInvalidRequest  = &Error{Kind: KindInvalidRequest, Detail: "invalid request"}
)

func IngestionFailed(detail string, err error) *Error {
	return &Error{Kind: KindIngestionFailed, Detail: detail, Err: err}
}

func SessionNotFound(sessionID string) *Error {
	return &Error{Kind: KindSessionNotFound, Detail: fmt.Sprintf("session %q expired or invalid", sessionID)}
}

func ModelCallFailed(detail string, err error) *Error {
	return &Error{Kind: KindModelCallFailed, Detail: detail, Err: err}
}

func Internal(detail string, err error) *Error {
	return &Error{Kind: KindInternalProcessingError, Detail: detail, Err: err}
}

func InvalidRequest(detail string, err error) *Error {
	return &Error{Kind: KindInvalidRequest, Detail: detail, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
// Unclassified errors are reported as InternalProcessingError.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternalProcessingError
}

// As returns the first *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

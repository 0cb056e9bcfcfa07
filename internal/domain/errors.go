package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error so the transport boundary can map it to
// a status code without inspecting message text.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindNotFound           ErrorKind = "not_found"
	KindStorage            ErrorKind = "storage"
	KindEmbeddingDimension ErrorKind = "embedding_dimension"
	KindEmbedding          ErrorKind = "embedding"
	KindLLM                ErrorKind = "llm"
	KindCache              ErrorKind = "cache"
	KindInternal           ErrorKind = "internal"
)

// Error is the one error type every port and orchestrator returns. Adapters
// translate infrastructure failures into an Error at the adapter boundary;
// orchestrators wrap to add context but never swallow the kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a domain error of the given kind.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrap re-tags an existing error with a kind and additional context,
// preserving it as the cause. If err already carries a domain Error, its
// kind is kept rather than overwritten.
func Wrap(kind ErrorKind, message string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		kind = existing.Kind
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// KindOf extracts the ErrorKind carried by err, defaulting to KindInternal
// for errors that never passed through a domain boundary.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf extracts the user-facing message of err, deliberately dropping
// any wrapped cause so driver errors, connection strings, or other internal
// detail never reach a transport boundary (spec.md §7).
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

func Validationf(format string, args ...any) *Error {
	return NewError(KindValidation, fmt.Sprintf(format, args...), nil)
}

func NotFoundf(format string, args ...any) *Error {
	return NewError(KindNotFound, fmt.Sprintf(format, args...), nil)
}

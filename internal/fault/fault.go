// Package fault defines the stable error conditions surfaced by the
// analysis pipeline. Every user-visible failure carries a Kind that callers
// can match on, plus a message safe to display directly.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies a stable failure condition.
type Kind string

const (
	UnsupportedFileType Kind = "unsupported_file_type"
	FileTooLarge        Kind = "file_too_large"
	CorruptDocument     Kind = "corrupt_document"
	NoCLOsDefined       Kind = "no_clos_defined"
	AlreadyAnalyzing    Kind = "already_analyzing"
	GenerativeTimeout   Kind = "generative_service_timeout"
	MalformedResponse   Kind = "generative_service_malformed_response"
	DocumentNotFound    Kind = "document_not_found"
	CLOSetNotFound      Kind = "clo_set_not_found"
	InvalidState        Kind = "invalid_state_transition"
)

// Error pairs a Kind with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given kind and message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err, or "" if err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Package goeserr defines the error taxonomy shared by the planning,
// reconciliation and download stages.
package goeserr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	// Validation is a bad caller input. Fatal to the single operation.
	Validation Kind = iota + 1
	// SchemaViolation is an attempt to read or write a plan key outside the
	// canonical schema.
	SchemaViolation
	// RemoteTransfer covers listing or transfer failures against the archive.
	RemoteTransfer
	// LocalIO covers directory creation, file write, rename or read failures.
	LocalIO
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case SchemaViolation:
		return "schema violation"
	case RemoteTransfer:
		return "remote transfer"
	case LocalIO:
		return "local io"
	}
	return "unknown"
}

// Error is the concrete error type. Field and Value are set for validation
// and schema errors; Op names the failing operation.
type Error struct {
	Kind  Kind
	Op    string
	Field string
	Value string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s=%q)", e.Field, e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err carries an *Error of the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Invalid builds a Validation error for a named field.
func Invalid(field, value, reason string) *Error {
	return &Error{Kind: Validation, Field: field, Value: value, Err: errors.New(reason)}
}

// Schema builds a SchemaViolation error for a key path.
func Schema(path, reason string) *Error {
	return &Error{Kind: SchemaViolation, Field: "key", Value: path, Err: errors.New(reason)}
}

// Remote wraps a remote failure.
func Remote(op string, err error) *Error {
	return &Error{Kind: RemoteTransfer, Op: op, Err: err}
}

// Local wraps a local filesystem failure.
func Local(op string, err error) *Error {
	return &Error{Kind: LocalIO, Op: op, Err: err}
}

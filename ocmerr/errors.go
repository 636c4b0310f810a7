// Package ocmerr defines the transport-agnostic error kinds shared by every
// component, wrapped with github.com/cockroachdb/errors so stack traces
// survive across the store/network/crdt boundaries.
package ocmerr

import (
	"github.com/cockroachdb/errors"
)

type Kind string

const (
	Storage              Kind = "storage"
	Network              Kind = "network"
	Crypto               Kind = "crypto"
	DirectoryLookup      Kind = "directory_lookup"
	Config               Kind = "config"
	Validation           Kind = "validation"
	NotFound             Kind = "not_found"
	AlreadyExists        Kind = "already_exists"
	OperationFailed      Kind = "operation_failed"
	Timeout              Kind = "timeout"
	CrdtInvalidData      Kind = "crdt_invalid_data"
	CrdtInvalidTimestamp Kind = "crdt_invalid_timestamp"
	CrdtOperationFailed  Kind = "crdt_operation_failed"
)

// Error pairs a Kind with a wrapped cause, so callers can branch on Kind
// while errors.Is/As still reach the underlying cause.
type Error struct {
	kind Kind
	err  error
}

func (e *Error) Error() string { return string(e.kind) + ": " + e.err.Error() }
func (e *Error) Unwrap() error { return e.err }
func (e *Error) Kind() Kind    { return e.kind }

func New(kind Kind, msg string) error {
	return &Error{kind: kind, err: errors.New(msg)}
}

func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{kind: kind, err: errors.Newf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, err: errors.Wrap(err, msg)}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.kind == kind {
			return true
		}
		err = e.err
	}
	return false
}

var (
	ErrNotFound      = New(NotFound, "not found")
	ErrAlreadyExists = New(AlreadyExists, "already exists")
)

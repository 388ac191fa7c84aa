package types

import (
	"errors"
	"fmt"
)

// FailureKind classifies the failures a session can record.
type FailureKind string

const (
	FailureRouting       FailureKind = "routing"
	FailureRetrieval     FailureKind = "retrieval"
	FailureGeneration    FailureKind = "generation"
	FailurePersistence   FailureKind = "persistence"
	FailureConfiguration FailureKind = "configuration"
	FailureInterrupted   FailureKind = "interrupted"
)

// Error is a failure of a known kind. Op names the operation that failed.
type Error struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failure: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s failure: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fail builds an Error of the given kind.
func Fail(kind FailureKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Failf builds an Error whose cause is a formatted message.
func Failf(kind FailureKind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the failure kind carried by err, or "" if there is none.
func KindOf(err error) FailureKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given failure kind.
func IsKind(err error, kind FailureKind) bool {
	return err != nil && KindOf(err) == kind
}

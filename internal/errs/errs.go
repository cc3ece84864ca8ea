// Package errs holds the failure kinds shared by every jarmgr component.
// Operations return *Error values whose Kind is one of the sentinels below,
// so callers can branch with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotRunning       = errors.New("not running")
	ErrAlreadyRunning   = errors.New("already running")
	ErrSpawnFailed      = errors.New("spawn failed")
	ErrSignalFailed     = errors.New("signal failed")
	ErrIO               = errors.New("io failure")
	ErrConfigParse      = errors.New("config parse failure")
	ErrSequenceNotFound = errors.New("sequence not found")
	ErrSequenceEmpty    = errors.New("sequence empty")
)

// Error annotates a failure kind with the operation and identifier it
// happened on.
type Error struct {
	Kind error
	Op   string
	ID   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.ID != "" {
		msg += " " + e.ID
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New builds an *Error of the given kind.
func New(kind error, op, id string, err error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: err}
}

// IO wraps err as an ErrIO failure for op on path.
func IO(op, path string, err error) *Error {
	return &Error{Kind: ErrIO, Op: op, ID: path, Err: err}
}

// Kind reports which sentinel err carries, or nil when it carries none.
func Kind(err error) error {
	for _, k := range []error{
		ErrNotRunning, ErrAlreadyRunning, ErrSpawnFailed, ErrSignalFailed,
		ErrIO, ErrConfigParse, ErrSequenceNotFound, ErrSequenceEmpty,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Errorf is a convenience for kind-tagged messages without an identifier.
func Errorf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

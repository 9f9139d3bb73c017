// Package bbicerr defines the error kinds surfaced by the bbic engine.
//
// Local operations fail fast: a pipeline stage never swallows an error to
// retry or recover, it returns immediately and lets the caller (a worker
// goroutine, a CLI command) decide how to abort.
package bbicerr

import "fmt"

// Kind identifies the category of a Error.
type Kind int

const (
	InvalidArgument Kind = iota
	IncompatibleSize
	OutOfRange
	MissingEntity
	AlreadyExists
	CodecFailure
	IOFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case IncompatibleSize:
		return "incompatible size"
	case OutOfRange:
		return "out of range"
	case MissingEntity:
		return "missing entity"
	case AlreadyExists:
		return "already exists"
	case CodecFailure:
		return "codec failure"
	case IOFailure:
		return "i/o failure"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every bbic package. It carries a Kind
// so callers (CLI, tests) can branch on the failure category without string
// matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if be, ok := err.(*Error); ok {
			e = be
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}

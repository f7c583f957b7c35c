// Package perr provides typed error handling for the preheat daemon.
//
// preheat's error-handling design (spec §7) separates failures into five
// kinds with distinct propagation policies. This package gives every
// subsystem a shared vocabulary for classifying a failure instead of
// inspecting ad-hoc sentinel values at each call site.
package perr

import (
	"errors"
	"fmt"
)

// Kind categorizes a preheat error by how the caller should react to it.
type Kind int

const (
	// Transient indicates a condition that will likely clear on its own
	// (a process vanished mid-scan, a read hit EAGAIN). Callers count and
	// move on without surfacing it to the user.
	Transient Kind = iota
	// Input indicates syntactically invalid data the daemon was asked to
	// trust (a malformed state file, an unknown record tag, a CRC
	// mismatch). Callers quarantine the offending input.
	Input
	// Resource indicates the daemon could not obtain something it needed
	// from the OS (no space for a temp file, out of memory).
	Resource
	// Config indicates a configuration value was unparseable or out of
	// its documented domain.
	Config
	// Fatal indicates the daemon cannot continue running.
	Fatal
)

// String returns a human-readable name for the error kind.
func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Input:
		return "input"
	case Resource:
		return "resource"
	case Config:
		return "config"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind and the operation that
// produced it, so propagation policy can be chosen by inspecting Kind
// alone without string-matching the message.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind is not an error, so errors.Is(err, perr.Transient) does not
// work; use Is or KindOf below to test an error's Kind.

// New builds a *Error of the given kind.
func New(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

// Wrap builds a *Error of the given kind around an existing error.
func Wrap(kind Kind, op, detail string, err error) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail, Err: err}
}

// KindOf reports the Kind of err if it is (or wraps) a *Error, and
// whether such an error was found at all.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err is (or wraps) a *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

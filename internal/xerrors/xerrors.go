// Package xerrors adds call-site and stack information to errors and lets
// callers tag an error with a classification sentinel without changing its
// message. The log package renders the captured frames.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxDepth = 64

type stackHolder interface{ StackPCs() []uintptr }

type withStack struct {
	err error
	pcs []uintptr
}

func (w *withStack) Error() string       { return w.err.Error() }
func (w *withStack) Unwrap() error       { return w.err }
func (w *withStack) StackPCs() []uintptr { return w.pcs }
func (w *withStack) IsXerrorsWrapper()   {}

// skip counts frames above the caller of captureStack
func captureStack(skip int) []uintptr {
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func stacked(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &withStack{err: err, pcs: captureStack(skip + 1)}
}

// WithStack attaches the current stack to err.
func WithStack(err error) error { return stacked(err, 1) }

// EnsureTrace attaches a stack only when err does not already carry one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs stackHolder
	if errors.As(err, &hs) && hs != nil && len(hs.StackPCs()) > 0 {
		return err
	}
	return stacked(err, 1)
}

type wrap struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrap) Error() string     { return w.msg + ": " + w.err.Error() }
func (w *wrap) Unwrap() error     { return w.err }
func (w *wrap) PC() uintptr       { return w.pc }
func (w *wrap) IsXerrorsWrapper() {}

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if n := runtime.Callers(2+skip, pcs[:]); n == 0 {
		return 0
	}
	return pcs[0]
}

// Wrap prefixes err with msg and records the caller. Nil stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: msg, pc: callerPC(1)}
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}

// New returns an error with a captured stack.
func New(msg string) error { return stacked(errors.New(msg), 1) }

// Newf returns a formatted error with a captured stack. %w is honored.
func Newf(f string, args ...any) error { return stacked(fmt.Errorf(f, args...), 1) }

// marked ties an error to a classification sentinel. The message is the
// wrapped error's message; errors.Is matches both the sentinel and the chain.
type marked struct {
	err  error
	kind error
}

func (m *marked) Error() string   { return m.err.Error() }
func (m *marked) Unwrap() []error { return []error{m.err, m.kind} }

// Mark classifies err as kind so that errors.Is(result, kind) holds.
func Mark(err, kind error) error {
	if err == nil {
		return nil
	}
	if kind == nil || errors.Is(err, kind) {
		return err
	}
	return &marked{err: err, kind: kind}
}

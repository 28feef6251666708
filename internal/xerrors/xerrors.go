// Package xerrors wraps errors with call-site information for the logger.
//
// Wrap/Wrapf record a single PC at the wrap site; New/Newf/WithStack capture a
// full stack. Both satisfy errors.Is/errors.As through Unwrap.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxDepth = 64

type withStack struct {
	err error
	pcs []uintptr
}

func (w *withStack) Error() string       { return w.err.Error() }
func (w *withStack) Unwrap() error       { return w.err }
func (w *withStack) StackPCs() []uintptr { return w.pcs }

func stacked(err error, skip int) error {
	if err == nil {
		return nil
	}
	pcs := make([]uintptr, maxDepth)
	// skip runtime.Callers and stacked itself
	n := runtime.Callers(2+skip, pcs)
	return &withStack{err: err, pcs: pcs[:n]}
}

// WithStack attaches the caller's stack to err.
func WithStack(err error) error { return stacked(err, 1) }

// EnsureTrace attaches a stack only if err does not already carry one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return stacked(err, 1)
}

type wrap struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrap) Error() string { return w.msg + ": " + w.err.Error() }
func (w *wrap) Unwrap() error { return w.err }
func (w *wrap) PC() uintptr   { return w.pc }

func callerPC() uintptr {
	var pcs [1]uintptr
	// skip runtime.Callers, callerPC and the exported Wrap func
	if runtime.Callers(3, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: msg, pc: callerPC()}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC()}
}

func New(msg string) error             { return stacked(errors.New(msg), 1) }
func Newf(f string, args ...any) error { return stacked(fmt.Errorf(f, args...), 1) }

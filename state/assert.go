package state

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
)

// InvariantError wraps an internal-invariant failure (spec.md §7 category
// 2) with a creation stack trace, via go-errors, so a hard-assert failure
// can be logged and attributed to a specific call site even though the
// function it happened in gets abandoned rather than crashing the whole
// run.
type InvariantError struct {
	Err       *goerrors.Error
	Component string
}

func newInvariantError(component, format string, args ...interface{}) *InvariantError {
	return &InvariantError{
		Err:       goerrors.Errorf(format, args...),
		Component: component,
	}
}

// Assert is the soft-assert form (supplemented feature 4, grounded on
// smatch_helper.c's sm_perror): when cond is false it logs at warning
// level, with a component field for a driver to filter on, and returns
// nothing, so analysis of the current function simply continues.
func Assert(log *logrus.Entry, component string, cond bool, format string, args ...interface{}) {
	if cond {
		return
	}
	log.WithField("component", component).Warnf(format, args...)
}

// MustAssert is the hard-assert form (sm_fatal): when cond is false it
// returns an *InvariantError instead of a zero value. The per-function
// analysis loop (pathexplorer's walker) is expected to catch this error,
// log it, and abandon only the function currently being analyzed rather
// than the whole run — spec.md §7's "fail loudly... continue with the
// next function" behavior.
func MustAssert(component string, cond bool, format string, args ...interface{}) error {
	if cond {
		return nil
	}
	return newInvariantError(component, format, args...)
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Component, e.Err.Error())
}

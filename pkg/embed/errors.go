package dispatch

import (
	"errors"

	"github.com/funvibe/dispatch/internal/diagnostics"
)

// Sentinels for errors.Is against errors returned by a Runtime.
var (
	ErrDefinition = diagnostics.ErrDefinition
	ErrNoMethod   = diagnostics.ErrNoMethod
	ErrAmbiguous  = diagnostics.ErrAmbiguous
	ErrArity      = diagnostics.ErrArity
	ErrArgument   = diagnostics.ErrArgument
	ErrType       = diagnostics.ErrType
	ErrName       = diagnostics.ErrName
	ErrRuntime    = diagnostics.ErrRuntime
)

// HostError is a RuntimeError raised by a bound Go function. It matches
// ErrRuntime and unwraps to the function's own error.
type HostError struct {
	Function string
	Err      error
}

func (e *HostError) Error() string { return e.runtime().Error() }

func (e *HostError) Unwrap() []error { return []error{e.runtime(), e.Err} }

func (e *HostError) runtime() *diagnostics.Error {
	de := diagnostics.Runtime("%s: %v", e.Function, e.Err)
	de.Function = e.Function
	return de
}

func hostError(name string, err error) error {
	var de *diagnostics.Error
	if errors.As(err, &de) {
		return err
	}
	return &HostError{Function: name, Err: err}
}

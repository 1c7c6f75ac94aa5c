// Package diagnostics defines the error taxonomy shared by the dispatch
// runtime. Every failure surfaced to a caller is a *Error carrying a Kind,
// so callers can branch with errors.Is against the sentinel values below.
package diagnostics

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindDefinition Kind = iota + 1
	KindNoMethod
	KindAmbiguous
	KindArity
	KindArgument
	KindType
	KindName
	KindRuntime
)

func (k Kind) String() string {
	switch k {
	case KindDefinition:
		return "DefinitionError"
	case KindNoMethod:
		return "NoMethodError"
	case KindAmbiguous:
		return "AmbiguousMethodError"
	case KindArity:
		return "ArityError"
	case KindArgument:
		return "ArgumentError"
	case KindType:
		return "TypeError"
	case KindName:
		return "NameError"
	case KindRuntime:
		return "RuntimeError"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the single error type produced by the runtime core.
type Error struct {
	Kind     Kind
	Function string // generic function involved, if any
	Message  string
	// Candidates holds rendered signatures: near misses for NoMethodError,
	// the competing maximal methods for AmbiguousMethodError.
	Candidates []string
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if len(e.Candidates) > 0 {
		switch e.Kind {
		case KindAmbiguous:
			sb.WriteString("\ncandidates:")
		default:
			sb.WriteString("\nclosest candidates are:")
		}
		for _, c := range e.Candidates {
			sb.WriteString("\n  ")
			sb.WriteString(c)
		}
	}
	return sb.String()
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

var (
	ErrDefinition = &Error{Kind: KindDefinition}
	ErrNoMethod   = &Error{Kind: KindNoMethod}
	ErrAmbiguous  = &Error{Kind: KindAmbiguous}
	ErrArity      = &Error{Kind: KindArity}
	ErrArgument   = &Error{Kind: KindArgument}
	ErrType       = &Error{Kind: KindType}
	ErrName       = &Error{Kind: KindName}
	ErrRuntime    = &Error{Kind: KindRuntime}
)

// KindOf extracts the Kind of err, or 0 when err is not a runtime error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

func newf(kind Kind, function string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Function: function, Message: fmt.Sprintf(format, args...)}
}

func Definition(format string, args ...interface{}) *Error {
	return newf(KindDefinition, "", format, args...)
}

func NoMethod(function, call string, candidates []string) *Error {
	e := newf(KindNoMethod, function, "no method matching %s", call)
	e.Candidates = candidates
	return e
}

func Ambiguous(function, call string, candidates []string) *Error {
	e := newf(KindAmbiguous, function, "%s is ambiguous", call)
	e.Candidates = candidates
	return e
}

func Arity(function string, format string, args ...interface{}) *Error {
	return newf(KindArity, function, format, args...)
}

func Argument(function string, format string, args ...interface{}) *Error {
	return newf(KindArgument, function, format, args...)
}

func Type(format string, args ...interface{}) *Error {
	return newf(KindType, "", format, args...)
}

func Name(name string) *Error {
	return newf(KindName, "", "%s not defined", name)
}

func Runtime(format string, args ...interface{}) *Error {
	return newf(KindRuntime, "", format, args...)
}

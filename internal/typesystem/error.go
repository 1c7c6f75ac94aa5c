package typesystem

import "github.com/funvibe/dispatch/internal/diagnostics"

func newDuplicateTypeError(name string) error {
	return diagnostics.Definition("type %s is already declared", name)
}

func newUnknownParentError(parent TypeID) error {
	return diagnostics.Definition("unknown parent type id %d", parent)
}

// NewUnknownTypeError reports a reference to an undeclared type name.
func NewUnknownTypeError(name string) error {
	return diagnostics.Definition("unknown type %s", name)
}

package diagnostics

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorsIsByKind(t *testing.T) {
	err := NoMethod("f", "f(Int, String)", []string{"f(x::Number, y::Number)"})
	wrapped := fmt.Errorf("call failed: %w", err)

	if !errors.Is(wrapped, ErrNoMethod) {
		t.Errorf("expected wrapped error to match ErrNoMethod")
	}
	if errors.Is(wrapped, ErrAmbiguous) {
		t.Errorf("NoMethodError must not match ErrAmbiguous")
	}
	if KindOf(wrapped) != KindNoMethod {
		t.Errorf("KindOf = %v, want NoMethodError", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Errorf("plain errors have no kind")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Ambiguous("g", "g(Int, Int)", []string{"g(x::Int, y)", "g(x, y::Int)"})
	msg := err.Error()
	if !strings.HasPrefix(msg, "AmbiguousMethodError: g(Int, Int) is ambiguous") {
		t.Errorf("unexpected message: %q", msg)
	}
	if !strings.Contains(msg, "\n  g(x, y::Int)") {
		t.Errorf("candidates missing from message: %q", msg)
	}

	if got := Name("x").Error(); got != "NameError: x not defined" {
		t.Errorf("got %q", got)
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindDefinition, "DefinitionError"},
		{KindArity, "ArityError"},
		{KindArgument, "ArgumentError"},
		{KindType, "TypeError"},
		{Kind(99), "Kind(99)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %s, want %s", int(tt.kind), got, tt.want)
		}
	}
}

package runtime

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/MattsPoche/sly-sub000/internal/value"
)

// SchemeError is a runtime-raised condition (wrong type, unbound
// variable, division by zero, arity mismatch, stack exhaustion) that the
// global exception handler catches and can re-present as a
// Scheme-visible value. Wrapped with github.com/pkg/errors so a Cause()
// chain survives across the handler boundary.
type SchemeError struct {
	Kind      string
	Message   string
	Irritants []value.Value
}

func (e *SchemeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewError(kind, format string, args ...interface{}) error {
	return errors.WithStack(&SchemeError{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

func WrongType(expected string, got value.Value) error {
	return NewError("wrong-type", "expected %s, got %s", expected, got.Kind)
}

func UnboundVariable(name string) error {
	return NewError("unbound-variable", "unbound variable %q", name)
}

func ArityMismatch(expected, got int) error {
	return NewError("arity-mismatch", "expected %d argument(s), got %d", expected, got)
}

// Handler is the process-wide exception handler: every primitive or
// interpreter fault funnels through Raise,
// which either invokes the current Scheme-level handler (installed by
// `with-exception-handler`/`guard`, modeled here as a Go callback stack)
// or, with none installed, converts the condition into a Go error the
// top-level Run can report.
type Handler struct {
	stack []func(error) (value.Value, bool)
}

func NewHandler() *Handler { return &Handler{} }

// Push installs a handler frame; Pop removes it. internal/interp never
// pushes a frame itself; it only calls Raise.
func (h *Handler) Push(fn func(error) (value.Value, bool)) {
	h.stack = append(h.stack, fn)
}

func (h *Handler) Pop() {
	h.stack = h.stack[:len(h.stack)-1]
}

// Raise walks the handler stack from the innermost frame outward; the
// first handler that returns handled=true supplies the value the raising
// expression's continuation resumes with. If nothing is installed, Raise
// returns the error to its caller, which in a top-level Run propagates
// out as an uncaught error.
func (h *Handler) Raise(err error) (value.Value, error) {
	for i := len(h.stack) - 1; i >= 0; i-- {
		if v, ok := h.stack[i](err); ok {
			return v, nil
		}
	}
	return value.Value{}, err
}

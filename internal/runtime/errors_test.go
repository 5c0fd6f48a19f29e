package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MattsPoche/sly-sub000/internal/value"
)

func TestErrorConstructorsFormatMessages(t *testing.T) {
	err := WrongType("pair", value.IntV(3))
	require.Contains(t, err.Error(), "wrong-type")
	require.Contains(t, err.Error(), "pair")
	require.Contains(t, err.Error(), "integer")

	require.Contains(t, UnboundVariable("frob").Error(), "frob")

	am := ArityMismatch(2, 3)
	require.Contains(t, am.Error(), "arity-mismatch")
}

func TestHandlerRaiseWithNoFrameReturnsError(t *testing.T) {
	h := NewHandler()
	_, err := h.Raise(NewError("test", "boom"))
	require.Error(t, err)
}

func TestHandlerRaiseInvokesInnermostFirst(t *testing.T) {
	h := NewHandler()
	var order []string
	h.Push(func(err error) (value.Value, bool) {
		order = append(order, "outer")
		return value.Value{}, false
	})
	h.Push(func(err error) (value.Value, bool) {
		order = append(order, "inner")
		return value.IntV(99), true
	})

	v, err := h.Raise(NewError("test", "boom"))
	require.NoError(t, err)
	require.Equal(t, int32(99), v.AsInt())
	require.Equal(t, []string{"inner"}, order)
}

func TestHandlerPopRemovesFrame(t *testing.T) {
	h := NewHandler()
	h.Push(func(err error) (value.Value, bool) { return value.IntV(1), true })
	h.Pop()
	_, err := h.Raise(NewError("test", "boom"))
	require.Error(t, err)
}

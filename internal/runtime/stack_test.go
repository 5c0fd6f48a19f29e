package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MattsPoche/sly-sub000/internal/value"
)

func TestArgStackPushPopDepth(t *testing.T) {
	s := NewArgStackWithLimit(4)
	require.Equal(t, 0, s.Depth())

	require.NoError(t, s.Push([]value.Value{value.IntV(1)}))
	require.NoError(t, s.Push([]value.Value{value.IntV(2)}))
	require.Equal(t, 2, s.Depth())

	s.Pop()
	require.Equal(t, 1, s.Depth())
}

func TestArgStackOverflow(t *testing.T) {
	s := NewArgStackWithLimit(2)
	require.NoError(t, s.Push(nil))
	require.NoError(t, s.Push(nil))
	err := s.Push(nil)
	require.Error(t, err)
	require.IsType(t, StackOverflow{}, err)
}

func TestArgStackGCRoots(t *testing.T) {
	s := NewArgStack()
	require.NoError(t, s.Push([]value.Value{value.IntV(10), value.IntV(20)}))
	require.NoError(t, s.Push([]value.Value{value.IntV(30)}))

	roots := s.GCRoots()
	require.Len(t, roots, 3)
	require.Equal(t, int32(10), roots[0].AsInt())
	require.Equal(t, int32(30), roots[2].AsInt())
}

func TestNewArgStackWithLimitDefaultsOnNonPositive(t *testing.T) {
	s := NewArgStackWithLimit(0)
	require.Equal(t, maxStackDepth, s.limit)
}

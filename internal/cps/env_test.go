package cps_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MattsPoche/sly-sub000/internal/cps"
)

func TestEnvBindAndLookup(t *testing.T) {
	e := cps.NewEnv(nil)
	e.Bind("x", cps.Var("_t1"), false)

	v, boxed, ok := e.Lookup("x")
	require.True(t, ok)
	require.False(t, boxed)
	require.Equal(t, cps.Var("_t1"), v)
}

func TestEnvLookupMissesReturnFalse(t *testing.T) {
	e := cps.NewEnv(nil)
	_, _, ok := e.Lookup("nope")
	require.False(t, ok)
}

func TestEnvLookupFallsThroughToParent(t *testing.T) {
	parent := cps.NewEnv(nil)
	parent.Bind("x", cps.Var("_t1"), true)
	child := cps.NewEnv(parent)

	v, boxed, ok := child.Lookup("x")
	require.True(t, ok)
	require.True(t, boxed)
	require.Equal(t, cps.Var("_t1"), v)
}

func TestEnvChildShadowsParent(t *testing.T) {
	parent := cps.NewEnv(nil)
	parent.Bind("x", cps.Var("_t1"), false)
	child := cps.NewEnv(parent)
	child.Bind("x", cps.Var("_t2"), false)

	v, _, ok := child.Lookup("x")
	require.True(t, ok)
	require.Equal(t, cps.Var("_t2"), v)

	pv, _, ok := parent.Lookup("x")
	require.True(t, ok)
	require.Equal(t, cps.Var("_t1"), pv)
}

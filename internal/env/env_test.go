package env

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-wdl/wdlrun/internal/values"
)

func TestBindShadowsOuter(t *testing.T) {
	base := Empty().Bind("x", values.NewInt(1))
	inner := base.Bind("x", values.NewInt(2))

	v, ok := inner.Lookup("x")
	assert.True(t, ok)
	assert.Equal(t, int64(2), v.Int)

	v, ok = base.Lookup("x")
	assert.True(t, ok)
	assert.Equal(t, int64(1), v.Int, "binding on inner must not mutate base")
}

func TestBindAllSingleFrame(t *testing.T) {
	e := Empty().BindAll(map[string]values.Value{
		"a": values.NewInt(1),
		"b": values.NewString("hi"),
	})
	a, ok := e.Lookup("a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), a.Int)
	b, ok := e.Lookup("b")
	assert.True(t, ok)
	assert.Equal(t, "hi", b.Str)
}

func TestNamespaceLookup(t *testing.T) {
	callScope := Empty().Bind("out", values.NewString("result"))
	outer := Empty().Bind("x", values.NewInt(9)).EnterNamespace("my_call", callScope)

	v, ok := outer.Lookup("my_call.out")
	assert.True(t, ok)
	assert.Equal(t, "result", v.Str)

	v, ok = outer.Lookup("x")
	assert.True(t, ok)
	assert.Equal(t, int64(9), v.Int)

	_, ok = outer.Lookup("out")
	assert.False(t, ok, "unqualified name should not leak out of the namespace")
}

func TestLookupMissing(t *testing.T) {
	_, ok := Empty().Lookup("nope")
	assert.False(t, ok)
}

func TestNamesDeduplicatesShadowed(t *testing.T) {
	e := Empty().Bind("x", values.NewInt(1)).Bind("x", values.NewInt(2)).Bind("y", values.NewInt(3))
	names := e.Names()
	assert.ElementsMatch(t, []string{"x", "y"}, names)
}

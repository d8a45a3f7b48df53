package context

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackagesAndBuildDepsAreDisjoint(t *testing.T) {
	ctx := New("test", nil, nil, NewCapsuleState())

	ctx.AddBuildDep("gcc")
	ctx.AddBuildDep("make")
	assert.Equal(t, []string{"gcc", "make"}, ctx.BuildDeps())
	assert.Empty(t, ctx.Packages())

	ctx.InstallPackage("gcc")
	assert.Equal(t, []string{"gcc"}, ctx.Packages())
	assert.Equal(t, []string{"make"}, ctx.BuildDeps())

	ctx.AddBuildDep("gcc")
	assert.Equal(t, []string{"make"}, ctx.BuildDeps(), "gcc is already a permanent package, must not re-enter build-deps")
}

func TestRemoveBuildDepsClearsSet(t *testing.T) {
	ctx := New("test", nil, nil, NewCapsuleState())
	ctx.AddBuildDep("gcc")
	ctx.AddBuildDep("make")
	ctx.RemoveBuildDeps()
	assert.Empty(t, ctx.BuildDeps())
}

func TestCapsuleStateBaseReadyMonotonic(t *testing.T) {
	cs := NewCapsuleState()
	assert.False(t, cs.BaseReady)
	cs.BaseReady = true
	assert.True(t, cs.BaseReady)
}

func TestOrderedSetPreservesInsertionOrder(t *testing.T) {
	s := NewOrderedSet[string]()
	s.Add("/b")
	s.Add("/a")
	s.Add("/c")
	assert.Equal(t, []string{"/b", "/a", "/c"}, s.Items())

	s.Remove("/a")
	assert.Equal(t, []string{"/b", "/c"}, s.Items())
	assert.False(t, s.Contains("/a"))
}

func TestOrderedMapPreservesInsertionOrder(t *testing.T) {
	m := NewOrderedMap[string, string]()
	m.Set("/cache/b", "keyB")
	m.Set("/cache/a", "keyA")
	m.Set("/cache/b", "keyB2") // update, should not move position
	assert.Equal(t, []string{"/cache/b", "/cache/a"}, m.Keys())
	v, ok := m.Get("/cache/b")
	assert.True(t, ok)
	assert.Equal(t, "keyB2", v)
}

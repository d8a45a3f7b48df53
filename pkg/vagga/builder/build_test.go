package builder

import (
	"os"
	"testing"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
	"github.com/dpvpro/vagga/pkg/vagga/naming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T, manifest *config.Manifest) *Builder {
	t.Helper()
	base := t.TempDir()
	b := New(manifest, naming.New(base), &config.Settings{})
	b.Sandboxed = false
	b.WorkDir = base
	return b
}

func TestEmptyContainerHashesToWellKnownVersion(t *testing.T) {
	m := &config.Manifest{Containers: map[string]*config.Container{
		"empty": {},
	}}
	b := newTestBuilder(t, m)
	v, err := b.hash("empty", m.Containers["empty"])
	require.NoError(t, err)
	assert.Equal(t, digest.EmptyVersion().Full, v.Full)
}

func TestHashIsDeterministicAcrossBuilders(t *testing.T) {
	m := &config.Manifest{Containers: map[string]*config.Container{
		"app": {Setup: []config.Step{
			&config.StepEnsureDir{Path: "/opt/app"},
			&config.StepText{Files: map[string]string{"/etc/motd": "hi\n"}},
		}},
	}}
	b1 := newTestBuilder(t, m)
	b2 := newTestBuilder(t, m)
	v1, err := b1.hash("app", m.Containers["app"])
	require.NoError(t, err)
	v2, err := b2.hash("app", m.Containers["app"])
	require.NoError(t, err)
	assert.Equal(t, v1.Full, v2.Full)
}

func TestHashIsIsolatedFromUnrelatedEnvironment(t *testing.T) {
	m := &config.Manifest{Containers: map[string]*config.Container{
		"app": {Setup: []config.Step{&config.StepEnsureDir{Path: "/opt/app"}}},
	}}
	b := newTestBuilder(t, m)
	before, err := b.hash("app", m.Containers["app"])
	require.NoError(t, err)

	t.Setenv("TERM", "something-completely-different")
	after, err := b.hash("app", m.Containers["app"])
	require.NoError(t, err)
	assert.Equal(t, before.Full, after.Full)
}

func TestDependencySubstitutionChangesDependentHash(t *testing.T) {
	mkManifest := func(leafContents string) *config.Manifest {
		return &config.Manifest{Containers: map[string]*config.Container{
			"base": {Setup: []config.Step{
				&config.StepText{Files: map[string]string{"/etc/motd": leafContents}},
			}},
			"app": {Setup: []config.Step{
				&config.StepContainer{Name: "base"},
				&config.StepEnsureDir{Path: "/opt/app"},
			}},
		}}
	}

	m1 := mkManifest("v1\n")
	b1 := newTestBuilder(t, m1)
	v1, err := b1.Resolve("app")
	require.NoError(t, err)

	m2 := mkManifest("v2\n")
	b2 := newTestBuilder(t, m2)
	v2, err := b2.Resolve("app")
	require.NoError(t, err)

	assert.NotEqual(t, v1.Full, v2.Full)
}

func TestResolveShortCircuitsAnAlreadyPromotedRoot(t *testing.T) {
	m := &config.Manifest{Containers: map[string]*config.Container{
		"app": {Setup: []config.Step{&config.StepEnsureDir{Path: "/opt/app"}}},
	}}
	b := newTestBuilder(t, m)

	v1, err := b.Resolve("app")
	require.NoError(t, err)
	assert.True(t, storageExists(b, "app", v1))

	// A fresh Builder (empty in-memory cache) pointed at the same
	// layout must see the already-promoted root and short-circuit
	// rather than rebuild.
	b2 := New(m, b.Layout, &config.Settings{})
	b2.Sandboxed = false
	b2.WorkDir = b.WorkDir
	v2, err := b2.Resolve("app")
	require.NoError(t, err)
	assert.Equal(t, v1.Full, v2.Full)
}

func TestResolveNoBuildReturnsErrOutOfDateWhenNotPromoted(t *testing.T) {
	m := &config.Manifest{Containers: map[string]*config.Container{
		"app": {Setup: []config.Step{&config.StepEnsureDir{Path: "/opt/app"}}},
	}}
	b := newTestBuilder(t, m)
	b.NoBuild = true
	_, err := b.Resolve("app")
	assert.ErrorIs(t, err, ErrOutOfDate)
}

func storageExists(b *Builder, name string, v digest.Version) bool {
	_, err := os.Stat(b.Layout.StoredRootDir(name, v))
	return err == nil
}

package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dpvpro/vagga/pkg/vagga/digest"
	"github.com/dpvpro/vagga/pkg/vagga/naming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func v(full string) digest.Version {
	return digest.Version{Full: full, Short: full[:digest.ShortLen]}
}

func TestPromoteRenamesAndLinksSymlinks(t *testing.T) {
	base := t.TempDir()
	layout := naming.New(base)
	m := New(layout)

	tmp := layout.TempRootDir("app", 1234)
	require.NoError(t, os.MkdirAll(filepath.Join(tmp, "root"), 0o755))

	version := v("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	final, err := m.Promote("app", version, tmp)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(final, "root"))

	shortTarget, err := os.Readlink(layout.ShortSymlink("app"))
	require.NoError(t, err)
	assert.Equal(t, final, shortTarget)

	fullTarget, err := os.Readlink(layout.FullSymlink("app"))
	require.NoError(t, err)
	assert.Equal(t, final, fullTarget)
}

func TestPromoteOfAlreadyPromotedVersionDiscardsTheLoser(t *testing.T) {
	base := t.TempDir()
	layout := naming.New(base)
	m := New(layout)
	version := v("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	winner := layout.TempRootDir("app", 1)
	require.NoError(t, os.MkdirAll(filepath.Join(winner, "root"), 0o755))
	_, err := m.Promote("app", version, winner)
	require.NoError(t, err)

	loser := layout.TempRootDir("app", 2)
	require.NoError(t, os.MkdirAll(filepath.Join(loser, "root"), 0o755))
	final, err := m.Promote("app", version, loser)
	require.NoError(t, err)

	assert.NoDirExists(t, loser)
	assert.DirExists(t, final)
}

func TestGCRemovesEverythingButTheLinkedVersion(t *testing.T) {
	base := t.TempDir()
	layout := naming.New(base)
	m := New(layout)

	old := v("cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc")
	cur := v("dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd")

	oldTmp := layout.TempRootDir("app", 1)
	require.NoError(t, os.MkdirAll(filepath.Join(oldTmp, "root"), 0o755))
	_, err := m.Promote("app", old, oldTmp)
	require.NoError(t, err)

	curTmp := layout.TempRootDir("app", 2)
	require.NoError(t, os.MkdirAll(filepath.Join(curTmp, "root"), 0o755))
	_, err = m.Promote("app", cur, curTmp)
	require.NoError(t, err)

	removed, err := m.GC("app")
	require.NoError(t, err)
	assert.Equal(t, []string{naming.StoredRootName("app", old)}, removed)
	assert.DirExists(t, layout.StoredRootDir("app", cur))
	assert.NoDirExists(t, layout.StoredRootDir("app", old))
}

func TestSweepOrphanTempsRemovesOnlyDeadPids(t *testing.T) {
	base := t.TempDir()
	layout := naming.New(base)
	m := New(layout)

	deadTmp := layout.TempRootDir("app", 999999)
	require.NoError(t, os.MkdirAll(deadTmp, 0o755))
	aliveTmp := layout.TempRootDir("app", os.Getpid())
	require.NoError(t, os.MkdirAll(aliveTmp, 0o755))

	removed, err := m.SweepOrphanTemps()
	require.NoError(t, err)
	assert.Contains(t, removed, filepath.Base(deadTmp))
	assert.NotContains(t, removed, filepath.Base(aliveTmp))
	assert.DirExists(t, aliveTmp)
}

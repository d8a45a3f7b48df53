package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/naming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterializeTmpfsWritesDeclaredFiles(t *testing.T) {
	base := t.TempDir()
	layout := naming.New(base)
	scratch := t.TempDir()
	req := &Request{Layout: layout, WorkDir: base}

	m, err := materializeOne(req, scratch, "/tmp", &config.VolumeTmpfs{
		Size:  "10Mi",
		Files: map[string]string{"/greeting": "hi\n"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp", m.Target)
	contents, err := os.ReadFile(filepath.Join(m.Source, "greeting"))
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(contents))
}

func TestMaterializeBindROIsReadOnly(t *testing.T) {
	base := t.TempDir()
	layout := naming.New(base)
	req := &Request{Layout: layout, WorkDir: base}

	m, err := materializeOne(req, t.TempDir(), "/code", &config.VolumeBindRO{Path: "src"})
	require.NoError(t, err)
	assert.True(t, m.ReadOnly)
	assert.Equal(t, filepath.Join(base, "src"), m.Source)
}

func TestEnsurePersistentVolumeRunsInitCommandOnce(t *testing.T) {
	base := t.TempDir()
	layout := naming.New(base)
	marker := filepath.Join(base, "ran")

	v := &config.VolumePersistent{Name: "data", InitCommand: []string{"touch", marker}}
	dir, err := ensurePersistentVolume(layout, v)
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.FileExists(t, marker)

	require.NoError(t, os.Remove(marker))
	dir2, err := ensurePersistentVolume(layout, v)
	require.NoError(t, err)
	assert.Equal(t, dir, dir2)
	assert.NoFileExists(t, marker) // second call is a no-op: already published, init not re-run
}

func TestEnsurePersistentVolumeDiscardsOnFailingInit(t *testing.T) {
	base := t.TempDir()
	layout := naming.New(base)

	v := &config.VolumePersistent{Name: "data", InitCommand: []string{"false"}}
	_, err := ensurePersistentVolume(layout, v)
	assert.Error(t, err)
	assert.NoDirExists(t, layout.VolumeDir("data"))
	assert.NoDirExists(t, filepath.Join(base, ".volumes", ".tmp.data"))
}

func TestIDMapsExpandsRangesSequentially(t *testing.T) {
	ranges := []config.IDRange{{Start: 1000, End: 1000}, {Start: 2000, End: 2001}}
	maps := idMaps(ranges)
	require.Len(t, maps, 2)
	assert.Equal(t, 0, maps[0].ContainerID)
	assert.Equal(t, 1000, maps[0].HostID)
	assert.Equal(t, 1, maps[0].Size)
	assert.Equal(t, 1, maps[1].ContainerID)
	assert.Equal(t, 2000, maps[1].HostID)
	assert.Equal(t, 2, maps[1].Size)
}

package steps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	vctx "github.com/dpvpro/vagga/pkg/vagga/context"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
	"github.com/dpvpro/vagga/pkg/vagga/distro"
	"github.com/dpvpro/vagga/pkg/vagga/naming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	installed [][]string
}

func (f *fakeDriver) Name() string { return "fake" }
func (f *fakeDriver) Install(ctx *vctx.BuildContext, pkgs []string) error {
	f.installed = append(f.installed, pkgs)
	return nil
}
func (f *fakeDriver) Remove(ctx *vctx.BuildContext, pkgs []string) error { return nil }
func (f *fakeDriver) AddRepo(ctx *vctx.BuildContext, repo string) error  { return nil }
func (f *fakeDriver) Finish(ctx *vctx.BuildContext, rootDir string) error {
	return nil
}
func (f *fakeDriver) EnsurePackages(ctx *vctx.BuildContext, features []distro.Feature) ([]distro.Feature, error) {
	return nil, nil
}

func newGuard(t *testing.T) (*Guard, string) {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "root")
	require.NoError(t, os.MkdirAll(root, 0o755))
	ctx := vctx.New("test", &config.Container{Volumes: map[string]config.Volume{}}, &config.Settings{}, vctx.NewCapsuleState())
	return &Guard{
		Ctx:     ctx,
		Distro:  &fakeDriver{},
		Layout:  naming.New(base),
		RootDir: root,
		WorkDir: base,
	}, base
}

func TestForDispatchesEveryStepType(t *testing.T) {
	cfgs := []config.Step{
		&config.StepInstall{Packages: []string{"curl"}},
		&config.StepBuildDeps{Packages: []string{"gcc"}},
		&config.StepRepo{Name: "deb http://example.invalid jammy main"},
		&config.StepEnsureDir{Path: "/opt"},
		&config.StepEmptyDir{Path: "/tmp/x"},
		&config.StepRemove{Path: "/var/cache/apt"},
		&config.StepCacheDirs{Dirs: map[string]string{"/var/cache/apt": "apt-cache"}},
		&config.StepDownload{URL: "http://x/y", Path: "/y", Mode: "0644"},
		&config.StepUnzip{URL: "http://x/y.zip", Path: "/"},
		&config.StepTar{URL: "http://x/y.tar.gz", Path: "/"},
		&config.StepText{Files: map[string]string{"/etc/motd": "hi"}},
		&config.StepContainer{Name: "base"},
		&config.StepSubConfig{Source: "directory", Container: "x", Path: "sub/vagga.yaml"},
		&config.StepCopy{Source: ".", Path: "/app"},
		&config.StepGit{URL: "https://example.invalid/repo.git", Path: "/src"},
		&config.StepGitInstall{StepGit: config.StepGit{URL: "https://example.invalid/repo.git", Path: "/src"}},
		&config.StepPip{Python3: true, Packages: []string{"flask"}},
		&config.StepNpm{Packages: []string{"left-pad"}},
		&config.StepSh{Script: "true"},
		&config.StepUbuntu{Release: "xenial"},
		&config.StepAlpine{Version: "v3.5"},
	}
	for _, c := range cfgs {
		behavior, err := For(c)
		require.NoError(t, err, "%T", c)
		assert.NotNil(t, behavior)
	}
}

func TestInstallStepHashIsOrderSensitive(t *testing.T) {
	a := installStep{&config.StepInstall{Packages: []string{"a", "b"}}}
	b := installStep{&config.StepInstall{Packages: []string{"b", "a"}}}
	da, db := digest.New(), digest.New()
	require.NoError(t, a.Hash(da))
	require.NoError(t, b.Hash(db))
	assert.NotEqual(t, da.Finalize().Full, db.Finalize().Full)
}

func TestInstallStepBuildRecordsPackageAndCallsDriver(t *testing.T) {
	g, _ := newGuard(t)
	s := installStep{&config.StepInstall{Packages: []string{"curl"}}}
	require.NoError(t, s.Build(g, true))
	assert.True(t, g.Ctx.IsInstalled("curl"))
	assert.Equal(t, [][]string{{"curl"}}, g.Distro.(*fakeDriver).installed)
}

func TestBuildDepsStepPromotesNothingWhenDryRun(t *testing.T) {
	g, _ := newGuard(t)
	s := buildDepsStep{&config.StepBuildDeps{Packages: []string{"gcc"}}}
	require.NoError(t, s.Build(g, false))
	assert.False(t, g.Ctx.IsBuildDep("gcc"))
}

func TestEnsureDirStepCreatesDirectory(t *testing.T) {
	g, _ := newGuard(t)
	s := ensureDirStep{&config.StepEnsureDir{Path: "/opt/app"}}
	require.NoError(t, s.Build(g, true))
	info, err := os.Stat(filepath.Join(g.RootDir, "opt/app"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Contains(t, g.Ctx.EnsureDirs.Items(), "/opt/app")
}

func TestTextStepWritesFile(t *testing.T) {
	g, _ := newGuard(t)
	require.NoError(t, os.MkdirAll(filepath.Join(g.RootDir, "etc"), 0o755))
	s := textStep{&config.StepText{Files: map[string]string{"/etc/motd": "hello\n"}}}
	require.NoError(t, s.Build(g, true))
	got, err := os.ReadFile(filepath.Join(g.RootDir, "etc/motd"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(got))
}

func TestContainerStepDependentOn(t *testing.T) {
	s := containerStep{&config.StepContainer{Name: "base"}}
	assert.Equal(t, "base", s.DependentOn())
}

func TestCopyStepHashChangesWithFileContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one"), 0o644))
	s := copyStep{&config.StepCopy{Source: dir, Path: "/app"}}
	d1 := digest.New()
	require.NoError(t, s.Hash(d1))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("two"), 0o644))
	d2 := digest.New()
	require.NoError(t, s.Hash(d2))

	assert.NotEqual(t, d1.Finalize().Full, d2.Finalize().Full)
}

func TestCopyStepBuildCopiesFiles(t *testing.T) {
	g, base := newGuard(t)
	srcDir := filepath.Join(base, "project")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("hi"), 0o644))
	g.WorkDir = base

	s := copyStep{&config.StepCopy{Source: "project", Path: "/app"}}
	require.NoError(t, s.Build(g, true))

	got, err := os.ReadFile(filepath.Join(g.RootDir, "app/a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))
}

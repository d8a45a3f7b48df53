package steps

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
	"github.com/dpvpro/vagga/pkg/log"
)

// rootedPath joins an absolute in-container path onto the build root,
// matching every builder/commands/*.rs file's "/vagga/root".join(path
// without its leading slash) convention.
func rootedPath(rootDir, path string) string {
	return filepath.Join(rootDir, strings.TrimPrefix(path, "/"))
}

type ensureDirStep struct{ s *config.StepEnsureDir }

func (e ensureDirStep) Hash(d *digest.Digest) error {
	d.FieldString("EnsureDir", e.s.Path)
	return nil
}

func (e ensureDirStep) Build(g *Guard, build bool) error {
	fpath := rootedPath(g.RootDir, e.s.Path)
	info, err := os.Stat(fpath)
	switch {
	case err == nil && info.IsDir():
		// already there
	case err == nil:
		return fmt.Errorf("EnsureDir: %s exists but is not a directory", e.s.Path)
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(fpath, 0o755); mkErr != nil {
			return fmt.Errorf("EnsureDir: creating %s: %w", e.s.Path, mkErr)
		}
		if chErr := os.Chmod(fpath, 0o755); chErr != nil {
			return fmt.Errorf("EnsureDir: chmod %s: %w", e.s.Path, chErr)
		}
	default:
		return fmt.Errorf("EnsureDir: stat %s: %w", e.s.Path, err)
	}
	for mountPoint := range g.Ctx.Container.Volumes {
		if e.s.Path != mountPoint && strings.HasPrefix(e.s.Path, mountPoint) {
			log.Warn("%s directory is in the volume %s; it will be unreachable inside the container", e.s.Path, mountPoint)
		}
	}
	g.Ctx.EnsureDirs.Add(e.s.Path)
	return nil
}

func (ensureDirStep) DependentOn() string { return "" }

type emptyDirStep struct{ s *config.StepEmptyDir }

func (e emptyDirStep) Hash(d *digest.Digest) error {
	d.FieldString("EmptyDir", e.s.Path)
	return nil
}

func (e emptyDirStep) Build(g *Guard, build bool) error {
	fpath := rootedPath(g.RootDir, e.s.Path)
	if err := cleanDir(fpath, false); err != nil {
		return fmt.Errorf("EmptyDir: %w", err)
	}
	g.Ctx.EnsureDirs.Add(e.s.Path)
	return nil
}

func (emptyDirStep) DependentOn() string { return "" }

// cleanDir removes fpath's children (and, if removeSelf, fpath itself
// too), creating it first if missing; ported from original_source's
// container::util::clean_dir semantics used by EmptyDir and Remove.
func cleanDir(fpath string, removeSelf bool) error {
	entries, err := os.ReadDir(fpath)
	if os.IsNotExist(err) {
		if removeSelf {
			return nil
		}
		return os.MkdirAll(fpath, 0o755)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if rmErr := os.RemoveAll(filepath.Join(fpath, e.Name())); rmErr != nil {
			return rmErr
		}
	}
	if removeSelf {
		return os.Remove(fpath)
	}
	return nil
}

type removeStep struct{ s *config.StepRemove }

func (r removeStep) Hash(d *digest.Digest) error {
	d.FieldString("Remove", r.s.Path)
	return nil
}

func (r removeStep) Build(g *Guard, build bool) error {
	fpath := rootedPath(g.RootDir, r.s.Path)
	info, err := os.Lstat(fpath)
	switch {
	case os.IsNotExist(err):
		// already gone
	case err != nil:
		return fmt.Errorf("Remove: stat %s: %w", r.s.Path, err)
	case info.IsDir():
		if rmErr := cleanDir(fpath, true); rmErr != nil {
			return fmt.Errorf("Remove: %w", rmErr)
		}
	default:
		if rmErr := os.Remove(fpath); rmErr != nil {
			return fmt.Errorf("Remove: removing %s: %w", r.s.Path, rmErr)
		}
	}
	g.Ctx.RemovePath.Add(r.s.Path)
	return nil
}

func (removeStep) DependentOn() string { return "" }

type cacheDirsStep struct{ s *config.StepCacheDirs }

func (c cacheDirsStep) Hash(d *digest.Digest) error {
	keys := make([]string, 0, len(c.s.Dirs))
	for k := range c.s.Dirs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d.FieldString(k, c.s.Dirs[k])
	}
	return nil
}

func (c cacheDirsStep) Build(g *Guard, build bool) error {
	keys := make([]string, 0, len(c.s.Dirs))
	for k := range c.s.Dirs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, path := range keys {
		g.Ctx.CacheDirs.Set(path, c.s.Dirs[path])
	}
	return nil
}

func (cacheDirsStep) DependentOn() string { return "" }

// Package storage manages the on-disk lifecycle of built container
// roots: atomic promotion of a finished build into its content-addressed
// name, the short/full symlink bookkeeping readers rely on, and garbage
// collection of roots no longer referenced by any symlink.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dpvpro/vagga/pkg/vagga/digest"
	"github.com/dpvpro/vagga/pkg/vagga/naming"
	"golang.org/x/sys/unix"
)

// Manager promotes and garbage-collects roots under a single Layout.
type Manager struct {
	Layout *naming.Layout
}

// New returns a Manager rooted at layout.
func New(layout *naming.Layout) *Manager {
	return &Manager{Layout: layout}
}

// Exists reports whether name.version is already promoted, the
// short-circuit check the builder runs before starting a sandbox.
func (m *Manager) Exists(name string, version digest.Version) bool {
	_, err := os.Stat(m.Layout.StoredRootDir(name, version))
	return err == nil
}

// Promote renames tmpDir onto its final content-addressed name and
// repoints the name.short/name.full symlinks at it. It never unlinks a
// symlink in place: a fresh temporary link is created alongside the
// target and renamed over the old one, so a reader never observes a
// missing or half-written link.
func (m *Manager) Promote(name string, version digest.Version, tmpDir string) (string, error) {
	if err := os.MkdirAll(m.Layout.RootsDir(), 0o755); err != nil {
		return "", fmt.Errorf("storage: creating roots dir: %w", err)
	}
	final := m.Layout.StoredRootDir(name, version)
	if _, err := os.Stat(final); err == nil {
		// Another builder already promoted this exact version; the
		// loser's temp dir is simply discarded (spec.md's concurrent
		// builder convergence property).
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			return "", fmt.Errorf("storage: removing superseded temp dir: %w", rmErr)
		}
		return final, nil
	}
	if err := os.Rename(tmpDir, final); err != nil {
		return "", fmt.Errorf("storage: promoting %s: %w", tmpDir, err)
	}
	pid := os.Getpid()
	if err := m.relink(m.Layout.ShortSymlink(name), final, pid); err != nil {
		return "", err
	}
	if err := m.relink(m.Layout.FullSymlink(name), final, pid); err != nil {
		return "", err
	}
	return final, nil
}

func (m *Manager) relink(linkPath, target string, pid int) error {
	tmp := m.Layout.TempSymlink(linkPath, pid)
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("storage: creating temp symlink: %w", err)
	}
	if err := os.Rename(tmp, linkPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("storage: renaming symlink onto %s: %w", linkPath, err)
	}
	return nil
}

// Relink repoints name.short/name.full at the already-promoted root
// for version, without renaming anything. Used by the short-circuit
// path: the version is already built, only the symlinks might be
// stale (e.g. pointing at an older version from a previous build).
func (m *Manager) Relink(name string, version digest.Version) error {
	target := m.Layout.StoredRootDir(name, version)
	pid := os.Getpid()
	if err := m.relink(m.Layout.ShortSymlink(name), target, pid); err != nil {
		return err
	}
	return m.relink(m.Layout.FullSymlink(name), target, pid)
}

// GC removes every stored root for name except the one name.full
// currently points at (or every root, if name.full is absent). It
// returns the directory names removed.
func (m *Manager) GC(name string) ([]string, error) {
	keep := ""
	if target, err := os.Readlink(m.Layout.FullSymlink(name)); err == nil {
		keep = filepath.Base(target)
	}
	entries, err := os.ReadDir(m.Layout.RootsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: reading roots dir: %w", err)
	}
	var removed []string
	prefix := name + "."
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if strings.HasPrefix(e.Name(), ".tmp.") {
			continue
		}
		if e.Name() == keep {
			continue
		}
		full := filepath.Join(m.Layout.RootsDir(), e.Name())
		if err := os.RemoveAll(full); err != nil {
			return removed, fmt.Errorf("storage: gc removing %s: %w", full, err)
		}
		removed = append(removed, e.Name())
	}
	sort.Strings(removed)
	return removed, nil
}

// SweepOrphanTemps removes .tmp.<name>.<pid> scratch directories whose
// owning pid is no longer alive, the cleanup a later invocation
// performs for builds interrupted by a crash or a SIGKILL (spec.md's
// cancellation policy: partial builds leave only tmp dirs, swept by
// whichever invocation next notices a dead pid).
func (m *Manager) SweepOrphanTemps() ([]string, error) {
	entries, err := os.ReadDir(m.Layout.RootsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: reading roots dir: %w", err)
	}
	var removed []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), ".tmp.") {
			continue
		}
		parts := strings.Split(e.Name(), ".")
		pidStr := parts[len(parts)-1]
		pid, err := strconv.Atoi(pidStr)
		if err != nil || processAlive(pid) {
			continue
		}
		full := filepath.Join(m.Layout.RootsDir(), e.Name())
		if err := os.RemoveAll(full); err != nil {
			return removed, fmt.Errorf("storage: sweeping %s: %w", full, err)
		}
		removed = append(removed, e.Name())
	}
	sort.Strings(removed)
	return removed, nil
}

// processAlive reports whether pid names a running process, by sending
// the null signal the POSIX kill(2) convention reserves for liveness
// checks without actually signaling anything.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

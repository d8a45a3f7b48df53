// Package naming centralizes every on-disk path the storage and runner
// packages need to agree on: stored roots, their promotion symlinks,
// temporary build roots, volumes and the download/git caches.
package naming

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/dpvpro/vagga/pkg/vagga/digest"
)

const (
	// RootsSubdir is where built container roots and their promotion
	// symlinks live, relative to the storage base dir.
	RootsSubdir = ".roots"
	// VolumesSubdir is where named persistent volumes live.
	VolumesSubdir = ".volumes"
	// CacheSubdir is where downloads and git clones are cached.
	CacheSubdir = ".cache"
	// DownloadsSubdir is the downloads cache, relative to CacheSubdir.
	DownloadsSubdir = "downloads"
	// GitCacheSubdir is the git clone cache, relative to CacheSubdir.
	GitCacheSubdir = "git"
)

// Layout resolves every storage path relative to a single base directory
// (e.g. /var/lib/vagga or ~/.vagga/.storage).
type Layout struct {
	BaseDir string
}

// New returns a Layout rooted at base.
func New(base string) *Layout {
	return &Layout{BaseDir: base}
}

// RootsDir is <base>/.roots.
func (l *Layout) RootsDir() string {
	return filepath.Join(l.BaseDir, RootsSubdir)
}

// StoredRootName is the `<name>.<short>.<full>` directory name for a
// finished build.
func StoredRootName(name string, v digest.Version) string {
	return digest.PathForm(name, v)
}

// StoredRootDir is <base>/.roots/<name>.<short>.<full>.
func (l *Layout) StoredRootDir(name string, v digest.Version) string {
	return filepath.Join(l.RootsDir(), StoredRootName(name, v))
}

// StoredRootFS is the container's root filesystem within its stored root.
func (l *Layout) StoredRootFS(name string, v digest.Version) string {
	return filepath.Join(l.StoredRootDir(name, v), "root")
}

// IndexSignaturePath is the dir-signature index written alongside the
// stored root filesystem, used to detect tree corruption.
func (l *Layout) IndexSignaturePath(name string, v digest.Version) string {
	return filepath.Join(l.StoredRootDir(name, v), "index.ds1")
}

// TempRootDir is the scratch directory a build writes into before it is
// promoted; it is unique per name and pid so concurrent builds of the
// same container never collide.
func (l *Layout) TempRootDir(name string, pid int) string {
	return filepath.Join(l.RootsDir(), fmt.Sprintf(".tmp.%s.%d", name, pid))
}

// ShortSymlink is <base>/.roots/<name>.short, always pointing at the
// newest stored root for name.
func (l *Layout) ShortSymlink(name string) string {
	return filepath.Join(l.RootsDir(), name+".short")
}

// FullSymlink is <base>/.roots/<name>.full.
func (l *Layout) FullSymlink(name string) string {
	return filepath.Join(l.RootsDir(), name+".full")
}

// TempSymlink is the temporary symlink written before an atomic rename
// over ShortSymlink/FullSymlink, so promotion never leaves a half-written
// link behind if interrupted.
func (l *Layout) TempSymlink(target string, pid int) string {
	return filepath.Join(l.RootsDir(), fmt.Sprintf(".tmp.link.%d.%s", pid, filepath.Base(target)))
}

// VolumesDir is <base>/.volumes.
func (l *Layout) VolumesDir() string {
	return filepath.Join(l.BaseDir, VolumesSubdir)
}

// VolumeDir is the persistent storage backing a Persistent volume mount.
func (l *Layout) VolumeDir(name string) string {
	return filepath.Join(l.VolumesDir(), name)
}

// CacheDir is <base>/.cache.
func (l *Layout) CacheDir() string {
	return filepath.Join(l.BaseDir, CacheSubdir)
}

// DownloadsDir is <base>/.cache/downloads.
func (l *Layout) DownloadsDir() string {
	return filepath.Join(l.CacheDir(), DownloadsSubdir)
}

// DownloadPath is the cache path for a URL whose Download step hash is
// hash8: `<hash8>-<basename>`, so repeated downloads of the same URL
// with the same expected contents are deduplicated, while edits to the
// step (a different hash) get their own cache entry.
func (l *Layout) DownloadPath(sourceURL string, hash8 string) string {
	base := filepath.Base(sourceURL)
	if base == "" || base == "." || base == "/" {
		base = "download"
	}
	return filepath.Join(l.DownloadsDir(), fmt.Sprintf("%s-%s", hash8, base))
}

// GitCacheDir is <base>/.cache/git/<url-urlencoded>, one bare clone per
// distinct remote URL, shared across containers and revisions.
func (l *Layout) GitCacheDir(repoURL string) string {
	return filepath.Join(l.CacheDir(), GitCacheSubdir, url.QueryEscape(repoURL))
}

// SanitizeComponent maps an arbitrary string (a branch name, a version
// string pulled from a changelog) onto the character set that's safe to
// use as a single path component: letters, digits, dot, dash, underscore.
func SanitizeComponent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

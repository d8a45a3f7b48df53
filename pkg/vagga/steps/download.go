package steps

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
)

// Fetcher retrieves a URL's contents into dst, used through
// fetchToCache by Download, Unzip, Tar and Ubuntu wherever a remote
// file needs pulling into the cache first. The production
// implementation is httpFetcher; tests substitute a fake that copies a
// fixture file instead of hitting the network.
type Fetcher interface {
	Fetch(url, dst string) error
}

// httpFetcher streams url into dst via net/http; no pack dependency
// wraps HTTP retrieval better than the standard library for a single
// GET-to-file download, so this is the correctly-scoped stdlib leaf.
type httpFetcher struct{}

func (httpFetcher) Fetch(url, dst string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("download: fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: fetching %s: status %s", url, resp.Status)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("download: creating cache dir: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("download: creating %s: %w", dst, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("download: writing %s: %w", dst, err)
	}
	return nil
}

// DefaultFetcher is the production Fetcher.
var DefaultFetcher Fetcher = httpFetcher{}

// fetchToCache retrieves sourceURL into g.Layout's downloads cache,
// named by the first 8 hex chars of the URL's (or expected sha256's)
// digest plus the URL's basename, and verifies sha256 when given.
// Ported from builder/download.rs's maybe_download_and_check_hashsum,
// referenced by Download/Unzip/Tar's build() calls.
func fetchToCache(fetcher Fetcher, layout interface {
	DownloadPath(sourceURL, hash8 string) string
}, sourceURL, sha256Hex string) (string, error) {
	if fetcher == nil {
		fetcher = DefaultFetcher
	}
	keySource := sourceURL
	if sha256Hex != "" {
		keySource = sha256Hex
	}
	sum := sha256.Sum256([]byte(keySource))
	hash8 := hex.EncodeToString(sum[:])[:digest.ShortLen]
	dst := layout.DownloadPath(sourceURL, hash8)

	if info, err := os.Stat(dst); err == nil && !info.IsDir() {
		if sha256Hex == "" || verifySHA256(dst, sha256Hex) == nil {
			return dst, nil
		}
	}
	if err := fetcher.Fetch(sourceURL, dst); err != nil {
		return "", err
	}
	if sha256Hex != "" {
		if err := verifySHA256(dst, sha256Hex); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func verifySHA256(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("download: sha256 mismatch for %s: got %s, want %s", path, got, want)
	}
	return nil
}

type downloadStep struct{ s *config.StepDownload }

func (dl downloadStep) Hash(d *digest.Digest) error {
	if dl.s.SHA256 != "" {
		d.FieldString("hash", dl.s.SHA256)
	} else {
		d.FieldString("url", dl.s.URL)
	}
	d.FieldString("path", dl.s.Path)
	d.Text("mode", dl.s.Mode)
	return nil
}

// Build copies the downloaded (or, for a "./"-prefixed URL, locally
// relative) file into place at the declared mode, ported from
// download.rs's Download::build.
func (dl downloadStep) Build(g *Guard, build bool) error {
	if !build {
		return nil
	}
	var src string
	if strings.HasPrefix(dl.s.URL, ".") {
		src = filepath.Join(g.WorkDir, dl.s.URL)
	} else {
		cached, err := fetchToCache(nil, g.Layout, dl.s.URL, dl.s.SHA256)
		if err != nil {
			return err
		}
		src = cached
	}

	dst := rootedPath(g.RootDir, dl.s.Path)
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("Download: %w", err)
	}
	mode := os.FileMode(0o644)
	if dl.s.Mode != "" {
		if parsed, err := strconv.ParseUint(dl.s.Mode, 8, 32); err == nil {
			mode = os.FileMode(parsed)
		}
	}
	if err := os.Chmod(dst, mode); err != nil {
		return fmt.Errorf("Download: chmod %s: %w", dl.s.Path, err)
	}
	return nil
}

func (downloadStep) DependentOn() string { return "" }

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

package steps

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dpvpro/vagga/pkg/log"
	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
)

type unzipStep struct{ s *config.StepUnzip }

func (u unzipStep) Hash(d *digest.Digest) error {
	if u.s.SHA256 != "" {
		d.FieldString("hash", u.s.SHA256)
	} else {
		d.FieldString("url", u.s.URL)
	}
	d.FieldString("path", u.s.Path)
	d.FieldString("subdir", u.s.Subdir)
	return nil
}

// Build fetches (and sha256-verifies, when declared) the archive, then
// extracts it with entries under Subdir rebased to Path's root and
// everything else skipped. Ported from unzip.rs's unzip_file.
func (u unzipStep) Build(g *Guard, build bool) error {
	if !build {
		return nil
	}
	log.ExtraInfo(u.s.URL)
	archivePath, err := fetchToCache(nil, g.Layout, u.s.URL, u.s.SHA256)
	if err != nil {
		return err
	}
	dst := rootedPath(g.RootDir, u.s.Path)
	return extractZip(archivePath, dst, u.s.Subdir)
}

func (unzipStep) DependentOn() string { return "" }

func extractZip(archivePath, dst, subdir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("Unzip: opening archive: %w", err)
	}
	defer r.Close()

	subdir = strings.Trim(filepath.Clean(subdir), "/")
	noSubdir := subdir == "" || subdir == "."
	foundSubdir := noSubdir

	for _, f := range r.File {
		name := f.Name
		var relOut string
		if noSubdir {
			relOut = name
		} else if name == subdir || strings.HasPrefix(name, subdir+"/") {
			foundSubdir = true
			relOut = strings.TrimPrefix(strings.TrimPrefix(name, subdir), "/")
		} else {
			continue
		}
		if relOut == "" {
			continue
		}
		outPath := filepath.Join(dst, relOut)
		if strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(outPath, 0o755); err != nil {
				return fmt.Errorf("Unzip: creating dir %s: %w", outPath, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return fmt.Errorf("Unzip: creating parent dir: %w", err)
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("Unzip: opening entry %s: %w", name, err)
		}
		out, err := os.Create(outPath)
		if err != nil {
			rc.Close()
			return fmt.Errorf("Unzip: creating %s: %w", outPath, err)
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return fmt.Errorf("Unzip: extracting %s: %w", name, copyErr)
		}
		if mode := f.Mode(); mode != 0 {
			_ = os.Chmod(outPath, mode)
		}
	}
	if !foundSubdir {
		return fmt.Errorf("Unzip: subdir %q not found in archive", subdir)
	}
	return nil
}

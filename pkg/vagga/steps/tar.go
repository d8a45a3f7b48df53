package steps

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dpvpro/vagga/pkg/log"
	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
)

type tarStep struct{ s *config.StepTar }

func (t tarStep) Hash(d *digest.Digest) error {
	if t.s.SHA256 != "" {
		d.FieldString("hash", t.s.SHA256)
	} else {
		d.FieldString("url", t.s.URL)
	}
	d.FieldString("path", t.s.Path)
	d.FieldString("subdir", t.s.Subdir)
	return nil
}

func (t tarStep) Build(g *Guard, build bool) error {
	if !build {
		return nil
	}
	log.ExtraInfo(t.s.URL)
	archivePath, err := fetchToCache(nil, g.Layout, t.s.URL, t.s.SHA256)
	if err != nil {
		return err
	}
	dst := rootedPath(g.RootDir, t.s.Path)
	return extractTar(archivePath, dst, t.s.Subdir)
}

func (tarStep) DependentOn() string { return "" }

// extractTar opens archivePath through the right decompressor by
// extension (gzip and bzip2 via the standard library, xz by shelling
// out to /vagga/bin/xz -dc, the binary pkg/vagga/capsule's Xz feature
// provisions) and unpacks entries under subdir rebased to dst's root,
// the same subdir-stripping convention as Unzip.
func extractTar(archivePath, dst, subdir string) error {
	raw, cleanup, err := openDecompressed(archivePath)
	if err != nil {
		return fmt.Errorf("Tar: %w", err)
	}
	defer cleanup()

	subdir = strings.Trim(filepath.Clean(subdir), "/")
	noSubdir := subdir == "" || subdir == "."
	foundSubdir := noSubdir

	tr := tar.NewReader(raw)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("Tar: reading archive: %w", err)
		}
		name := strings.TrimPrefix(hdr.Name, "./")
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
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(outPath, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("Tar: creating dir %s: %w", outPath, err)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return err
			}
			_ = os.Remove(outPath)
			if err := os.Symlink(hdr.Linkname, outPath); err != nil {
				return fmt.Errorf("Tar: symlinking %s: %w", outPath, err)
			}
		default:
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return fmt.Errorf("Tar: creating %s: %w", outPath, err)
			}
			_, copyErr := io.Copy(out, tr)
			out.Close()
			if copyErr != nil {
				return fmt.Errorf("Tar: extracting %s: %w", name, copyErr)
			}
		}
	}
	if !foundSubdir {
		return fmt.Errorf("Tar: subdir %q not found in archive", subdir)
	}
	return nil
}

func openDecompressed(path string) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(path, ".tar.gz") || strings.HasSuffix(path, ".tgz"):
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return gz, func() { gz.Close(); f.Close() }, nil
	case strings.HasSuffix(path, ".tar.bz2") || strings.HasSuffix(path, ".tbz2"):
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return bzip2.NewReader(f), func() { f.Close() }, nil
	case strings.HasSuffix(path, ".tar.xz"):
		cmd := exec.Command("/vagga/bin/xz", "-dc", path)
		out, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, nil, err
		}
		return out, func() { cmd.Wait() }, nil
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { f.Close() }, nil
	}
}

package steps

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
	"github.com/dpvpro/vagga/pkg/vagga/pathfilter"
)

// copyStep snapshots a working-copy path into the container, honoring
// an optional Ignore glob list. Its hash absorbs the same byte content
// it copies (via digest.File, the tree-hashing primitive Git and
// SubConfig also use), so editing an ignored file never changes the
// version but editing a copied one always does.
type copyStep struct{ s *config.StepCopy }

// filter builds a rule list that includes everything under Source by
// default, then excludes each Ignore entry (adding the "!" prefix
// pathfilter's exclude rules need if the manifest didn't already
// supply one), so Ignore reads the way a .gitignore-style list would.
func (c copyStep) filter() (*pathfilter.PathFilter, error) {
	rules := []string{"/"}
	for _, ig := range c.s.Ignore {
		if strings.HasPrefix(ig, "!") {
			rules = append(rules, ig)
		} else {
			rules = append(rules, "!"+ig)
		}
	}
	return pathfilter.Glob(rules)
}

func (c copyStep) Hash(d *digest.Digest) error {
	d.FieldString("path", c.s.Path)
	d.FieldString("owner", c.s.Owner)
	d.FieldString("group", c.s.Group)
	filter, err := c.filter()
	if err != nil {
		return fmt.Errorf("Copy: %w", err)
	}
	return d.File("source", c.s.Source, filter)
}

func (c copyStep) Build(g *Guard, build bool) error {
	if !build {
		return nil
	}
	filter, err := c.filter()
	if err != nil {
		return fmt.Errorf("Copy: %w", err)
	}
	src := c.s.Source
	if !filepath.IsAbs(src) {
		src = filepath.Join(g.WorkDir, src)
	}
	dst := rootedPath(g.RootDir, c.s.Path)

	uid, gid := -1, -1
	if c.s.Owner != "" {
		if v, err := strconv.Atoi(c.s.Owner); err == nil {
			uid = v
		}
	}
	if c.s.Group != "" {
		if v, err := strconv.Atoi(c.s.Group); err == nil {
			gid = v
		}
	}

	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("Copy: %w", err)
	}
	if !info.IsDir() {
		return copyOneFile(src, dst, info, uid, gid)
	}

	entries, err := filter.Walk(src)
	if err != nil {
		return fmt.Errorf("Copy: %w", err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("Copy: creating %s: %w", dst, err)
	}
	for _, e := range entries {
		srcPath := filepath.Join(src, e.RelPath)
		dstPath := filepath.Join(dst, e.RelPath)
		fi, err := os.Lstat(srcPath)
		if err != nil {
			return fmt.Errorf("Copy: %w", err)
		}
		if e.IsDir {
			if err := os.MkdirAll(dstPath, fi.Mode().Perm()); err != nil {
				return fmt.Errorf("Copy: creating dir %s: %w", dstPath, err)
			}
			continue
		}
		if err := copyOneFile(srcPath, dstPath, fi, uid, gid); err != nil {
			return err
		}
	}
	return nil
}

func copyOneFile(src, dst string, info os.FileInfo, uid, gid int) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("Copy: creating parent dir of %s: %w", dst, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return fmt.Errorf("Copy: reading symlink %s: %w", src, err)
		}
		_ = os.Remove(dst)
		if err := os.Symlink(target, dst); err != nil {
			return fmt.Errorf("Copy: creating symlink %s: %w", dst, err)
		}
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("Copy: opening %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("Copy: creating %s: %w", dst, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("Copy: copying %s: %w", src, err)
	}
	if uid >= 0 || gid >= 0 {
		_ = os.Chown(dst, uid, gid)
	}
	return nil
}

func (copyStep) DependentOn() string { return "" }

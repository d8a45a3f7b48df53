// Package digest implements the streaming content hasher used to compute
// container versions. Every build step input is absorbed through Field,
// Sequence, Text or File so that the resulting digest is a pure function
// of declared inputs only.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dpvpro/vagga/pkg/vagga/pathfilter"
)

// ShortLen is the number of hex characters that make up the short form of
// a version.
const ShortLen = 8

// Digest is an incremental SHA-256 state plus the key-delimited framing
// used for every absorbed value.
type Digest struct {
	h hash.Hash
}

// New creates a fresh digest.
func New() *Digest {
	return &Digest{h: sha256.New()}
}

func (d *Digest) raw(b []byte) {
	d.h.Write(b)
	d.h.Write([]byte{0})
}

// Field absorbs key, a NUL byte, value, and a NUL byte.
func (d *Digest) Field(key string, value []byte) {
	d.raw([]byte(key))
	d.raw(value)
}

// FieldString is a convenience wrapper around Field for string values.
func (d *Digest) FieldString(key, value string) {
	d.Field(key, []byte(value))
}

// Sequence absorbs key, NUL, then each value followed by a NUL.
func (d *Digest) Sequence(key string, values []string) {
	d.raw([]byte(key))
	for _, v := range values {
		d.raw([]byte(v))
	}
}

// Text absorbs the decimal/text rendering of value, keyed by key.
func (d *Digest) Text(key string, value interface{}) {
	d.FieldString(key, fmt.Sprint(value))
}

// File absorbs a single regular file's bytes under key. If path names a
// directory it is walked via the given PathFilter in deterministic
// lexicographic order, absorbing each entry's relative path, permission
// bits (masked to 0o7777) and contents; symlink targets are absorbed
// literally and special files are absorbed as a bare tag with no
// contents.
func (d *Digest) File(key, path string, filter *pathfilter.PathFilter) error {
	d.raw([]byte(key))
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return d.absorbEntry(path, "", info)
	}
	var entries []pathfilter.Entry
	if filter == nil {
		filter = pathfilter.MustGlob([]string{"/"})
	}
	entries, err = filter.Walk(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		full := filepath.Join(path, e.RelPath)
		fi, err := os.Lstat(full)
		if err != nil {
			return err
		}
		if err := d.absorbEntry(full, e.RelPath, fi); err != nil {
			return err
		}
	}
	return nil
}

func (d *Digest) absorbEntry(fullPath, relPath string, info fs.FileInfo) error {
	d.raw([]byte(relPath))
	d.raw([]byte(fmt.Sprintf("%o", info.Mode().Perm()&0o7777)))

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(fullPath)
		if err != nil {
			return err
		}
		d.raw([]byte("symlink"))
		d.raw([]byte(target))
	case info.IsDir():
		d.raw([]byte("dir"))
	case info.Mode().IsRegular():
		d.raw([]byte("file"))
		f, err := os.Open(fullPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(d.h, f); err != nil {
			return err
		}
		d.h.Write([]byte{0})
	default:
		// device, fifo, socket: absorb a tag only, never contents
		d.raw([]byte("special"))
	}
	return nil
}

// Version is the result of Finalize: a 64-hex-char full digest paired
// with its first-8-char short form.
type Version struct {
	Full  string
	Short string
}

// Finalize produces the 32-byte digest and returns its hex Version.
func (d *Digest) Finalize() Version {
	sum := d.h.Sum(nil)
	full := hex.EncodeToString(sum)
	return Version{Full: full, Short: full[:ShortLen]}
}

// PathForm renders the `<name>.<short>.<full>` directory-name form used
// under <base>/.roots.
func PathForm(name string, v Version) string {
	return fmt.Sprintf("%s.%s.%s", name, v.Short, v.Full)
}

// EmptyVersion is the well-known version of a container with no steps:
// the SHA-256 of the empty string.
func EmptyVersion() Version {
	return New().Finalize()
}

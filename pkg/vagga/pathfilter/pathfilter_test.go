package pathfilter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// layout builds:
//
//	test.py
//	test.rs
//	dir/test.py
//	dir/test.rs
//	dir/subdir/test.ini
func layout(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir", "subdir"), 0o755))
	for _, p := range []string{"test.py", "test.rs"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, p), []byte("x"), 0o644))
	}
	for _, p := range []string{filepath.Join("dir", "test.py"), filepath.Join("dir", "test.rs")} {
		require.NoError(t, os.WriteFile(filepath.Join(root, p), []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "dir", "subdir", "test.ini"), []byte("x"), 0o644))
	return root
}

func relPaths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.RelPath
	}
	return out
}

func TestGlobEmptyMatchesNothing(t *testing.T) {
	root := layout(t)
	pf := MustGlob([]string{""})
	entries, err := pf.Walk(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGlobBareSlashMatchesEverything(t *testing.T) {
	root := layout(t)
	pf := MustGlob([]string{"/"})
	entries, err := pf.Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"dir/subdir/test.ini",
		"dir/test.py",
		"dir/test.rs",
		"test.py",
		"test.rs",
	}, relPaths(entries))
}

func TestGlobUnanchoredExtension(t *testing.T) {
	root := layout(t)
	pf := MustGlob([]string{"*.rs"})
	entries, err := pf.Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/test.rs", "test.rs"}, relPaths(entries))
}

func TestGlobAnchoredExtensionRootOnly(t *testing.T) {
	root := layout(t)
	pf := MustGlob([]string{"/*.rs"})
	entries, err := pf.Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"test.rs"}, relPaths(entries))
}

func TestGlobDoubleStarEquivalence(t *testing.T) {
	root := layout(t)
	pf := MustGlob([]string{"/**/*.rs"})
	entries, err := pf.Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/test.rs", "test.rs"}, relPaths(entries))
}

func TestGlobDirSlashIncludesDirItself(t *testing.T) {
	root := layout(t)
	pf := MustGlob([]string{"dir/"})
	entries, err := pf.Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"dir",
		"dir/subdir/test.ini",
		"dir/test.py",
		"dir/test.rs",
	}, relPaths(entries))
}

func TestGlobAnchoredDirExcludesDirItself(t *testing.T) {
	root := layout(t)
	pf := MustGlob([]string{"/dir"})
	entries, err := pf.Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"dir/subdir/test.ini",
		"dir/test.py",
		"dir/test.rs",
	}, relPaths(entries))
}

func TestGlobUnanchoredSubdirNamesOnlyItself(t *testing.T) {
	root := layout(t)
	pf := MustGlob([]string{"subdir/"})
	entries, err := pf.Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"dir/subdir",
		"dir/subdir/test.ini",
	}, relPaths(entries))
}

func TestGlobExcludeDirPrunesRecursion(t *testing.T) {
	root := layout(t)
	pf := MustGlob([]string{"!dir/", "*.rs"})
	entries, err := pf.Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"test.rs"}, relPaths(entries))
}

func TestGlobExcludeSubdirOnly(t *testing.T) {
	root := layout(t)
	pf := MustGlob([]string{"!dir/subdir", "*.rs"})
	entries, err := pf.Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/test.rs", "test.rs"}, relPaths(entries))
}

func TestGlobExcludeSubdirUnanchoredName(t *testing.T) {
	root := layout(t)
	pf := MustGlob([]string{"!subdir", "*.rs"})
	entries, err := pf.Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/test.rs", "test.rs"}, relPaths(entries))
}

func TestGlobExcludeRsThenIncludeDirContents(t *testing.T) {
	root := layout(t)
	pf := MustGlob([]string{"!*.rs", "!subdir", "/dir"})
	entries, err := pf.Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/test.py"}, relPaths(entries))
}

func TestGlobFirstMatchingRuleWins(t *testing.T) {
	root := layout(t)
	pf := MustGlob([]string{"!dir/", "dir/"})
	entries, err := pf.Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{}, relPaths(entries))
}

func TestRegexIgnoreAndInclude(t *testing.T) {
	root := layout(t)
	ignore := `subdir`
	include := `\.rs$`
	pf, err := Regex(&ignore, &include)
	require.NoError(t, err)
	entries, err := pf.Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/test.rs", "test.rs"}, relPaths(entries))
}

package steps

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
	"github.com/dpvpro/vagga/pkg/vagga/naming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct{ body string }

func (f fakeFetcher) Fetch(url, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte(f.body), 0o644)
}

func hashOf(t *testing.T, s downloadStep) digest.Version {
	t.Helper()
	d := digest.New()
	require.NoError(t, s.Hash(d))
	return d.Finalize()
}

func TestDownloadStepHashUsesSHA256WhenDeclared(t *testing.T) {
	plain := downloadStep{&config.StepDownload{URL: "http://example.invalid/a", Path: "/a"}}
	withHash := downloadStep{&config.StepDownload{URL: "http://example.invalid/a", Path: "/a", SHA256: "deadbeef"}}

	assert.NotEqual(t, hashOf(t, plain), hashOf(t, withHash),
		"declaring a checksum must change the step's version")

	// Changing only the URL of a step that already declares a checksum
	// must not change its hash: the checksum is the thing being pinned.
	sameHashDifferentURL := downloadStep{&config.StepDownload{URL: "http://example.invalid/b", Path: "/a", SHA256: "deadbeef"}}
	assert.Equal(t, hashOf(t, withHash), hashOf(t, sameHashDifferentURL))
}

func TestFetchToCacheVerifiesAndKeysBySHA256(t *testing.T) {
	content := "archive contents"
	sum := sha256Hex(content)

	layout := naming.New(t.TempDir())
	path, err := fetchToCache(fakeFetcher{body: content}, layout, "http://example.invalid/a.tar.gz", sum)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))

	// A freshly-fetched file (no cache hit possible: a separate layout
	// has an empty downloads cache) whose contents don't match
	// the declared sha256 must fail instead of being cached silently.
	other := naming.New(t.TempDir())
	_, err = fetchToCache(fakeFetcher{body: "tampered"}, other, "http://example.invalid/a.tar.gz", sum)
	assert.Error(t, err)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

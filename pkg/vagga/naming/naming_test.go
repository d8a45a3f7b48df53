package naming

import (
	"testing"

	"github.com/dpvpro/vagga/pkg/vagga/digest"
	"github.com/stretchr/testify/assert"
)

func TestStoredRootPaths(t *testing.T) {
	l := New("/var/lib/vagga")
	v := digest.EmptyVersion()

	name := StoredRootName("ubuntu", v)
	assert.Equal(t, "ubuntu."+v.Short+"."+v.Full, name)
	assert.Equal(t, "/var/lib/vagga/.roots/"+name, l.StoredRootDir("ubuntu", v))
	assert.Equal(t, "/var/lib/vagga/.roots/"+name+"/root", l.StoredRootFS("ubuntu", v))
	assert.Equal(t, "/var/lib/vagga/.roots/"+name+"/index.ds1", l.IndexSignaturePath("ubuntu", v))
}

func TestSymlinkPaths(t *testing.T) {
	l := New("/var/lib/vagga")
	assert.Equal(t, "/var/lib/vagga/.roots/ubuntu.short", l.ShortSymlink("ubuntu"))
	assert.Equal(t, "/var/lib/vagga/.roots/ubuntu.full", l.FullSymlink("ubuntu"))
}

func TestTempRootDirUniquePerPid(t *testing.T) {
	l := New("/var/lib/vagga")
	a := l.TempRootDir("ubuntu", 100)
	b := l.TempRootDir("ubuntu", 200)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "/var/lib/vagga/.roots/.tmp.ubuntu.100", a)
}

func TestDownloadPathIncludesHashAndBasename(t *testing.T) {
	l := New("/var/lib/vagga")
	p := l.DownloadPath("https://example.com/dist/pkg-1.0.tar.gz", "deadbeef")
	assert.Equal(t, "/var/lib/vagga/.cache/downloads/deadbeef-pkg-1.0.tar.gz", p)
}

func TestGitCacheDirIsURLEncoded(t *testing.T) {
	l := New("/var/lib/vagga")
	p := l.GitCacheDir("https://github.com/tailhook/vagga.git")
	assert.Equal(t, "/var/lib/vagga/.cache/git/https%3A%2F%2Fgithub.com%2Ftailhook%2Fvagga.git", p)
}

func TestSanitizeComponent(t *testing.T) {
	assert.Equal(t, "1-2-3", SanitizeComponent("1:2~3"))
	assert.Equal(t, "feature-x", SanitizeComponent("feature/x"))
}

package steps

import (
	"fmt"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	vctx "github.com/dpvpro/vagga/pkg/vagga/context"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
	"github.com/dpvpro/vagga/pkg/vagga/distro"
)

// ubuntuCoreURL mirrors debian.rs's fetch_ubuntu_core format string: a
// daily cdimage.ubuntu.com core tarball for the given release codename.
const ubuntuCoreURLFormat = "http://cdimage.ubuntu.com/ubuntu-core/%s/daily/current/%s-core-amd64.tar.gz"

// ubuntuStep picks Ubuntu/Debian as the container's base distribution,
// fetching and unpacking the release's core tarball on first use.
// Ported from debian.rs's fetch_ubuntu_core + init_debian_build.
type ubuntuStep struct{ s *config.StepUbuntu }

func (u ubuntuStep) Hash(d *digest.Digest) error {
	d.FieldString("Ubuntu", u.s.Release)
	return nil
}

func (u ubuntuStep) Build(g *Guard, build bool) error {
	if _, ok := g.Ctx.Distribution.(vctx.DistroUnknown); !ok {
		return fmt.Errorf("Ubuntu: base distribution already set to %s", g.Ctx.Distribution.DistroName())
	}
	g.Ctx.Distribution = vctx.DistroDebian{Codename: u.s.Release}
	g.Ctx.CacheDirs.Set("/var/cache/apt", "apt-cache")
	g.Ctx.RemovePath.Add("/var/lib/apt")
	g.Ctx.RemovePath.Add("/var/lib/dpkg")
	if !build {
		return nil
	}

	url := fmt.Sprintf(ubuntuCoreURLFormat, u.s.Release, u.s.Release)
	archivePath, err := fetchToCache(DefaultFetcher, g.Layout, url, "")
	if err != nil {
		return fmt.Errorf("Ubuntu: %w", err)
	}
	if err := extractTar(archivePath, g.RootDir, ""); err != nil {
		return fmt.Errorf("Ubuntu: %w", err)
	}
	return nil
}

func (ubuntuStep) DependentOn() string { return "" }

// alpineStep picks Alpine as the container's base distribution, then
// delegates to the driver's own SetupBase for the apk bootstrap.
// Ported from alpine.rs's setup_base, called right after the
// Distribution::Alpine variant is installed.
type alpineStep struct{ s *config.StepAlpine }

func (a alpineStep) Hash(d *digest.Digest) error {
	d.FieldString("Alpine", a.s.Version)
	return nil
}

func (a alpineStep) Build(g *Guard, build bool) error {
	if _, ok := g.Ctx.Distribution.(vctx.DistroUnknown); !ok {
		return fmt.Errorf("Alpine: base distribution already set to %s", g.Ctx.Distribution.DistroName())
	}
	g.Ctx.Distribution = vctx.DistroAlpine{Version: a.s.Version}
	if !build {
		return nil
	}
	drv, err := distro.For(g.Ctx)
	if err != nil {
		return fmt.Errorf("Alpine: %w", err)
	}
	alpine, ok := drv.(*distro.Alpine)
	if !ok {
		return fmt.Errorf("Alpine: unexpected driver %T", drv)
	}
	return alpine.SetupBase(g.Ctx)
}

func (alpineStep) DependentOn() string { return "" }

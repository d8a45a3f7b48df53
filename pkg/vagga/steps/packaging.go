package steps

import (
	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
)

type installStep struct{ s *config.StepInstall }

func (i installStep) Hash(d *digest.Digest) error {
	d.Sequence("packages", i.s.Packages)
	return nil
}

// Build records every package as a permanent dependency (removing it
// from build-deps if a previous BuildDeps step already added it there)
// and, when build is true, actually installs it through the active
// distro driver. Ported from packaging.rs's Install::build.
func (i installStep) Build(g *Guard, build bool) error {
	for _, pkg := range i.s.Packages {
		g.Ctx.InstallPackage(pkg)
	}
	if build {
		return g.Distro.Install(g.Ctx, i.s.Packages)
	}
	return nil
}

func (installStep) DependentOn() string { return "" }

type buildDepsStep struct{ s *config.StepBuildDeps }

func (b buildDepsStep) Hash(d *digest.Digest) error {
	d.Sequence("packages", b.s.Packages)
	return nil
}

func (b buildDepsStep) Build(g *Guard, build bool) error {
	if !build {
		return nil
	}
	for _, pkg := range b.s.Packages {
		if !g.Ctx.IsInstalled(pkg) {
			g.Ctx.AddBuildDep(pkg)
		}
	}
	return g.Distro.Install(g.Ctx, b.s.Packages)
}

func (buildDepsStep) DependentOn() string { return "" }

type repoStep struct{ s *config.StepRepo }

func (r repoStep) Hash(d *digest.Digest) error {
	d.FieldString("name", r.s.Name)
	return nil
}

func (r repoStep) Build(g *Guard, build bool) error {
	if !build {
		return nil
	}
	return g.Distro.AddRepo(g.Ctx, r.s.Name)
}

func (repoStep) DependentOn() string { return "" }

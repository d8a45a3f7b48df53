package steps

import (
	"sort"
	"strings"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
	"github.com/dpvpro/vagga/pkg/vagga/distro"
)

type npmStep struct{ s *config.StepNpm }

func (n npmStep) Hash(d *digest.Digest) error {
	packages := append([]string{}, n.s.Packages...)
	sort.Strings(packages)
	d.Sequence("packages", packages)
	return nil
}

// Build ports npm.rs's scan_features/npm_install: always wants
// BuildEssential/NodeJs/NodeJsDev/Npm, plus Git for any "git://"
// package spec, then installs globally with a dedicated cache dir.
func (n npmStep) Build(g *Guard, build bool) error {
	features := []distro.Feature{distro.BuildEssential, distro.NodeJs, distro.NodeJsDev, distro.Npm}
	for _, pkg := range n.s.Packages {
		if strings.HasPrefix(pkg, "git://") {
			features = append(features, distro.Git)
		}
	}
	if _, err := g.Distro.EnsurePackages(g.Ctx, features); err != nil {
		return err
	}
	if !build {
		return nil
	}

	g.Ctx.CacheDirs.Set("/tmp/npm-cache", "npm-cache")

	args := append([]string{"npm", "install", "--user=root", "--cache=/tmp/npm-cache", "--global"}, n.s.Packages...)
	return runChrootShell(g, shellQuoteJoin(args))
}

func (npmStep) DependentOn() string { return "" }

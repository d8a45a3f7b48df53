package steps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
	"github.com/dpvpro/vagga/pkg/vagga/distro"
)

type pipStep struct{ s *config.StepPip }

func (p pipStep) Hash(d *digest.Digest) error {
	d.Text("python3", p.s.Python3)
	packages := append([]string{}, p.s.Packages...)
	sort.Strings(packages)
	d.Sequence("packages", packages)
	reqs := append([]string{}, p.s.Requirements...)
	sort.Strings(reqs)
	d.Sequence("requirements", reqs)
	d.Text("dependencies", p.s.Dependencies)
	return nil
}

// Build resolves the Python2Dev/Python3Dev/PipPy2/PipPy3 distro
// features scan_features would derive (ported from pip.rs's
// scan_features, simplified to a static feature list gated on
// Python3), installs a pip cache dir, and runs pip install with
// --no-deps unless Dependencies is set, plus one -r per requirements
// file; no index-url flag is passed.
func (p pipStep) Build(g *Guard, build bool) error {
	features := []distro.Feature{distro.BuildEssential}
	if p.s.Python3 {
		features = append(features, distro.Python3Dev, distro.PipPy3)
	} else {
		features = append(features, distro.Python2Dev, distro.PipPy2)
	}
	for _, pkg := range p.s.Packages {
		if strings.HasPrefix(pkg, "git+") {
			features = append(features, distro.Git)
		} else if strings.HasPrefix(pkg, "hg+") {
			features = append(features, distro.Mercurial)
		}
	}

	if _, err := g.Distro.EnsurePackages(g.Ctx, features); err != nil {
		return err
	}
	if !build {
		return nil
	}

	g.Ctx.CacheDirs.Set("/tmp/pip-cache", "pip-cache")
	g.Ctx.Environ.Set("PIP_DOWNLOAD_CACHE", "/tmp/pip-cache")

	pipBin := "pip2"
	if p.s.Python3 {
		pipBin = "pip3"
	}
	args := []string{pipBin, "install"}
	if !p.s.Dependencies {
		args = append(args, "--no-deps")
	}
	for _, req := range p.s.Requirements {
		args = append(args, "-r", req)
	}
	args = append(args, p.s.Packages...)
	return runChrootShell(g, shellQuoteJoin(args))
}

func (pipStep) DependentOn() string { return "" }

func shellQuoteJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = fmt.Sprintf("%q", a)
	}
	return strings.Join(quoted, " ")
}

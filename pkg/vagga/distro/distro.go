// Package distro abstracts the distribution-specific half of a build:
// turning package names into the right package manager invocation and
// mapping distro-agnostic feature requests (BuildEssential, NodeJs,
// Git, ...) onto the build-deps and system-deps each distribution
// needs installed to provide them.
//
// Grounded on original_source/src/builder/commands/{debian,alpine}.rs,
// whose BuildStep::build implementations call through a
// guard.distro trait object exactly the way Driver is called here from
// pkg/vagga/steps (see original_source/src/builder/commands/packaging.rs's
// Install/BuildDeps/Repo steps).
package distro

import (
	"errors"
	"fmt"

	vctx "github.com/dpvpro/vagga/pkg/vagga/context"
)

// Feature is a distro-agnostic capability a step can request, resolved
// by a Driver into concrete package names.
type Feature int

const (
	BuildEssential Feature = iota
	Python2
	Python2Dev
	Python3
	Python3Dev
	PipPy2
	PipPy3
	NodeJs
	NodeJsDev
	Npm
	Git
	Mercurial
)

func (f Feature) String() string {
	switch f {
	case BuildEssential:
		return "BuildEssential"
	case Python2:
		return "Python2"
	case Python2Dev:
		return "Python2Dev"
	case Python3:
		return "Python3"
	case Python3Dev:
		return "Python3Dev"
	case PipPy2:
		return "PipPy2"
	case PipPy3:
		return "PipPy3"
	case NodeJs:
		return "NodeJs"
	case NodeJsDev:
		return "NodeJsDev"
	case Npm:
		return "Npm"
	case Git:
		return "Git"
	case Mercurial:
		return "Mercurial"
	default:
		return "Unknown"
	}
}

// ErrDistributionUnknown is returned by every Driver method on the
// Unknown backend: the manifest hasn't picked a base distribution yet
// (done by an !Ubuntu or !Alpine step),
// so there's nothing to install into.
var ErrDistributionUnknown = errors.New("distro: distribution not set; first step must establish a base distribution")

// Driver performs the package-manager side of a build: installing and
// removing packages, adding repositories, and resolving features into
// concrete package names. One Driver instance is selected per
// BuildContext based on its Distribution.
type Driver interface {
	Name() string
	Install(ctx *vctx.BuildContext, pkgs []string) error
	Remove(ctx *vctx.BuildContext, pkgs []string) error
	AddRepo(ctx *vctx.BuildContext, repo string) error
	Finish(ctx *vctx.BuildContext, rootDir string) error

	// EnsurePackages installs whatever build-deps/system-deps the
	// given features require that aren't already present, and returns
	// the subset of features this driver doesn't know how to satisfy.
	EnsurePackages(ctx *vctx.BuildContext, features []Feature) ([]Feature, error)
}

// Unknown is the zero-value Driver: every method fails with
// ErrDistributionUnknown, matching the original's behavior before a
// base distribution is chosen.
type Unknown struct{}

func (Unknown) Name() string { return "unknown" }
func (Unknown) Install(*vctx.BuildContext, []string) error {
	return ErrDistributionUnknown
}
func (Unknown) Remove(*vctx.BuildContext, []string) error {
	return ErrDistributionUnknown
}
func (Unknown) AddRepo(*vctx.BuildContext, string) error {
	return ErrDistributionUnknown
}
func (Unknown) Finish(*vctx.BuildContext, string) error {
	return ErrDistributionUnknown
}
func (Unknown) EnsurePackages(*vctx.BuildContext, []Feature) ([]Feature, error) {
	return nil, ErrDistributionUnknown
}

// For selects the Driver matching ctx's current Distribution tag.
func For(ctx *vctx.BuildContext) (Driver, error) {
	switch d := ctx.Distribution.(type) {
	case vctx.DistroDebian:
		return &Debian{Codename: d.Codename}, nil
	case vctx.DistroAlpine:
		return &Alpine{Version: d.Version}, nil
	case vctx.DistroUnknown:
		return Unknown{}, nil
	default:
		return nil, fmt.Errorf("distro: unrecognized distribution %T", d)
	}
}

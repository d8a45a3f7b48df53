// Package steps attaches build behavior (hashing and execution) to the
// declarative step types in pkg/vagga/config, mirroring the
// split in original_source/src/build_step.rs between BuildStep (the
// behavior trait) and the tagged config structs it's implemented for.
package steps

import (
	"fmt"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	vctx "github.com/dpvpro/vagga/pkg/vagga/context"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
	"github.com/dpvpro/vagga/pkg/vagga/distro"
	"github.com/dpvpro/vagga/pkg/vagga/naming"
)

// Guard is the per-step execution environment, named after
// original_source/src/builder/mod.rs's Guard (referenced throughout
// the builder/commands/*.rs files as guard.ctx/guard.distro).
type Guard struct {
	Ctx      *vctx.BuildContext
	Distro   distro.Driver
	Layout   *naming.Layout
	RootDir  string // the in-progress build's root filesystem, e.g. <tmp root>/root
	WorkDir  string // the project directory Copy/SubConfig/relative-Download steps resolve against
	Resolver Resolver
}

// Resolver recursively resolves and (when Container/SubConfig steps
// need it) builds another container, so StepContainer/StepSubConfig
// can absorb its version into this container's own hash. Implemented
// by the top-level build driver (pkg/vagga/builder), kept as a small
// interface here so pkg/vagga/steps never imports it back.
type Resolver interface {
	Resolve(name string) (digest.Version, error)
}

// Step is the behavioral counterpart to config.Step: Hash absorbs this
// step's declared inputs into d, Build performs (or, when build is
// false, only validates/configures) the step's effect, and
// DependentOn names another container this step's hash transitively
// depends on (StepContainer, StepSubConfig with Source=="container"),
// or "" for none.
type Step interface {
	Hash(d *digest.Digest) error
	Build(g *Guard, build bool) error
	DependentOn() string
}

// For returns the Step behavior for a config.Step value, or an error
// if cfg is a type this package doesn't recognize (which would only
// happen if pkg/vagga/config grew a variant steps.go wasn't updated
// for).
func For(cfg config.Step) (Step, error) {
	switch s := cfg.(type) {
	case *config.StepInstall:
		return installStep{s}, nil
	case *config.StepBuildDeps:
		return buildDepsStep{s}, nil
	case *config.StepRepo:
		return repoStep{s}, nil
	case *config.StepEnsureDir:
		return ensureDirStep{s}, nil
	case *config.StepEmptyDir:
		return emptyDirStep{s}, nil
	case *config.StepRemove:
		return removeStep{s}, nil
	case *config.StepCacheDirs:
		return cacheDirsStep{s}, nil
	case *config.StepDownload:
		return downloadStep{s}, nil
	case *config.StepUnzip:
		return unzipStep{s}, nil
	case *config.StepTar:
		return tarStep{s}, nil
	case *config.StepText:
		return textStep{s}, nil
	case *config.StepContainer:
		return containerStep{s}, nil
	case *config.StepSubConfig:
		return subConfigStep{s}, nil
	case *config.StepCopy:
		return copyStep{s}, nil
	case *config.StepGit:
		return gitStep{s}, nil
	case *config.StepGitInstall:
		return gitInstallStep{s}, nil
	case *config.StepPip:
		return pipStep{s}, nil
	case *config.StepNpm:
		return npmStep{s}, nil
	case *config.StepSh:
		return shStep{s}, nil
	case *config.StepUbuntu:
		return ubuntuStep{s}, nil
	case *config.StepAlpine:
		return alpineStep{s}, nil
	default:
		return nil, fmt.Errorf("steps: unrecognized step type %T", cfg)
	}
}

package steps

import (
	"fmt"
	"path/filepath"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
	"github.com/dpvpro/vagga/pkg/vagga/naming"
)

// subConfigStep loads another manifest's container definition and
// folds its setup steps into this one, in place, rather than building
// it as a separate dependency the way StepContainer does. Source
// selects where that manifest lives: "directory" (relative to the
// current project), "git" (a remote repository, cloned through the
// same cache gitStep uses) or "container" (another already-built
// container's filesystem, resolved like StepContainer).
type subConfigStep struct{ s *config.StepSubConfig }

func (sc subConfigStep) Hash(d *digest.Digest) error {
	d.FieldString("source", sc.s.Source)
	d.FieldString("container", sc.s.Container)
	d.FieldString("url", sc.s.URL)
	d.FieldString("path", sc.s.Path)

	manifest, _, err := sc.load(nil)
	if err != nil {
		// Hashing happens before a sandbox exists for "git"/"container"
		// sources in the version-only (non-build) pass; a resolution
		// failure there just means this container's hash can't be
		// computed independent of a build, which the caller surfaces.
		return fmt.Errorf("SubConfig: %w", err)
	}
	sub, ok := manifest.Containers[sc.s.Container]
	if !ok {
		return fmt.Errorf("SubConfig: container %q not found in sub-manifest", sc.s.Container)
	}
	for _, step := range sub.Setup {
		behavior, err := For(step)
		if err != nil {
			return err
		}
		if err := behavior.Hash(d); err != nil {
			return err
		}
	}
	return nil
}

func (sc subConfigStep) Build(g *Guard, build bool) error {
	if sc.s.Source == "container" {
		if g.Resolver == nil {
			return fmt.Errorf("SubConfig: no resolver configured")
		}
		if _, err := g.Resolver.Resolve(sc.s.Container); err != nil {
			return err
		}
	}
	if !build {
		return nil
	}
	manifest, _, err := sc.load(g)
	if err != nil {
		return fmt.Errorf("SubConfig: %w", err)
	}
	sub, ok := manifest.Containers[sc.s.Container]
	if !ok {
		return fmt.Errorf("SubConfig: container %q not found in sub-manifest", sc.s.Container)
	}
	for _, step := range sub.Setup {
		behavior, err := For(step)
		if err != nil {
			return err
		}
		if err := behavior.Build(g, build); err != nil {
			return err
		}
	}
	return nil
}

func (sc subConfigStep) DependentOn() string {
	if sc.s.Source == "container" {
		return sc.s.Container
	}
	return ""
}

// load resolves sc's manifest directory and parses it. g may be nil
// when called from Hash, where no build root exists yet; directory
// sources still resolve relative to the project's working directory
// passed at manifest-load time via the default "." (the builder always
// runs with its cwd at the project root, the same assumption
// config.Discover makes).
func (sc subConfigStep) load(g *Guard) (*config.Manifest, string, error) {
	var dir string
	switch sc.s.Source {
	case "directory":
		base := "."
		if g != nil {
			base = g.WorkDir
		}
		dir = filepath.Join(base, filepath.Dir(sc.s.Path))
	case "git":
		base := ""
		if g != nil && g.Layout != nil {
			base = g.Layout.GitCacheDir(sc.s.URL)
		} else {
			base = naming.New("").GitCacheDir(sc.s.URL)
		}
		dir = filepath.Join(base, filepath.Dir(sc.s.Path))
	case "container":
		// The sub-manifest lives inside another container's already
		// built filesystem, not the one currently being assembled at
		// g.RootDir, so its location has to go through the Resolver
		// and Layout rather than g.RootDir. Hash-only callers (g ==
		// nil) get an error here, matching the "this container's hash
		// can't be computed independent of a build" note above.
		if g == nil || g.Resolver == nil || g.Layout == nil {
			return nil, "", fmt.Errorf("source \"container\" requires a build context")
		}
		v, err := g.Resolver.Resolve(sc.s.Container)
		if err != nil {
			return nil, "", fmt.Errorf("resolving %q: %w", sc.s.Container, err)
		}
		dir = filepath.Dir(filepath.Join(g.Layout.StoredRootFS(sc.s.Container, v), sc.s.Path))
	default:
		return nil, "", fmt.Errorf("unknown SubConfig source %q", sc.s.Source)
	}

	path := filepath.Join(dir, filepath.Base(sc.s.Path))
	manifest, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return manifest, dir, nil
}

// Package builder implements the container build driver: §4.6 of the
// design this module is modeled on, generalizing original_source's
// single-container builder/main.rs into a recursive resolver that
// hashes, short-circuits, sandboxes, executes, finishes and promotes
// whichever containers in a manifest are out of date.
package builder

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	vctx "github.com/dpvpro/vagga/pkg/vagga/context"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
	"github.com/dpvpro/vagga/pkg/vagga/distro"
	"github.com/dpvpro/vagga/pkg/vagga/naming"
	"github.com/dpvpro/vagga/pkg/vagga/sandbox"
	"github.com/dpvpro/vagga/pkg/vagga/steps"
	"github.com/dpvpro/vagga/pkg/vagga/storage"
	"github.com/dpvpro/vagga/pkg/vaggaerr"
)

// ErrOutOfDate is returned by Resolve when NoBuild is set and name has
// no promoted root matching its current version. The CLI layer maps
// this to exit code 29.
var ErrOutOfDate = errors.New("builder: container is out of date")

// Builder drives the version-resolve-and-build pipeline for every
// container in a single manifest, implementing steps.Resolver so
// StepContainer/StepSubConfig can recursively pull in this same
// machinery for containers they depend on.
type Builder struct {
	Manifest *config.Manifest
	Layout   *naming.Layout
	Settings *config.Settings
	Capsule  *vctx.CapsuleState

	// ManifestPath is the on-disk manifest Layout/Settings/Manifest were
	// loaded from. Sandboxed builds need it: the "builder.build" sandbox
	// payload runs in a re-exec'd child that can't inherit the in-memory
	// *config.Manifest (an interface-typed Setup list isn't something
	// JSON round-trips without real work) across Enter's process
	// boundary, so it reloads the manifest from this path instead.
	ManifestPath string

	// WorkDir is the project directory Copy/relative-Download/directory-
	// sourced SubConfig steps resolve against; bind-mounted to /work
	// inside the sandbox when Sandboxed is true.
	WorkDir string

	// Sandboxed selects whether Resolve actually enters a namespace
	// sandbox before building (the production path; requires /vagga to
	// already exist with permissions for the invoking user, matching
	// the real tool's deployment prerequisite) or builds directly
	// against a plain temp directory (used by tests exercising steps
	// that need no distro/chroot access).
	Sandboxed bool

	// NoBuild implements the --no-build build-mode option: Resolve
	// computes versions as usual but refuses to build anything not
	// already promoted.
	NoBuild bool

	mu       sync.Mutex
	versions map[string]digest.Version
}

// New returns a Builder ready to resolve containers in manifest, with
// the default production settings (sandboxed, build-as-needed).
func New(manifest *config.Manifest, layout *naming.Layout, settings *config.Settings) *Builder {
	return &Builder{
		Manifest:  manifest,
		Layout:    layout,
		Settings:  settings,
		Capsule:   vctx.NewCapsuleState(),
		WorkDir:   ".",
		Sandboxed: true,
		versions:  make(map[string]digest.Version),
	}
}

func (b *Builder) cached(name string) (digest.Version, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.versions[name]
	return v, ok
}

func (b *Builder) remember(name string, v digest.Version) {
	b.mu.Lock()
	b.versions[name] = v
	b.mu.Unlock()
}

// Resolve computes name's version, recursively resolving (and, unless
// already promoted, building) any container its steps depend on, then
// promotes or builds name itself as needed. It satisfies steps.Resolver.
func (b *Builder) Resolve(name string) (digest.Version, error) {
	if v, ok := b.cached(name); ok {
		return v, nil
	}
	cont, ok := b.Manifest.Containers[name]
	if !ok {
		return digest.Version{}, fmt.Errorf("builder: container %q not found", name)
	}

	if err := os.MkdirAll(b.Layout.RootsDir(), 0o755); err != nil {
		return digest.Version{}, fmt.Errorf("builder: %w", err)
	}
	lock, err := lockContainer(filepath.Join(b.Layout.RootsDir(), name+".lock"))
	if err != nil {
		return digest.Version{}, err
	}
	defer lock.Unlock()

	// A concurrent resolve of the same name (the only way this can
	// happen within one process is a dependency cycle config.Validate
	// already rejects, but Resolve stays defensive) may have finished
	// while this call waited on the lock.
	if v, ok := b.cached(name); ok {
		return v, nil
	}

	version, err := b.hash(name, cont)
	if err != nil {
		return digest.Version{}, err
	}

	mgr := storage.New(b.Layout)
	if mgr.Exists(name, version) {
		if err := mgr.Relink(name, version); err != nil {
			return digest.Version{}, err
		}
		b.remember(name, version)
		return version, nil
	}

	if b.NoBuild {
		return digest.Version{}, fmt.Errorf("%w: %s", ErrOutOfDate, name)
	}

	if err := b.build(name, cont, version, mgr); err != nil {
		return digest.Version{}, err
	}
	b.remember(name, version)
	return version, nil
}

// hash computes name's version as a pure function of its steps'
// declared inputs, substituting each step-named dependency's own full
// version into the digest before absorbing the step itself (spec's
// dependency-substitution property: B's hash depends on A's full hash,
// not merely A's short form or name).
func (b *Builder) hash(name string, cont *config.Container) (digest.Version, error) {
	d := digest.New()
	for _, raw := range cont.Setup {
		behavior, err := steps.For(raw)
		if err != nil {
			return digest.Version{}, err
		}
		if dep := behavior.DependentOn(); dep != "" {
			depVersion, err := b.Resolve(dep)
			if err != nil {
				return digest.Version{}, fmt.Errorf("builder: resolving dependency %q of %q: %w", dep, name, err)
			}
			d.FieldString("dependent-version:"+dep, depVersion.Full)
		}
		if err := behavior.Hash(d); err != nil {
			return digest.Version{}, vaggaerr.WrapVersion(fmt.Errorf("hashing %s step of %q: %w", raw.StepName(), name, err))
		}
	}
	return d.Finalize(), nil
}

// build prepares a fresh scratch root, runs every step with build=true
// (directly in-process when unsandboxed, or, in production, inside a
// freshly namespaced sandbox child via the "builder.build" payload
// below), then promotes the result.
func (b *Builder) build(name string, cont *config.Container, version digest.Version, mgr *storage.Manager) error {
	tmpRoot := b.Layout.TempRootDir(name, os.Getpid())
	scratchRoot := filepath.Join(tmpRoot, "root")
	if err := os.MkdirAll(scratchRoot, 0o755); err != nil {
		return fmt.Errorf("builder: creating scratch root: %w", err)
	}

	if b.Sandboxed {
		for _, dir := range []string{"/vagga/root", "/vagga/base", "/work"} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("builder: preparing %s (requires /vagga to pre-exist with writable permissions): %w", dir, err)
			}
		}
		cfg := &sandbox.Config{
			RootDir: "/vagga/root",
			Binds: []sandbox.Bind{
				{Source: scratchRoot, Target: "/vagga/root"},
				{Source: b.Layout.BaseDir, Target: "/vagga/base"},
				{Source: b.WorkDir, Target: "/work"},
			},
		}
		data, err := json.Marshal(buildPayload{
			ManifestPath: b.ManifestPath,
			Container:    name,
			BaseDir:      b.Layout.BaseDir,
			Settings:     b.Settings,
		})
		if err != nil {
			return fmt.Errorf("builder: encoding payload: %w", err)
		}
		if err := sandbox.Enter(cfg, buildPayloadName, data); err != nil {
			return vaggaerr.NamespaceError("clone", err)
		}
	} else {
		if err := runSteps(name, cont, b.Settings, b.Capsule, b.Layout, scratchRoot, b.WorkDir, b); err != nil {
			return err
		}
	}

	if _, err := mgr.Promote(name, version, tmpRoot); err != nil {
		return err
	}

	if cont.AutoClean {
		if _, err := mgr.GC(name); err != nil {
			return fmt.Errorf("builder: gc for %q: %w", name, err)
		}
	}
	return nil
}

// runSteps executes every one of cont's steps against rootDir/workDir in
// order, then finalizes the distribution driver's package bookkeeping if
// a base-distribution step set one. Shared between build's unsandboxed
// (test) path, which calls it directly, and the "builder.build" sandbox
// payload, which calls it from inside the freshly entered sandbox with
// its own reconstructed resolver.
func runSteps(name string, cont *config.Container, settings *config.Settings, capsuleState *vctx.CapsuleState, layout *naming.Layout, rootDir, workDir string, resolver steps.Resolver) error {
	ctx := vctx.New(name, cont, settings, capsuleState)
	drv, err := distro.For(ctx)
	if err != nil {
		return fmt.Errorf("builder: %w", err)
	}
	g := &steps.Guard{
		Ctx:      ctx,
		Distro:   drv,
		Layout:   layout,
		RootDir:  rootDir,
		WorkDir:  workDir,
		Resolver: resolver,
	}

	for _, raw := range cont.Setup {
		behavior, err := steps.For(raw)
		if err != nil {
			return err
		}
		if err := behavior.Build(g, true); err != nil {
			return vaggaerr.WrapStep(fmt.Errorf("building %s step of %q: %w", raw.StepName(), name, err))
		}
		// A base-distribution step (Ubuntu/Alpine) may have just set
		// ctx.Distribution for the first time; re-derive the driver so
		// every later step's g.Distro call reaches the real backend
		// instead of the Unknown placeholder it started with.
		if refreshed, err := distro.For(g.Ctx); err == nil {
			g.Distro = refreshed
		}
	}

	if _, unset := g.Ctx.Distribution.(vctx.DistroUnknown); !unset {
		if err := g.Distro.Finish(g.Ctx, g.RootDir); err != nil {
			return fmt.Errorf("builder: finishing %q: %w", name, err)
		}
	}
	return nil
}

// buildPayloadName is the sandbox payload registered for production
// (Sandboxed) builds.
const buildPayloadName = "builder.build"

// buildPayload is what build hands its sandbox payload across the
// Enter re-exec boundary.
type buildPayload struct {
	ManifestPath string
	Container    string
	BaseDir      string
	Settings     *config.Settings
}

func init() {
	sandbox.Register(buildPayloadName, runBuildPayload)
}

// runBuildPayload is buildPayloadName's behavior: it runs once inside a
// child Enter has already placed into new namespaces and bind-mounted
// at /vagga/root, /vagga/base and /work, and reloads the manifest from
// disk rather than trying to carry the in-memory *config.Manifest (an
// interface-typed Setup list) across the process boundary. Dependency
// containers are resolved through a freshly constructed Builder of its
// own rather than the original one: safe, because by the time a
// container reaches build(), hash() has already fully resolved (and, if
// needed, built and promoted) every container it depends on, so Resolve
// here only ever re-verifies an already-promoted root instead of racing
// the original process for name's own lock (which it still holds open
// while waiting on this child).
func runBuildPayload(cfg *sandbox.Config, data []byte) error {
	var p buildPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("builder: decoding payload: %w", err)
	}

	manifest, err := config.Load(p.ManifestPath)
	if err != nil {
		return fmt.Errorf("builder: reloading manifest: %w", err)
	}
	cont, ok := manifest.Containers[p.Container]
	if !ok {
		return fmt.Errorf("builder: container %q not found", p.Container)
	}

	layout := naming.New(p.BaseDir)
	deps := New(manifest, layout, p.Settings)

	return runSteps(p.Container, cont, p.Settings, vctx.NewCapsuleState(), layout, cfg.RootDir, "/work", deps)
}

// Package context implements BuildContext, the mutable per-container
// accumulator threaded through a single build: environment, installed
// packages, build-time-only packages, cache-dir bindings, the
// ensure/remove path lists the runner replays, and the active
// distribution driver's state.
package context

import (
	"github.com/dpvpro/vagga/pkg/vagga/config"
)

// Distribution is the tagged union of base-image backends a container
// can be building from. The concrete drivers live in pkg/vagga/distro;
// this package only needs to carry the selector and its payload so the
// hash can include codename/version without importing distro (which
// itself will import context).
type Distribution interface {
	DistroName() string
}

// DistroUnknown means no base-image step has run yet.
type DistroUnknown struct{}

func (DistroUnknown) DistroName() string { return "Unknown" }

// DistroDebian records the Debian/Ubuntu suite name in use.
type DistroDebian struct {
	Codename string
}

func (DistroDebian) DistroName() string { return "Debian" }

// DistroAlpine records the Alpine version and whether its base packages
// have been set up yet.
type DistroAlpine struct {
	Version   string
	BaseSetup bool
}

func (DistroAlpine) DistroName() string { return "Alpine" }

// CapsuleState is the process-scoped record of what the builder's own
// bootstrap root has installed so far. BaseReady is monotonic: once
// set, it is never cleared within a process (spec.md §3 invariant).
type CapsuleState struct {
	BaseReady         bool
	InstalledPackages *OrderedSet[string]
}

// NewCapsuleState returns a fresh, not-yet-bootstrapped CapsuleState.
func NewCapsuleState() *CapsuleState {
	return &CapsuleState{InstalledPackages: NewOrderedSet[string]()}
}

// BuildContext accumulates everything build steps mutate while a
// single container is being hashed or built. It is owned exclusively
// by the driver for the duration of one build and discarded at the
// end (spec.md §3).
type BuildContext struct {
	ContainerName string
	Container     *config.Container
	Settings      *config.Settings

	Environ *OrderedMap[string, string]

	packages  *OrderedSet[string]
	buildDeps *OrderedSet[string]

	CacheDirs  *OrderedMap[string, string] // container path -> cache key
	EnsureDirs *OrderedSet[string]
	RemovePath *OrderedSet[string]

	Distribution Distribution
	Capsule      *CapsuleState
}

// New creates a BuildContext for a single build of name, sharing the
// given process-scoped CapsuleState.
func New(name string, c *config.Container, settings *config.Settings, capsule *CapsuleState) *BuildContext {
	return &BuildContext{
		ContainerName: name,
		Container:     c,
		Settings:      settings,
		Environ:       NewOrderedMap[string, string](),
		packages:      NewOrderedSet[string](),
		buildDeps:     NewOrderedSet[string](),
		CacheDirs:     NewOrderedMap[string, string](),
		EnsureDirs:    NewOrderedSet[string](),
		RemovePath:    NewOrderedSet[string](),
		Distribution:  DistroUnknown{},
		Capsule:       capsule,
	}
}

// InstallPackage records pkg as a permanent runtime dependency. It is
// removed from build-deps if present there, preserving the invariant
// that packages and build-deps never overlap.
func (c *BuildContext) InstallPackage(pkg string) {
	c.buildDeps.Remove(pkg)
	c.packages.Add(pkg)
}

// AddBuildDep records pkg as a build-time-only dependency, unless it
// is already a permanent package, in which case it is left alone.
func (c *BuildContext) AddBuildDep(pkg string) {
	if c.packages.Contains(pkg) {
		return
	}
	c.buildDeps.Add(pkg)
}

// IsInstalled reports whether pkg is a permanent package (not a
// build-dep).
func (c *BuildContext) IsInstalled(pkg string) bool {
	return c.packages.Contains(pkg)
}

// IsBuildDep reports whether pkg is currently tracked as a build-time-
// only dependency.
func (c *BuildContext) IsBuildDep(pkg string) bool {
	return c.buildDeps.Contains(pkg)
}

// RemoveBuildDep drops a single package from the build-deps set,
// called when a feature resolution promotes it to a permanent package
// instead.
func (c *BuildContext) RemoveBuildDep(pkg string) {
	c.buildDeps.Remove(pkg)
}

// Packages returns the permanent package set in installation order.
func (c *BuildContext) Packages() []string {
	return c.packages.Items()
}

// BuildDeps returns the build-time-only package set in installation
// order.
func (c *BuildContext) BuildDeps() []string {
	return c.buildDeps.Items()
}

// RemoveBuildDeps clears the build-deps set, called by distro.Finish
// once it has uninstalled them from the built root.
func (c *BuildContext) RemoveBuildDeps() {
	for _, pkg := range c.buildDeps.Items() {
		c.buildDeps.Remove(pkg)
	}
}

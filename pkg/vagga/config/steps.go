package config

// Step is the closed set of build-step variants a Container's setup
// list may contain. Concrete types below carry only declarative data;
// the pkg/vagga/steps package implements hash/build/is_dependent_on
// over them, keeping this package free of execution concerns so the
// manifest can be loaded and validated without a sandbox.
type Step interface {
	StepName() string
}

// StepInstall installs packages as permanent runtime dependencies.
type StepInstall struct {
	Packages []string
}

func (s *StepInstall) StepName() string { return "Install" }

// StepBuildDeps installs packages that distro.Finish removes again,
// unless the same package was separately Installed.
type StepBuildDeps struct {
	Packages []string
}

func (s *StepBuildDeps) StepName() string { return "BuildDeps" }

// StepEnsureDir creates an absolute path inside the container with
// mode 0o755 and replays on every run.
type StepEnsureDir struct {
	Path string
}

func (s *StepEnsureDir) StepName() string { return "EnsureDir" }

// StepEmptyDir clears (but does not remove) a directory's contents,
// and is replayed by the runner on every start.
type StepEmptyDir struct {
	Path string
}

func (s *StepEmptyDir) StepName() string { return "EmptyDir" }

// StepRemove deletes a path (recursively for directories) and keeps
// doing so on every run, so a persistent-volume mount point never
// accumulates build-time leftovers.
type StepRemove struct {
	Path string
}

func (s *StepRemove) StepName() string { return "Remove" }

// StepCacheDirs binds <cache-root>/<key> onto each declared path.
type StepCacheDirs struct {
	Dirs map[string]string // path -> cache key
}

func (s *StepCacheDirs) StepName() string { return "CacheDirs" }

// StepDownload fetches a URL into path, verifying SHA256 when given.
type StepDownload struct {
	URL    string
	Path   string
	Mode   string
	SHA256 string
}

func (s *StepDownload) StepName() string { return "Download" }

// StepUnzip fetches and extracts a zip, optionally stripping a subdir
// prefix from every entry name.
type StepUnzip struct {
	URL    string
	SHA256 string
	Path   string
	Subdir string
}

func (s *StepUnzip) StepName() string { return "Unzip" }

// StepTar fetches and extracts a (possibly compressed) tarball.
type StepTar struct {
	URL    string
	SHA256 string
	Path   string
	Subdir string
}

func (s *StepTar) StepName() string { return "Tar" }

// StepText writes a fixed set of path->contents mappings at mode 0o644.
type StepText struct {
	Files map[string]string
}

func (s *StepText) StepName() string { return "Text" }

// StepContainer resolves another container's version and absorbs it
// into this container's hash without copying its filesystem.
type StepContainer struct {
	Name string
}

func (s *StepContainer) StepName() string { return "Container" }

// StepSubConfig loads a sub-manifest from a directory, a git URL, or
// another container's filesystem, and hashes its referenced steps
// transitively.
type StepSubConfig struct {
	Source    string // "directory" | "git" | "container"
	Container string // when Source == "container"; also the sub-container to build
	URL       string // when Source == "git"
	Path      string // path to the sub-manifest, relative to Source's root
}

func (s *StepSubConfig) StepName() string { return "SubConfig" }

// StepRepo adds a distribution repository before further Install steps.
type StepRepo struct {
	Name string
}

func (s *StepRepo) StepName() string { return "Repo" }

// StepCopy snapshots a working-copy path into the container, honoring
// an optional path-filter rule list.
type StepCopy struct {
	Source string
	Path   string
	Owner  string
	Group  string
	Ignore []string
}

func (s *StepCopy) StepName() string { return "Copy" }

// StepGit checks out a working tree from a remote or local repository.
// Revision and Branch are mutually exclusive (see DESIGN.md Open
// Question: the legacy "last conditional wins" behaviour is rejected
// at manifest decode time instead).
type StepGit struct {
	URL      string
	Revision string
	Branch   string
	Path     string
}

func (s *StepGit) StepName() string { return "Git" }

// StepGitInstall is StepGit followed by running a package-manager
// install rooted at the checked-out tree.
type StepGitInstall struct {
	StepGit
	Subdir string
}

func (s *StepGitInstall) StepName() string { return "GitInstall" }

// StepPip installs packages (and/or requirements files) via pip,
// pulling in the Python3Dev/PipPy3 distro features as needed.
type StepPip struct {
	Python3      bool
	Packages     []string
	Requirements []string
	Dependencies bool
}

func (s *StepPip) StepName() string { return "Pip" }

// StepNpm installs packages via npm, pulling in NodeJs/Npm features.
type StepNpm struct {
	Packages []string
}

func (s *StepNpm) StepName() string { return "Npm" }

// StepSh runs an arbitrary shell script inside the sandboxed root
// during the build (GenericCommand in the original implementation).
type StepSh struct {
	Script string
}

func (s *StepSh) StepName() string { return "Sh" }

// StepUbuntu picks an Ubuntu release as the container's base
// distribution, installing debootstrap's fetched core image on first
// use. Must be the first step that touches packaging in a container.
type StepUbuntu struct {
	Release string
}

func (s *StepUbuntu) StepName() string { return "Ubuntu" }

// StepAlpine picks an Alpine release as the container's base
// distribution, installing the alpine-base package on first use.
type StepAlpine struct {
	Version string
}

func (s *StepAlpine) StepName() string { return "Alpine" }

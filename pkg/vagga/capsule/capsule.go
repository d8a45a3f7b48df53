// Package capsule manages the builder's own minimal bootstrap root at
// /vagga/bin: the handful of helper binaries (wget, gzip, xz, git) the
// builder needs to run itself, installed on demand via Alpine's apk
// into a statically known distribution, independent of whatever
// distribution the container under construction uses.
package capsule

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	vctx "github.com/dpvpro/vagga/pkg/vagga/context"
)

// Feature is a semantic capability the capsule can provide; requesting
// one ensures the packages backing it are installed.
type Feature int

const (
	Https Feature = iota
	Gzip
	Bzip2
	Xz
	Git
	AlpineInstaller
)

func (f Feature) String() string {
	switch f {
	case Https:
		return "Https"
	case Gzip:
		return "Gzip"
	case Bzip2:
		return "Bzip2"
	case Xz:
		return "Xz"
	case Git:
		return "Git"
	case AlpineInstaller:
		return "AlpineInstaller"
	default:
		return "Unknown"
	}
}

func (f Feature) packages() []string {
	switch f {
	case Https:
		return []string{"wget", "ca-certificates"}
	case Gzip:
		return []string{"gzip"}
	case Bzip2:
		return []string{"bzip2"}
	case Xz:
		return []string{"xz"}
	case Git:
		return []string{"git", "ca-certificates"}
	case AlpineInstaller:
		return nil // satisfied by capsule_base alone
	default:
		return nil
	}
}

// DefaultMirror is used when settings don't configure one explicitly.
// The real tool probes a short list of mirrors for reachability; here
// we take the first of that list, consistent with "a default mirror
// chosen by availability" in spec.md §4.5 when no probe is desired
// (e.g. offline test environments).
const DefaultMirror = "http://dl-cdn.alpinelinux.org/alpine/"

// AlpineVersion is the statically known minimal distribution version
// the capsule bootstraps against.
const AlpineVersion = "v3.19"

// VaggaBinDir is the capsule's own root, bind-mounted into every build
// sandbox so its binaries are on PATH during steps.
const VaggaBinDir = "/vagga/bin"

const apkCacheDir = "/vagga/cache/alpine-cache"
const apkConfDir = "/etc/apk/cache"
const apkReposFile = "/etc/apk/repositories"
const alpineKeysPkg = "/vagga/bin/alpine-keys.apk"

// Runner abstracts invoking the capsule's own apk binary, so tests can
// substitute a fake without touching the filesystem.
type Runner interface {
	Run(args []string, packages []string) error
}

// execRunner shells out to /vagga/bin/apk, mirroring the teacher's
// convention of building one *exec.Cmd per external invocation
// (pkg/steps in the teacher calls out to dpkg-buildpackage, sbuild,
// etc. the same way).
type execRunner struct{}

func (execRunner) Run(args []string, packages []string) error {
	argv := append(append([]string{}, args...), packages...)
	cmd := exec.Command(filepath.Join(VaggaBinDir, "apk"), argv...)
	cmd.Env = append(os.Environ(), "PATH="+VaggaBinDir)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("apk %v: %w", argv, err)
	}
	return nil
}

// DefaultRunner is the execRunner used outside of tests.
var DefaultRunner Runner = execRunner{}

// Ensure installs whatever features are missing from capsule, using
// runner to invoke apk. It is a no-op if features is empty or every
// feature's packages are already installed.
func Ensure(capsule *vctx.CapsuleState, settings *config.Settings, features []Feature, runner Runner) error {
	if len(features) == 0 {
		return nil
	}
	if runner == nil {
		runner = DefaultRunner
	}

	if !capsule.BaseReady {
		if err := os.MkdirAll(apkCacheDir, 0o755); err != nil {
			return fmt.Errorf("capsule: creating cache dir: %w", err)
		}
		if err := os.MkdirAll(apkConfDir, 0o755); err != nil {
			return fmt.Errorf("capsule: creating apk conf dir: %w", err)
		}
		// A real build binds apkCacheDir onto apkConfDir; that mount
		// is performed by the sandbox setup once a mount namespace
		// exists, not here, so this package stays testable without
		// root.
		if err := runner.Run([]string{"--allow-untrusted", "--initdb", "add", "--force", alpineKeysPkg}, nil); err != nil {
			return err
		}
		mirror := DefaultMirror
		if settings != nil {
			if m, ok := settings.SiteSettings["alpine-mirror"]; ok && m != "" {
				mirror = m
			}
		}
		reposLine := fmt.Sprintf("%s%s/main\n", mirror, AlpineVersion)
		if err := os.WriteFile(apkReposFile, []byte(reposLine), 0o644); err != nil {
			return fmt.Errorf("capsule: writing repositories file: %w", err)
		}
		capsule.BaseReady = true
	}

	var queue []string
	seen := map[string]bool{}
	for _, f := range features {
		for _, pkg := range f.packages() {
			if seen[pkg] || capsule.InstalledPackages.Contains(pkg) {
				continue
			}
			seen[pkg] = true
			queue = append(queue, pkg)
		}
	}
	if len(queue) == 0 {
		return nil
	}

	verb := "add"
	if capsule.InstalledPackages.Len() == 0 {
		// first real install: make apk refresh its index too
		if err := runner.Run([]string{"--update-cache", verb}, queue); err != nil {
			return err
		}
	} else {
		if err := runner.Run([]string{verb}, queue); err != nil {
			return err
		}
	}
	for _, pkg := range queue {
		capsule.InstalledPackages.Add(pkg)
	}
	return nil
}

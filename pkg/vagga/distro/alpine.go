package distro

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	vctx "github.com/dpvpro/vagga/pkg/vagga/context"
)

// Alpine is the apk-backed driver, grounded on
// original_source/src/builder/commands/alpine.rs.
type Alpine struct {
	Version string
	Runner  CommandRunner
}

func (a *Alpine) Name() string { return "alpine" }

func (a *Alpine) runner() CommandRunner {
	if a.Runner != nil {
		return a.Runner
	}
	return execRunner{}
}

// alpineRoot mirrors the original's hardcoded "/vagga/root" target
// root for every apk invocation during a build.
const alpineRoot = "/vagga/root"

const apkBinary = "/vagga/bin/apk"

func (a *Alpine) apk(args ...string) error {
	return a.runner().Run(append([]string{apkBinary}, args...))
}

// SetupBase bootstraps /vagga/root/etc/apk and installs the
// alpine-base package, once per container build. Ported from
// alpine.rs's setup_base: same apk repositories file copy from the
// capsule's own config, same --keys-dir reuse.
func (a *Alpine) SetupBase(ctx *vctx.BuildContext) error {
	if as, ok := ctx.Distribution.(vctx.DistroAlpine); ok && as.BaseSetup {
		return nil
	}
	if err := os.MkdirAll(filepath.Join(alpineRoot, "etc/apk"), 0o755); err != nil {
		return fmt.Errorf("alpine: creating apk dir: %w", err)
	}
	capsuleRepos, err := os.ReadFile("/etc/apk/repositories")
	if err != nil {
		return fmt.Errorf("alpine: reading capsule apk repositories: %w", err)
	}
	if err := os.WriteFile(filepath.Join(alpineRoot, "etc/apk/repositories"), capsuleRepos, 0o644); err != nil {
		return fmt.Errorf("alpine: writing root apk repositories: %w", err)
	}
	if err := a.apk(
		"--update-cache",
		"--keys-dir=/etc/apk/keys",
		"--root="+alpineRoot,
		"--initdb",
		"add",
		"alpine-base",
	); err != nil {
		return err
	}
	if as, ok := ctx.Distribution.(vctx.DistroAlpine); ok {
		as.BaseSetup = true
		ctx.Distribution = as
	}
	return nil
}

func (a *Alpine) Install(ctx *vctx.BuildContext, pkgs []string) error {
	if len(pkgs) == 0 {
		return nil
	}
	if err := a.SetupBase(ctx); err != nil {
		return err
	}
	return a.apk(append([]string{"--root", alpineRoot, "add"}, pkgs...)...)
}

func (a *Alpine) Remove(ctx *vctx.BuildContext, pkgs []string) error {
	if len(pkgs) == 0 {
		return nil
	}
	return a.apk(append([]string{"--root", alpineRoot, "del"}, pkgs...)...)
}

// AddRepo appends a repository line to /vagga/root/etc/apk/repositories.
// apk has no built-in pin/priority concept the way apt does, so unlike
// Debian.AddRepo there's no version comparison to perform here.
func (a *Alpine) AddRepo(ctx *vctx.BuildContext, repo string) error {
	f, err := os.OpenFile(filepath.Join(alpineRoot, "etc/apk/repositories"), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("alpine: opening apk repositories: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, repo); err != nil {
		return fmt.Errorf("alpine: appending apk repository: %w", err)
	}
	return nil
}

// Finish removes build-deps and snapshots the installed package list
// to alpine-packages.txt, ported from alpine.rs's finish (which shells
// `apk -vv info` and writes its stdout verbatim).
func (a *Alpine) Finish(ctx *vctx.BuildContext, rootDir string) error {
	if err := a.Remove(ctx, ctx.BuildDeps()); err != nil {
		return err
	}
	ctx.RemoveBuildDeps()

	cmd := exec.Command("/vagga/bin/apk", "--root", alpineRoot, "-vv", "info")
	cmd.Env = nil
	cmd.Stdin = nil
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("alpine: dumping package list: %w", err)
	}
	dst := filepath.Join(rootDir, ".vagga", "alpine-packages.txt")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("alpine: creating .vagga dir: %w", err)
	}
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		return fmt.Errorf("alpine: writing package list: %w", err)
	}
	return nil
}

// alpineBuildDeps and alpineSystemDeps port alpine.rs's build_deps/
// system_deps match tables verbatim: nil means "feature unsupported by
// this distro", an empty (non-nil) slice means "supported, nothing
// extra needed".
func alpineBuildDeps(f Feature) []string {
	switch f {
	case BuildEssential:
		return []string{"build-base"}
	case Python2:
		return []string{}
	case Python2Dev:
		return []string{"python-dev"}
	case Python3, Python3Dev, PipPy2, PipPy3:
		return nil
	case NodeJs:
		return []string{}
	case NodeJsDev:
		return []string{"nodejs-dev"}
	case Npm:
		return []string{}
	case Git:
		return []string{"git"}
	case Mercurial:
		return []string{"hg"}
	default:
		return nil
	}
}

func alpineSystemDeps(f Feature) []string {
	switch f {
	case BuildEssential:
		return []string{}
	case Python2:
		return []string{"python"}
	case Python2Dev:
		return []string{}
	case Python3, Python3Dev, PipPy2, PipPy3:
		return nil
	case NodeJs:
		return []string{"nodejs"}
	case NodeJsDev:
		return []string{}
	case Npm:
		return []string{"nodejs"}
	case Git:
		return []string{}
	case Mercurial:
		return []string{}
	default:
		return nil
	}
}

func (a *Alpine) EnsurePackages(ctx *vctx.BuildContext, features []Feature) ([]Feature, error) {
	var toInstall []string
	var unsupported []Feature
	for _, feat := range features {
		bdeps := alpineBuildDeps(feat)
		if bdeps == nil {
			unsupported = append(unsupported, feat)
			continue
		}
		for _, pkg := range bdeps {
			if ctx.IsInstalled(pkg) {
				continue
			}
			if !ctx.IsBuildDep(pkg) {
				ctx.AddBuildDep(pkg)
				toInstall = append(toInstall, pkg)
			}
		}

		sdeps := alpineSystemDeps(feat)
		if sdeps == nil {
			unsupported = append(unsupported, feat)
			continue
		}
		for _, pkg := range sdeps {
			ctx.RemoveBuildDep(pkg)
			if !ctx.IsInstalled(pkg) {
				ctx.InstallPackage(pkg)
				toInstall = append(toInstall, pkg)
			}
		}
	}
	if len(toInstall) > 0 {
		if err := a.SetupBase(ctx); err != nil {
			return nil, err
		}
		if err := a.apk(append([]string{"--root", alpineRoot, "add"}, toInstall...)...); err != nil {
			return nil, err
		}
	}
	return unsupported, nil
}

package distro

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	vctx "github.com/dpvpro/vagga/pkg/vagga/context"
	"pault.ag/go/debian/control"
	"pault.ag/go/debian/version"
)

// Debian is the apt-backed driver, grounded on
// original_source/src/builder/commands/debian.rs's fetch_ubuntu_core/
// init_debian_build/apt_install. Where the original shells a bare
// `apt-get install -y`, this driver additionally consults
// pault.ag/go/debian/version to decide whether an AddRepo pin should
// actually change what's installed, and pault.ag/go/debian/control to
// read back the package snapshot Finish writes, both per this
// project's domain-stack wiring of the teacher's sole non-transport
// dependency (the teacher only reaches `changelog.ParseFileOne`, but
// the same module's version/control packages follow the same
// decode-into-struct idiom).
type Debian struct {
	Codename string
	Runner   CommandRunner
}

func (d *Debian) Name() string { return "debian" }

func (d *Debian) runner() CommandRunner {
	if d.Runner != nil {
		return d.Runner
	}
	return execRunner{}
}

const debianRoot = "/vagga/root"

func (d *Debian) chrootAptGet(args ...string) error {
	return d.runner().Run(append([]string{"chroot", debianRoot, "apt-get"}, args...))
}

// Install runs `apt-get install -y <pkgs>` inside the built root,
// matching debian.rs's apt_install.
func (d *Debian) Install(ctx *vctx.BuildContext, pkgs []string) error {
	if len(pkgs) == 0 {
		return nil
	}
	return d.chrootAptGet(append([]string{"install", "-y"}, pkgs...)...)
}

func (d *Debian) Remove(ctx *vctx.BuildContext, pkgs []string) error {
	if len(pkgs) == 0 {
		return nil
	}
	return d.chrootAptGet(append([]string{"remove", "-y", "--purge"}, pkgs...)...)
}

// AddRepo first compares the repo's implied pin (a "name=version"
// suffix) against any version recorded in the root's packages.txt
// snapshot using pault.ag/go/debian/version, returning without changing
// anything when the installed version already satisfies it; otherwise
// it appends the line as a one-line apt source and runs apt-get update.
func (d *Debian) AddRepo(ctx *vctx.BuildContext, repo string) error {
	if name, pin, ok := strings.Cut(repo, "="); ok {
		installed, err := loadInstalledVersions(filepath.Join(debianRoot, ".vagga", "packages.txt"))
		if err == nil {
			if have, found := installed[name]; found {
				wantV, werr := version.Parse(pin)
				haveV, herr := version.Parse(have)
				if werr == nil && herr == nil && haveV.Compare(wantV) >= 0 {
					return nil // already satisfies the pin, nothing to do
				}
			}
		}
	}

	sourcesFile := filepath.Join(debianRoot, "etc/apt/sources.list.d/vagga.list")
	if err := os.MkdirAll(filepath.Dir(sourcesFile), 0o755); err != nil {
		return fmt.Errorf("debian: creating sources.list.d: %w", err)
	}
	f, err := os.OpenFile(sourcesFile, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("debian: opening sources list: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, repo); err != nil {
		return fmt.Errorf("debian: appending apt source: %w", err)
	}
	return d.chrootAptGet("update")
}

// Finish removes build-deps and snapshots dpkg's installed package
// list as a control-style stanza file, parallel to alpine.rs's finish
// writing alpine-packages.txt, using pault.ag/go/debian/control to
// encode the `Package`/`Version` pairs the same shape it would decode
// them back in with via loadInstalledVersions.
func (d *Debian) Finish(ctx *vctx.BuildContext, rootDir string) error {
	if err := d.Remove(ctx, ctx.BuildDeps()); err != nil {
		return err
	}
	ctx.RemoveBuildDeps()

	cmd := exec.Command("chroot", debianRoot, "dpkg-query", "-W", "-f=${Package} ${Version}\n")
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("debian: dumping package list: %w", err)
	}

	dst := filepath.Join(rootDir, ".vagga", "packages.txt")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("debian: creating .vagga dir: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("debian: writing package list: %w", err)
	}
	defer f.Close()
	w := control.NewEncoder(f)
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		name, v, ok := strings.Cut(sc.Text(), " ")
		if !ok {
			continue
		}
		if err := w.Encode(&packageStanza{Package: name, Version: v}); err != nil {
			return fmt.Errorf("debian: encoding package stanza: %w", err)
		}
	}
	return nil
}

// packageStanza is the minimal control stanza Finish writes and
// loadInstalledVersions reads back.
type packageStanza struct {
	Package string
	Version string
}

// loadInstalledVersions parses a packages.txt snapshot written by a
// previous Finish, keyed by package name, using
// pault.ag/go/debian/control's stanza decoder.
func loadInstalledVersions(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var stanzas []packageStanza
	if err := control.Unmarshal(&stanzas, f); err != nil {
		return nil, fmt.Errorf("debian: parsing package snapshot: %w", err)
	}
	out := make(map[string]string, len(stanzas))
	for _, s := range stanzas {
		out[s.Package] = s.Version
	}
	return out, nil
}

// debianBuildDeps/debianSystemDeps follow the same shape as alpine.rs's
// build_deps/system_deps tables, adapted to Debian package names; this
// table has no original_source counterpart (the Rust debian.rs file
// doesn't implement ensure_packages at all) so it's modeled directly
// on alpine's table plus standard Debian package-naming conventions.
func debianBuildDeps(f Feature) []string {
	switch f {
	case BuildEssential:
		return []string{"build-essential"}
	case Python2:
		return []string{}
	case Python2Dev:
		return []string{"python-dev"}
	case Python3:
		return []string{}
	case Python3Dev:
		return []string{"python3-dev"}
	case PipPy2:
		return []string{"python-pip"}
	case PipPy3:
		return []string{"python3-pip"}
	case NodeJs:
		return []string{}
	case NodeJsDev:
		return []string{"nodejs-dev"}
	case Npm:
		return []string{}
	case Git:
		return []string{"git"}
	case Mercurial:
		return []string{"mercurial"}
	default:
		return nil
	}
}

func debianSystemDeps(f Feature) []string {
	switch f {
	case BuildEssential:
		return []string{}
	case Python2:
		return []string{"python"}
	case Python2Dev:
		return []string{}
	case Python3:
		return []string{"python3"}
	case Python3Dev:
		return []string{}
	case PipPy2, PipPy3:
		return []string{}
	case NodeJs:
		return []string{"nodejs"}
	case NodeJsDev:
		return []string{}
	case Npm:
		return []string{"npm"}
	case Git:
		return []string{}
	case Mercurial:
		return []string{}
	default:
		return nil
	}
}

func (d *Debian) EnsurePackages(ctx *vctx.BuildContext, features []Feature) ([]Feature, error) {
	var toInstall []string
	var unsupported []Feature
	for _, feat := range features {
		bdeps := debianBuildDeps(feat)
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

		sdeps := debianSystemDeps(feat)
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
		if err := d.Install(ctx, toInstall); err != nil {
			return nil, err
		}
	}
	return unsupported, nil
}

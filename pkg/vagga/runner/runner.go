// Package runner re-enters a stored container root to execute a single
// command, as distinct from pkg/vagga/builder which produces that root
// in the first place: a fresh mount/user/(optionally network) namespace,
// the root bound in read-only or with a transient-hard-link-copy upper
// layer, every declared volume materialized, and environ applied. The
// command runs with the uid/gid the namespace's id mapping gives it; no
// further uid/gid switch happens before execve. Grounded on spec.md §4.7
// and, for the mounts-as-data shape, the teacher's own Mount-list
// construction in its pkg/steps/steps.go.
package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/docker/docker/api/types/mount"
	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/naming"
	"github.com/dpvpro/vagga/pkg/vagga/sandbox"
)

// WriteMode mirrors config.Command's WriteMode field as a typed
// constant instead of a bare string once it reaches the runner.
type WriteMode string

const (
	ReadOnly              WriteMode = ""
	TransientHardLinkCopy WriteMode = "transient-hard-link-copy"
)

// Request is everything Run needs to execute one command inside one
// already-built container.
type Request struct {
	ContainerName string
	RootFS        string // the stored root's filesystem, e.g. layout.StoredRootFS(name, version)
	Volumes       map[string]config.Volume
	Environ       map[string]string // fully resolved: inherited + container + command; no proxy variables are added
	Uids          []config.IDRange
	Gids          []config.IDRange
	WriteMode     WriteMode
	Command       []string
	WorkDir       string // host-side project directory that relative BindRW/BindRO paths resolve against
	Layout        *naming.Layout
	Netns         *NetnsConfig // nil means the host network namespace
	Stdin         *os.File
	Stdout        *os.File
	Stderr        *os.File
}

// runPayloadName is the sandbox payload registered for Run: a plain
// exec of the requested command with no controlling terminal involved.
const runPayloadName = "runner.run"

// execPayload is the data Run/RunInteractive hand to their sandbox
// payload across the Enter re-exec boundary: everything the payload
// needs to know that isn't already carried by the sandbox.Config itself
// (the bind mounts and root are; the command to exec and its
// environment aren't).
type execPayload struct {
	Command []string
	Environ map[string]string
	Netns   *NetnsConfig
}

func init() {
	sandbox.Register(runPayloadName, runPayload)
}

// runPayload is runPayloadName's behavior: it runs once inside a child
// Enter has already placed into new namespaces and bind-mounted
// according to cfg, with req.Stdin/Stdout/Stderr inherited directly
// from the original process since Enter wires the re-exec'd child's
// stdio straight to its own.
func runPayload(cfg *sandbox.Config, data []byte) error {
	var p execPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("runner: decoding payload: %w", err)
	}
	if p.Netns != nil {
		if err := JoinNetns(p.Netns); err != nil {
			return fmt.Errorf("runner: joining network namespace: %w", err)
		}
	}

	cmd := exec.Command(p.Command[0], p.Command[1:]...)
	cmd.Dir = "/"
	cmd.Env = environSlice(p.Environ)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("runner: starting %s: %w", p.Command[0], err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	for {
		select {
		case s := <-sig:
			_ = syscall.Kill(-cmd.Process.Pid, s.(syscall.Signal))
		case err := <-done:
			return err
		}
	}
}

// Run materializes req's root and volumes, then enters the sandbox and
// execs req.Command inside it, returning its exit status via
// *exec.ExitError the same way os/exec always does.
func Run(req *Request) error {
	if len(req.Command) == 0 {
		return fmt.Errorf("runner: empty command")
	}
	cleanup, cfg, err := prepareSandbox(req)
	defer cleanup()
	if err != nil {
		return err
	}
	data, err := json.Marshal(execPayload{Command: req.Command, Environ: req.Environ, Netns: req.Netns})
	if err != nil {
		return fmt.Errorf("runner: encoding payload: %w", err)
	}
	return sandbox.Enter(cfg, runPayloadName, data)
}

// prepareSandbox materializes req's root and volumes into a
// sandbox.Config ready for sandbox.Enter, leaving the caller to pick
// which payload to run inside it (runPayload for Run, the pty dance for
// RunInteractive). The returned cleanup must always run, even on error,
// to remove the scratch directory.
func prepareSandbox(req *Request) (cleanup func(), cfg *sandbox.Config, err error) {
	scratch, err := os.MkdirTemp(filepath.Dir(req.RootFS), ".run.")
	if err != nil {
		return func() {}, nil, fmt.Errorf("runner: scratch dir: %w", err)
	}
	cleanup = func() { os.RemoveAll(scratch) }

	rootSource := req.RootFS
	if req.WriteMode == TransientHardLinkCopy {
		upper := filepath.Join(scratch, "upper")
		if err := hardLinkClone(req.RootFS, upper); err != nil {
			return cleanup, nil, fmt.Errorf("runner: cloning write layer: %w", err)
		}
		rootSource = upper
	}

	binds := []mount.Mount{{
		Type:     mount.TypeBind,
		Source:   rootSource,
		Target:   "/vagga/root",
		ReadOnly: req.WriteMode == ReadOnly,
	}}

	volMounts, err := materializeVolumes(req, scratch)
	if err != nil {
		return cleanup, nil, err
	}
	binds = append(binds, volMounts...)

	cfg = &sandbox.Config{
		Uids:    idMaps(req.Uids),
		Gids:    idMaps(req.Gids),
		RootDir: "/vagga/root",
		Binds:   toSandboxBinds(binds),
		Network: req.Netns != nil,
	}
	return cleanup, cfg, nil
}

func idMaps(ranges []config.IDRange) []sandbox.IDMap {
	if len(ranges) == 0 {
		return nil
	}
	out := make([]sandbox.IDMap, 0, len(ranges))
	containerID := 0
	for _, r := range ranges {
		size := r.End - r.Start + 1
		out = append(out, sandbox.IDMap{ContainerID: containerID, HostID: r.Start, Size: size})
		containerID += size
	}
	return out
}

func toSandboxBinds(mounts []mount.Mount) []sandbox.Bind {
	out := make([]sandbox.Bind, 0, len(mounts))
	for _, m := range mounts {
		out = append(out, sandbox.Bind{Source: m.Source, Target: m.Target, ReadOnly: m.ReadOnly})
	}
	return out
}

func environSlice(environ map[string]string) []string {
	out := make([]string, 0, len(environ))
	for k, v := range environ {
		out = append(out, k+"="+v)
	}
	return out
}

// hardLinkClone recursively clones src into dst using hard links for
// every regular file, the same "upper layer as a cheap clone" discipline
// spec.md §4.7 calls for with transient-hard-link-copy write mode.
func hardLinkClone(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		}
		return os.Link(path, target)
	})
}

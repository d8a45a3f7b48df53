//go:build linux

package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Enter re-execs the running binary (the path os.Executable reports,
// falling back to /proc/self/exe) into a freshly cloned child that owns
// brand-new user, mount and pid (and, if cfg.Network, net) namespaces,
// waits for it to run the registered payload and exit, and returns its
// result.
//
// This goes through clone(2), not unshare(2)/setns(2), because the
// kernel's check_unshare_flags (kernel/fork.c) rejects CLONE_NEWUSER
// with EINVAL once the calling process has more than one thread, and a
// Go binary always has extra OS threads running (sysmon, the GC,
// async-preemption) by the time user code gets control. A freshly
// cloned child is alone in its own address space at the instant
// clone() creates it, which is why Cloneflags here (rather than an
// in-process Unshare) is the only way to actually get CLONE_NEWUSER to
// succeed -- the same trick runc, rootlesskit and dockerd's rootless
// mode all rely on. uid/gid mapping rides along on the same clone():
// UidMappings/GidMappings are written by the Go runtime's child-setup
// code before the new process ever reaches main(), so payload and
// enterNamespace below never touch /proc/<pid>/{uid,gid}_map
// themselves.
func Enter(cfg *Config, payload string, data []byte) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("sandbox: encoding config: %w", err)
	}

	self, err := os.Executable()
	if err != nil {
		self = "/proc/self/exe"
	}

	flags := syscall.CLONE_NEWUSER | syscall.CLONE_NEWNS | syscall.CLONE_NEWPID
	if cfg.Network {
		flags |= syscall.CLONE_NEWNET
	}

	cmd := exec.Command(self)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.Env = append(os.Environ(),
		envPayload+"="+payload,
		envConfig+"="+string(cfgJSON),
		envData+"="+string(data),
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags:                 uintptr(flags),
		UidMappings:                idMappings(cfg.Uids, os.Getuid()),
		GidMappings:                idMappings(cfg.Gids, os.Getgid()),
		GidMappingsEnableSetgroups: false,
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}
	return nil
}

// idMappings turns Config's IDMap ranges into syscall.SysProcIDMap
// entries, defaulting to mapping only the invoking uid/gid to 0 when
// the manifest declared no explicit range.
func idMappings(ranges []IDMap, fallbackHostID int) []syscall.SysProcIDMap {
	if len(ranges) == 0 {
		return []syscall.SysProcIDMap{{ContainerID: 0, HostID: fallbackHostID, Size: 1}}
	}
	out := make([]syscall.SysProcIDMap, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, syscall.SysProcIDMap{ContainerID: r.ContainerID, HostID: r.HostID, Size: r.Size})
	}
	return out
}

// enterNamespace performs the mount half of sandbox setup inside a
// child Enter already placed into new namespaces at clone(2) time: it
// makes the mount tree private and performs cfg's binds plus the
// standard /tmp and /proc mounts under cfg.RootDir. Called by
// MaybeRunPayload once it has decoded cfg, before looking up and
// running the payload itself.
func enterNamespace(cfg *Config) error {
	if err := unix.Mount("none", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("sandbox: making mount tree private: %w", err)
	}

	for _, b := range cfg.Binds {
		if err := BindMount(b.Source, b.Target, b.ReadOnly); err != nil {
			return err
		}
	}

	if cfg.RootDir != "" {
		if err := MountTmpfs(cfg.RootDir+"/tmp", ""); err != nil {
			return err
		}
		if err := MountProc(cfg.RootDir + "/proc"); err != nil {
			return err
		}
	}
	return nil
}

// BindMount bind-mounts source onto target, remounting read-only in a
// second pass when requested since a single mount(2) call cannot set
// MS_RDONLY on a bind mount atomically.
func BindMount(source, target string, readOnly bool) error {
	if err := unix.Mount(source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("sandbox: bind %s -> %s: %w", source, target, err)
	}
	if readOnly {
		if err := unix.Mount(source, target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
			return fmt.Errorf("sandbox: remount ro %s: %w", target, err)
		}
	}
	return nil
}

// MountTmpfs mounts a tmpfs at target, with an optional "size=..,mode=.."
// style comma-separated mount option string.
func MountTmpfs(target, opts string) error {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("sandbox: creating %s: %w", target, err)
	}
	if err := unix.Mount("tmpfs", target, "tmpfs", 0, opts); err != nil {
		return fmt.Errorf("sandbox: mounting tmpfs at %s: %w", target, err)
	}
	return nil
}

// MountProc mounts a fresh procfs at target, valid once the calling
// process is attached to the pid namespace it should reflect.
func MountProc(target string) error {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("sandbox: creating %s: %w", target, err)
	}
	if err := unix.Mount("proc", target, "proc", 0, ""); err != nil {
		return fmt.Errorf("sandbox: mounting proc at %s: %w", target, err)
	}
	return nil
}

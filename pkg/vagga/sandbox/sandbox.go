// Package sandbox sets up the unprivileged namespace sandbox both the
// builder and the runner execute inside: a new user namespace (mapping
// the invoking uid/gid to a requested range), a new mount namespace with
// the container root bind-mounted into place, and, for the runner, an
// optional network namespace. No daemon and no setuid helper is
// required: everything here runs as the invoking user, relying on
// unprivileged user namespaces being enabled on the host kernel.
//
// Entering those namespaces means re-executing the calling binary
// (Enter) rather than unsharing the calling process in place, since the
// Go runtime is never single-threaded by the time user code runs and
// CLONE_NEWUSER via unshare(2)/setns(2) requires exactly that. The
// re-exec'd child looks itself up through a small payload registry
// (Register/MaybeRunPayload) instead of redoing the original command
// line dispatch, the same shape go.podman.io/storage/pkg/reexec uses.
package sandbox

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dpvpro/vagga/pkg/vaggaerr"
)

// Payload is a function registered under a name so a re-exec'd,
// freshly-namespaced child started by Enter can be told which of this
// binary's entry points to run once inside the sandbox, carrying
// whatever caller-specific state it needs (the container to build, the
// command to exec) as an opaque, already-encoded blob in data.
type Payload func(cfg *Config, data []byte) error

var payloads = map[string]Payload{}

// Register records fn under name. Call this from an init() in whichever
// package owns the payload (pkg/vagga/builder, pkg/vagga/runner) so it
// is registered before main ever calls MaybeRunPayload.
func Register(name string, fn Payload) {
	payloads[name] = fn
}

const (
	envPayload = "_VAGGA_SANDBOX_PAYLOAD"
	envConfig  = "_VAGGA_SANDBOX_CONFIG"
	envData    = "_VAGGA_SANDBOX_DATA"
)

// MaybeRunPayload reports whether this process is a child Enter
// re-exec'd to run inside a freshly cloned sandbox; if so, it performs
// the mount half of sandbox setup, dispatches to the payload Enter
// named and exits the process with a code derived from its result, and
// never returns. Call this first thing in main, before flag parsing or
// command dispatch, on every platform: on a platform lacking real
// namespace support it simply never finds the env sentinel set, since
// Enter there always fails before ever setting it in a child.
func MaybeRunPayload() bool {
	name := os.Getenv(envPayload)
	if name == "" {
		return false
	}

	var cfg Config
	if err := json.Unmarshal([]byte(os.Getenv(envConfig)), &cfg); err != nil {
		fmt.Fprintln(os.Stderr, "sandbox: decoding config:", err)
		os.Exit(121)
	}
	if err := enterNamespace(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, vaggaerr.NamespaceError("clone", err))
		os.Exit(121)
	}

	fn, ok := payloads[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "sandbox: no payload registered for %q\n", name)
		os.Exit(121)
	}
	if err := fn(&cfg, []byte(os.Getenv(envData))); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(vaggaerr.ExitCode(err))
	}
	os.Exit(0)
	return true // unreachable
}

// IDMap is one line of a uid_map/gid_map: size container-side ids
// starting at ContainerID map to size host-side ids starting at HostID.
type IDMap struct {
	ContainerID int
	HostID      int
	Size        int
}

// Bind is a single bind mount to perform once inside the new mount
// namespace, before the sandboxed process execs.
type Bind struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Config describes the namespace and mount setup a single sandboxed
// invocation needs.
type Config struct {
	// Uids/Gids are the ranges to map the invoking user into; an empty
	// slice maps only the current uid/gid to 0, the common case for a
	// single-user build.
	Uids []IDMap
	Gids []IDMap

	// Binds are performed in order after the mount namespace is
	// private, before RootDir's /tmp and /proc are mounted.
	Binds []Bind

	// RootDir is the container root; if non-empty, a tmpfs is mounted
	// at RootDir/tmp and a procfs at RootDir/proc.
	RootDir string

	// Network requests a new, initially-unconfigured network namespace
	// (the runner's veth setup, when present, is layered on afterward
	// by a supervising tool out of this package's scope).
	Network bool
}

//go:build !linux

package sandbox

import "errors"

// ErrUnsupported is returned by every sandbox operation on non-Linux
// platforms: user/mount/pid namespaces are a Linux-only kernel feature,
// so a macOS build compiles (spec.md's non-goal: "macOS builds must
// compile but are inert") but cannot actually sandbox anything.
var ErrUnsupported = errors.New("sandbox: namespaces are only supported on linux")

func Enter(cfg *Config, payload string, data []byte) error { return ErrUnsupported }

func enterNamespace(cfg *Config) error { return ErrUnsupported }

func BindMount(source, target string, readOnly bool) error { return ErrUnsupported }

func MountTmpfs(target, opts string) error { return ErrUnsupported }

func MountProc(target string) error { return ErrUnsupported }

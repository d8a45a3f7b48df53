package runner

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-units"
	"github.com/dpvpro/vagga/pkg/vagga/config"
)

// materializeVolumes turns req.Volumes into the mount list Run binds
// into the sandbox, preparing any host-side state (persistent volume
// directories, Tmpfs/Empty directories and Snapshot copies staged
// under scratch) each
// variant needs before the mount namespace is entered. Grounded on
// spec.md §4.7's volume list; scratch is the per-Run temp directory Run
// already created and will remove on return.
func materializeVolumes(req *Request, scratch string) ([]mount.Mount, error) {
	var mounts []mount.Mount
	for target, vol := range req.Volumes {
		m, err := materializeOne(req, scratch, target, vol)
		if err != nil {
			return nil, fmt.Errorf("runner: materializing volume %s: %w", target, err)
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}

func materializeOne(req *Request, scratch, target string, vol config.Volume) (mount.Mount, error) {
	switch v := vol.(type) {
	case *config.VolumeTmpfs:
		dir := filepath.Join(scratch, "tmpfs", sanitizeTarget(target))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return mount.Mount{}, err
		}
		if v.Size != "" {
			if _, err := units.RAMInBytes(v.Size); err != nil {
				return mount.Mount{}, fmt.Errorf("invalid tmpfs size %q: %w", v.Size, err)
			}
		}
		for _, sub := range v.Subdirs {
			if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
				return mount.Mount{}, err
			}
		}
		for path, contents := range v.Files {
			if err := os.MkdirAll(filepath.Join(dir, filepath.Dir(path)), 0o755); err != nil {
				return mount.Mount{}, err
			}
			if err := os.WriteFile(filepath.Join(dir, path), []byte(contents), 0o644); err != nil {
				return mount.Mount{}, err
			}
		}
		return mount.Mount{Type: mount.TypeBind, Source: dir, Target: target}, nil

	case *config.VolumeBindRW:
		return mount.Mount{Type: mount.TypeBind, Source: resolveHostPath(req, v.Path), Target: target}, nil

	case *config.VolumeBindRO:
		return mount.Mount{Type: mount.TypeBind, Source: resolveHostPath(req, v.Path), Target: target, ReadOnly: true}, nil

	case *config.VolumeEmpty:
		dir := filepath.Join(scratch, "empty", sanitizeTarget(target))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return mount.Mount{}, err
		}
		return mount.Mount{Type: mount.TypeBind, Source: dir, Target: target}, nil

	case *config.VolumeVaggaBin:
		bin := filepath.Join(req.Layout.BaseDir, "vagga-bin")
		return mount.Mount{Type: mount.TypeBind, Source: bin, Target: target, ReadOnly: true}, nil

	case *config.VolumeSnapshot:
		src := req.RootFS
		if v.Container != "" {
			resolved, err := os.Readlink(req.Layout.FullSymlink(v.Container))
			if err != nil {
				return mount.Mount{}, fmt.Errorf("snapshot source container %q: %w", v.Container, err)
			}
			src = filepath.Join(resolved, "root")
		}
		dir := filepath.Join(scratch, "snapshot", sanitizeTarget(target))
		if err := copyTree(src, dir); err != nil {
			return mount.Mount{}, err
		}
		return mount.Mount{Type: mount.TypeBind, Source: dir, Target: target}, nil

	case *config.VolumeContainer:
		resolved, err := os.Readlink(req.Layout.FullSymlink(v.Name))
		if err != nil {
			return mount.Mount{}, fmt.Errorf("container volume %q: %w", v.Name, err)
		}
		return mount.Mount{Type: mount.TypeBind, Source: filepath.Join(resolved, "root"), Target: target, ReadOnly: true}, nil

	case *config.VolumePersistent:
		dir, err := ensurePersistentVolume(req.Layout, v)
		if err != nil {
			return mount.Mount{}, err
		}
		return mount.Mount{Type: mount.TypeBind, Source: dir, Target: target}, nil

	default:
		return mount.Mount{}, fmt.Errorf("unhandled volume variant %T", vol)
	}
}

func resolveHostPath(req *Request, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(req.WorkDir, path)
}

func sanitizeTarget(target string) string {
	return filepath.Clean("/" + target)[1:]
}

// ensurePersistentVolume returns <base>/.volumes/<name>, creating it
// under a .tmp.<name> staging path and running InitCommand (if any) the
// first time it's used. A failing InitCommand means the .tmp dir is
// removed and nothing is ever published (the spec's accepted Open
// Question resolution, recorded in DESIGN.md). InitCommand runs
// directly on the host rather than re-entering a nested sandbox: this
// runner is not itself sandboxed yet at the point this function is
// called (it executes before sandbox.Enter), so the command sees the
// volume directory as it will appear once bound in, not the full
// container root — a deliberate simplification over recursively
// sandboxing the init command itself.
func ensurePersistentVolume(layout interface {
	VolumeDir(string) string
}, v *config.VolumePersistent) (string, error) {
	final := layout.VolumeDir(v.Name)
	if _, err := os.Stat(final); err == nil {
		return final, nil
	}
	tmp := filepath.Join(filepath.Dir(final), ".tmp."+v.Name)
	if err := os.RemoveAll(tmp); err != nil {
		return "", err
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return "", err
	}
	if len(v.InitCommand) > 0 {
		cmd := exec.Command(v.InitCommand[0], v.InitCommand[1:]...)
		cmd.Dir = tmp
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			_ = os.RemoveAll(tmp)
			return "", fmt.Errorf("persistent volume %q init command: %w", v.Name, err)
		}
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.RemoveAll(tmp)
		return "", fmt.Errorf("persistent volume %q: publishing: %w", v.Name, err)
	}
	return final, nil
}

func copyTree(src, dst string) error {
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
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}

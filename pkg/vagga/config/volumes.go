package config

// Volume is the closed set of volume variants a Container's volumes
// map may contain.
type Volume interface {
	VolumeName() string
}

// VolumeTmpfs is a fresh writable directory pre-populated with Subdirs
// and Files. The runner backs it with a directory under the run's
// scratch directory, bind-mounted at the target, not with an in-memory
// filesystem: Size is checked for validity but not enforced as a limit,
// and Mode is not applied.
type VolumeTmpfs struct {
	Size    string // a docker/go-units size string, e.g. "100Mi"
	Mode    string
	Subdirs []string
	Files   map[string]string
}

func (v *VolumeTmpfs) VolumeName() string { return "Tmpfs" }

// VolumeBindRW bind-mounts a host path read-write.
type VolumeBindRW struct {
	Path string
}

func (v *VolumeBindRW) VolumeName() string { return "BindRW" }

// VolumeBindRO bind-mounts a host path read-only.
type VolumeBindRO struct {
	Path string
}

func (v *VolumeBindRO) VolumeName() string { return "BindRO" }

// VolumeEmpty mounts an empty, writable directory.
type VolumeEmpty struct{}

func (v *VolumeEmpty) VolumeName() string { return "Empty" }

// VolumeVaggaBin bind-mounts the builder's own toolchain helpers.
type VolumeVaggaBin struct{}

func (v *VolumeVaggaBin) VolumeName() string { return "VaggaBin" }

// VolumeSnapshot is a writable directory pre-populated by a recursive
// copy of another path, optionally taken from a different container.
// The runner backs it with a directory under the run's scratch
// directory, bind-mounted at the target, not with a tmpfs; Size,
// OwnerUID and OwnerGID are not applied.
type VolumeSnapshot struct {
	Size      string
	OwnerUID  int
	OwnerGID  int
	Container string // empty means snapshot from this container's own root
}

func (v *VolumeSnapshot) VolumeName() string { return "Snapshot" }

// VolumeContainer read-only binds another stored container's root.
type VolumeContainer struct {
	Name string
}

func (v *VolumeContainer) VolumeName() string { return "Container" }

// VolumePersistent binds <base>/.volumes/<name>, created on first use.
type VolumePersistent struct {
	Name string
	// InitCommand runs once, inside the sandbox, the first time the
	// volume is materialised; if it fails the tmp dir is discarded and
	// nothing is published (see DESIGN.md Open Question decision).
	InitCommand []string
}

func (v *VolumePersistent) VolumeName() string { return "Persistent" }

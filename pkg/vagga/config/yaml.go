package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dpvpro/vagga/pkg/vaggaerr"
	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes a Container, dispatching each `setup` entry and
// each `volumes` value on its YAML tag (`!Install`, `!Tmpfs`, ...) into
// the matching Step/Volume variant.
func (c *Container) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Setup          []yaml.Node          `yaml:"setup"`
		Volumes        map[string]yaml.Node `yaml:"volumes"`
		Environ        map[string]string    `yaml:"environ"`
		Uids           []string             `yaml:"uids"`
		Gids           []string             `yaml:"gids"`
		AutoClean      bool                 `yaml:"auto-clean"`
		ResolvConfPath string               `yaml:"resolv-conf-path"`
		HostsFilePath  string               `yaml:"hosts-file-path"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	c.Environ = raw.Environ
	c.AutoClean = raw.AutoClean
	c.ResolvConfPath = raw.ResolvConfPath
	c.HostsFilePath = raw.HostsFilePath

	for i := range raw.Setup {
		step, err := decodeStep(&raw.Setup[i])
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		c.Setup = append(c.Setup, step)
	}

	if len(raw.Volumes) > 0 {
		c.Volumes = make(map[string]Volume, len(raw.Volumes))
		for name, n := range raw.Volumes {
			n := n
			vol, err := decodeVolume(&n)
			if err != nil {
				return fmt.Errorf("volumes[%s]: %w", name, err)
			}
			c.Volumes[name] = vol
		}
	}

	for _, s := range raw.Uids {
		r, err := parseIDRange(s)
		if err != nil {
			return fmt.Errorf("uids: %w", err)
		}
		c.Uids = append(c.Uids, r)
	}
	for _, s := range raw.Gids {
		r, err := parseIDRange(s)
		if err != nil {
			return fmt.Errorf("gids: %w", err)
		}
		c.Gids = append(c.Gids, r)
	}
	return nil
}

func parseIDRange(s string) (IDRange, error) {
	if dash := strings.IndexByte(s, '-'); dash >= 0 {
		start, err := strconv.Atoi(s[:dash])
		if err != nil {
			return IDRange{}, err
		}
		end, err := strconv.Atoi(s[dash+1:])
		if err != nil {
			return IDRange{}, err
		}
		return IDRange{Start: start, End: end}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return IDRange{}, err
	}
	return IDRange{Start: n, End: n}, nil
}

func decodeStep(node *yaml.Node) (Step, error) {
	switch node.Tag {
	case "!Install":
		var pkgs []string
		if err := node.Decode(&pkgs); err != nil {
			return nil, err
		}
		return &StepInstall{Packages: pkgs}, nil

	case "!BuildDeps":
		var pkgs []string
		if err := node.Decode(&pkgs); err != nil {
			return nil, err
		}
		return &StepBuildDeps{Packages: pkgs}, nil

	case "!EnsureDir":
		var path string
		if err := node.Decode(&path); err != nil {
			return nil, err
		}
		return &StepEnsureDir{Path: path}, nil

	case "!EmptyDir":
		var path string
		if err := node.Decode(&path); err != nil {
			return nil, err
		}
		return &StepEmptyDir{Path: path}, nil

	case "!Remove":
		var path string
		if err := node.Decode(&path); err != nil {
			return nil, err
		}
		return &StepRemove{Path: path}, nil

	case "!CacheDirs":
		var dirs map[string]string
		if err := node.Decode(&dirs); err != nil {
			return nil, err
		}
		return &StepCacheDirs{Dirs: dirs}, nil

	case "!Download":
		var raw struct {
			URL    string `yaml:"url"`
			Path   string `yaml:"path"`
			Mode   string `yaml:"mode"`
			SHA256 string `yaml:"sha256"`
		}
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		return &StepDownload{URL: raw.URL, Path: raw.Path, Mode: raw.Mode, SHA256: raw.SHA256}, nil

	case "!Unzip":
		var raw struct {
			URL    string `yaml:"url"`
			SHA256 string `yaml:"sha256"`
			Path   string `yaml:"path"`
			Subdir string `yaml:"subdir"`
		}
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		return &StepUnzip{URL: raw.URL, SHA256: raw.SHA256, Path: raw.Path, Subdir: raw.Subdir}, nil

	case "!Tar":
		var raw struct {
			URL    string `yaml:"url"`
			SHA256 string `yaml:"sha256"`
			Path   string `yaml:"path"`
			Subdir string `yaml:"subdir"`
		}
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		return &StepTar{URL: raw.URL, SHA256: raw.SHA256, Path: raw.Path, Subdir: raw.Subdir}, nil

	case "!Text":
		var files map[string]string
		if err := node.Decode(&files); err != nil {
			return nil, err
		}
		return &StepText{Files: files}, nil

	case "!Container":
		var name string
		if err := node.Decode(&name); err != nil {
			return nil, err
		}
		return &StepContainer{Name: name}, nil

	case "!SubConfig":
		var raw struct {
			Source    string `yaml:"source"`
			Container string `yaml:"container"`
			URL       string `yaml:"url"`
			Path      string `yaml:"path"`
		}
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		return &StepSubConfig{Source: raw.Source, Container: raw.Container, URL: raw.URL, Path: raw.Path}, nil

	case "!Repo":
		var name string
		if err := node.Decode(&name); err != nil {
			return nil, err
		}
		return &StepRepo{Name: name}, nil

	case "!Copy":
		var raw struct {
			Source string   `yaml:"source"`
			Path   string   `yaml:"path"`
			Owner  string   `yaml:"owner"`
			Group  string   `yaml:"group"`
			Ignore []string `yaml:"ignore-regex"`
		}
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		return &StepCopy{Source: raw.Source, Path: raw.Path, Owner: raw.Owner, Group: raw.Group, Ignore: raw.Ignore}, nil

	case "!Git":
		g, err := decodeGit(node)
		if err != nil {
			return nil, err
		}
		return g, nil

	case "!GitInstall":
		var raw struct {
			URL      string `yaml:"url"`
			Revision string `yaml:"revision"`
			Branch   string `yaml:"branch"`
			Path     string `yaml:"path"`
			Subdir   string `yaml:"subdir"`
		}
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		if raw.Revision != "" && raw.Branch != "" {
			return nil, &vaggaerr.ConfigError{Reason: fmt.Sprintf("GitInstall step for %q sets both revision and branch; only one is allowed", raw.URL)}
		}
		return &StepGitInstall{
			StepGit: StepGit{URL: raw.URL, Revision: raw.Revision, Branch: raw.Branch, Path: raw.Path},
			Subdir:  raw.Subdir,
		}, nil

	case "!Pip", "!Py3Install", "!PipConfig":
		var raw struct {
			Packages     []string `yaml:"packages"`
			Requirements []string `yaml:"requirements"`
			Dependencies bool     `yaml:"dependencies"`
		}
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		return &StepPip{Python3: true, Packages: raw.Packages, Requirements: raw.Requirements, Dependencies: raw.Dependencies}, nil

	case "!Npm", "!NpmInstall":
		var pkgs []string
		if err := node.Decode(&pkgs); err != nil {
			return nil, err
		}
		return &StepNpm{Packages: pkgs}, nil

	case "!Sh":
		var script string
		if err := node.Decode(&script); err != nil {
			return nil, err
		}
		return &StepSh{Script: script}, nil

	case "!Ubuntu":
		var release string
		if err := node.Decode(&release); err != nil {
			return nil, err
		}
		return &StepUbuntu{Release: release}, nil

	case "!Alpine":
		var version string
		if err := node.Decode(&version); err != nil {
			return nil, err
		}
		return &StepAlpine{Version: version}, nil

	default:
		return nil, fmt.Errorf("unknown step tag %q", node.Tag)
	}
}

func decodeGit(node *yaml.Node) (*StepGit, error) {
	var raw struct {
		URL      string `yaml:"url"`
		Revision string `yaml:"revision"`
		Branch   string `yaml:"branch"`
		Path     string `yaml:"path"`
	}
	if err := node.Decode(&raw); err != nil {
		return nil, err
	}
	if raw.Revision != "" && raw.Branch != "" {
		return nil, &vaggaerr.ConfigError{Reason: fmt.Sprintf("Git step for %q sets both revision and branch; only one is allowed", raw.URL)}
	}
	return &StepGit{URL: raw.URL, Revision: raw.Revision, Branch: raw.Branch, Path: raw.Path}, nil
}

func decodeVolume(node *yaml.Node) (Volume, error) {
	switch node.Tag {
	case "!Tmpfs":
		var raw struct {
			Size    string            `yaml:"size"`
			Mode    string            `yaml:"mode"`
			Subdirs []string          `yaml:"subdirs"`
			Files   map[string]string `yaml:"files"`
		}
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		return &VolumeTmpfs{Size: raw.Size, Mode: raw.Mode, Subdirs: raw.Subdirs, Files: raw.Files}, nil

	case "!BindRW":
		var path string
		if err := node.Decode(&path); err != nil {
			return nil, err
		}
		return &VolumeBindRW{Path: path}, nil

	case "!BindRO":
		var path string
		if err := node.Decode(&path); err != nil {
			return nil, err
		}
		return &VolumeBindRO{Path: path}, nil

	case "!Empty":
		return &VolumeEmpty{}, nil

	case "!VaggaBin":
		return &VolumeVaggaBin{}, nil

	case "!Snapshot":
		var raw struct {
			Size      string `yaml:"size"`
			OwnerUID  int    `yaml:"owner-uid"`
			OwnerGID  int    `yaml:"owner-gid"`
			Container string `yaml:"container"`
		}
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		return &VolumeSnapshot{Size: raw.Size, OwnerUID: raw.OwnerUID, OwnerGID: raw.OwnerGID, Container: raw.Container}, nil

	case "!Container":
		var name string
		if err := node.Decode(&name); err != nil {
			return nil, err
		}
		return &VolumeContainer{Name: name}, nil

	case "!Persistent":
		var raw struct {
			Name        string   `yaml:"name"`
			InitCommand []string `yaml:"init-command"`
		}
		if err := node.Decode(&raw); err == nil && raw.Name != "" {
			return &VolumePersistent{Name: raw.Name, InitCommand: raw.InitCommand}, nil
		}
		var name string
		if err := node.Decode(&name); err != nil {
			return nil, err
		}
		return &VolumePersistent{Name: name}, nil

	default:
		return nil, fmt.Errorf("unknown volume tag %q", node.Tag)
	}
}

// UnmarshalYAML decodes the top-level manifest document.
func (m *Manifest) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Containers map[string]*Container `yaml:"containers"`
		Commands   map[string]yaml.Node  `yaml:"commands"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	m.Containers = raw.Containers
	if len(raw.Commands) > 0 {
		m.Commands = make(map[string]interface{}, len(raw.Commands))
		for name, n := range raw.Commands {
			n := n
			cmd, err := decodeCommand(&n)
			if err != nil {
				return fmt.Errorf("commands[%s]: %w", name, err)
			}
			m.Commands[name] = cmd
		}
	}
	return nil
}

func decodeCommand(node *yaml.Node) (interface{}, error) {
	switch node.Tag {
	case "!Command", "":
		var raw struct {
			Description string            `yaml:"description"`
			Container   string            `yaml:"container"`
			Run         []string          `yaml:"run"`
			Environ     map[string]string `yaml:"environ"`
			Volumes     map[string]yaml.Node `yaml:"volumes"`
			WriteMode   string            `yaml:"write-mode"`
		}
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		cmd := &Command{
			Description: raw.Description,
			Container:   raw.Container,
			Run:         raw.Run,
			Environ:     raw.Environ,
			WriteMode:   raw.WriteMode,
		}
		if len(raw.Volumes) > 0 {
			cmd.Volumes = make(map[string]Volume, len(raw.Volumes))
			for name, n := range raw.Volumes {
				n := n
				vol, err := decodeVolume(&n)
				if err != nil {
					return nil, fmt.Errorf("volumes[%s]: %w", name, err)
				}
				cmd.Volumes[name] = vol
			}
		}
		return cmd, nil

	case "!Supervise":
		var raw struct {
			Description string            `yaml:"description"`
			Children    map[string]string `yaml:"children"`
			Kill        string            `yaml:"kill-unresponsive-after"`
		}
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		return &Supervise{Description: raw.Description, Children: raw.Children, Kill: raw.Kill}, nil

	case "!Capsule":
		var raw struct {
			Description string   `yaml:"description"`
			Run         []string `yaml:"run"`
			Features    []string `yaml:"features"`
		}
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		return &CapsuleCommand{Description: raw.Description, Run: raw.Run, Features: raw.Features}, nil

	default:
		return nil, fmt.Errorf("unknown command tag %q", node.Tag)
	}
}

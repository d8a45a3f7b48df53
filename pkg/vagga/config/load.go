package config

import (
	"os"
	"path/filepath"

	"github.com/dpvpro/vagga/pkg/vaggaerr"
	"gopkg.in/yaml.v3"
)

// DefaultManifestNames are searched, in order, starting from the
// current directory and walking upward, the way the teacher's
// changelog.ParseFileOne walks for a debian/changelog.
var DefaultManifestNames = []string{"vagga.yaml", ".vagga.yaml"}

// Load parses and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &vaggaerr.ConfigError{Path: path, Reason: "cannot read manifest", Err: err}
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &vaggaerr.ConfigError{Path: path, Reason: "invalid manifest", Err: err}
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Discover walks upward from dir looking for one of DefaultManifestNames,
// mirroring how the tool is typically invoked from a project subdirectory.
func Discover(dir string) (string, error) {
	cur := dir
	for {
		for _, name := range DefaultManifestNames {
			candidate := filepath.Join(cur, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", &vaggaerr.ConfigError{Path: dir, Reason: "no vagga.yaml found in this directory or any parent"}
		}
		cur = parent
	}
}

// LoadSettings reads the secure (user-home) settings file and merges in
// the project-local insecure overrides, which may only touch
// VersionCheck and SharedCache per spec.md §6.
func LoadSettings(secureSettingsPath, localSettingsPath string) (*Settings, error) {
	s := &Settings{VersionCheck: true, SharedCache: true}
	if secureSettingsPath != "" {
		if data, err := os.ReadFile(secureSettingsPath); err == nil {
			if err := yaml.Unmarshal(data, s); err != nil {
				return nil, &vaggaerr.ConfigError{Path: secureSettingsPath, Reason: "invalid settings", Err: err}
			}
		}
	}
	if localSettingsPath != "" {
		var override struct {
			VersionCheck *bool `yaml:"version-check"`
			SharedCache  *bool `yaml:"shared-cache"`
		}
		if data, err := os.ReadFile(localSettingsPath); err == nil {
			if err := yaml.Unmarshal(data, &override); err != nil {
				return nil, &vaggaerr.ConfigError{Path: localSettingsPath, Reason: "invalid local settings", Err: err}
			}
			if override.VersionCheck != nil {
				s.VersionCheck = *override.VersionCheck
			}
			if override.SharedCache != nil {
				s.SharedCache = *override.SharedCache
			}
		}
	}
	return s, nil
}

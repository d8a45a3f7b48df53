package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dpvpro/vagga/pkg/vagga/builder"
	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/naming"
	"github.com/spf13/cobra"
)

// App bundles the manifest, settings and build driver every command
// except bare --help/--version needs. Constructed once in main before
// cobra dispatches to whichever subcommand matched argv.
type App struct {
	ProjectDir string
	Manifest   *config.Manifest
	Settings   *config.Settings
	Layout     *naming.Layout
	Builder    *builder.Builder
}

// loadApp discovers and loads vagga.yaml plus settings from the
// project directory, mirroring the teacher's own changelog-discovery
// step in main.go but for a manifest instead of a single changelog
// file. A missing manifest is not itself fatal here: internal commands
// that need one surface the returned error themselves, so --help and
// --version keep working from outside any project.
func loadApp() (*App, error) {
	dir := cwd()
	manifestPath, err := config.Discover(dir)
	if err != nil {
		return nil, err
	}
	manifest, err := config.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	home, _ := os.UserHomeDir()
	secureSettings := os.Getenv("VAGGA_SETTINGS")
	if secureSettings == "" && home != "" {
		secureSettings = filepath.Join(home, ".config", "vagga", "settings.yaml")
	}
	localSettings := filepath.Join(filepath.Dir(manifestPath), ".vagga.settings.yaml")
	settings, err := config.LoadSettings(secureSettings, localSettings)
	if err != nil {
		return nil, err
	}

	layout := naming.New(defaultStorageDir(settings))
	b := builder.New(manifest, layout, settings)
	b.NoBuild = *noBuild
	b.WorkDir = filepath.Dir(manifestPath)
	b.ManifestPath = manifestPath

	return &App{
		ProjectDir: filepath.Dir(manifestPath),
		Manifest:   manifest,
		Settings:   settings,
		Layout:     layout,
		Builder:    b,
	}, nil
}

func isOutOfDate(err error) bool {
	return errors.Is(err, builder.ErrOutOfDate)
}

func isUnknownCommand(root *cobra.Command, err error) bool {
	return strings.HasPrefix(err.Error(), "unknown command ")
}

// resolveEnviron builds a command's final environment: inherited
// allow-listed host variables (PATH, HOME, TERM, LANG) first, then
// container variables and command-specific variables overriding them,
// then any VAGGAENV_*-prefixed host variables forwarded with their
// prefix stripped, which override everything else (spec.md §6).
func resolveEnviron(containerEnv, commandEnv map[string]string) map[string]string {
	out := make(map[string]string)
	for _, name := range []string{"PATH", "HOME", "TERM", "LANG"} {
		if v, ok := os.LookupEnv(name); ok {
			out[name] = v
		}
	}
	for k, v := range containerEnv {
		out[k] = v
	}
	for k, v := range commandEnv {
		out[k] = v
	}
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "VAGGAENV_") {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(kv, "VAGGAENV_"), "=", 2)
		if len(parts) == 2 {
			out[parts[0]] = parts[1]
		}
	}
	return out
}

func mergeVolumes(a, b map[string]config.Volume) map[string]config.Volume {
	out := make(map[string]config.Volume, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func containerNotFound(name string) error {
	return fmt.Errorf("vagga: container %q not found in manifest", name)
}

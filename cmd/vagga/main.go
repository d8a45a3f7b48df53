// Command vagga is the CLI entry point: internal build-driver commands
// (_version_hash, _build, _run, _run_in_netns) plus, once a manifest is
// found, one subcommand per manifest-declared `commands:` entry. Grown
// from the teacher's single-purpose main.go (Program/Version/Description
// consts, a cobra root with RunE, log.Error+os.Exit on failure) into a
// dispatch table, per SPEC_FULL.md §4.10.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dpvpro/vagga/pkg/log"
	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/sandbox"
	"github.com/dpvpro/vagga/pkg/vaggaerr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	Program     = "vagga"
	Version     = "0.1.0"
	Description = "Unprivileged, content-addressed container build and run tool."
)

var (
	noBuild    = pflag.Bool("no-build", false, "fail instead of building containers that are out of date")
	noLogColor = pflag.BoolP("no-log-color", "c", false, "do not colorize log output")
	storageDir = pflag.StringP("storage-dir", "S", "", "override the .vagga storage directory")
)

func main() {
	// A process Enter re-exec'd to run inside a freshly cloned sandbox
	// never reaches ordinary argv dispatch: it looks up and runs its
	// payload here instead, then exits.
	if sandbox.MaybeRunPayload() {
		return
	}

	log.NoColor = *noLogColor

	root := &cobra.Command{
		Use:           fmt.Sprintf("%s <command> [args...]", Program),
		Short:         Description,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetHelpCommand(&cobra.Command{Hidden: true})
	root.DisableFlagsInUseLine = true

	app, appErr := loadApp()
	root.AddCommand(versionHashCommand(app, appErr))
	root.AddCommand(buildCommand(app, appErr))
	root.AddCommand(runCommand(app, appErr))
	root.AddCommand(runInNetnsCommand(app, appErr))
	if app != nil {
		for name := range app.Manifest.Commands {
			root.AddCommand(manifestCommand(app, name))
		}
	}

	err := root.Execute()
	os.Exit(exitCode(root, err))
}

// exitCode maps a command failure onto spec.md §6's CLI exit code
// contract: 0 success, 121 generic, 122 argument error, 124 subcommand
// internal error, 126 no manifest/config error, 127 unknown command, 29
// "container is out of date" under --no-build.
func exitCode(root *cobra.Command, err error) int {
	if err == nil {
		return 0
	}
	log.Error(err)
	if isOutOfDate(err) {
		return 29
	}
	if isUnknownCommand(root, err) {
		return 127
	}
	return vaggaerr.ExitCode(err)
}

// cwd resolves the project directory a manifest is discovered from.
func cwd() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

func defaultStorageDir(settings *config.Settings) string {
	if *storageDir != "" {
		return *storageDir
	}
	if settings != nil && settings.StorageDir != "" {
		return settings.StorageDir
	}
	return filepath.Join(cwd(), ".vagga")
}

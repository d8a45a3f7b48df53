package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dpvpro/vagga/pkg/log"
	"github.com/dpvpro/vagga/pkg/vagga/capsule"
	"github.com/dpvpro/vagga/pkg/vagga/config"
	vctx "github.com/dpvpro/vagga/pkg/vagga/context"
	"github.com/dpvpro/vagga/pkg/vagga/runner"
	"github.com/moby/term"
	"github.com/spf13/cobra"
)

func requireApp(app *App, appErr error) (*App, error) {
	if appErr != nil {
		return nil, appErr
	}
	return app, nil
}

// versionHashCommand is `vagga _version_hash <container>`: resolve the
// container through Builder.Resolve (which builds it first when it is
// out of date, unless --no-build) and print its full content digest.
func versionHashCommand(app *App, appErr error) *cobra.Command {
	return &cobra.Command{
		Use:    "_version_hash <container>",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := requireApp(app, appErr)
			if err != nil {
				return err
			}
			v, err := a.Builder.Resolve(args[0])
			if err != nil {
				return err
			}
			fmt.Println(v.Full)
			return nil
		},
	}
}

// buildCommand is `vagga _build <container>`: force resolution
// (building if necessary, unless --no-build) and report the version.
func buildCommand(app *App, appErr error) *cobra.Command {
	return &cobra.Command{
		Use:    "_build <container>",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := requireApp(app, appErr)
			if err != nil {
				return err
			}
			v, err := a.Builder.Resolve(args[0])
			if err != nil {
				return err
			}
			log.Info(args[0] + " -> " + v.Full)
			return nil
		},
	}
}

// runCommand is `vagga _run <container> -- <command> [args...]`: build
// the container if needed and exec one command inside it.
func runCommand(app *App, appErr error) *cobra.Command {
	cmd := &cobra.Command{
		Use:                "_run <container> -- <command> [args...]",
		Hidden:             true,
		Args:               cobra.MinimumNArgs(1),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := requireApp(app, appErr)
			if err != nil {
				return err
			}
			name, command := args[0], args[1:]
			if len(command) == 0 {
				command = []string{"/bin/sh"}
			}
			return runContainerCommand(a, name, command, nil, nil, "", nil)
		},
	}
	return cmd
}

// runInNetnsCommand is like runCommand but additionally partitions the
// command into a named network namespace (spec.md §1's partitioning
// boundary, consumed here only as a validated no-op per
// runner.JoinNetns's own documentation).
func runInNetnsCommand(app *App, appErr error) *cobra.Command {
	var bridge, address, gateway string
	cmd := &cobra.Command{
		Use:    "_run_in_netns <container> -- <command> [args...]",
		Hidden: true,
		Args:   cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := requireApp(app, appErr)
			if err != nil {
				return err
			}
			name, command := args[0], args[1:]
			if len(command) == 0 {
				command = []string{"/bin/sh"}
			}
			return runContainerCommand(a, name, command, nil, nil, "", &runner.NetnsConfig{
				Bridge:  bridge,
				Address: address,
				Gateway: gateway,
			})
		},
	}
	cmd.Flags().StringVar(&bridge, "bridge", "", "bridge device the namespace attaches to")
	cmd.Flags().StringVar(&address, "address", "", "address assigned inside the namespace")
	cmd.Flags().StringVar(&gateway, "gateway", "", "default gateway inside the namespace")
	return cmd
}

// manifestCommand wraps one manifest-declared `commands:` entry as its
// own named cobra.Command, type-switching on which of Command,
// Supervise or CapsuleCommand it decoded as.
func manifestCommand(app *App, name string) *cobra.Command {
	raw := app.Manifest.Commands[name]
	switch c := raw.(type) {
	case *config.Command:
		return &cobra.Command{
			Use:                name,
			Short:              c.Description,
			DisableFlagParsing: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				command := c.Run
				if len(args) > 0 {
					command = args
				}
				var netns *runner.NetnsConfig
				if c.Network != nil {
					netns = &runner.NetnsConfig{Bridge: c.Network.Bridge, Address: c.Network.IP, Gateway: c.Network.Gateway}
				}
				return runContainerCommand(app, c.Container, command, c.Environ, c.Volumes, runner.WriteMode(c.WriteMode), netns)
			},
		}
	case *config.Supervise:
		return &cobra.Command{
			Use:   name,
			Short: c.Description,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSupervise(app, name, c)
			},
		}
	case *config.CapsuleCommand:
		return &cobra.Command{
			Use:                name,
			Short:              c.Description,
			DisableFlagParsing: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				command := c.Run
				if len(args) > 0 {
					command = args
				}
				return runCapsuleCommand(c, command)
			},
		}
	default:
		return &cobra.Command{
			Use:    name,
			Hidden: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return fmt.Errorf("vagga: command %q has an unrecognized manifest shape", name)
			},
		}
	}
}

// runContainerCommand builds (or resolves) the named container and
// execs command inside it, choosing the interactive PTY path when
// stdout is a terminal the way git and docker's own CLIs do.
func runContainerCommand(app *App, name string, command []string, extraEnv map[string]string, extraVolumes map[string]config.Volume, writeMode runner.WriteMode, netns *runner.NetnsConfig) error {
	cont, ok := app.Manifest.Containers[name]
	if !ok {
		return containerNotFound(name)
	}
	version, err := app.Builder.Resolve(name)
	if err != nil {
		return err
	}

	req := &runner.Request{
		ContainerName: name,
		RootFS:        app.Layout.StoredRootFS(name, version),
		Volumes:       mergeVolumes(cont.Volumes, extraVolumes),
		Environ:       resolveEnviron(cont.Environ, extraEnv),
		Uids:          cont.Uids,
		Gids:          cont.Gids,
		WriteMode:     writeMode,
		Command:       command,
		WorkDir:       app.ProjectDir,
		Layout:        app.Layout,
		Netns:         netns,
		Stdin:         os.Stdin,
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
	}

	if term.IsTerminal(os.Stdout.Fd()) && term.IsTerminal(os.Stdin.Fd()) {
		return runner.RunInteractive(req)
	}
	return runner.Run(req)
}

// runCapsuleCommand runs a command against the builder's own capsule
// rather than a built container: used for one-off bootstrap helpers
// that need wget/git/tar before any container root even exists, so it
// deliberately bypasses the sandbox and execs directly on the host
// with /vagga/bin on PATH, mirroring how the builder itself invokes
// capsule tools out of pkg/vagga/steps.
func runCapsuleCommand(c *config.CapsuleCommand, command []string) error {
	features := make([]capsule.Feature, 0, len(c.Features))
	for _, f := range c.Features {
		feat, ok := parseFeature(f)
		if !ok {
			return fmt.Errorf("vagga: capsule command requests unknown feature %q", f)
		}
		features = append(features, feat)
	}
	if err := capsule.Ensure(vctx.NewCapsuleState(), nil, features, nil); err != nil {
		return err
	}
	if len(command) == 0 {
		return fmt.Errorf("vagga: capsule command has no run: entries")
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Env = append(os.Environ(), "PATH="+capsule.VaggaBinDir+":"+os.Getenv("PATH"))
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	return cmd.Run()
}

func parseFeature(name string) (capsule.Feature, bool) {
	for _, f := range []capsule.Feature{capsule.Https, capsule.Gzip, capsule.Bzip2, capsule.Xz, capsule.Git, capsule.AlpineInstaller} {
		if strings.EqualFold(f.String(), name) {
			return f, true
		}
	}
	return 0, false
}

// runSupervise runs every child command of a Supervise entry as its
// own `vagga <child-command-name>` subprocess: each needs its own independent
// sandbox.Enter call (itself a re-exec into a freshly cloned namespace,
// see pkg/vagga/sandbox), so concurrency here is plain os/exec fan-out
// rather than goroutines sharing one process's namespaces.
// When one child exits, Kill (default SIGTERM) is sent to the others.
func runSupervise(app *App, name string, s *config.Supervise) error {
	self, err := os.Executable()
	if err != nil {
		self = os.Args[0]
	}

	kill := syscall.SIGTERM
	if s.Kill != "" {
		if sig, ok := parseSignal(s.Kill); ok {
			kill = sig
		}
	}

	type child struct {
		name string
		cmd  *exec.Cmd
	}
	children := make([]*child, 0, len(s.Children))
	for childName, cmdName := range s.Children {
		if _, ok := app.Manifest.Commands[cmdName]; !ok {
			return fmt.Errorf("vagga: supervised command %q: %q is not defined", name, cmdName)
		}
		c := exec.Command(self, cmdName)
		c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
		c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		children = append(children, &child{name: childName, cmd: c})
	}

	for _, c := range children {
		if err := c.cmd.Start(); err != nil {
			return fmt.Errorf("vagga: starting supervised child %q: %w", c.name, err)
		}
	}

	done := make(chan struct {
		name string
		err  error
	}, len(children))
	var wg sync.WaitGroup
	for _, c := range children {
		wg.Add(1)
		go func(c *child) {
			defer wg.Done()
			err := c.cmd.Wait()
			done <- struct {
				name string
				err  error
			}{c.name, err}
		}(c)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	var first struct {
		name string
		err  error
	}
	select {
	case first = <-done:
	case sig := <-sigc:
		for _, c := range children {
			signalChild(c.cmd, sig.(syscall.Signal))
		}
	}
	for _, c := range children {
		signalChild(c.cmd, kill)
	}
	wg.Wait()
	close(done)

	if first.err != nil {
		return fmt.Errorf("vagga: supervised command %q failed: %w", first.name, first.err)
	}
	return nil
}

func signalChild(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, sig)
}

func parseSignal(name string) (syscall.Signal, bool) {
	switch strings.ToUpper(strings.TrimPrefix(name, "SIG")) {
	case "TERM":
		return syscall.SIGTERM, true
	case "KILL":
		return syscall.SIGKILL, true
	case "INT":
		return syscall.SIGINT, true
	case "HUP":
		return syscall.SIGHUP, true
	case "QUIT":
		return syscall.SIGQUIT, true
	default:
		return 0, false
	}
}

package distro

import (
	"fmt"
	"os"
	"os/exec"
)

// CommandRunner abstracts shelling out to a distro's package manager,
// mirroring pkg/vagga/capsule.Runner's testability convention: a fake
// backs driver tests, execRunner backs real builds.
type CommandRunner interface {
	Run(argv []string) error
}

// execRunner runs argv[0] via os/exec, streaming output to stderr the
// way the teacher's (now-removed) pkg/steps did for dpkg-buildpackage
// and sbuild invocations.
type execRunner struct{}

func (execRunner) Run(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("distro: empty command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%v: %w", argv, err)
	}
	return nil
}

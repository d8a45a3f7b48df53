package steps

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
)

// runChrootShell runs script under /bin/sh -e -c, chrooted into the
// in-progress build root with PATH extended by the capsule bin dir,
// the Go equivalent of original_source's generic.rs run_command (only
// partially retrieved in this pack) building one Command per
// GenericCommand/Sh step.
func runChrootShell(g *Guard, script string) error {
	cmd := exec.Command("chroot", g.RootDir, "/bin/sh", "-e", "-c", script)
	cmd.Env = environForGuard(g)
	cmd.Stdin = nil
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sh -c %q: %w", script, err)
	}
	return nil
}

func environForGuard(g *Guard) []string {
	env := []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin:/vagga/bin"}
	for _, key := range g.Ctx.Environ.Keys() {
		val, _ := g.Ctx.Environ.Get(key)
		env = append(env, key+"="+val)
	}
	return env
}

type shStep struct{ s *config.StepSh }

func (sh shStep) Hash(d *digest.Digest) error {
	d.FieldString("script", sh.s.Script)
	return nil
}

func (sh shStep) Build(g *Guard, build bool) error {
	if !build {
		return nil
	}
	return runChrootShell(g, sh.s.Script)
}

func (shStep) DependentOn() string { return "" }

package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/dpvpro/vagga/pkg/vagga/sandbox"
	"github.com/moby/term"
)

// interactivePayloadName is the sandbox payload registered for
// RunInteractive: the command runs behind a pty instead of a plain exec.
const interactivePayloadName = "runner.run_interactive"

func init() {
	sandbox.Register(interactivePayloadName, runInteractivePayload)
}

// RunInteractive is Run's counterpart for a command attached to the
// caller's own terminal: the child gets a pty instead of stdin/stdout
// directly, the host terminal is switched to raw mode for the duration,
// and SIGWINCH resizes are forwarded onto the pty. Grounded on
// tchow-twistedxcom-agent-deck's internal/tmux/pty.go for the pty.Start +
// SIGWINCH-goroutine shape, recombined with moby/term (the teacher's own
// terminal dependency) in place of golang.org/x/term for the host-side
// raw-mode switch, per SPEC_FULL.md §4.7.
func RunInteractive(req *Request) error {
	if len(req.Command) == 0 {
		return fmt.Errorf("runner: empty command")
	}
	cleanup, cfg, err := prepareSandbox(req)
	defer cleanup()
	if err != nil {
		return err
	}
	data, err := json.Marshal(execPayload{Command: req.Command, Environ: req.Environ, Netns: req.Netns})
	if err != nil {
		return fmt.Errorf("runner: encoding payload: %w", err)
	}
	return sandbox.Enter(cfg, interactivePayloadName, data)
}

// runInteractivePayload is interactivePayloadName's behavior: like
// runPayload, it runs inside a child Enter already placed into new
// namespaces and bind-mounted, with the original process's own terminal
// fds inherited directly as its os.Stdin/Stdout/Stderr.
func runInteractivePayload(cfg *sandbox.Config, data []byte) error {
	var p execPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("runner: decoding payload: %w", err)
	}
	if p.Netns != nil {
		if err := JoinNetns(p.Netns); err != nil {
			return fmt.Errorf("runner: joining network namespace: %w", err)
		}
	}

	cmd := exec.Command(p.Command[0], p.Command[1:]...)
	cmd.Dir = "/"
	cmd.Env = environSlice(p.Environ)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("runner: starting pty: %w", err)
	}
	defer ptmx.Close()

	stdinFd := os.Stdin.Fd()
	var oldState *term.State
	if term.IsTerminal(stdinFd) {
		oldState, err = term.SetRawTerminal(stdinFd)
		if err != nil {
			return fmt.Errorf("runner: setting raw terminal: %w", err)
		}
		defer func() { _ = term.RestoreTerminal(stdinFd, oldState) }()
	}

	resize := func() {
		if ws, err := term.GetWinsize(stdinFd); err == nil {
			_ = pty.Setsize(ptmx, &pty.Winsize{Rows: ws.Height, Cols: ws.Width})
		}
	}
	resize()

	sigwinch := make(chan os.Signal, 1)
	signal.Notify(sigwinch, syscall.SIGWINCH)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case _, ok := <-sigwinch:
				if !ok {
					return
				}
				resize()
			}
		}
	}()
	defer func() {
		signal.Stop(sigwinch)
		close(done)
		wg.Wait()
	}()

	go func() { _, _ = copyBuf(ptmx, os.Stdin) }()
	go func() { _, _ = copyBuf(os.Stdout, ptmx) }()

	return cmd.Wait()
}

func copyBuf(dst, src *os.File) (int64, error) {
	if dst == nil || src == nil {
		return 0, nil
	}
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			return total, err
		}
	}
}

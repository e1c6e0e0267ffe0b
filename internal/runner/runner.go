// Package runner manages the child process behind generate --watch --exec:
// a user command started after the first successful generation and
// restarted after each subsequent one.
package runner

import (
	"os"
	"os/exec"
	"sync"
)

// Runner supervises one child process across restarts.
type Runner struct {
	command string
	args    []string
	dir     string

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// New creates a runner for the given command. dir sets the child's working
// directory when non-empty.
func New(command string, args []string, dir string) *Runner {
	return &Runner{
		command: command,
		args:    args,
		dir:     dir,
	}
}

// newCmd wires stdout and stderr through to the parent. Stdin stays
// closed: the watch loop owns the terminal, and a regeneration hook that
// blocks on input would stall every restart.
func (r *Runner) newCmd() *exec.Cmd {
	cmd := exec.Command(r.command, r.args...)
	if r.dir != "" {
		cmd.Dir = r.dir
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// Restart stops the child and starts a fresh one.
func (r *Runner) Restart() error {
	if err := r.Stop(); err != nil {
		return err
	}
	return r.Start()
}

// Wait blocks until the child exits.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether the child is still alive.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.cmd.Process == nil {
		return false
	}
	return r.cmd.ProcessState == nil || !r.cmd.ProcessState.Exited()
}

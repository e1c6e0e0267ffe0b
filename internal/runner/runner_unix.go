//go:build !windows

package runner

import (
	"fmt"
	"syscall"
	"time"
)

// gracePeriod is how long Stop waits after SIGTERM before force-killing.
const gracePeriod = 5 * time.Second

// Start launches the child in its own process group. Exec hooks routinely
// run through a shell, so signals must reach the whole group, not just the
// shell.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cmd = r.newCmd()
	r.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	r.done = make(chan struct{})

	if err := r.cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", r.command, err)
	}

	go func() {
		r.cmd.Wait()
		close(r.done)
	}()

	return nil
}

// Stop terminates the child's process group with SIGTERM, escalating to
// SIGKILL after the grace period.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil || r.cmd.Process == nil {
		return nil
	}

	pgid, err := syscall.Getpgid(r.cmd.Process.Pid)
	if err == nil {
		syscall.Kill(-pgid, syscall.SIGTERM)
	} else {
		r.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-r.done:
		return nil
	case <-time.After(gracePeriod):
		if err == nil {
			syscall.Kill(-pgid, syscall.SIGKILL)
		} else {
			r.cmd.Process.Kill()
		}
		<-r.done
		return nil
	}
}

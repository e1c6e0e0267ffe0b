//go:build windows

package runner

import (
	"fmt"
	"time"
)

const gracePeriod = 5 * time.Second

// Start launches the child. Windows has no process groups in the POSIX
// sense, so the child is tracked directly.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cmd = r.newCmd()
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

// Stop kills the child. There is no SIGTERM equivalent to offer a graceful
// phase first.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil || r.cmd.Process == nil {
		return nil
	}

	r.cmd.Process.Kill()

	select {
	case <-r.done:
		return nil
	case <-time.After(gracePeriod):
		<-r.done
		return nil
	}
}

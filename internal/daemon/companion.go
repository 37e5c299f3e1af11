package daemon

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

const (
	// minPauseWait is the shortest time Pause gives the daemon to let go
	// of its devices.
	minPauseWait = 50 * time.Millisecond

	stopTimeout  = 5 * time.Second
	stopInterval = 100 * time.Millisecond
)

// Companion drives a running daemon from another process.
type Companion struct {
	pid       *PIDFile
	loopDelay time.Duration

	signal func(pid int, sig syscall.Signal) error
	sleep  func(time.Duration)

	paused    bool
	pausedPID int
}

// NewCompanion returns a companion for the daemon owning pid. loopDelay is
// the daemon's poll interval.
func NewCompanion(pid *PIDFile, loopDelay time.Duration) *Companion {
	return &Companion{
		pid:       pid,
		loopDelay: loopDelay,
		signal:    signalProcess,
		sleep:     time.Sleep,
	}
}

func signalProcess(pid int, sig syscall.Signal) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}
	return process.Signal(sig)
}

// Paused reports whether this companion paused the daemon and has not yet
// resumed it.
func (c *Companion) Paused() bool {
	return c.paused
}

// Send delivers sig to the running daemon and returns its PID.
func (c *Companion) Send(sig syscall.Signal) (int, error) {
	pid, err := c.pid.Running()
	if err != nil {
		return 0, err
	}
	if err := c.signal(pid, sig); err != nil {
		return pid, fmt.Errorf("signal %d: %w", pid, err)
	}
	return pid, nil
}

// Pause asks the daemon to release its devices and waits long enough for
// it to do so. It returns ErrNotRunning when there is no daemon.
func (c *Companion) Pause() error {
	if c.paused {
		return nil
	}
	pid, err := c.Send(syscall.SIGUSR1)
	if err != nil {
		return err
	}
	c.paused = true
	c.pausedPID = pid
	c.sleep(max(3*c.loopDelay, minPauseWait))
	return nil
}

// Resume resumes a daemon this companion paused. Later calls do nothing.
func (c *Companion) Resume() error {
	if !c.paused {
		return nil
	}
	c.paused = false
	if err := c.signal(c.pausedPID, syscall.SIGUSR2); err != nil {
		return fmt.Errorf("resume %d: %w", c.pausedPID, err)
	}
	return nil
}

// Stop terminates the daemon and waits for it to exit.
func (c *Companion) Stop() error {
	pid, err := c.Send(syscall.SIGTERM)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return nil
		}
		c.sleep(stopInterval)
	}
	return fmt.Errorf("daemon %d did not stop within %v", pid, stopTimeout)
}

// Run calls fn with the daemon paused. The daemon is resumed however fn
// returns, including by panic. A missing daemon is not an error.
func (c *Companion) Run(fn func() error) (err error) {
	if err := c.Pause(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	defer func() {
		if rerr := c.Resume(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}

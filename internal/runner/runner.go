// Package runner spawns the external processes behind macro actions.
//
// Spawning never blocks the caller. Foreground commands share the daemon's
// terminal. Detached commands get their own session and outlive the daemon.
// Both are reaped in the background.
package runner

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"keebie/internal/resolver"
)

// Shell is the interpreter for ShellCommand actions.
const Shell = "/bin/sh"

// ErrNotRunnable is returned for actions that do not spawn a process.
var ErrNotRunnable = errors.New("runner: action does not spawn a process")

// Executor spawns actions.
type Executor interface {
	Run(action resolver.Action) error
}

// Command describes a process to start.
type Command struct {
	Argv   []string
	Detach bool
}

// CommandFor builds the argument vector of an action.
func CommandFor(action resolver.Action) (Command, error) {
	switch a := action.(type) {
	case resolver.ShellCommand:
		return Command{Argv: []string{Shell, "-c", a.Text}, Detach: a.Detach}, nil
	case resolver.ScriptInvocation:
		return Command{Argv: a.Argv(), Detach: a.Detach}, nil
	default:
		return Command{}, fmt.Errorf("%w: %s", ErrNotRunnable, action)
	}
}

// Runner is the process-spawning Executor.
type Runner struct {
	logger *slog.Logger
	dir    string
}

// New creates a Runner. Commands run in dir (the user's home when empty).
func New(dir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir, _ = os.UserHomeDir()
	}
	return &Runner{logger: logger, dir: dir}
}

// Run starts the action's process and returns without waiting for it.
func (r *Runner) Run(action resolver.Action) error {
	c, err := CommandFor(action)
	if err != nil {
		return err
	}
	return r.Start(c)
}

// Start launches c.
func (r *Runner) Start(c Command) error {
	if len(c.Argv) == 0 {
		return errors.New("runner: empty command")
	}

	cmd := exec.Command(c.Argv[0], c.Argv[1:]...)
	cmd.Dir = r.dir

	if c.Detach {
		devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return fmt.Errorf("open %s: %w", os.DevNull, err)
		}
		defer devNull.Close()
		cmd.Stdin = devNull
		cmd.Stdout = devNull
		cmd.Stderr = devNull
		cmd.SysProcAttr = detachedSysProcAttr()
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.Argv[0], err)
	}

	pid := cmd.Process.Pid
	if c.Detach {
		r.logger.Debug("process detached", "pid", pid, "argv", c.Argv)
	}

	// Detached children still belong to us until they exit; always reap.
	started := time.Now()
	go func() {
		err := cmd.Wait()
		attrs := []any{"pid", pid, "duration", time.Since(started).Round(time.Millisecond)}
		if err != nil {
			r.logger.Warn("macro command failed", append(attrs, "error", err)...)
			return
		}
		r.logger.Debug("macro command exited", attrs...)
	}()
	return nil
}

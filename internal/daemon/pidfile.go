package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

var (
	// ErrAlreadyRunning is returned by Acquire when a live process holds
	// the PID file.
	ErrAlreadyRunning = errors.New("daemon: already running")

	// ErrNotRunning is returned when no live daemon owns the PID file.
	ErrNotRunning = errors.New("daemon: not running")
)

// PIDFile is the single-instance lock.
type PIDFile struct {
	path string
	pid  int
}

// NewPIDFile returns the lock at path for the current process.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path, pid: os.Getpid()}
}

// Path returns the file location.
func (p *PIDFile) Path() string {
	return p.path
}

// Acquire creates the file holding our PID. A file left by a dead process,
// one holding garbage, or one recording our own PID from an earlier boot is
// removed and creation retried once.
func (p *PIDFile) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}

	for attempt := 0; ; attempt++ {
		err := p.create()
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrExist) || attempt > 0 {
			return fmt.Errorf("write pid file: %w", err)
		}

		if pid, err := p.Read(); err == nil && pid != p.pid && processAlive(pid) {
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale pid file: %w", err)
		}
	}
}

func (p *PIDFile) create() error {
	f, err := os.OpenFile(p.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(strconv.Itoa(p.pid)); err != nil {
		f.Close()
		os.Remove(p.path)
		return err
	}
	return f.Close()
}

// Release removes the file if it still holds our PID.
func (p *PIDFile) Release() error {
	pid, err := p.Read()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if pid != p.pid {
		return nil
	}
	return os.Remove(p.path)
}

// Read returns the PID recorded in the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file %s", p.path)
	}
	return pid, nil
}

// Running returns the PID of the live daemon holding the file.
func (p *PIDFile) Running() (int, error) {
	pid, err := p.Read()
	if err != nil {
		return 0, ErrNotRunning
	}
	if !processAlive(pid) {
		return 0, ErrNotRunning
	}
	return pid, nil
}

// processAlive probes pid with signal 0.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

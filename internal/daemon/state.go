package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// State is the daemon's published status.
type State struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Paused    bool      `json:"paused"`
	Devices   []string  `json:"devices"`

	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// StateFile stores State as JSON.
type StateFile struct {
	path string
}

// NewStateFile returns the state file at path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Write replaces the file atomically.
func (f *StateFile) Write(state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	if err := writeAtomic(f.path, data); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Read loads the file.
func (f *StateFile) Read() (*State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// Remove deletes the file.
func (f *StateFile) Remove() error {
	return removeIfExists(f.path)
}

// Status is the daemon status as seen from another process.
type Status struct {
	Running   bool
	PID       int
	Paused    bool
	StartedAt time.Time
	Uptime    time.Duration
	Devices   []string
	Metrics   map[string]float64
}

// ReadStatus combines the PID file and the state file.
func ReadStatus(pid *PIDFile, state *StateFile) Status {
	var status Status
	if p, err := pid.Running(); err == nil {
		status.Running = true
		status.PID = p
	}
	if !status.Running {
		return status
	}

	if s, err := state.Read(); err == nil && s.PID == status.PID {
		status.Paused = s.Paused
		status.StartedAt = s.StartedAt
		status.Uptime = time.Since(s.StartedAt).Round(time.Second)
		status.Devices = s.Devices
		status.Metrics = s.Metrics
	}
	return status
}

package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"slices"
	"sync"
	"time"
)

// ErrPanic wraps a recovered panic returned by CrashHandler.Guard.
var ErrPanic = errors.New("panic recovered")

// CrashReport is written to disk when a guarded function panics.
type CrashReport struct {
	Timestamp    time.Time      `json:"timestamp"`
	GOOS         string         `json:"goos"`
	GOARCH       string         `json:"goarch"`
	NumGoroutine int            `json:"num_goroutine"`
	GoVersion    string         `json:"go_version"`
	PanicValue   string         `json:"panic_value"`
	StackTrace   string         `json:"stack_trace"`
	Component    string         `json:"component,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// CrashHandler turns panics into crash reports under a directory.
type CrashHandler struct {
	mu        sync.Mutex
	dir       string
	component string
	logger    *slog.Logger
}

// NewCrashHandler creates a handler writing reports to dir.
func NewCrashHandler(dir, component string, logger *slog.Logger) *CrashHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrashHandler{dir: dir, component: component, logger: logger}
}

// Guard runs fn. A panic is recorded and returned as an error wrapping
// ErrPanic.
func (h *CrashHandler) Guard(context map[string]any, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			report := h.HandlePanic(r, context)
			err = fmt.Errorf("%w: %s", ErrPanic, report.PanicValue)
		}
	}()
	return fn()
}

// HandlePanic records panicValue with the current stack.
func (h *CrashHandler) HandlePanic(panicValue any, context map[string]any) CrashReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		GoVersion:    runtime.Version(),
		PanicValue:   fmt.Sprint(panicValue),
		StackTrace:   string(debug.Stack()),
		Component:    h.component,
		Context:      context,
	}

	path, err := h.write(report)
	if err != nil {
		h.logger.Error("crash report not written", "panic", report.PanicValue, "error", err)
		return report
	}
	h.logger.Error("panic recovered", "panic", report.PanicValue, "report", path)
	return report
}

func (h *CrashHandler) write(report CrashReport) (string, error) {
	if err := os.MkdirAll(h.dir, 0750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}

	name := fmt.Sprintf("crash-%s-%s.json", report.Component, report.Timestamp.Format("20060102-150405.000000"))
	path := filepath.Join(h.dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// Reports returns the stored crash reports, oldest first.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}
	slices.Sort(files)

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

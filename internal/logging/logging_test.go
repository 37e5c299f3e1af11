package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if level != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, level, tt.expected)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat("TEXT"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(TEXT) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestConfigApply(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Apply("debug", "json", "both"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if cfg.Level != LevelDebug || cfg.Format != FormatJSON || cfg.Output != "both" {
		t.Errorf("Apply gave level=%v format=%v output=%s", cfg.Level, cfg.Format, cfg.Output)
	}

	if err := cfg.Apply("info", "text", "syslog"); err == nil {
		t.Error("expected error for unknown output")
	}
	if cfg.Level != LevelDebug || cfg.Output != "both" {
		t.Error("failed Apply must leave the config unchanged")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo {
		t.Errorf("expected info level, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected stderr output, got %s", cfg.Output)
	}
	if cfg.Component != "keebie" {
		t.Errorf("expected keebie component, got %s", cfg.Component)
	}
	if !strings.HasSuffix(cfg.FilePath, filepath.Join("keebie", "keebie.log")) {
		t.Errorf("unexpected log path %s", cfg.FilePath)
	}
}

func TestHandlerJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Level: LevelDebug, Format: FormatJSON, Component: "daemon"}

	l := slog.New(NewHandler(&buf, cfg))
	l.Info("layer switched", "device", "pad", "layer", "media")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if rec["component"] != "daemon" || rec["device"] != "pad" || rec["msg"] != "layer switched" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, &Config{Level: LevelWarn, Format: FormatText}))

	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestLoggerFileOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = filepath.Join(t.TempDir(), "logs", "keebie.log")

	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.WithComponent("registry").Info("device added", "device", "pad")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "component=registry") {
		t.Errorf("component not in log: %s", data)
	}
}

func TestFileRotatorRotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		FilePath:   filepath.Join(dir, "keebie.log"),
		MaxSize:    1,
		MaxBackups: 2,
	}

	r, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("NewFileRotator: %v", err)
	}

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for range 3 {
		if _, err := r.Write(chunk); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := r.Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) < 2 {
		t.Errorf("expected rotated files, got %v", files)
	}
}

func TestFileRotatorRotatesDaily(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{FilePath: filepath.Join(dir, "keebie.log"), MaxSize: 10}

	r, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("NewFileRotator: %v", err)
	}
	defer r.Close()

	day := time.Date(2026, 5, 1, 23, 59, 0, 0, time.UTC)
	r.now = func() time.Time { return day }
	r.openedAt = day

	r.Write([]byte("first\n"))
	day = day.Add(2 * time.Minute)
	r.Write([]byte("second\n"))

	files, _ := r.Files()
	if len(files) != 2 {
		t.Fatalf("expected one rotation, got %v", files)
	}
	data, _ := os.ReadFile(cfg.FilePath)
	if string(data) != "second\n" {
		t.Errorf("current file = %q", data)
	}
}

func TestCrashHandlerGuard(t *testing.T) {
	dir := t.TempDir()
	h := NewCrashHandler(dir, "daemon", slog.New(NewHandler(&bytes.Buffer{}, DefaultConfig())))

	err := h.Guard(map[string]any{"device": "pad"}, func() error {
		panic("boom")
	})
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}

	reports, err := h.Reports()
	if err != nil {
		t.Fatalf("Reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}
	if reports[0].PanicValue != "boom" || reports[0].Context["device"] != "pad" {
		t.Errorf("unexpected report %+v", reports[0])
	}
	if !strings.Contains(reports[0].StackTrace, "TestCrashHandlerGuard") {
		t.Error("stack trace missing caller")
	}
}

func TestCrashHandlerGuardPassesError(t *testing.T) {
	h := NewCrashHandler(t.TempDir(), "daemon", nil)
	want := errors.New("plain")
	if err := h.Guard(nil, func() error { return want }); err != want {
		t.Errorf("Guard returned %v", err)
	}
	reports, _ := h.Reports()
	if len(reports) != 0 {
		t.Errorf("unexpected reports %v", reports)
	}
}

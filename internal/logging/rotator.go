package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// FileRotator is an io.Writer over a log file that rolls the file over
// when it grows past MaxSize or the day changes.
type FileRotator struct {
	config *Config
	now    func() time.Time

	mu       sync.Mutex
	file     *os.File
	size     int64
	openedAt time.Time
	bg       sync.WaitGroup
}

// NewFileRotator opens (or creates) cfg.FilePath for appending.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	r := &FileRotator{config: cfg, now: time.Now}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := r.openFile(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) openFile() error {
	file, err := os.OpenFile(r.config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	r.file = file
	r.size = info.Size()
	r.openedAt = r.now()
	return nil
}

// Write implements io.Writer.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.openFile(); err != nil {
			return 0, err
		}
	}

	if r.shouldRotate(int64(len(p))) {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *FileRotator) shouldRotate(writeSize int64) bool {
	if r.size == 0 {
		return false
	}
	if maxBytes := r.config.MaxSize * 1024 * 1024; maxBytes > 0 && r.size+writeSize > maxBytes {
		return true
	}
	now := r.now()
	return now.YearDay() != r.openedAt.YearDay() || now.Year() != r.openedAt.Year()
}

func (r *FileRotator) rotate() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("close current log: %w", err)
		}
		r.file = nil
	}

	dir, name, ext := r.parts()
	rotated := filepath.Join(dir, fmt.Sprintf("%s-%s%s", name, r.now().Format("20060102-150405.000000000"), ext))
	if err := os.Rename(r.config.FilePath, rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}

	if err := r.openFile(); err != nil {
		return err
	}

	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		if r.config.Compress {
			compressFile(rotated)
		}
		r.cleanup()
	}()
	return nil
}

func (r *FileRotator) parts() (dir, name, ext string) {
	base := filepath.Base(r.config.FilePath)
	ext = filepath.Ext(base)
	return filepath.Dir(r.config.FilePath), strings.TrimSuffix(base, ext), ext
}

// compressFile gzips path and removes the original on success.
func compressFile(path string) {
	input, err := os.Open(path)
	if err != nil {
		return
	}
	defer input.Close()

	output, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	defer output.Close()

	gz := gzip.NewWriter(output)
	gz.Name = filepath.Base(path)
	if _, err := io.Copy(gz, input); err != nil {
		gz.Close()
		os.Remove(path + ".gz")
		return
	}
	if err := gz.Close(); err != nil {
		os.Remove(path + ".gz")
		return
	}
	os.Remove(path)
}

// cleanup enforces MaxBackups and MaxAge on rotated files.
func (r *FileRotator) cleanup() {
	files, err := r.rotated()
	if err != nil {
		return
	}

	type entry struct {
		path    string
		modTime time.Time
	}
	entries := make([]entry, 0, len(files))
	for _, f := range files {
		if info, err := os.Stat(f); err == nil {
			entries = append(entries, entry{f, info.ModTime()})
		}
	}
	slices.SortFunc(entries, func(a, b entry) int { return a.modTime.Compare(b.modTime) })

	if r.config.MaxBackups > 0 && len(entries) > r.config.MaxBackups {
		for _, e := range entries[:len(entries)-r.config.MaxBackups] {
			os.Remove(e.path)
		}
		entries = entries[len(entries)-r.config.MaxBackups:]
	}

	if r.config.MaxAge > 0 {
		cutoff := r.now().AddDate(0, 0, -r.config.MaxAge)
		for _, e := range entries {
			if e.modTime.Before(cutoff) {
				os.Remove(e.path)
			}
		}
	}
}

func (r *FileRotator) rotated() ([]string, error) {
	dir, name, ext := r.parts()
	return filepath.Glob(filepath.Join(dir, name+"-*"+ext+"*"))
}

// Files lists the current log file followed by the rotated ones.
func (r *FileRotator) Files() ([]string, error) {
	rotated, err := r.rotated()
	return append([]string{r.config.FilePath}, rotated...), err
}

// Close waits for background compression and closes the file.
func (r *FileRotator) Close() error {
	r.bg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}


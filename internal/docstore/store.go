package docstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format is an on-disk document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// extensions lists the recognized file extensions in lookup order.
var extensions = []struct {
	ext    string
	format Format
}{
	{".json", FormatJSON},
	{".toml", FormatTOML},
	{".yaml", FormatYAML},
	{".yml", FormatYAML},
}

// Store reads and writes the documents of one directory.
type Store struct {
	dir    string
	format Format
}

// New creates a store rooted at dir. Newly created documents are written
// in format.
func New(dir string, format Format) *Store {
	if format == "" {
		format = FormatJSON
	}
	return &Store{dir: dir, format: format}
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file holding document name, or the path a new document
// would be written to.
func (s *Store) Path(name string) string {
	if p, _, ok := s.find(name); ok {
		return p
	}
	return filepath.Join(s.dir, name+"."+string(s.format))
}

func (s *Store) find(name string) (string, Format, bool) {
	for _, e := range extensions {
		p := filepath.Join(s.dir, name+e.ext)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, e.format, true
		}
	}
	return "", "", false
}

// Exists reports whether document name exists in any format.
func (s *Store) Exists(name string) bool {
	_, _, ok := s.find(name)
	return ok
}

// Names lists the documents in the store, sorted.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if formatFor(ext) == "" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func formatFor(ext string) Format {
	for _, e := range extensions {
		if e.ext == ext {
			return e.format
		}
	}
	return ""
}

// Load reads document name. A missing document yields an error wrapping
// fs.ErrNotExist; an undecodable one a *MalformedError.
func (s *Store) Load(name string) (Document, error) {
	path, format, ok := s.find(name)
	if !ok {
		return nil, fmt.Errorf("load %s: %w", name, fs.ErrNotExist)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	doc, err := Decode(data, format)
	if err != nil {
		return nil, &MalformedError{Name: name, Path: path, Err: err}
	}
	return doc, nil
}

// Save merges partial into document name (top-level overwrite) and writes
// it back. A missing document is created; a malformed one is left alone
// and its *MalformedError returned.
func (s *Store) Save(name string, partial Document) error {
	doc, err := s.Load(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		doc = Document{}
	case err != nil:
		return err
	}
	doc.Merge(partial)
	return s.write(name, doc)
}

// Create writes doc as a new document, replacing any existing one.
func (s *Store) Create(name string, doc Document) error {
	if doc == nil {
		doc = Document{}
	}
	return s.write(name, doc)
}

// DeleteField removes the (possibly nested) field at path from document
// name and persists the result.
func (s *Store) DeleteField(name string, path []string) error {
	doc, err := s.Load(name)
	if err != nil {
		return err
	}
	if err := doc.DeleteAt(path); err != nil {
		return fmt.Errorf("delete field in %s: %w", name, err)
	}
	return s.write(name, doc)
}

// Remove deletes document name in whichever format it exists.
func (s *Store) Remove(name string) error {
	path, _, ok := s.find(name)
	if !ok {
		return fmt.Errorf("remove %s: %w", name, fs.ErrNotExist)
	}
	return os.Remove(path)
}

func (s *Store) write(name string, doc Document) error {
	path, format, ok := s.find(name)
	if !ok {
		path = filepath.Join(s.dir, name+"."+string(s.format))
		format = s.format
	}

	data, err := Encode(doc, format)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// Decode parses data in the given format.
func Decode(data []byte, format Format) (Document, error) {
	var raw map[string]any

	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if len(bytes.TrimSpace(data)) == 0 {
			return Document{}, nil
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	}

	return normalize(raw)
}

// Encode serializes doc in the given format.
func Encode(doc Document, format Format) ([]byte, error) {
	switch format {
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(map[string]any(doc)); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatYAML:
		return yaml.Marshal(map[string]any(doc))
	default:
		data, err := json.MarshalIndent(doc, "", "   ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
}

// Package docstore persists the structured, human-editable documents that
// configure keebie: layers, devices and settings.
//
// Documents are field→value trees stored one per file in TOML, JSON or
// YAML. Values are normalized to the JSON data model (map[string]any,
// []any, float64, string, bool, nil) regardless of the on-disk format.
package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
)

var (
	// ErrMalformed is returned when a document cannot be decoded.
	ErrMalformed = errors.New("docstore: malformed document")

	// ErrEmptyPath is returned by DeleteAt for an empty path.
	ErrEmptyPath = errors.New("docstore: empty field path")

	// ErrFieldNotFound is returned by DeleteAt when a path segment is missing.
	ErrFieldNotFound = errors.New("docstore: field not found")
)

// MalformedError describes a document that failed to decode.
type MalformedError struct {
	Name string
	Path string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("docstore: malformed document %s (%s): %v", e.Name, e.Path, e.Err)
}

func (e *MalformedError) Unwrap() []error {
	return []error{ErrMalformed, e.Err}
}

// Document is a decoded configuration document.
type Document map[string]any

// Merge overwrites top-level fields of d with those of partial.
func (d Document) Merge(partial Document) {
	maps.Copy(d, partial)
}

// DeleteAt removes the field addressed by path, walking nested documents
// for all but the last segment.
func (d Document) DeleteAt(path []string) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}

	current := map[string]any(d)
	for i, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s", ErrFieldNotFound, strings.Join(path[:i+1], "."))
		}
		current = next
	}

	last := path[len(path)-1]
	if _, ok := current[last]; !ok {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, strings.Join(path, "."))
	}
	delete(current, last)
	return nil
}

// String returns the string field key, if present and a string.
func (d Document) String(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// Strings returns the string elements of the list field key.
func (d Document) Strings(key string) ([]string, bool) {
	list, ok := d[key].([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

// Sub returns the nested document at key.
func (d Document) Sub(key string) (Document, bool) {
	m, ok := d[key].(map[string]any)
	return Document(m), ok
}

// normalize converts decoder-specific types (int64, map[any]any, time
// values, ...) into the JSON data model.
func normalize(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// Package layer manages keymap documents ("layers"): chord→action
// bindings, per-layer variables and the indicator LEDs a layer lights.
package layer

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"keebie/internal/docstore"
)

const (
	// VarsField holds the per-layer variable table.
	VarsField = "vars"
	// LEDsField holds the indicator codes lit while the layer is active.
	LEDsField = "leds"

	// DefaultName is the layer every device falls back to.
	DefaultName = "default"
)

// legacyExt is accepted (and stripped) on layer names for compatibility
// with bindings written as "layer:name.json".
const legacyExt = ".json"

// Layer is a decoded keymap document.
type Layer struct {
	Name     string
	Bindings map[string]string
	Vars     map[string]string

	// LEDs is nil when the document has no leds field at all.
	LEDs []int
}

// HasLEDs reports whether the document declared an leds field.
func (l *Layer) HasLEDs() bool {
	return l.LEDs != nil
}

// Lookup returns the binding for a history string.
func (l *Layer) Lookup(history string) (string, bool) {
	v, ok := l.Bindings[history]
	return v, ok
}

// Template returns the document a newly created layer starts from.
func Template() docstore.Document {
	return docstore.Document{"KEY_ESC": "layer:" + DefaultName}
}

// Store loads and saves layers.
type Store struct {
	docs   *docstore.Store
	logger *slog.Logger
}

// NewStore creates a layer store over docs.
func NewStore(docs *docstore.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{docs: docs, logger: logger}
}

// Docs returns the underlying document store.
func (s *Store) Docs() *docstore.Store {
	return s.docs
}

// Normalize strips the legacy ".json" suffix from a layer name.
func Normalize(name string) string {
	return strings.TrimSuffix(strings.TrimSpace(name), legacyExt)
}

// Load reads layer name. It never fails: a missing or malformed document
// is logged and yields an empty layer.
func (s *Store) Load(name string) *Layer {
	name = Normalize(name)
	empty := &Layer{Name: name, Bindings: map[string]string{}, Vars: map[string]string{}}

	doc, err := s.docs.Load(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("layer not found", "layer", name)
		} else {
			s.logger.Warn("layer unreadable, using empty layer", "layer", name, "error", err)
		}
		return empty
	}

	if err := Validate(doc); err != nil {
		s.logger.Warn("layer invalid, using empty layer", "layer", name, "error", err)
		return empty
	}

	return decode(name, doc, s.logger)
}

func decode(name string, doc docstore.Document, logger *slog.Logger) *Layer {
	l := &Layer{Name: name, Bindings: map[string]string{}, Vars: map[string]string{}}

	for key, value := range doc {
		switch key {
		case VarsField:
			vars, _ := doc.Sub(VarsField)
			for k, v := range vars {
				if s, ok := v.(string); ok {
					l.Vars[k] = s
				}
			}
		case LEDsField:
			l.LEDs = decodeLEDs(doc[LEDsField], logger)
		default:
			if s, ok := value.(string); ok {
				l.Bindings[key] = s
			}
		}
	}
	return l
}

func decodeLEDs(v any, logger *slog.Logger) []int {
	list, _ := v.([]any)
	leds := make([]int, 0, len(list))
	for _, item := range list {
		switch t := item.(type) {
		case float64:
			leds = append(leds, int(t))
		case string:
			code, ok := LEDCode(t)
			if !ok {
				logger.Warn("unknown indicator name", "led", t)
				continue
			}
			leds = append(leds, code)
		}
	}
	slices.Sort(leds)
	return slices.Compact(leds)
}

// Save merges partial into layer name and persists it.
func (s *Store) Save(name string, partial docstore.Document) error {
	if err := s.docs.Save(Normalize(name), partial); err != nil {
		return fmt.Errorf("save layer %s: %w", name, err)
	}
	return nil
}

// Exists reports whether layer name has a document.
func (s *Store) Exists(name string) bool {
	return s.docs.Exists(Normalize(name))
}

// Create writes a new layer seeded from Template. Existing layers are left
// untouched.
func (s *Store) Create(name string) error {
	name = Normalize(name)
	if name == "" {
		return errors.New("layer: empty name")
	}
	if s.docs.Exists(name) {
		return nil
	}
	if err := s.docs.Create(name, Template()); err != nil {
		return fmt.Errorf("create layer %s: %w", name, err)
	}
	s.logger.Info("layer created", "layer", name)
	return nil
}

// Names lists the stored layers.
func (s *Store) Names() ([]string, error) {
	return s.docs.Names()
}

var ledNames = map[string]int{
	"LED_NUML":     0x00,
	"LED_CAPSL":    0x01,
	"LED_SCROLLL":  0x02,
	"LED_COMPOSE":  0x03,
	"LED_KANA":     0x04,
	"LED_SLEEP":    0x05,
	"LED_SUSPEND":  0x06,
	"LED_MUTE":     0x07,
	"LED_MISC":     0x08,
	"LED_MAIL":     0x09,
	"LED_CHARGING": 0x0a,
}

// LEDCode resolves an indicator name such as "LED_CAPSL" (or "capsl").
func LEDCode(name string) (int, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(n, "LED_") {
		n = "LED_" + n
	}
	code, ok := ledNames[n]
	return code, ok
}

// LEDName returns the indicator name of code, or its number when unnamed.
func LEDName(code int) string {
	for name, c := range ledNames {
		if c == code {
			return name
		}
	}
	return strconv.Itoa(code)
}

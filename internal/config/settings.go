package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"keebie/internal/docstore"
	"keebie/internal/ledger"
	"keebie/internal/resolver"
)

// Settings is the validated daemon configuration.
type Settings struct {
	MultiKeyMode        ledger.Mode
	ForceBackground     bool
	BackgroundInversion bool
	LoopDelay           time.Duration
	HoldThreshold       time.Duration
	FlushTimeout        time.Duration

	LogLevel  string
	LogFormat string
	LogOutput string

	Journal           bool
	NotifyLayerSwitch bool
	WatchDevices      bool
}

// Kind tags how a setting's raw value is validated.
type Kind int

const (
	KindChoice Kind = iota
	KindBool
	KindRange
)

// Setting describes one key of the settings document.
type Setting struct {
	Key     string
	Kind    Kind
	Choices []string
	Min     float64
	Max     float64
	Default any
	// Env, when set, overrides the document value.
	Env string

	assign func(*Settings, any)
}

// Check validates raw against the setting and returns the normalized value.
func (s Setting) Check(raw any) (any, error) {
	switch s.Kind {
	case KindChoice:
		v, ok := raw.(string)
		if !ok {
			return nil, &ValidationError{Field: s.Key, Message: "expected type string"}
		}
		v = strings.ToLower(strings.TrimSpace(v))
		if !slices.Contains(s.Choices, v) {
			return nil, &ValidationError{Field: s.Key, Message: fmt.Sprintf("must be one of %s", strings.Join(s.Choices, ", "))}
		}
		return v, nil

	case KindBool:
		v, ok := raw.(bool)
		if !ok {
			return nil, &ValidationError{Field: s.Key, Message: "expected type bool"}
		}
		return v, nil

	case KindRange:
		v, ok := toFloat(raw)
		if !ok {
			return nil, &ValidationError{Field: s.Key, Message: "expected type number"}
		}
		if v < s.Min || v > s.Max {
			e := RangeError(s.Key, s.Min, s.Max)
			return nil, &e
		}
		return v, nil
	}
	return nil, fmt.Errorf("config: %s: unknown setting kind %d", s.Key, s.Kind)
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func seconds(v any) time.Duration {
	return time.Duration(math.Round(v.(float64) * float64(time.Second)))
}

// Registry lists every setting in document order.
var Registry = []Setting{
	{
		Key: "multiKeyMode", Kind: KindChoice, Choices: []string{"combination", "sequence"}, Default: "combination",
		assign: func(s *Settings, v any) { s.MultiKeyMode, _ = ledger.ParseMode(v.(string)) },
	},
	{
		Key: "forceBackground", Kind: KindBool, Default: false,
		assign: func(s *Settings, v any) { s.ForceBackground = v.(bool) },
	},
	{
		Key: "backgroundInversion", Kind: KindBool, Default: false,
		assign: func(s *Settings, v any) { s.BackgroundInversion = v.(bool) },
	},
	{
		Key: "loopDelay", Kind: KindRange, Min: 0.001, Max: 5, Default: 0.0167,
		assign: func(s *Settings, v any) { s.LoopDelay = seconds(v) },
	},
	{
		Key: "holdThreshold", Kind: KindRange, Min: 0, Max: 60, Default: 1.0,
		assign: func(s *Settings, v any) { s.HoldThreshold = seconds(v) },
	},
	{
		Key: "flushTimeout", Kind: KindRange, Min: 0, Max: 60, Default: 0.5,
		assign: func(s *Settings, v any) { s.FlushTimeout = seconds(v) },
	},
	{
		Key: "logLevel", Kind: KindChoice, Choices: []string{"debug", "info", "warn", "error"}, Default: "info",
		Env:    "KEEBIE_LOG_LEVEL",
		assign: func(s *Settings, v any) { s.LogLevel = v.(string) },
	},
	{
		Key: "logFormat", Kind: KindChoice, Choices: []string{"text", "json"}, Default: "text",
		Env:    "KEEBIE_LOG_FORMAT",
		assign: func(s *Settings, v any) { s.LogFormat = v.(string) },
	},
	{
		Key: "logOutput", Kind: KindChoice, Choices: []string{"stderr", "stdout", "file", "both"}, Default: "stderr",
		Env:    "KEEBIE_LOG_OUTPUT",
		assign: func(s *Settings, v any) { s.LogOutput = v.(string) },
	},
	{
		Key: "journal", Kind: KindBool, Default: false,
		assign: func(s *Settings, v any) { s.Journal = v.(bool) },
	},
	{
		Key: "notifyLayerSwitch", Kind: KindBool, Default: false,
		assign: func(s *Settings, v any) { s.NotifyLayerSwitch = v.(bool) },
	},
	{
		Key: "watchDevices", Kind: KindBool, Default: true,
		assign: func(s *Settings, v any) { s.WatchDevices = v.(bool) },
	},
}

func lookup(key string) (Setting, bool) {
	for _, s := range Registry {
		if s.Key == key {
			return s, true
		}
	}
	return Setting{}, false
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	var s Settings
	for _, def := range Registry {
		def.assign(&s, def.Default)
	}
	return s
}

// ParseSettings validates doc. Missing, unknown and invalid keys are
// reported; the affected settings keep their defaults.
func ParseSettings(doc docstore.Document) (Settings, ValidationErrors) {
	s := DefaultSettings()
	var warnings ValidationErrors

	for _, def := range Registry {
		raw, ok := doc[def.Key]
		if env := os.Getenv(def.Env); def.Env != "" && env != "" {
			raw, ok = envValue(def, env), true
		}
		if !ok {
			warnings = append(warnings, ValidationError{
				Field:   def.Key,
				Message: fmt.Sprintf("missing, using default %v", def.Default),
			})
			continue
		}

		v, err := def.Check(raw)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.Message += fmt.Sprintf(", using default %v", def.Default)
				warnings = append(warnings, *ve)
			} else {
				warnings = append(warnings, ValidationError{Field: def.Key, Message: err.Error()})
			}
			continue
		}
		def.assign(&s, v)
	}

	for _, key := range slices.Sorted(maps.Keys(doc)) {
		if _, ok := lookup(key); !ok {
			warnings = append(warnings, ValidationError{Field: key, Message: "unknown setting, ignored"})
		}
	}

	return s, warnings
}

func envValue(def Setting, env string) any {
	switch def.Kind {
	case KindBool:
		if b, err := strconv.ParseBool(env); err == nil {
			return b
		}
	case KindRange:
		if f, err := strconv.ParseFloat(env, 64); err == nil {
			return f
		}
	}
	return env
}

// LoadSettings reads the settings document from dir. It never fails: a
// missing document yields the defaults silently, an unreadable one yields
// the defaults and a warning.
func LoadSettings(dir string) (Settings, ValidationErrors) {
	docs := docstore.New(dir, docstore.FormatTOML)
	doc, err := docs.Load(SettingsName)
	if errors.Is(err, fs.ErrNotExist) {
		s, _ := ParseSettings(DefaultDocument())
		return s, nil
	}
	if err != nil {
		s, _ := ParseSettings(DefaultDocument())
		return s, ValidationErrors{{Field: SettingsName, Message: err.Error() + ", using defaults"}}
	}
	return ParseSettings(doc)
}

// DefaultDocument returns the settings document holding every default.
func DefaultDocument() docstore.Document {
	doc := make(docstore.Document, len(Registry))
	for _, def := range Registry {
		doc[def.Key] = def.Default
	}
	return doc
}

// Document renders s as a settings document.
func (s Settings) Document() docstore.Document {
	return docstore.Document{
		"multiKeyMode":        s.MultiKeyMode.String(),
		"forceBackground":     s.ForceBackground,
		"backgroundInversion": s.BackgroundInversion,
		"loopDelay":           s.LoopDelay.Seconds(),
		"holdThreshold":       s.HoldThreshold.Seconds(),
		"flushTimeout":        s.FlushTimeout.Seconds(),
		"logLevel":            s.LogLevel,
		"logFormat":           s.LogFormat,
		"logOutput":           s.LogOutput,
		"journal":             s.Journal,
		"notifyLayerSwitch":   s.NotifyLayerSwitch,
		"watchDevices":        s.WatchDevices,
	}
}

// LedgerConfig returns the chord ledger policy.
func (s Settings) LedgerConfig() ledger.Config {
	return ledger.Config{
		Mode:          s.MultiKeyMode,
		HoldThreshold: s.HoldThreshold,
		FlushTimeout:  s.FlushTimeout,
	}
}

// ResolverOptions returns the command resolver options.
func (s Settings) ResolverOptions(scriptDir string) resolver.Options {
	return resolver.Options{
		ForceBackground:     s.ForceBackground,
		BackgroundInversion: s.BackgroundInversion,
		ScriptDir:           scriptDir,
	}
}

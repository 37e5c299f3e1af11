package resolver

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// LayerPrefix marks a layer switch binding, e.g. "layer:media".
	LayerPrefix = "layer:"

	escapeChar   = '\\'
	varDelimiter = '%'
	detachMarker = "&"
)

var (
	// ErrUnknownVariable aborts resolution of a binding that references a
	// variable the layer does not define.
	ErrUnknownVariable = errors.New("resolver: unknown variable")

	// ErrUnterminatedVariable aborts resolution of a binding with an
	// unclosed variable span.
	ErrUnterminatedVariable = errors.New("resolver: unterminated variable")
)

// UnknownVariableError names the variable that could not be resolved.
type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("resolver: unknown variable %q", e.Name)
}

func (e *UnknownVariableError) Unwrap() error {
	return ErrUnknownVariable
}

// scriptTypes maps binding prefixes to interpreters; an empty interpreter
// runs the file directly.
var scriptTypes = []struct {
	prefix      string
	interpreter string
}{
	{"script:", "bash"},
	{"py:", "python"},
	{"py2:", "python2"},
	{"py3:", "python3"},
	{"exec:", ""},
}

// Options controls classification.
type Options struct {
	ForceBackground     bool
	BackgroundInversion bool

	// ScriptDir is prepended to relative script paths.
	ScriptDir string
}

// Substitute replaces %name% spans in raw with values from vars. A
// backslash makes the next character literal and %% yields a literal %.
// Any unresolved name aborts the whole substitution.
func Substitute(raw string, vars map[string]string) (string, error) {
	var out strings.Builder
	var name strings.Builder
	inVar := false
	escaped := false

	for _, r := range raw {
		switch {
		case escaped:
			if inVar {
				name.WriteRune(r)
			} else {
				out.WriteRune(r)
			}
			escaped = false
		case r == escapeChar:
			escaped = true
		case r == varDelimiter && !inVar:
			inVar = true
			name.Reset()
		case r == varDelimiter:
			inVar = false
			if name.Len() == 0 {
				out.WriteRune(varDelimiter)
				continue
			}
			value, ok := vars[name.String()]
			if !ok {
				return "", &UnknownVariableError{Name: name.String()}
			}
			out.WriteString(value)
		case inVar:
			name.WriteRune(r)
		default:
			out.WriteRune(r)
		}
	}

	if inVar {
		return "", fmt.Errorf("%w: %%%s", ErrUnterminatedVariable, name.String())
	}
	if escaped {
		out.WriteRune(escapeChar)
	}
	return out.String(), nil
}

// Classify turns resolved binding text into an Action.
func Classify(text string, opts Options) Action {
	if target, ok := strings.CutPrefix(text, LayerPrefix); ok {
		return LayerSwitch{Target: strings.TrimSpace(target)}
	}

	text = normalizeBackground(text, opts)

	detach := false
	trimmed := strings.TrimSpace(text)
	if rest, ok := strings.CutSuffix(trimmed, detachMarker); ok {
		detach = true
		trimmed = strings.TrimSpace(rest)
	}

	for _, st := range scriptTypes {
		if path, ok := strings.CutPrefix(trimmed, st.prefix); ok {
			return ScriptInvocation{
				Interpreter: st.interpreter,
				Path:        scriptPath(strings.TrimSpace(path), opts.ScriptDir),
				Detach:      detach,
			}
		}
	}

	return ShellCommand{Text: trimmed, Detach: detach}
}

// normalizeBackground applies forceBackground and then backgroundInversion
// to the trailing detach marker. The two settings are applied in sequence,
// so enabling both always yields a foreground command.
func normalizeBackground(text string, opts Options) string {
	text = strings.TrimSpace(text)

	if opts.ForceBackground && !strings.HasSuffix(text, detachMarker) {
		text += " " + detachMarker
	}

	if opts.BackgroundInversion {
		if rest, ok := strings.CutSuffix(text, detachMarker); ok {
			text = strings.TrimSpace(rest)
		} else {
			text += " " + detachMarker
		}
	}

	return text
}

func scriptPath(path, dir string) string {
	if dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// Resolve substitutes vars into binding and classifies the result.
func Resolve(binding string, vars map[string]string, opts Options) (Action, error) {
	text, err := Substitute(binding, vars)
	if err != nil {
		return nil, err
	}
	return Classify(text, opts), nil
}

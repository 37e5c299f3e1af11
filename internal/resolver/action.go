// Package resolver turns layer bindings into executable actions: it
// substitutes layer variables and classifies the result as a shell
// command, a script invocation or a layer switch.
package resolver

import "fmt"

// Kind identifies the variant held by an Action.
type Kind int

const (
	KindShell Kind = iota
	KindScript
	KindLayerSwitch
)

func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindLayerSwitch:
		return "layer"
	default:
		return "shell"
	}
}

// Action is a resolved binding.
type Action interface {
	Kind() Kind
	String() string
}

// ShellCommand runs Text through the shell.
type ShellCommand struct {
	Text   string
	Detach bool
}

func (ShellCommand) Kind() Kind { return KindShell }

func (a ShellCommand) String() string {
	if a.Detach {
		return a.Text + " &"
	}
	return a.Text
}

// ScriptInvocation runs Path, through Interpreter when one is set.
type ScriptInvocation struct {
	Interpreter string
	Path        string
	Detach      bool
}

func (ScriptInvocation) Kind() Kind { return KindScript }

func (a ScriptInvocation) String() string {
	s := a.Path
	if a.Interpreter != "" {
		s = a.Interpreter + " " + a.Path
	}
	if a.Detach {
		s += " &"
	}
	return s
}

// Argv returns the argument vector of the invocation.
func (a ScriptInvocation) Argv() []string {
	if a.Interpreter == "" {
		return []string{a.Path}
	}
	return []string{a.Interpreter, a.Path}
}

// LayerSwitch changes the device's current layer.
type LayerSwitch struct {
	Target string
}

func (LayerSwitch) Kind() Kind { return KindLayerSwitch }

func (a LayerSwitch) String() string {
	return fmt.Sprintf("%s%s", LayerPrefix, a.Target)
}

package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitute(t *testing.T) {
	vars := map[string]string{"foo": "bar", "dir": "/tmp"}

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "echo hi", "echo hi"},
		{"single var", "%foo%", "bar"},
		{"embedded vars", "ls %dir% && echo %foo%!", "ls /tmp && echo bar!"},
		{"literal percent", "echo 100%%", "echo 100%"},
		{"escaped delimiter", `echo 50\% off`, "echo 50% off"},
		{"escaped backslash", `echo a\\b`, `echo a\b`},
		{"trailing escape", `echo \`, `echo \`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Substitute(tt.raw, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubstituteUnknownVariable(t *testing.T) {
	got, err := Substitute("echo %missing%", nil)
	require.Error(t, err)
	assert.Empty(t, got)
	assert.ErrorIs(t, err, ErrUnknownVariable)

	var uv *UnknownVariableError
	require.ErrorAs(t, err, &uv)
	assert.Equal(t, "missing", uv.Name)
}

func TestSubstituteUnterminated(t *testing.T) {
	_, err := Substitute("echo %foo", map[string]string{"foo": "x"})
	assert.ErrorIs(t, err, ErrUnterminatedVariable)
}

func TestClassifyLayerSwitch(t *testing.T) {
	a := Classify("layer:media", Options{ForceBackground: true, BackgroundInversion: true})
	assert.Equal(t, LayerSwitch{Target: "media"}, a)
	assert.Equal(t, KindLayerSwitch, a.Kind())
}

func TestClassifyScripts(t *testing.T) {
	opts := Options{ScriptDir: "/home/u/.config/keebie/scripts"}

	tests := []struct {
		text string
		want Action
	}{
		{"script:backup.sh", ScriptInvocation{Interpreter: "bash", Path: "/home/u/.config/keebie/scripts/backup.sh"}},
		{"py:tool.py", ScriptInvocation{Interpreter: "python", Path: "/home/u/.config/keebie/scripts/tool.py"}},
		{"py2:old.py", ScriptInvocation{Interpreter: "python2", Path: "/home/u/.config/keebie/scripts/old.py"}},
		{"py3:new.py &", ScriptInvocation{Interpreter: "python3", Path: "/home/u/.config/keebie/scripts/new.py", Detach: true}},
		{"exec:/usr/local/bin/thing", ScriptInvocation{Path: "/usr/local/bin/thing"}},
		{"firefox", ShellCommand{Text: "firefox"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.text, opts))
		})
	}
}

func TestBackgroundTruthTable(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		force      bool
		invert     bool
		wantDetach bool
	}{
		{"plain/none", "cmd", false, false, false},
		{"detached/none", "cmd &", false, false, true},
		{"plain/force", "cmd", true, false, true},
		{"detached/force", "cmd &", true, false, true},
		{"plain/invert", "cmd", false, true, true},
		{"detached/invert", "cmd &", false, true, false},
		{"plain/both", "cmd", true, true, false},
		{"detached/both", "cmd &", true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Classify(tt.text, Options{ForceBackground: tt.force, BackgroundInversion: tt.invert})
			sc, ok := a.(ShellCommand)
			require.True(t, ok)
			assert.Equal(t, "cmd", sc.Text)
			assert.Equal(t, tt.wantDetach, sc.Detach)
		})
	}
}

func TestResolve(t *testing.T) {
	a, err := Resolve("notify-send %msg%", map[string]string{"msg": "hello"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, ShellCommand{Text: "notify-send hello"}, a)

	a, err = Resolve("layer:%next%", map[string]string{"next": "games"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, LayerSwitch{Target: "games"}, a)

	a, err = Resolve("echo %nope%", nil, Options{})
	assert.Nil(t, a)
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestActionStrings(t *testing.T) {
	assert.Equal(t, "echo hi &", ShellCommand{Text: "echo hi", Detach: true}.String())
	assert.Equal(t, "bash /s/x.sh", ScriptInvocation{Interpreter: "bash", Path: "/s/x.sh"}.String())
	assert.Equal(t, []string{"/s/x"}, ScriptInvocation{Path: "/s/x"}.Argv())
	assert.Equal(t, "layer:alt", LayerSwitch{Target: "alt"}.String())
}

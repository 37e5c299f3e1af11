package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keebie/internal/resolver"
)

func TestCommandFor(t *testing.T) {
	tests := []struct {
		name   string
		action resolver.Action
		want   Command
	}{
		{
			name:   "shell",
			action: resolver.ShellCommand{Text: "echo hi; echo there"},
			want:   Command{Argv: []string{Shell, "-c", "echo hi; echo there"}},
		},
		{
			name:   "detached shell",
			action: resolver.ShellCommand{Text: "sleep 10", Detach: true},
			want:   Command{Argv: []string{Shell, "-c", "sleep 10"}, Detach: true},
		},
		{
			name:   "interpreted script",
			action: resolver.ScriptInvocation{Interpreter: "bash", Path: "/s/run.sh"},
			want:   Command{Argv: []string{"bash", "/s/run.sh"}},
		},
		{
			name:   "executable",
			action: resolver.ScriptInvocation{Path: "/s/tool", Detach: true},
			want:   Command{Argv: []string{"/s/tool"}, Detach: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CommandFor(tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandForLayerSwitch(t *testing.T) {
	_, err := CommandFor(resolver.LayerSwitch{Target: "x"})
	assert.ErrorIs(t, err, ErrNotRunnable)
}

func TestRunDoesNotWait(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "done")
	r := New(dir, nil)

	start := time.Now()
	require.NoError(t, r.Run(resolver.ShellCommand{Text: "sleep 0.3; touch " + marker}))
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRunDetached(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "detached")
	r := New(dir, nil)

	require.NoError(t, r.Run(resolver.ShellCommand{Text: "touch " + marker, Detach: true}))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRunMissingExecutable(t *testing.T) {
	r := New(t.TempDir(), nil)
	err := r.Run(resolver.ScriptInvocation{Path: "/nonexistent/keebie-test-binary"})
	assert.Error(t, err)
}

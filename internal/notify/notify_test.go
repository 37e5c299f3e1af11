package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	calls [][]any
	id    uint32
	err   error
}

func (f *fakeBus) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...any) *dbus.Call {
	f.calls = append(f.calls, append([]any{method}, args...))
	if f.err != nil {
		return &dbus.Call{Err: f.err}
	}
	f.id++
	return &dbus.Call{Body: []any{f.id}}
}

func TestDesktopReplacesPrevious(t *testing.T) {
	bus := &fakeBus{}
	d := &Desktop{obj: bus, app: "keebie", timeout: DefaultTimeout}

	require.NoError(t, d.Notify("keebie", "layer media"))
	require.NoError(t, d.Notify("keebie", "layer default"))

	require.Len(t, bus.calls, 2)
	assert.Equal(t, notifyCall, bus.calls[0][0])
	assert.Equal(t, "keebie", bus.calls[0][1])
	assert.Equal(t, uint32(0), bus.calls[0][2])
	assert.Equal(t, uint32(1), bus.calls[1][2])
	assert.Equal(t, "layer default", bus.calls[1][5])
	assert.Equal(t, int32(2000), bus.calls[1][8])
}

func TestDesktopCallError(t *testing.T) {
	d := &Desktop{obj: &fakeBus{err: errors.New("no server")}, app: "keebie"}
	assert.Error(t, d.Notify("a", "b"))
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	assert.NoError(t, n.Notify("a", "b"))
	assert.NoError(t, n.Close())
}

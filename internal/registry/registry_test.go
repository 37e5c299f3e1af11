package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keebie/internal/config"
	"keebie/internal/device"
	"keebie/internal/device/devicetest"
	"keebie/internal/docstore"
	"keebie/internal/layer"
	"keebie/internal/ledger"
	"keebie/internal/macro"
	"keebie/internal/resolver"
)

type owner struct{ grabbed []bool }

func (o *owner) SetGrabbed(g bool) { o.grabbed = append(o.grabbed, g) }

type recordingExec struct{ runs []resolver.Action }

func (e *recordingExec) Run(a resolver.Action) error {
	e.runs = append(e.runs, a)
	return nil
}

type fixture struct {
	opener *devicetest.Opener
	owner  *owner
	exec   *recordingExec
	now    time.Time
	reg    *Registry
}

func newFixture(t *testing.T, fakes ...*devicetest.Fake) *fixture {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.json"), []byte(`{"KEY_A": "echo a"}`), 0600))
	layers := layer.NewStore(docstore.New(dir, docstore.FormatJSON), nil)

	f := &fixture{
		opener: devicetest.NewOpener(fakes...),
		owner:  &owner{},
		exec:   &recordingExec{},
		now:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	build := func(cfg config.DeviceConfig, h device.Handle) *macro.Device {
		return macro.New(h, macro.Options{
			Name:         cfg.Name,
			InitialLayer: cfg.InitialLayer,
			Ledger:       ledger.DefaultConfig(),
			Layers:       layers,
			Executor:     f.exec,
			Now:          func() time.Time { return f.now },
		})
	}
	f.reg = New(f.opener.Open, build, f.owner, nil)
	return f
}

func configs(names ...string) map[string]config.DeviceConfig {
	m := make(map[string]config.DeviceConfig, len(names))
	for _, n := range names {
		m[n] = config.DeviceConfig{Name: n, Event: config.DevicePathPrefix + n, InitialLayer: "default"}
	}
	return m
}

func TestReconcileAddsAndRemoves(t *testing.T) {
	pad := devicetest.New("/dev/input/keebiepad")
	pedal := devicetest.New("/dev/input/keebiepedal")
	f := newFixture(t, pad, pedal)

	added := f.reg.Reconcile(configs("pad", "pedal", "ghost"))
	assert.Equal(t, []string{"pad", "pedal"}, added)
	assert.Equal(t, []string{"pad", "pedal"}, f.reg.Names())

	added = f.reg.Reconcile(configs("pad", "pedal"))
	assert.Empty(t, added)
	assert.Equal(t, 1, f.opener.Opens["/dev/input/keebiepad"])

	added = f.reg.Reconcile(configs("pedal"))
	assert.Empty(t, added)
	assert.Equal(t, []string{"pedal"}, f.reg.Names())
	assert.True(t, pad.Closed)
	assert.False(t, pedal.Closed)
}

func TestReconcileReopensBrokenDevice(t *testing.T) {
	pad := devicetest.New("/dev/input/keebiepad")
	f := newFixture(t, pad)
	f.reg.Reconcile(configs("pad"))

	pad.ReadErr = errors.New("device gone")
	f.reg.PollAll(true)
	assert.True(t, f.reg.Broken())

	pad.ReadErr = nil
	added := f.reg.Reconcile(configs("pad"))
	assert.Equal(t, []string{"pad"}, added)
	assert.Equal(t, 2, f.opener.Opens["/dev/input/keebiepad"])
	assert.False(t, f.reg.Broken())
}

func TestReconcilePathChange(t *testing.T) {
	a := devicetest.New("/dev/input/event3")
	b := devicetest.New("/dev/input/event4")
	f := newFixture(t, a, b)

	f.reg.Reconcile(map[string]config.DeviceConfig{"pad": {Name: "pad", Event: a.Path}})
	added := f.reg.Reconcile(map[string]config.DeviceConfig{"pad": {Name: "pad", Event: b.Path}})

	assert.Equal(t, []string{"pad"}, added)
	assert.True(t, a.Closed)
	assert.Equal(t, 1, f.opener.Opens[b.Path])
}

func TestGrabAllExcludesFailures(t *testing.T) {
	pad := devicetest.New("/dev/input/keebiepad")
	pedal := devicetest.New("/dev/input/keebiepedal")
	pedal.GrabErr = errors.New("busy")
	f := newFixture(t, pad, pedal)
	f.reg.Reconcile(configs("pad", "pedal"))

	f.reg.GrabAll()

	assert.Equal(t, []string{"pad"}, f.reg.Names())
	assert.Equal(t, 1, pad.Grabs)
	assert.True(t, pedal.Closed)
	assert.Equal(t, []bool{true}, f.owner.grabbed)

	f.reg.GrabAll()
	assert.Equal(t, 1, pad.Grabs)

	assert.Equal(t, []string{"pedal"}, f.reg.Excluded())
	assert.Empty(t, f.reg.Reconcile(configs("pad", "pedal")))
	assert.Equal(t, 1, f.opener.Opens[pedal.Path], "excluded device stays closed")

	pedal.GrabErr = nil
	f.reg.Readmit()
	assert.Equal(t, []string{"pedal"}, f.reg.Reconcile(configs("pad", "pedal")))
	f.reg.GrabAll()
	assert.Equal(t, 1, pedal.Grabs)
	assert.Empty(t, f.reg.Excluded())
}

func TestExclusionForgottenWithConfig(t *testing.T) {
	pedal := devicetest.New("/dev/input/keebiepedal")
	pedal.GrabErr = errors.New("busy")
	f := newFixture(t, pedal)
	f.reg.Reconcile(configs("pedal"))
	f.reg.GrabAll()
	require.Equal(t, []string{"pedal"}, f.reg.Excluded())

	f.reg.Reconcile(configs())
	assert.Empty(t, f.reg.Excluded())
}

func TestUngrabAllAndCloseAll(t *testing.T) {
	pad := devicetest.New("/dev/input/keebiepad")
	f := newFixture(t, pad)
	f.reg.Reconcile(configs("pad"))
	f.reg.GrabAll()

	f.reg.UngrabAll()
	assert.Equal(t, 1, pad.Ungrabs)
	assert.False(t, pad.Grabbed)
	assert.Equal(t, 1, f.reg.Len())

	f.reg.CloseAll()
	assert.Zero(t, f.reg.Len())
	assert.True(t, pad.Closed)
	assert.Equal(t, []bool{true, false, false}, f.owner.grabbed)
}

func TestPollAllRunsMacros(t *testing.T) {
	pad := devicetest.New("/dev/input/keebiepad")
	f := newFixture(t, pad)
	f.reg.Reconcile(configs("pad"))

	pad.Press("KEY_A")
	for _, step := range []time.Duration{10, 10, 600, 0} {
		f.reg.PollAll(true)
		f.now = f.now.Add(step * time.Millisecond)
	}

	require.Len(t, f.exec.runs, 1)
	assert.Equal(t, resolver.ShellCommand{Text: "echo a"}, f.exec.runs[0])
}

func TestFlushAll(t *testing.T) {
	pad := devicetest.New("/dev/input/keebiepad")
	f := newFixture(t, pad)
	f.reg.Reconcile(configs("pad"))

	pad.Press("KEY_A")
	f.reg.FlushAll()
	assert.Zero(t, pad.Queued())
}

func TestGet(t *testing.T) {
	pad := devicetest.New("/dev/input/keebiepad")
	f := newFixture(t, pad)
	f.reg.Reconcile(configs("pad"))

	dev, ok := f.reg.Get("pad")
	require.True(t, ok)
	assert.Equal(t, "pad", dev.Name())
	_, ok = f.reg.Get("nope")
	assert.False(t, ok)
}

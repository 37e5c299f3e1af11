// Package macro binds one input device to a chord ledger and a layer, and
// turns the histories the ledger completes into actions.
package macro

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"keebie/internal/device"
	"keebie/internal/docstore"
	"keebie/internal/journal"
	"keebie/internal/layer"
	"keebie/internal/ledger"
	"keebie/internal/notify"
	"keebie/internal/resolver"
	"keebie/internal/runner"
)

// maxDrain bounds the reads Flush performs to empty the device queue.
const maxDrain = 64

// Recorder stores executed macros.
type Recorder interface {
	Record(e journal.Entry) error
}

// Options configures a Device.
type Options struct {
	Name         string
	InitialLayer string
	Ledger       ledger.Config
	Resolver     resolver.Options

	Layers   *layer.Store
	Executor runner.Executor
	Notifier notify.Notifier
	Recorder Recorder
	Logger   *slog.Logger

	// Now supplies event timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Device is a macro device: an open handle, its ledger and its current
// layer. It is driven from a single goroutine.
type Device struct {
	name    string
	handle  device.Handle
	ledger  *ledger.Ledger
	layers  *layer.Store
	exec    runner.Executor
	notify  notify.Notifier
	rec     Recorder
	logger  *slog.Logger
	now     func() time.Time
	resolve resolver.Options

	layerName string
	cached    *layer.Layer

	grabbed bool
	broken  bool
}

// New wraps an open handle.
func New(handle device.Handle, opts Options) *Device {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("device", opts.Name)

	n := opts.Notifier
	if n == nil {
		n = notify.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	initial := opts.InitialLayer
	if initial == "" {
		initial = layer.DefaultName
	}

	return &Device{
		name:      opts.Name,
		handle:    handle,
		ledger:    ledger.New(opts.Ledger, logger),
		layers:    opts.Layers,
		exec:      opts.Executor,
		notify:    n,
		rec:       opts.Recorder,
		logger:    logger,
		now:       now,
		resolve:   opts.Resolver,
		layerName: layer.Normalize(initial),
	}
}

// Name returns the device's configured name.
func (d *Device) Name() string {
	return d.name
}

// Broken reports whether a read failed and the device must be re-opened.
func (d *Device) Broken() bool {
	return d.broken
}

// Grabbed reports whether the device is exclusively held.
func (d *Device) Grabbed() bool {
	return d.grabbed
}

// Ledger exposes the device's chord ledger.
func (d *Device) Ledger() *ledger.Ledger {
	return d.ledger
}

// Configure replaces the ledger policy and resolver options.
func (d *Device) Configure(cfg ledger.Config, opts resolver.Options) {
	d.ledger.SetConfig(cfg)
	d.resolve = opts
}

// LayerName returns the current layer name.
func (d *Device) LayerName() string {
	return d.layerName
}

// SetLayer switches to layer name and drops the cached document.
func (d *Device) SetLayer(name string) {
	d.layerName = layer.Normalize(name)
	d.cached = nil
}

// Layer returns the current layer, loading it on first use.
func (d *Device) Layer() *layer.Layer {
	if d.cached == nil {
		d.cached = d.layers.Load(d.layerName)
	}
	return d.cached
}

// Grab takes exclusive access and shows the current layer's indicators.
func (d *Device) Grab() error {
	if err := d.handle.Grab(); err != nil {
		return fmt.Errorf("grab %s: %w", d.name, err)
	}
	d.grabbed = true
	d.applyIndicators()
	return nil
}

// Ungrab releases exclusive access.
func (d *Device) Ungrab() error {
	if !d.grabbed {
		return nil
	}
	d.grabbed = false
	if err := d.handle.Ungrab(); err != nil {
		return fmt.Errorf("ungrab %s: %w", d.name, err)
	}
	return nil
}

// Close releases the handle.
func (d *Device) Close() error {
	d.grabbed = false
	return d.handle.Close()
}

// Flush resets the ledger and discards input queued on the device.
func (d *Device) Flush() {
	d.ledger.Reset()
	for range maxDrain {
		if _, err := d.handle.Read(); err != nil {
			return
		}
	}
}

// Read polls the device once. With no pending input it advances the
// ledger timers. It reports whether a history was completed; with process
// set, completed histories are executed before returning.
func (d *Device) Read(process bool) (bool, error) {
	events, err := d.handle.Read()
	if err != nil && !errors.Is(err, device.ErrWouldBlock) {
		d.broken = true
		return false, fmt.Errorf("read %s: %w", d.name, err)
	}

	flushed := d.ledger.Update(events, d.now())
	if flushed && process {
		d.ProcessLedger()
	}
	return flushed, nil
}

// ProcessLedger executes every queued history in order.
func (d *Device) ProcessLedger() {
	for {
		history := d.ledger.PopHistory()
		if history == "" {
			return
		}
		d.execute(history)
	}
}

func (d *Device) execute(history string) {
	l := d.Layer()
	binding, ok := l.Lookup(history)
	if !ok {
		d.logger.Debug("unbound history", "layer", l.Name, "history", history)
		return
	}

	action, err := resolver.Resolve(binding, l.Vars, d.resolve)
	if err != nil {
		d.logger.Warn("macro dropped", "layer", l.Name, "history", history, "error", err)
		return
	}

	if sw, ok := action.(resolver.LayerSwitch); ok {
		d.switchLayer(sw.Target)
		return
	}

	d.logger.Info("running macro", "layer", l.Name, "history", history, "action", action.String())
	runErr := d.exec.Run(action)
	if runErr != nil {
		d.logger.Error("macro failed to start", "history", history, "error", runErr)
	}
	d.record(l.Name, history, action, runErr)
}

func (d *Device) switchLayer(target string) {
	target = layer.Normalize(target)
	if target == "" {
		d.logger.Warn("layer switch without target")
		return
	}
	if !d.layers.Exists(target) {
		if err := d.layers.Create(target); err != nil {
			d.logger.Error("create layer failed", "layer", target, "error", err)
		}
	}

	d.logger.Info("switching layer", "from", d.layerName, "to", target)
	d.SetLayer(target)
	if d.grabbed {
		d.applyIndicators()
	}

	if err := d.notify.Notify("keebie", fmt.Sprintf("%s: layer %s", d.name, target)); err != nil {
		d.logger.Debug("layer notification failed", "error", err)
	}
}

// applyIndicators lights exactly the current layer's LEDs. A layer
// without an leds field gets an empty one persisted.
func (d *Device) applyIndicators() {
	l := d.Layer()
	if !l.HasLEDs() && d.layers.Exists(l.Name) {
		if err := d.layers.Save(l.Name, docstore.Document{layer.LEDsField: []any{}}); err != nil {
			d.logger.Debug("persist empty leds failed", "layer", l.Name, "error", err)
		} else {
			l.LEDs = []int{}
		}
	}

	for _, code := range d.handle.Indicators() {
		if err := d.handle.SetIndicator(code, slices.Contains(l.LEDs, code)); err != nil {
			d.logger.Debug("set indicator failed", "led", code, "error", err)
		}
	}
}

func (d *Device) record(layerName, history string, action resolver.Action, runErr error) {
	if d.rec == nil {
		return
	}
	e := journal.Entry{
		At:      d.now(),
		Device:  d.name,
		Layer:   layerName,
		History: history,
		Kind:    action.Kind().String(),
		Action:  action.String(),
	}
	if runErr != nil {
		e.Error = runErr.Error()
	}
	if err := d.rec.Record(e); err != nil {
		d.logger.Warn("journal write failed", "error", err)
	}
}

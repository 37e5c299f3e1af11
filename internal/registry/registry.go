// Package registry keeps the set of open macro devices in line with the
// configured devices and fans operations out over them.
package registry

import (
	"log/slog"
	"maps"
	"slices"

	"keebie/internal/config"
	"keebie/internal/device"
	"keebie/internal/macro"
)

// Builder wraps a freshly opened handle into a macro device.
type Builder func(cfg config.DeviceConfig, h device.Handle) *macro.Device

// Owner is told when the registry's devices become grabbed or released.
type Owner interface {
	SetGrabbed(grabbed bool)
}

type entry struct {
	cfg config.DeviceConfig
	dev *macro.Device
}

// Registry owns the open macro devices. It is driven from a single
// goroutine.
type Registry struct {
	open    device.Opener
	build   Builder
	owner   Owner
	logger  *slog.Logger
	devices map[string]*entry

	// excluded holds devices that failed to grab; Reconcile leaves them
	// closed until Readmit.
	excluded map[string]bool
}

// New creates an empty registry. owner may be nil.
func New(open device.Opener, build Builder, owner Owner, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		open:     open,
		build:    build,
		owner:    owner,
		logger:   logger,
		devices:  make(map[string]*entry),
		excluded: make(map[string]bool),
	}
}

// Reconcile closes devices whose configuration vanished, changed its
// event path or broke, and opens newly configured ones. Devices that fail
// to open are skipped, as are excluded ones. It returns the names added,
// sorted.
func (r *Registry) Reconcile(configs map[string]config.DeviceConfig) []string {
	for _, name := range r.Names() {
		e := r.devices[name]
		cfg, ok := configs[name]
		switch {
		case !ok:
			r.logger.Info("device removed", "device", name)
		case e.dev.Broken():
			r.logger.Info("device broken, reopening", "device", name)
		case cfg.Event != e.cfg.Event:
			r.logger.Info("device path changed", "device", name, "from", e.cfg.Event, "to", cfg.Event)
		default:
			continue
		}
		r.drop(name)
	}
	for name := range r.excluded {
		if _, ok := configs[name]; !ok {
			delete(r.excluded, name)
		}
	}

	var added []string
	for _, name := range slices.Sorted(maps.Keys(configs)) {
		if _, ok := r.devices[name]; ok || r.excluded[name] {
			continue
		}
		cfg := configs[name]
		h, err := r.open(cfg.Event)
		if err != nil {
			r.logger.Warn("device unavailable", "device", name, "path", cfg.Event, "error", err)
			continue
		}
		r.devices[name] = &entry{cfg: cfg, dev: r.build(cfg, h)}
		r.logger.Info("device added", "device", name, "path", cfg.Event, "layer", cfg.InitialLayer)
		added = append(added, name)
	}
	return added
}

func (r *Registry) drop(name string) {
	e, ok := r.devices[name]
	if !ok {
		return
	}
	delete(r.devices, name)
	if err := e.dev.Ungrab(); err != nil {
		r.logger.Debug("ungrab on drop failed", "device", name, "error", err)
	}
	if err := e.dev.Close(); err != nil {
		r.logger.Debug("close failed", "device", name, "error", err)
	}
}

// GrabAll grabs every device not yet grabbed. Devices that cannot be
// grabbed are closed and excluded until Readmit.
func (r *Registry) GrabAll() {
	for _, name := range r.Names() {
		dev := r.devices[name].dev
		if dev.Grabbed() {
			continue
		}
		if err := dev.Grab(); err != nil {
			r.logger.Error("grab failed, device excluded", "device", name, "error", err)
			r.drop(name)
			r.excluded[name] = true
		}
	}
	if r.owner != nil {
		r.owner.SetGrabbed(true)
	}
}

// Excluded returns the devices left out after a failed grab, sorted.
func (r *Registry) Excluded() []string {
	return slices.Sorted(maps.Keys(r.excluded))
}

// Readmit lets the next Reconcile open excluded devices again.
func (r *Registry) Readmit() {
	clear(r.excluded)
}

// UngrabAll releases every device. Devices that fail are closed and
// dropped.
func (r *Registry) UngrabAll() {
	for _, name := range r.Names() {
		if err := r.devices[name].dev.Ungrab(); err != nil {
			r.logger.Error("ungrab failed, device excluded", "device", name, "error", err)
			r.drop(name)
		}
	}
	if r.owner != nil {
		r.owner.SetGrabbed(false)
	}
}

// PollAll reads every healthy device once and reports whether any
// completed a history.
func (r *Registry) PollAll(process bool) bool {
	flushed := false
	for _, name := range r.Names() {
		dev := r.devices[name].dev
		if dev.Broken() {
			continue
		}
		ok, err := dev.Read(process)
		if err != nil {
			r.logger.Warn("device read failed", "device", name, "error", err)
			continue
		}
		flushed = flushed || ok
	}
	return flushed
}

// FlushAll discards pending input on every device.
func (r *Registry) FlushAll() {
	for _, e := range r.devices {
		e.dev.Flush()
	}
}

// CloseAll closes and forgets every device.
func (r *Registry) CloseAll() {
	for _, name := range r.Names() {
		r.drop(name)
	}
	if r.owner != nil {
		r.owner.SetGrabbed(false)
	}
}

// Broken reports whether any device needs to be reopened.
func (r *Registry) Broken() bool {
	for _, e := range r.devices {
		if e.dev.Broken() {
			return true
		}
	}
	return false
}

// Each calls fn for every device in name order.
func (r *Registry) Each(fn func(*macro.Device)) {
	for _, name := range r.Names() {
		fn(r.devices[name].dev)
	}
}

// Get returns the named device.
func (r *Registry) Get(name string) (*macro.Device, bool) {
	e, ok := r.devices[name]
	if !ok {
		return nil, false
	}
	return e.dev, true
}

// Len returns the number of open devices.
func (r *Registry) Len() int {
	return len(r.devices)
}

// Names returns the open device names, sorted.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.devices))
}

package metrics

// DaemonMetrics are the metrics the macro daemon maintains.
type DaemonMetrics struct {
	registry *Registry

	MacrosTotal        *Counter
	MacroErrorsTotal   *Counter
	LayerSwitchesTotal *Counter
	ReconnectsTotal    *Counter
	PausesTotal        *Counter

	DevicesOpen *Gauge

	PollDuration *Histogram
}

// NewDaemonMetrics registers the daemon metrics in registry, or in a new
// "keebie" registry when nil.
func NewDaemonMetrics(registry *Registry) *DaemonMetrics {
	if registry == nil {
		registry = NewRegistry("keebie")
	}
	return &DaemonMetrics{
		registry: registry,

		MacrosTotal:        registry.Counter("macros_total", "Macros started"),
		MacroErrorsTotal:   registry.Counter("macro_errors_total", "Macros that failed to start"),
		LayerSwitchesTotal: registry.Counter("layer_switches_total", "Layer switches"),
		ReconnectsTotal:    registry.Counter("device_reconnects_total", "Devices opened after startup"),
		PausesTotal:        registry.Counter("pauses_total", "Times the daemon was paused"),

		DevicesOpen: registry.Gauge("devices_open", "Macro devices currently open"),

		PollDuration: registry.Histogram("poll_duration_seconds", "Time spent polling all devices", DurationBuckets),
	}
}

// Registry returns the underlying registry.
func (m *DaemonMetrics) Registry() *Registry {
	return m.registry
}

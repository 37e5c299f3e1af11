// Package daemon runs keebie's poll loop and provides the companion side
// that pauses and resumes a running daemon.
//
// A daemon is Unowned until it holds the PID file, then alternates between
// Running and Paused. SIGUSR1 pauses it (devices are ungrabbed and
// closed), SIGUSR2 resumes it (settings and device configs are reloaded
// and every device grabbed again), SIGTERM and SIGINT stop it.
package daemon

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keebie/internal/config"
	"keebie/internal/device"
	"keebie/internal/docstore"
	"keebie/internal/journal"
	"keebie/internal/layer"
	"keebie/internal/logging"
	"keebie/internal/macro"
	"keebie/internal/metrics"
	"keebie/internal/notify"
	"keebie/internal/registry"
	"keebie/internal/runner"
	"keebie/internal/watcher"
)

const (
	// reconnectInterval is how often missing or broken devices are retried.
	reconnectInterval = 2 * time.Second
	// stateInterval is how often the state file is refreshed while running.
	stateInterval = 5 * time.Second
)

// Options configures a Daemon.
type Options struct {
	Paths    config.Paths
	Open     device.Opener
	Executor runner.Executor
	Logger   *slog.Logger
	Crash    *logging.CrashHandler
	Metrics  *metrics.DaemonMetrics

	// OpenJournal and OpenNotifier create the optional sinks when the
	// settings enable them. Either may be nil.
	OpenJournal  func() (*journal.Journal, error)
	OpenNotifier func() (notify.Notifier, error)

	// WatchPaths are watched for device changes when watchDevices is set.
	WatchPaths []string

	Now func() time.Time
}

// Daemon owns the macro devices of one user session.
type Daemon struct {
	opts    Options
	ctx     *Context
	pid     *PIDFile
	state   *StateFile
	logger  *slog.Logger
	crash   *logging.CrashHandler
	metrics *metrics.DaemonMetrics
	layers  *layer.Store
	reg     *registry.Registry

	settings   config.Settings
	configured int
	journal    *journal.Journal
	notifier   notify.Notifier
	watcher    *watcher.Watcher

	signals       chan os.Signal
	wake          chan struct{}
	lastReconcile time.Time
	lastState     time.Time
	startedAt     time.Time
}

// New creates a daemon. Nothing is opened until Start.
func New(opts Options) *Daemon {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	crash := opts.Crash
	if crash == nil {
		crash = logging.NewCrashHandler(opts.Paths.Crashes, "daemon", logger)
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewDaemonMetrics(nil)
	}

	d := &Daemon{
		opts:     opts,
		ctx:      &Context{},
		pid:      NewPIDFile(opts.Paths.PIDFile),
		state:    NewStateFile(opts.Paths.State),
		logger:   logger,
		crash:    crash,
		metrics:  m,
		layers:   layer.NewStore(docstore.New(opts.Paths.Layers, docstore.FormatJSON), logger),
		settings: config.DefaultSettings(),
		signals:  make(chan os.Signal, 4),
		wake:     make(chan struct{}, 1),
	}
	d.reg = registry.New(opts.Open, d.build, d.ctx, logger)
	return d
}

// Context returns the daemon's run state.
func (d *Daemon) Context() *Context {
	return d.ctx
}

// Registry returns the open devices.
func (d *Daemon) Registry() *registry.Registry {
	return d.reg
}

// Metrics returns the daemon's metrics.
func (d *Daemon) Metrics() *metrics.DaemonMetrics {
	return d.metrics
}

// Settings returns the settings in effect.
func (d *Daemon) Settings() config.Settings {
	return d.settings
}

func (d *Daemon) build(cfg config.DeviceConfig, h device.Handle) *macro.Device {
	s := sinks{d}
	return macro.New(h, macro.Options{
		Name:         cfg.Name,
		InitialLayer: cfg.InitialLayer,
		Ledger:       d.settings.LedgerConfig(),
		Resolver:     d.settings.ResolverOptions(d.opts.Paths.Scripts),
		Layers:       d.layers,
		Executor:     d.opts.Executor,
		Notifier:     s,
		Recorder:     s,
		Logger:       d.logger,
		Now:          d.opts.Now,
	})
}

// Run starts the daemon and polls until ctx is done or a stop signal
// arrives. A panic in the loop is reported and returned as an error; the
// devices and the PID file are released either way.
func (d *Daemon) Run(ctx context.Context) error {
	signal.Notify(d.signals, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(d.signals)

	if err := d.Start(); err != nil {
		return err
	}
	defer d.Shutdown()

	return d.crash.Guard(map[string]any{"pid": os.Getpid()}, func() error {
		for d.Step() {
			d.wait(ctx)
		}
		return nil
	})
}

// Start takes the PID file and brings the devices up.
func (d *Daemon) Start() error {
	if err := d.pid.Acquire(); err != nil {
		return err
	}
	d.ctx.setPIDSaved(true)
	d.startedAt = d.opts.Now()
	d.logger.Info("daemon started", "pid", os.Getpid(), "pid_file", d.pid.Path())

	d.resume()
	return nil
}

// Step applies pending requests and, while running, polls every device
// once. It returns false once a stop was requested.
func (d *Daemon) Step() bool {
	if d.ctx.take(&d.ctx.stopReq) {
		return false
	}
	if d.ctx.take(&d.ctx.pauseReq) {
		d.pause()
	}
	if d.ctx.take(&d.ctx.resumeReq) {
		d.resume()
	}
	if d.ctx.Paused() {
		return true
	}

	if d.ctx.take(&d.ctx.reconcileReq) {
		d.reconcile(true)
	} else if d.retryDue() {
		d.reconcile(false)
	}

	start := time.Now()
	d.reg.PollAll(true)
	d.metrics.PollDuration.ObserveDuration(time.Since(start))

	if d.opts.Now().Sub(d.lastState) >= stateInterval {
		d.writeState()
	}
	return true
}

// Wake interrupts the current sleep.
func (d *Daemon) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Daemon) wait(ctx context.Context) {
	timer := time.NewTimer(d.settings.LoopDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		d.ctx.RequestStop()
	case sig := <-d.signals:
		d.handleSignal(sig)
	case <-d.wake:
	case <-timer.C:
	}
}

func (d *Daemon) handleSignal(sig os.Signal) {
	d.logger.Debug("signal received", "signal", sig.String())
	switch sig {
	case syscall.SIGUSR1:
		d.pause()
	case syscall.SIGUSR2:
		d.ctx.RequestResume()
	case syscall.SIGTERM, syscall.SIGINT:
		d.ctx.RequestStop()
	}
}

func (d *Daemon) pause() {
	if d.ctx.Paused() {
		return
	}
	d.reg.UngrabAll()
	d.reg.CloseAll()
	d.metrics.PausesTotal.Inc()
	d.ctx.setPaused(true)
	d.writeState()
	d.logger.Info("daemon paused")
}

func (d *Daemon) resume() {
	d.reload()
	d.reconcile(true)
	d.ctx.setPaused(false)
	d.writeState()
	d.logger.Info("daemon running", "devices", d.reg.Names())
}

// reload re-reads the settings and applies them to the open devices and
// the optional sinks.
func (d *Daemon) reload() {
	s, warnings := config.LoadSettings(d.opts.Paths.Settings)
	for _, w := range warnings {
		d.logger.Warn("settings", "field", w.Field, "problem", w.Message)
	}
	d.settings = s

	d.reg.Each(func(dev *macro.Device) {
		dev.Configure(s.LedgerConfig(), s.ResolverOptions(d.opts.Paths.Scripts))
	})
	d.applySinks()
	d.applyWatcher()
}

func (d *Daemon) applySinks() {
	switch {
	case d.settings.Journal && d.journal == nil && d.opts.OpenJournal != nil:
		j, err := d.opts.OpenJournal()
		if err != nil {
			d.logger.Error("journal unavailable", "error", err)
			break
		}
		d.journal = j
	case !d.settings.Journal && d.journal != nil:
		d.journal.Close()
		d.journal = nil
	}

	switch {
	case d.settings.NotifyLayerSwitch && d.notifier == nil && d.opts.OpenNotifier != nil:
		n, err := d.opts.OpenNotifier()
		if err != nil {
			d.logger.Warn("notifications unavailable", "error", err)
			break
		}
		d.notifier = n
	case !d.settings.NotifyLayerSwitch && d.notifier != nil:
		d.notifier.Close()
		d.notifier = nil
	}
}

func (d *Daemon) applyWatcher() {
	if !d.settings.WatchDevices || len(d.opts.WatchPaths) == 0 {
		d.stopWatcher()
		return
	}
	if d.watcher != nil {
		return
	}

	w, err := watcher.New(d.opts.WatchPaths, watcher.DefaultDebounce, func() {
		d.ctx.RequestReconcile()
		d.Wake()
	}, d.logger)
	if err != nil {
		d.logger.Warn("device watch unavailable", "error", err)
		return
	}
	if err := w.Start(); err != nil {
		d.logger.Warn("device watch unavailable", "error", err)
		w.Stop()
		return
	}
	d.watcher = w
}

func (d *Daemon) stopWatcher() {
	if d.watcher == nil {
		return
	}
	if err := d.watcher.Stop(); err != nil {
		d.logger.Debug("stop watcher failed", "error", err)
	}
	d.watcher = nil
}

// reconcile matches the open devices to the device configs and grabs
// them. A verbose reconcile (resume or a watched change) also retries
// devices excluded after a failed grab and logs config warnings.
func (d *Daemon) reconcile(verbose bool) {
	if verbose {
		d.reg.Readmit()
	}
	configs, warnings := config.LoadDevices(d.opts.Paths.Devices)
	for _, w := range warnings {
		if verbose {
			d.logger.Warn("device config", "field", w.Field, "problem", w.Message)
		}
	}

	added := d.reg.Reconcile(configs)
	d.reg.GrabAll()
	d.configured = len(configs)
	d.lastReconcile = d.opts.Now()

	if len(added) > 0 && !verbose {
		d.logger.Info("devices reconnected", "devices", added)
		d.metrics.ReconnectsTotal.Add(uint64(len(added)))
	}
	if len(added) > 0 {
		d.writeState()
	}
}

func (d *Daemon) retryDue() bool {
	if d.reg.Len()+len(d.reg.Excluded()) >= d.configured && !d.reg.Broken() {
		return false
	}
	return d.opts.Now().Sub(d.lastReconcile) >= reconnectInterval
}

func (d *Daemon) writeState() {
	d.metrics.DevicesOpen.Set(int64(d.reg.Len()))
	d.lastState = d.opts.Now()
	err := d.state.Write(State{
		PID:       os.Getpid(),
		StartedAt: d.startedAt,
		UpdatedAt: d.lastState,
		Paused:    d.ctx.Paused(),
		Devices:   d.reg.Names(),
		Metrics:   d.metrics.Registry().Snapshot(),
	})
	if err != nil {
		d.logger.Debug("write state failed", "error", err)
	}
	if err := d.writeMetrics(); err != nil {
		d.logger.Debug("write metrics failed", "error", err)
	}
}

// writeMetrics publishes the registry in the Prometheus text format, in a
// file a textfile collector can pick up.
func (d *Daemon) writeMetrics() error {
	if d.opts.Paths.Metrics == "" {
		return nil
	}
	var b bytes.Buffer
	if err := d.metrics.Registry().WritePrometheus(&b); err != nil {
		return err
	}
	return writeAtomic(d.opts.Paths.Metrics, b.Bytes())
}

// Shutdown releases the devices, the sinks and the PID file.
func (d *Daemon) Shutdown() {
	d.reg.UngrabAll()
	d.reg.CloseAll()
	d.stopWatcher()

	if d.journal != nil {
		d.journal.Close()
		d.journal = nil
	}
	if d.notifier != nil {
		d.notifier.Close()
		d.notifier = nil
	}

	if err := d.state.Remove(); err != nil {
		d.logger.Debug("remove state failed", "error", err)
	}
	if d.opts.Paths.Metrics != "" {
		if err := removeIfExists(d.opts.Paths.Metrics); err != nil {
			d.logger.Debug("remove metrics failed", "error", err)
		}
	}
	if d.ctx.PIDSaved() {
		if err := d.pid.Release(); err != nil {
			d.logger.Warn("release pid file failed", "error", err)
		}
		d.ctx.setPIDSaved(false)
	}
	d.logger.Info("daemon stopped")
}

// sinks counts macro executions and layer switches and forwards them to
// whichever sinks the current settings enable.
type sinks struct{ d *Daemon }

// Notify is only called by macro devices on a layer switch.
func (s sinks) Notify(summary, body string) error {
	s.d.metrics.LayerSwitchesTotal.Inc()
	if s.d.notifier == nil {
		return nil
	}
	return s.d.notifier.Notify(summary, body)
}

func (s sinks) Close() error { return nil }

func (s sinks) Record(e journal.Entry) error {
	s.d.metrics.MacrosTotal.Inc()
	if e.Error != "" {
		s.d.metrics.MacroErrorsTotal.Inc()
	}
	if s.d.journal == nil {
		return nil
	}
	return s.d.journal.Record(e)
}

// Package ledger tracks key combinations for a single input device.
//
// A Ledger consumes key-down/key-up events and turns them into chords
// (the set of keys held at a press peak) and histories (one or more chords
// typed in quick succession). Completed histories are queued once the
// device has been idle for the flush timeout.
package ledger

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"
)

const (
	// KeySeparator joins the keys of a chord.
	KeySeparator = "+"
	// ChordSeparator joins the chords of a history.
	ChordSeparator = "-"
	// HeldSuffix marks a chord held longer than the hold threshold.
	HeldSuffix = KeySeparator + "HELD"
)

// ErrUntrackedRelease is reported when a key is released that was never
// seen going down, e.g. a key held while the device was grabbed.
var ErrUntrackedRelease = errors.New("ledger: release of untracked key")

// Mode controls how chords are canonicalized.
type Mode int

const (
	// Combination sorts chord keys, so press order does not matter.
	Combination Mode = iota
	// Sequence keeps chord keys in press order.
	Sequence
)

// String returns the settings name of the mode.
func (m Mode) String() string {
	switch m {
	case Sequence:
		return "sequence"
	default:
		return "combination"
	}
}

// ParseMode converts a settings value into a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "combination":
		return Combination, true
	case "sequence":
		return Sequence, true
	default:
		return Combination, false
	}
}

// State is the ledger's current phase.
type State int

const (
	Stale State = iota
	Rising
	Falling
	Holding
)

func (s State) String() string {
	switch s {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	case Holding:
		return "holding"
	default:
		return "stale"
	}
}

// Event is a single key transition.
type Event struct {
	Key  string
	Down bool
}

// Config holds the timing and canonicalization policy.
type Config struct {
	Mode          Mode
	HoldThreshold time.Duration
	FlushTimeout  time.Duration
}

// DefaultConfig returns the stock ledger policy.
func DefaultConfig() Config {
	return Config{
		Mode:          Combination,
		HoldThreshold: time.Second,
		FlushTimeout:  500 * time.Millisecond,
	}
}

// Ledger is a per-device key combination state machine. It is not safe
// for concurrent use; the daemon drives it from a single loop.
type Ledger struct {
	config Config
	logger *slog.Logger

	state     State
	changedAt time.Time
	risingAt  time.Time
	started   bool

	downKeys []string
	newKeys  []string
	lostKeys []string
	peaking  bool

	buffer  string
	flushed []string
}

// New creates a ledger with the given policy.
func New(cfg Config, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		config: cfg,
		logger: logger,
	}
}

// SetConfig replaces the policy. Buffered state is kept.
func (l *Ledger) SetConfig(cfg Config) {
	l.config = cfg
}

// Config returns the active policy.
func (l *Ledger) Config() Config {
	return l.config
}

// Update feeds a batch of events observed at now. Each event is applied as
// its own step; an empty batch advances the timers only. It reports
// whether any history was flushed.
func (l *Ledger) Update(events []Event, now time.Time) bool {
	if len(events) == 0 {
		return l.step(nil, now)
	}

	flushed := false
	for i := range events {
		if l.step(&events[i], now) {
			flushed = true
		}
	}
	return flushed
}

func (l *Ledger) step(ev *Event, now time.Time) bool {
	l.newKeys = l.newKeys[:0]
	l.lostKeys = l.lostKeys[:0]

	if ev != nil {
		tracked := slices.Contains(l.downKeys, ev.Key)
		switch {
		case ev.Down && !tracked:
			l.newKeys = append(l.newKeys, ev.Key)
		case !ev.Down && tracked:
			l.lostKeys = append(l.lostKeys, ev.Key)
		case !ev.Down:
			l.logger.Warn("key release ignored", "key", ev.Key, "error", ErrUntrackedRelease)
		}
	}

	switch {
	case len(l.newKeys) > 0:
		l.setState(Rising, now)
		l.downKeys = append(l.downKeys, l.newKeys...)
		if l.config.Mode == Combination {
			slices.Sort(l.downKeys)
		}
		l.peaking = true

	case len(l.lostKeys) > 0:
		// The hold duration is measured up to the Falling entry, so read
		// the Rising timestamp before switching state.
		held := l.since(l.risingAt, now) > l.config.HoldThreshold
		l.setState(Falling, now)
		if l.peaking {
			l.appendChord(held)
			l.peaking = false
		}
		l.downKeys = slices.DeleteFunc(l.downKeys, func(k string) bool {
			return slices.Contains(l.lostKeys, k)
		})

	case len(l.downKeys) > 0:
		l.setState(Holding, now)

	default:
		l.setState(Stale, now)
		if l.buffer != "" && l.since(l.changedAt, now) > l.config.FlushTimeout {
			l.flushed = append(l.flushed, l.buffer)
			l.logger.Debug("history flushed", "history", l.buffer)
			l.buffer = ""
			return true
		}
	}

	return false
}

func (l *Ledger) setState(s State, now time.Time) {
	if l.started && l.state == s {
		return
	}
	l.started = true
	l.state = s
	l.changedAt = now
	if s == Rising {
		l.risingAt = now
	}
}

// since returns now-t, clamped to zero for clocks that went backwards.
func (l *Ledger) since(t, now time.Time) time.Duration {
	d := now.Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

func (l *Ledger) appendChord(held bool) {
	chord := strings.Join(l.downKeys, KeySeparator)
	if held {
		chord += HeldSuffix
	}
	if l.buffer != "" {
		l.buffer += ChordSeparator
	}
	l.buffer += chord
}

// PopHistory removes and returns the oldest flushed history. An empty
// string means no history is available.
func (l *Ledger) PopHistory() string {
	if len(l.flushed) == 0 {
		return ""
	}
	h := l.flushed[0]
	l.flushed = l.flushed[1:]
	return h
}

// Pending returns the number of flushed histories awaiting PopHistory.
func (l *Ledger) Pending() int {
	return len(l.flushed)
}

// Buffer returns the in-progress history.
func (l *Ledger) Buffer() string {
	return l.buffer
}

// State returns the current phase.
func (l *Ledger) State() State {
	return l.state
}

// DownKeys returns a copy of the keys currently believed held.
func (l *Ledger) DownKeys() []string {
	return slices.Clone(l.downKeys)
}

// Reset discards all state, buffered and queued histories included.
func (l *Ledger) Reset() {
	l.state = Stale
	l.started = false
	l.changedAt = time.Time{}
	l.risingAt = time.Time{}
	l.downKeys = nil
	l.newKeys = nil
	l.lostKeys = nil
	l.peaking = false
	l.buffer = ""
	l.flushed = nil
}

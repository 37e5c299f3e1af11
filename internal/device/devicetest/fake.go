// Package devicetest provides an in-memory device.Handle for tests.
package devicetest

import (
	"errors"
	"sync"

	"keebie/internal/device"
	"keebie/internal/ledger"
)

// Fake is a scripted device.Handle. Queued batches are returned by Read in
// order; an empty queue reads as device.ErrWouldBlock.
type Fake struct {
	mu sync.Mutex

	Path    string
	LEDs    []int
	Lit     map[int]bool
	Batches [][]ledger.Event

	GrabErr error
	ReadErr error

	Grabs   int
	Ungrabs int
	Closes  int
	Grabbed bool
	Closed  bool
}

var _ device.Handle = (*Fake)(nil)

// New returns a fake exposing the given indicator codes.
func New(path string, leds ...int) *Fake {
	return &Fake{Path: path, LEDs: leds, Lit: map[int]bool{}}
}

// Push queues one Read batch.
func (f *Fake) Push(events ...ledger.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Batches = append(f.Batches, events)
}

// Press queues a down and an up batch for each key, pressed together and
// released together.
func (f *Fake) Press(keys ...string) {
	var down, up []ledger.Event
	for _, k := range keys {
		down = append(down, ledger.Event{Key: k, Down: true})
		up = append(up, ledger.Event{Key: k, Down: false})
	}
	f.Push(down...)
	f.Push(up...)
}

func (f *Fake) Grab() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Closed {
		return device.ErrClosed
	}
	if f.GrabErr != nil {
		return f.GrabErr
	}
	f.Grabs++
	f.Grabbed = true
	return nil
}

func (f *Fake) Ungrab() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Closed {
		return device.ErrClosed
	}
	f.Ungrabs++
	f.Grabbed = false
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closes++
	f.Closed = true
	f.Grabbed = false
	return nil
}

func (f *Fake) Read() ([]ledger.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Closed {
		return nil, device.ErrClosed
	}
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	if len(f.Batches) == 0 {
		return nil, device.ErrWouldBlock
	}
	b := f.Batches[0]
	f.Batches = f.Batches[1:]
	return b, nil
}

func (f *Fake) SetIndicator(code int, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Closed {
		return device.ErrClosed
	}
	f.Lit[code] = on
	return nil
}

func (f *Fake) Indicators() []int {
	return f.LEDs
}

// Queued reports how many batches are still unread.
func (f *Fake) Queued() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Batches)
}

// Opener opens fakes from a fixed set keyed by path. Unknown paths fail.
type Opener struct {
	mu      sync.Mutex
	Devices map[string]*Fake
	Opens   map[string]int
}

// ErrNoDevice is returned by Opener for unknown paths.
var ErrNoDevice = errors.New("devicetest: no such device")

// NewOpener returns an Opener serving fakes.
func NewOpener(fakes ...*Fake) *Opener {
	o := &Opener{Devices: map[string]*Fake{}, Opens: map[string]int{}}
	for _, f := range fakes {
		o.Devices[f.Path] = f
	}
	return o
}

// Open implements device.Opener. A closed fake is reopened in place.
func (o *Opener) Open(path string) (device.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.Devices[path]
	if !ok {
		return nil, ErrNoDevice
	}
	f.mu.Lock()
	f.Closed = false
	f.mu.Unlock()
	o.Opens[path]++
	return f, nil
}

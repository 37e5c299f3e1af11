// Package device defines the contract between keebie and the physical
// input devices it drives.
package device

import (
	"errors"

	"keebie/internal/ledger"
)

var (
	// ErrWouldBlock is returned by Handle.Read when no events are queued.
	ErrWouldBlock = errors.New("device: no events queued")

	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("device: handle closed")
)

// Handle is an open input device.
type Handle interface {
	// Grab acquires exclusive access; other readers stop seeing events.
	Grab() error
	// Ungrab releases exclusive access.
	Ungrab() error
	// Close releases the handle.
	Close() error
	// Read returns the key transitions queued since the last call, or
	// ErrWouldBlock when there are none.
	Read() ([]ledger.Event, error)
	// SetIndicator switches an LED on or off.
	SetIndicator(code int, on bool) error
	// Indicators lists the LED codes the device supports.
	Indicators() []int
}

// Opener opens the device at path.
type Opener func(path string) (Handle, error)

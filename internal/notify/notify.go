// Package notify sends desktop notifications over the session bus.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyCall = busName + ".Notify"

	// DefaultTimeout is how long a notification stays on screen.
	DefaultTimeout = 2 * time.Second
	callTimeout    = time.Second
)

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(summary, body string) error
	Close() error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(string, string) error { return nil }
func (Nop) Close() error                { return nil }

type caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...any) *dbus.Call
}

// Desktop posts to org.freedesktop.Notifications. Each notification
// replaces the previous one so rapid layer switches do not pile up.
type Desktop struct {
	mu      sync.Mutex
	conn    *dbus.Conn
	obj     caller
	app     string
	timeout time.Duration
	lastID  uint32
}

// NewDesktop connects to the session bus.
func NewDesktop(app string) (*Desktop, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &Desktop{
		conn:    conn,
		obj:     conn.Object(busName, objectPath),
		app:     app,
		timeout: DefaultTimeout,
	}, nil
}

// Notify implements Notifier.
func (d *Desktop) Notify(summary, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	call := d.obj.CallWithContext(ctx, notifyCall, 0,
		d.app,
		d.lastID,
		"input-keyboard",
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(0))},
		int32(d.timeout/time.Millisecond),
	)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify reply: %w", err)
	}
	d.lastID = id
	return nil
}

// Close implements Notifier.
func (d *Desktop) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

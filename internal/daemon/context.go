package daemon

import "sync"

// Context is the daemon's run state. The poll loop owns it; other
// goroutines only raise requests.
type Context struct {
	mu sync.Mutex

	grabbed  bool
	paused   bool
	pidSaved bool

	pauseReq     bool
	resumeReq    bool
	stopReq      bool
	reconcileReq bool
}

// SetGrabbed records whether the devices are exclusively held.
func (c *Context) SetGrabbed(grabbed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grabbed = grabbed
}

// Grabbed reports whether the devices are exclusively held.
func (c *Context) Grabbed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grabbed
}

// Paused reports whether the daemon has released its devices.
func (c *Context) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Context) setPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
}

// PIDSaved reports whether this process owns the PID file.
func (c *Context) PIDSaved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pidSaved
}

func (c *Context) setPIDSaved(saved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pidSaved = saved
}

// RequestPause asks the loop to release its devices.
func (c *Context) RequestPause() { c.request(&c.pauseReq) }

// RequestResume asks the loop to reload and grab its devices again.
func (c *Context) RequestResume() { c.request(&c.resumeReq) }

// RequestStop asks the loop to shut down.
func (c *Context) RequestStop() { c.request(&c.stopReq) }

// RequestReconcile asks the loop to re-read the device configuration.
func (c *Context) RequestReconcile() { c.request(&c.reconcileReq) }

func (c *Context) request(flag *bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*flag = true
}

// take clears and returns a request flag.
func (c *Context) take(flag *bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := *flag
	*flag = false
	return v
}

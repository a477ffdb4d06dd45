// Package client implements the client-side call pipeline: Channel.CallMethod
// resolves an endpoint, pools a connection, writes a framed request, reads
// the response, and updates the per-service circuit breaker, reporting every
// outcome through a Controller as well as through its returned error.
package client

import (
	"sync"
	"sync/atomic"
)

// Scheduler is satisfied by a bound server-side connection that can run a
// callback on its own goroutine, mirroring "post to the connection's
// owning event loop" from the original design.
type Scheduler interface {
	Schedule(func())
}

// Controller is per-call mutable state: failure flag/text, cancellation,
// and a weak back-reference to a bound server-side connection. Go has no
// weak references, so the back-reference is modelled as an
// atomic.Pointer that the owning connection's close path explicitly clears
// — GetConnection after close returns nil, the same "upgrade yields
// nothing" semantics a real weak pointer would give.
//
// A Controller must not be shared across concurrent calls.
type Controller struct {
	mu             sync.Mutex
	failed         bool
	errText        string
	canceled       bool
	cancelCallback func()

	conn atomic.Pointer[any]
}

// NewController returns a fresh, unfailed Controller.
func NewController() *Controller {
	return &Controller{}
}

// Reset restores the controller to its zero state for reuse.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = false
	c.errText = ""
	c.canceled = false
	c.cancelCallback = nil
	c.conn.Store(nil)
}

// Failed reports whether the call this controller is attached to failed.
func (c *Controller) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

// ErrorText returns the human-readable, category-prefixed failure message.
func (c *Controller) ErrorText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errText
}

// SetFailed marks the call failed with the given message.
func (c *Controller) SetFailed(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = true
	c.errText = text
}

// SetConnection binds a server-side connection to this controller.
func (c *Controller) SetConnection(conn any) {
	c.conn.Store(&conn)
}

// GetConnection returns the bound connection, or nil if none is bound or it
// has since been cleared.
func (c *Controller) GetConnection() any {
	p := c.conn.Load()
	if p == nil {
		return nil
	}
	return *p
}

// ClearConnection drops the back-reference. Called by a connection's
// close path before its goroutine exits.
func (c *Controller) ClearConnection() {
	c.conn.Store(nil)
}

// StartCancel marks the call canceled and fires the registered cancel
// callback, if any. Cancellation is advisory: in-flight I/O is not
// interrupted at this layer.
func (c *Controller) StartCancel() {
	c.mu.Lock()
	c.canceled = true
	cb := c.cancelCallback
	c.mu.Unlock()

	if cb == nil {
		return
	}

	if conn := c.GetConnection(); conn != nil {
		if sched, ok := conn.(Scheduler); ok {
			sched.Schedule(cb)
			return
		}
	}
	cb()
}

// IsCanceled reports whether StartCancel has been called.
func (c *Controller) IsCanceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canceled
}

// NotifyOnCancel registers the callback StartCancel will invoke.
func (c *Controller) NotifyOnCancel(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelCallback = cb
}

// Package watchdog implements the debounced idle timer that triggers fail-safe zeroing.
//
// The watchdog is either idle or armed. Arm replaces any pending deadline; a
// superseded deadline can never be claimed, so at most one expiry is acted on
// per arm. The expiry callback receives the Deadline it belongs to and must call
// Claim before acting, under whatever lock protects the state it resets.
package watchdog

import (
	"errors"
	"sync"
	"time"
)

// ErrInvalidTimeout is returned for non-positive timeouts.
var ErrInvalidTimeout = errors.New("watchdog timeout must be positive")

// Deadline identifies one arming of the watchdog.
type Deadline uint64

// Watchdog is safe for concurrent use.
type Watchdog struct {
	onExpire func(Deadline)

	mu       sync.Mutex
	timeout  time.Duration
	timer    *time.Timer
	current  Deadline
	armed    bool
	inflight sync.WaitGroup
}

// New returns an idle watchdog. onExpire runs on its own goroutine.
func New(timeout time.Duration, onExpire func(Deadline)) (*Watchdog, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	return &Watchdog{timeout: timeout, onExpire: onExpire}, nil
}

// Arm starts a new deadline, cancelling the pending one if any.
func (w *Watchdog) Arm() Deadline {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopLocked()
	w.current++
	w.armed = true

	d := w.current
	w.inflight.Add(1)
	w.timer = time.AfterFunc(w.timeout, func() {
		defer w.inflight.Done()
		w.onExpire(d)
	})
	return d
}

// Cancel drops the pending deadline without firing it.
func (w *Watchdog) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopLocked()
	w.current++
	w.armed = false
}

func (w *Watchdog) stopLocked() {
	if w.timer != nil && w.timer.Stop() {
		// the callback will never run
		w.inflight.Done()
	}
	w.timer = nil
}

// Claim moves the watchdog from armed to idle if d is still the live deadline.
// It returns false for superseded or cancelled deadlines.
func (w *Watchdog) Claim(d Deadline) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.armed || d != w.current {
		return false
	}
	w.armed = false
	w.timer = nil
	return true
}

// Armed reports whether a deadline is pending.
func (w *Watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

// SetTimeout changes the timeout used by the next Arm. A pending deadline keeps its original expiry.
func (w *Watchdog) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return ErrInvalidTimeout
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeout = timeout
	return nil
}

// Timeout returns the duration the next Arm will use.
func (w *Watchdog) Timeout() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timeout
}

// Wait blocks until expiry callbacks that already started have returned.
// It must not be called while holding a lock the callback takes.
func (w *Watchdog) Wait() {
	w.inflight.Wait()
}

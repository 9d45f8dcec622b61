package frame

import (
	"time"

	"github.com/rs/zerolog"
)

// Observer receives notifications about tree mutations. Calls are made
// while the tree lock is held, so implementations must be fast and must
// not call back into the Tree.
type Observer interface {
	FrameAdded(f Frame, total int)
	FrameRemoved(f Frame, total int)
	WaiterRegistered(id string, pending int)
	WaiterResolved(id string, waited time.Duration, pending int)
	WaiterCancelled(id string, pending int)
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger sets the logger used for mutation debug logs.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tree) {
		t.log = logger
	}
}

// WithObserver attaches an Observer, typically metrics.
func WithObserver(o Observer) Option {
	return func(t *Tree) {
		t.observer = o
	}
}

// WithWatchBuffer sets the channel size for each Watch subscriber.
func WithWatchBuffer(size int) Option {
	return func(t *Tree) {
		if size > 0 {
			t.watchBuffer = size
		}
	}
}

type nopObserver struct{}

func (nopObserver) FrameAdded(Frame, int) {}
func (nopObserver) FrameRemoved(Frame, int) {}
func (nopObserver) WaiterRegistered(string, int) {}
func (nopObserver) WaiterResolved(string, time.Duration, int) {}
func (nopObserver) WaiterCancelled(string, int) {}

package frame

import (
	"context"
	"errors"
	"time"
)

// ErrWaitCancelled is returned by WaitFor when its waiter was cancelled
// before the frame arrived.
var ErrWaitCancelled = errors.New("frame wait cancelled")

// Waiter is a pending request for a frame ID. It completes exactly once:
// either resolved with the frame by an Add, or cancelled explicitly.
type Waiter struct {
	id      string
	tree    *Tree
	created time.Time

	// Closed on resolution or cancellation
	done chan struct{}

	// Guarded by tree.mu until done is closed, immutable after
	frame     Frame
	completed bool
}

// ID returns the frame ID the waiter is waiting for.
func (w *Waiter) ID() string {
	return w.id
}

// Done returns a channel closed when the waiter completes.
func (w *Waiter) Done() <-chan struct{} {
	return w.done
}

// Frame returns the frame the waiter resolved with. It reports false while
// the waiter is pending or after it was cancelled.
func (w *Waiter) Frame() (Frame, bool) {
	select {
	case <-w.done:
		return w.frame, w.frame != nil
	default:
		return nil, false
	}
}

// Cancel withdraws a pending waiter. Cancelling a completed waiter has no
// effect.
func (w *Waiter) Cancel() {
	if w.tree == nil {
		return
	}
	w.tree.cancelWaiter(w)
}

// Wait returns a Waiter for id. If the frame is already registered the
// waiter is returned completed; otherwise it stays pending until a
// matching Add or an explicit Cancel. The presence check and the waiter
// registration happen under one lock acquisition, so no Add can slip in
// between them.
func (t *Tree) Wait(id string) *Waiter {
	w := &Waiter{
		id:      id,
		tree:    t,
		created: time.Now(),
		done:    make(chan struct{}),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if f, ok := t.frames[id]; ok {
		w.frame = f
		w.completed = true
		close(w.done)
		return w
	}

	set, ok := t.waiters[id]
	if !ok {
		set = make(map[*Waiter]struct{})
		t.waiters[id] = set
	}
	set[w] = struct{}{}
	t.pending++

	t.log.Debug().Str("fid", id).Int("waiters", len(set)).Msg("waiter registered")
	t.observer.WaiterRegistered(id, t.pending)

	return w
}

// WaitFor returns the frame registered under id, blocking until it is
// added or ctx is done. The core imposes no timeout of its own.
func (t *Tree) WaitFor(ctx context.Context, id string) (Frame, error) {
	w := t.Wait(id)

	select {
	case <-w.Done():
		if f, ok := w.Frame(); ok {
			return f, nil
		}
		return nil, ErrWaitCancelled
	case <-ctx.Done():
		w.Cancel()
		// The frame may have arrived while we were cancelling
		if f, ok := w.Frame(); ok {
			return f, nil
		}
		return nil, ctx.Err()
	}
}

// Pending returns the number of waiters pending for id.
func (t *Tree) Pending(id string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.waiters[id])
}

// resolveWaiters completes and removes every waiter pending for id.
// Caller holds t.mu.
func (t *Tree) resolveWaiters(id string, f Frame, now time.Time) int {
	set, ok := t.waiters[id]
	if !ok {
		return 0
	}
	delete(t.waiters, id)

	for w := range set {
		w.frame = f
		w.completed = true
		close(w.done)
		t.pending--
		t.observer.WaiterResolved(id, now.Sub(w.created), t.pending)
	}

	t.log.Debug().Str("fid", id).Int("resolved", len(set)).Msg("waiters resolved")
	return len(set)
}

func (t *Tree) cancelWaiter(w *Waiter) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if w.completed {
		return
	}
	set := t.waiters[w.id]
	delete(set, w)
	if len(set) == 0 {
		delete(t.waiters, w.id)
	}
	w.completed = true
	close(w.done)
	t.pending--

	t.log.Debug().Str("fid", w.id).Msg("waiter cancelled")
	t.observer.WaiterCancelled(w.id, t.pending)
}

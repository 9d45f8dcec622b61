package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/najoast/frametree/frame"
	"github.com/najoast/frametree/metrics"
)

const defaultMailboxSize = 1000

// Registry is the part of frame.Tree the notifier mutates.
type Registry interface {
	Get(id string) (frame.Frame, bool)
	Add(f frame.Frame)
	Remove(f frame.Frame)
}

// Notifier owns a mailbox and a single goroutine that applies events to a
// Registry. It is the only writer of the registry it is attached to.
type Notifier struct {
	registry Registry
	log      zerolog.Logger

	// Guards state transitions against a Send or Deliver in flight
	mu      sync.RWMutex
	mailbox chan Event

	// Closed by Stop; wakes Deliver calls waiting for mailbox space
	quit    chan struct{}
	senders sync.WaitGroup

	wg       sync.WaitGroup
	stopped  chan struct{}
	stopOnce sync.Once

	state       int32 // State
	applied     uint64
	rejected    uint64
	lastEventAt int64 // UnixNano
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithMailboxSize sets the mailbox capacity.
func WithMailboxSize(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.mailbox = make(chan Event, size)
		}
	}
}

// WithLogger sets the notifier logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(n *Notifier) {
		n.log = logger
	}
}

// NewNotifier creates a Notifier for registry. It does nothing until
// Start is called.
func NewNotifier(registry Registry, opts ...Option) *Notifier {
	n := &Notifier{
		registry: registry,
		log:      zerolog.Nop(),
		mailbox:  make(chan Event, defaultMailboxSize),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.With().Str("component", "notifier").Logger()
	return n
}

// Start begins the event loop. The notifier stops when ctx is done or
// Stop is called.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !atomic.CompareAndSwapInt32(&n.state, int32(StateIdle), int32(StateRunning)) {
		if n.State() == StateStopped {
			return ErrNotifierStopped
		}
		return ErrNotifierStarted
	}

	n.wg.Add(1)
	go n.loop()

	go func() {
		select {
		case <-ctx.Done():
			n.Stop()
		case <-n.stopped:
		}
	}()

	n.log.Info().Int("mailbox", cap(n.mailbox)).Msg("notifier started")
	return nil
}

// Stop refuses further events, applies everything already queued and
// waits for the loop to exit. It is safe to call more than once.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		prev := State(atomic.SwapInt32(&n.state, int32(StateStopped)))
		close(n.quit)
		n.mu.Unlock()

		// No Deliver can begin now; wait out those already sending
		n.senders.Wait()
		close(n.mailbox)

		// A notifier that never ran still owes its queued events
		if prev == StateIdle {
			n.wg.Add(1)
			go n.loop()
		}

		n.wg.Wait()
		close(n.stopped)
		n.log.Info().Uint64("applied", atomic.LoadUint64(&n.applied)).Msg("notifier stopped")
	})
}

// Done is closed once the notifier has stopped and drained its mailbox.
func (n *Notifier) Done() <-chan struct{} {
	return n.stopped
}

// State returns the current run state.
func (n *Notifier) State() State {
	return State(atomic.LoadInt32(&n.state))
}

// Send queues ev without blocking.
func (n *Notifier) Send(ev Event) error {
	ev, err := n.prepare(ev)
	if err != nil {
		return err
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.State() == StateStopped {
		return n.reject(ev, ErrNotifierStopped)
	}

	select {
	case n.mailbox <- ev:
		return nil
	default:
		return n.reject(ev, ErrMailboxFull)
	}
}

// Deliver queues ev, waiting for mailbox space until ctx is done or the
// notifier stops. The wait holds no lock, so Start and Stop proceed.
func (n *Notifier) Deliver(ctx context.Context, ev Event) error {
	ev, err := n.prepare(ev)
	if err != nil {
		return err
	}

	n.mu.RLock()
	if n.State() == StateStopped {
		n.mu.RUnlock()
		return n.reject(ev, ErrNotifierStopped)
	}
	n.senders.Add(1)
	n.mu.RUnlock()
	defer n.senders.Done()

	select {
	case n.mailbox <- ev:
		return nil
	case <-n.quit:
		return n.reject(ev, ErrNotifierStopped)
	case <-ctx.Done():
		return n.reject(ev, ctx.Err())
	}
}

// Attach queues an attach event.
func (n *Notifier) Attach(frameID, parentID string) error {
	return n.Send(Event{Type: EventAttach, FrameID: frameID, ParentID: parentID})
}

// Navigate queues a navigate event.
func (n *Notifier) Navigate(frameID, parentID string) error {
	return n.Send(Event{Type: EventNavigate, FrameID: frameID, ParentID: parentID})
}

// Detach queues a detach event.
func (n *Notifier) Detach(frameID string) error {
	return n.Send(Event{Type: EventDetach, FrameID: frameID})
}

// Stats returns current runtime statistics.
func (n *Notifier) Stats() Stats {
	var last time.Time
	if ns := atomic.LoadInt64(&n.lastEventAt); ns > 0 {
		last = time.Unix(0, ns)
	}
	return Stats{
		State:       n.State(),
		Applied:     atomic.LoadUint64(&n.applied),
		Rejected:    atomic.LoadUint64(&n.rejected),
		Queued:      len(n.mailbox),
		LastEventAt: last,
	}
}

func (n *Notifier) prepare(ev Event) (Event, error) {
	if err := ev.Validate(); err != nil {
		metrics.RecordNotifierEvent(string(ev.Type), "invalid")
		atomic.AddUint64(&n.rejected, 1)
		return ev, err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	return ev, nil
}

func (n *Notifier) reject(ev Event, err error) error {
	atomic.AddUint64(&n.rejected, 1)
	metrics.RecordNotifierEvent(string(ev.Type), "rejected")
	n.log.Warn().Err(err).Str("event", ev.ID).Str("type", string(ev.Type)).Str("fid", ev.FrameID).Msg("event rejected")
	return fmt.Errorf("send %s %s: %w", ev.Type, ev.FrameID, err)
}

// loop applies events until the mailbox is closed and empty.
func (n *Notifier) loop() {
	defer n.wg.Done()

	for ev := range n.mailbox {
		n.apply(ev)
	}
}

func (n *Notifier) apply(ev Event) {
	result := "applied"

	switch ev.Type {
	case EventAttach, EventNavigate:
		n.registry.Add(ev.Handle())
	case EventDetach:
		if f, ok := n.registry.Get(ev.FrameID); ok {
			n.registry.Remove(f)
		} else {
			result = "missing"
		}
	}

	atomic.AddUint64(&n.applied, 1)
	atomic.StoreInt64(&n.lastEventAt, time.Now().UnixNano())
	metrics.RecordNotifierEvent(string(ev.Type), result)

	n.log.Debug().
		Str("event", ev.ID).
		Str("type", string(ev.Type)).
		Str("fid", ev.FrameID).
		Str("pfid", ev.ParentID).
		Str("result", result).
		Msg("event applied")
}

// Package lifecycle turns frame attach, navigate and detach notifications
// into frame tree mutations, applied one at a time in arrival order.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/najoast/frametree/frame"
)

// Lifecycle errors
var (
	ErrNotifierStopped = errors.New("notifier is stopped")
	ErrNotifierStarted = errors.New("notifier is already started")
	ErrMailboxFull     = errors.New("notifier mailbox is full")
	ErrInvalidEvent    = errors.New("invalid lifecycle event")
)

// EventType is the kind of lifecycle notification.
type EventType string

const (
	// EventAttach reports a frame created under its parent
	EventAttach EventType = "attach"

	// EventNavigate reports a frame that committed a navigation; the
	// frame is (re)registered under its parent
	EventNavigate EventType = "navigate"

	// EventDetach reports a frame that went away
	EventDetach EventType = "detach"
)

// IsValid checks if the event type is known
func (t EventType) IsValid() bool {
	switch t {
	case EventAttach, EventNavigate, EventDetach:
		return true
	default:
		return false
	}
}

// Event is one lifecycle notification.
type Event struct {
	// Correlation ID, assigned on Send when empty
	ID string `json:"id" yaml:"id,omitempty"`

	Type     EventType `json:"type" yaml:"type"`
	FrameID  string    `json:"frame" yaml:"frame"`
	ParentID string    `json:"parent,omitempty" yaml:"parent,omitempty"`

	At time.Time `json:"at" yaml:"-"`
}

// Validate reports whether the event can be applied.
func (e Event) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if e.FrameID == "" {
		return fmt.Errorf("%w: empty frame id", ErrInvalidEvent)
	}
	return nil
}

// Handle returns the frame described by the event.
func (e Event) Handle() frame.Handle {
	return frame.NewHandle(e.FrameID, e.ParentID)
}

// State is the notifier run state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats contains runtime statistics for a Notifier.
type Stats struct {
	State State `json:"-"`

	// Events applied to the tree
	Applied uint64 `json:"applied"`

	// Events refused by Send
	Rejected uint64 `json:"rejected"`

	// Events currently in the mailbox
	Queued int `json:"queued"`

	LastEventAt time.Time `json:"last_event_at"`
}

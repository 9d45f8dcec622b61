package frame

import (
	"fmt"
	"time"
)

// Frame is the registry's view of a frame: a stable identifier and the
// identifier of its parent. An empty ParentID marks a root candidate.
type Frame interface {
	// ID returns the unique identifier of the frame.
	ID() string

	// ParentID returns the parent's identifier, or "" for a parentless frame.
	ParentID() string
}

// Handle is the minimal Frame: identifiers only.
type Handle struct {
	// FrameID is the frame identifier
	FrameID string `json:"id" yaml:"id"`

	// Parent is the parent frame identifier (empty for a root)
	Parent string `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
}

// NewHandle creates a Handle for id under parentID.
func NewHandle(id, parentID string) Handle {
	return Handle{FrameID: id, Parent: parentID}
}

// ID returns the frame identifier.
func (h Handle) ID() string {
	return h.FrameID
}

// ParentID returns the parent identifier.
func (h Handle) ParentID() string {
	return h.Parent
}

// String returns a string representation of the handle.
func (h Handle) String() string {
	if h.Parent != "" {
		return fmt.Sprintf("%s<-%s", h.FrameID, h.Parent)
	}
	return h.FrameID
}

// EventType represents a change in the tree.
type EventType uint8

const (
	// EventAdded indicates a frame was added or replaced
	EventAdded EventType = iota

	// EventRemoved indicates a frame was removed
	EventRemoved

	// EventRootChanged indicates the root slot was set or cleared
	EventRootChanged

	// EventWaiterResolved indicates pending waiters were resolved by an add
	EventWaiterResolved
)

// String returns the string representation of EventType.
func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	case EventRootChanged:
		return "root_changed"
	case EventWaiterResolved:
		return "waiter_resolved"
	default:
		return "unknown"
	}
}

// Event describes a single change applied to a Tree.
type Event struct {
	// Type of the event
	Type EventType

	// FrameID is the identifier the event is about
	FrameID string

	// Frame is the handle involved; nil when the root slot was cleared
	Frame Frame

	// Waiters is the number of waiters resolved (EventWaiterResolved only)
	Waiters int

	// Timestamp when the event occurred
	Timestamp time.Time
}

// Stats is a point-in-time summary of a Tree.
type Stats struct {
	// Frames currently registered
	Frames int `json:"frames"`

	// Parents is the number of child->parent links recorded
	Parents int `json:"parents"`

	// PendingWaiters across all identifiers
	PendingWaiters int `json:"pending_waiters"`

	// RootID is the current root identifier, empty when absent
	RootID string `json:"root_id,omitempty"`
}

package frame

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultWatchBuffer = 100

// Tree is the frame registry. The zero value is not usable; create one
// with NewTree. A single RWMutex guards the frame store, both adjacency
// maps, the root slot, and the waiters, so each Add or Remove is observed
// by readers as one transition.
type Tree struct {
	mu sync.RWMutex

	// Maps frame ID to the registered frame
	frames map[string]Frame

	// Maps child ID to parent ID
	parents map[string]string

	// Maps parent ID to the set of child IDs
	children map[string]map[string]struct{}

	// Most recently added parentless frame
	root Frame

	// Pending waiters by the ID they wait for
	waiters map[string]map[*Waiter]struct{}
	pending int

	// Watchers for tree events
	watchers     map[uint64]chan Event
	watcherID    uint64
	watcherMutex sync.RWMutex
	watchBuffer  int

	log      zerolog.Logger
	observer Observer
}

// NewTree creates an empty Tree.
func NewTree(opts ...Option) *Tree {
	t := &Tree{
		frames:      make(map[string]Frame),
		parents:     make(map[string]string),
		children:    make(map[string]map[string]struct{}),
		waiters:     make(map[string]map[*Waiter]struct{}),
		watchers:    make(map[uint64]chan Event),
		watchBuffer: defaultWatchBuffer,
		log:         zerolog.Nop(),
		observer:    nopObserver{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Root returns the current root frame.
func (t *Tree) Root() (Frame, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.root, t.root != nil
}

// Get returns the frame registered under id. Absence is a normal outcome:
// the frame is not attached yet, already detached, or never existed.
func (t *Tree) Get(id string) (Frame, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	f, ok := t.frames[id]
	return f, ok
}

// Frames returns a snapshot of all registered frames, ordered by ID.
func (t *Tree) Frames() []Frame {
	t.mu.RLock()
	frames := make([]Frame, 0, len(t.frames))
	for _, f := range t.frames {
		frames = append(frames, f)
	}
	t.mu.RUnlock()

	sortFrames(frames)
	return frames
}

// Len returns the number of registered frames.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.frames)
}

// Add registers f, replacing any frame already stored under the same ID,
// and resolves every waiter pending for that ID.
//
// A frame with a parent is linked into the parent's child set; the parent
// does not have to be registered. A frame without a parent becomes the
// root, replacing the previous root (most recent root wins). Re-adding the
// current root under a parent clears the root slot.
func (t *Tree) Add(f Frame) {
	if f == nil {
		return
	}
	id := f.ID()
	parentID := f.ParentID()
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.frames[id] = f

	// A re-added frame may have moved to another parent
	if old, ok := t.parents[id]; ok && old != parentID {
		t.unlinkChild(old, id)
		delete(t.parents, id)
	}

	if parentID != "" {
		t.parents[id] = parentID
		set, ok := t.children[parentID]
		if !ok {
			set = make(map[string]struct{})
			t.children[parentID] = set
		}
		set[id] = struct{}{}
	} else {
		t.root = f
	}

	// The root re-added under a parent no longer qualifies as root
	rootCleared := false
	if parentID != "" && t.root != nil && t.root.ID() == id {
		t.root = nil
		rootCleared = true
	}

	t.log.Debug().Str("fid", id).Str("pfid", parentID).Int("frames", len(t.frames)).Msg("frame added")
	t.observer.FrameAdded(f, len(t.frames))
	t.notifyWatchers(Event{Type: EventAdded, FrameID: id, Frame: f, Timestamp: now})
	if parentID == "" {
		t.notifyWatchers(Event{Type: EventRootChanged, FrameID: id, Frame: f, Timestamp: now})
	} else if rootCleared {
		t.notifyWatchers(Event{Type: EventRootChanged, FrameID: id, Timestamp: now})
	}

	if n := t.resolveWaiters(id, f, now); n > 0 {
		t.notifyWatchers(Event{Type: EventWaiterResolved, FrameID: id, Frame: f, Waiters: n, Timestamp: now})
	}
}

// Remove unregisters f. The frame's own children stay linked to its ID,
// and waiters pending for the ID are left untouched. Removing a parentless
// frame clears the root slot even if another frame has since become root.
func (t *Tree) Remove(f Frame) {
	if f == nil {
		return
	}
	id := f.ID()
	parentID := f.ParentID()
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	_, existed := t.frames[id]
	delete(t.frames, id)
	delete(t.parents, id)

	if parentID != "" {
		t.unlinkChild(parentID, id)
	} else {
		t.root = nil
	}

	t.log.Debug().Str("fid", id).Str("pfid", parentID).Bool("existed", existed).Msg("frame removed")
	t.observer.FrameRemoved(f, len(t.frames))
	t.notifyWatchers(Event{Type: EventRemoved, FrameID: id, Frame: f, Timestamp: now})
	if parentID == "" {
		t.notifyWatchers(Event{Type: EventRootChanged, FrameID: id, Timestamp: now})
	}
}

// ChildFrames returns the registered children of id, ordered by ID.
// Child IDs without a registered frame are skipped. The result is empty,
// never nil, when id has no children or is unknown.
func (t *Tree) ChildFrames(id string) []Frame {
	t.mu.RLock()
	set := t.children[id]
	frames := make([]Frame, 0, len(set))
	for childID := range set {
		if f, ok := t.frames[childID]; ok {
			frames = append(frames, f)
		}
	}
	t.mu.RUnlock()

	sortFrames(frames)
	return frames
}

// ParentFrame returns the registered parent of id. It reports false when
// id has no recorded parent or the parent is not registered.
func (t *Tree) ParentFrame(id string) (Frame, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	parentID, ok := t.parents[id]
	if !ok {
		return nil, false
	}
	f, ok := t.frames[parentID]
	return f, ok
}

// Stats returns a summary of the tree.
func (t *Tree) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := Stats{
		Frames:         len(t.frames),
		Parents:        len(t.parents),
		PendingWaiters: t.pending,
	}
	if t.root != nil {
		stats.RootID = t.root.ID()
	}
	return stats
}

// unlinkChild removes id from parentID's child set. Caller holds t.mu.
func (t *Tree) unlinkChild(parentID, id string) {
	set, ok := t.children[parentID]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(t.children, parentID)
	}
}

func sortFrames(frames []Frame) {
	sort.Slice(frames, func(i, j int) bool {
		return frames[i].ID() < frames[j].ID()
	})
}

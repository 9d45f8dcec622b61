package frame

import "context"

// Watch subscribes to tree events until ctx is done, at which point the
// returned channel is closed. Delivery never blocks a mutation: events
// that do not fit in the subscriber's buffer are dropped.
func (t *Tree) Watch(ctx context.Context) <-chan Event {
	t.watcherMutex.Lock()
	defer t.watcherMutex.Unlock()

	t.watcherID++
	watcherID := t.watcherID

	eventChan := make(chan Event, t.watchBuffer)
	t.watchers[watcherID] = eventChan

	go func() {
		<-ctx.Done()
		t.watcherMutex.Lock()
		delete(t.watchers, watcherID)
		close(eventChan)
		t.watcherMutex.Unlock()
	}()

	return eventChan
}

// notifyWatchers sends an event to all registered watchers.
func (t *Tree) notifyWatchers(event Event) {
	t.watcherMutex.RLock()
	defer t.watcherMutex.RUnlock()

	for _, watcher := range t.watchers {
		select {
		case watcher <- event:
		default:
			// Subscriber is behind, drop
		}
	}
}

// Package presence maintains the set of peers currently online.
//
// Every mutation is tagged with the session generation it was observed
// under. Events from a superseded connection attempt carry a stale
// generation and are dropped, so a late snapshot or delta from a dead
// connection can never clobber the state built by its successor.
package presence

import (
	"log/slog"
	"sync"
)

// Tracker holds the online-peer set for the current session generation.
type Tracker struct {
	logger *slog.Logger

	mu         sync.RWMutex
	generation uint64
	online     map[string]struct{}
	subs       map[int]func()
	nextSubID  int
}

// NewTracker creates an empty tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{
		logger: logger,
		online: make(map[string]struct{}),
		subs:   make(map[int]func()),
	}
}

// Advance moves the tracker to a new session generation. Events tagged
// with older generations are dropped from this point on. The set is
// kept as-is until the post-connect snapshot replaces it, so the UI
// shows the last known state rather than flashing everyone offline
// during a reconnect.
func (t *Tracker) Advance(gen uint64) {
	t.mu.Lock()
	t.generation = gen
	t.mu.Unlock()
}

// ApplySnapshot replaces the whole set with a full member list.
func (t *Tracker) ApplySnapshot(gen uint64, ids []string) {
	t.mu.Lock()

	if gen != t.generation {
		t.mu.Unlock()
		t.logStale("snapshot", gen)

		return
	}

	t.online = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		t.online[id] = struct{}{}
	}

	t.mu.Unlock()
	t.notify()
}

// ApplyJoin adds a peer to the set. Adding an already-present peer is
// a no-op.
func (t *Tracker) ApplyJoin(gen uint64, id string) {
	t.mu.Lock()

	if gen != t.generation {
		t.mu.Unlock()
		t.logStale("join", gen)

		return
	}

	if _, ok := t.online[id]; ok {
		t.mu.Unlock()
		return
	}

	t.online[id] = struct{}{}
	t.mu.Unlock()
	t.notify()
}

// ApplyLeave removes a peer from the set. Removing an absent peer is
// a no-op.
func (t *Tracker) ApplyLeave(gen uint64, id string) {
	t.mu.Lock()

	if gen != t.generation {
		t.mu.Unlock()
		t.logStale("leave", gen)

		return
	}

	if _, ok := t.online[id]; !ok {
		t.mu.Unlock()
		return
	}

	delete(t.online, id)
	t.mu.Unlock()
	t.notify()
}

// IsOnline reports whether the peer is currently online.
func (t *Tracker) IsOnline(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.online[id]

	return ok
}

// ListOnline returns the ids of all online peers. Order is unspecified.
func (t *Tracker) ListOnline() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.online))
	for id := range t.online {
		ids = append(ids, id)
	}

	return ids
}

// Clear empties the set. Called on logout.
func (t *Tracker) Clear() {
	t.mu.Lock()

	if len(t.online) == 0 {
		t.mu.Unlock()
		return
	}

	t.online = make(map[string]struct{})
	t.mu.Unlock()
	t.notify()
}

// Subscribe registers a callback invoked after every change to the set.
// The returned function cancels the subscription.
func (t *Tracker) Subscribe(fn func()) func() {
	t.mu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// notify invokes subscribers outside the lock so a callback may query
// the tracker without deadlocking.
func (t *Tracker) notify() {
	t.mu.RLock()
	fns := make([]func(), 0, len(t.subs))

	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

func (t *Tracker) logStale(kind string, gen uint64) {
	t.logger.Debug("dropping stale presence event",
		slog.String("kind", kind),
		slog.Uint64("generation", gen),
	)
}

// Package dialog tracks the current dialog turn. Changing the turn is the
// only cancellation trigger for queued directives.
package dialog

import (
	"sort"
	"sync"
)

// ChangeFunc observes a turn change.
type ChangeFunc func(previous, current string)

// Subscription removes an observer.
type Subscription interface {
	Unsubscribe()
}

// Tracker holds the current dialog request id.
//
// Every change starts a new generation. A directive is stamped with the
// generation it arrived in; once its turn stops being current it stays stale
// even if the same id is made current again later.
type Tracker struct {
	mu         sync.RWMutex
	current    string
	changed    chan struct{}
	generation uint64
	// superseded maps a turn id to the generation in which it last stopped
	// being current.
	superseded map[string]uint64

	obsMu     sync.Mutex
	observers map[int]ChangeFunc
	nextID    int
}

func NewTracker() *Tracker {
	return &Tracker{
		changed:    make(chan struct{}),
		superseded: make(map[string]uint64),
		observers:  make(map[int]ChangeFunc),
	}
}

// Set makes id the current turn and returns the previous one. Setting the
// current value again is not a change.
func (t *Tracker) Set(id string) string {
	t.mu.Lock()
	previous := t.current
	if previous == id {
		t.mu.Unlock()
		return previous
	}
	t.generation++
	if previous != "" {
		t.superseded[previous] = t.generation
	}
	t.current = id
	close(t.changed)
	t.changed = make(chan struct{})
	t.mu.Unlock()

	t.notify(previous, id)
	return previous
}

func (t *Tracker) Current() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// IsCurrent reports whether a directive with the given dialog request id may
// still run. Empty ids are never scoped to a turn.
func (t *Tracker) IsCurrent(turnID string) bool {
	if turnID == "" {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return turnID == t.current
}

// Generation returns the stamp for a directive arriving now.
func (t *Tracker) Generation() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generation
}

// IsLive reports whether a directive of turnID stamped with generation may
// still run: its turn is current and has not been superseded since the
// directive arrived. Empty ids are never scoped to a turn.
func (t *Tracker) IsLive(turnID string, generation uint64) bool {
	if turnID == "" {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return turnID == t.current && t.superseded[turnID] <= generation
}

// Changed returns a channel closed on the next turn change.
func (t *Tracker) Changed() <-chan struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.changed
}

// Subscribe registers fn for turn changes. fn runs on the goroutine calling
// Set, with no tracker lock held, so it may call back into the tracker.
func (t *Tracker) Subscribe(fn ChangeFunc) Subscription {
	if fn == nil {
		return subscription(func() {})
	}

	t.obsMu.Lock()
	id := t.nextID
	t.nextID++
	t.observers[id] = fn
	t.obsMu.Unlock()

	var once sync.Once
	return subscription(func() {
		once.Do(func() {
			t.obsMu.Lock()
			delete(t.observers, id)
			t.obsMu.Unlock()
		})
	})
}

// Reset drops every observer.
func (t *Tracker) Reset() {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = make(map[int]ChangeFunc)
}

func (t *Tracker) notify(previous, current string) {
	t.obsMu.Lock()
	ids := make([]int, 0, len(t.observers))
	for id := range t.observers {
		ids = append(ids, id)
	}
	snapshot := make([]ChangeFunc, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		snapshot = append(snapshot, t.observers[id])
	}
	t.obsMu.Unlock()

	for _, fn := range snapshot {
		fn(previous, current)
	}
}

type subscription func()

func (s subscription) Unsubscribe() { s() }

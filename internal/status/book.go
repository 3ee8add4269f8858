package status

import (
	"sync"
	"time"
)

type State string

const (
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
	StateSuspended    State = "suspended"
)

// Source names the component that observed a transition.
type Source string

const (
	SourceSession Source = "session"
	SourceSocket  Source = "socket"
)

// DefaultHistorySize is the number of entries kept per account.
const DefaultHistorySize = 50

type Entry struct {
	AccountID uint      `json:"account_id"`
	Source    Source    `json:"source"`
	State     State     `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Book holds the latest state per account and source plus a bounded history.
type Book struct {
	mu       sync.RWMutex
	current  map[uint]map[Source]Entry
	history  map[uint][]Entry
	capacity int
	now      func() time.Time

	listeners []func(Entry)
}

func NewBook(capacity int) *Book {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &Book{
		current:  make(map[uint]map[Source]Entry),
		history:  make(map[uint][]Entry),
		capacity: capacity,
		now:      time.Now,
	}
}

func (b *Book) Record(e Entry) Entry {
	if e.At.IsZero() {
		e.At = b.now()
	}

	b.mu.Lock()
	bySource, ok := b.current[e.AccountID]
	if !ok {
		bySource = make(map[Source]Entry)
		b.current[e.AccountID] = bySource
	}
	bySource[e.Source] = e

	h := append(b.history[e.AccountID], e)
	if len(h) > b.capacity {
		trimmed := make([]Entry, b.capacity)
		copy(trimmed, h[len(h)-b.capacity:])
		h = trimmed
	}
	b.history[e.AccountID] = h
	listeners := b.listeners
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(e)
	}
	return e
}

// OnRecord registers fn to be called after every Record, outside the lock.
func (b *Book) OnRecord(fn func(Entry)) {
	b.mu.Lock()
	b.listeners = append(b.listeners[:len(b.listeners):len(b.listeners)], fn)
	b.mu.Unlock()
}

// State returns the last state recorded by src for the account.
func (b *Book) State(accountID uint, src Source) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.current[accountID][src]
	return e, ok
}

// Current returns the latest entry of every source for the account.
func (b *Book) Current(accountID uint) map[Source]Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[Source]Entry, len(b.current[accountID]))
	for src, e := range b.current[accountID] {
		out[src] = e
	}
	return out
}

// History returns entries oldest first.
func (b *Book) History(accountID uint) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h := b.history[accountID]
	out := make([]Entry, len(h))
	copy(out, h)
	return out
}

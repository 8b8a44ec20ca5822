package browser

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Listeners is a registry of callbacks for one page event. Drivers attach a
// single native listener per event and fan out through a Listeners value, so
// unsubscribing never depends on comparing function values.
type Listeners[T any] struct {
	mu   sync.RWMutex
	seq  uint64
	byID map[string]listener[T]
}

type listener[T any] struct {
	seq uint64
	fn  func(T)
}

// Add registers fn and returns its detach function.
func (l *Listeners[T]) Add(fn func(T)) Unsubscribe {
	id := uuid.NewString()

	l.mu.Lock()
	if l.byID == nil {
		l.byID = make(map[string]listener[T])
	}
	l.seq++
	l.byID[id] = listener[T]{seq: l.seq, fn: fn}
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.byID, id)
			l.mu.Unlock()
		})
	}
}

// Emit calls every registered callback in registration order. Callbacks run
// outside the registry lock and may unsubscribe themselves.
func (l *Listeners[T]) Emit(v T) {
	for _, fn := range l.snapshot() {
		fn(v)
	}
}

// Len reports the number of registered callbacks.
func (l *Listeners[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}

func (l *Listeners[T]) snapshot() []func(T) {
	l.mu.RLock()
	entries := make([]listener[T], 0, len(l.byID))
	for _, e := range l.byID {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	fns := make([]func(T), len(entries))
	for i, e := range entries {
		fns[i] = e.fn
	}
	return fns
}

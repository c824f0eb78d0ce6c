// Package history provides bounded, concurrency-safe FIFO lists.
package history

import "sync"

// DefaultCapacity is the number of entries kept per list.
const DefaultCapacity = 100

// Bounded is an append-only list that drops its oldest entries once it
// exceeds its capacity.
type Bounded[T any] struct {
	mu    sync.RWMutex
	cap   int
	items []T
}

// NewBounded returns a list holding at most capacity entries.
// A non-positive capacity uses DefaultCapacity.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bounded[T]{cap: capacity}
}

// Append adds v, evicting the oldest entry when full.
func (b *Bounded[T]) Append(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, v)
	if over := len(b.items) - b.cap; over > 0 {
		clear(b.items[:over])
		b.items = append(b.items[:0], b.items[over:]...)
	}
}

// Snapshot returns a copy of the entries, oldest first.
func (b *Bounded[T]) Snapshot() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Tail returns a copy of the last n entries.
func (b *Bounded[T]) Tail(n int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n > len(b.items) {
		n = len(b.items)
	}
	out := make([]T, n)
	copy(out, b.items[len(b.items)-n:])
	return out
}

// Last returns the newest entry.
func (b *Bounded[T]) Last() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var zero T
	if len(b.items) == 0 {
		return zero, false
	}
	return b.items[len(b.items)-1], true
}

// Len returns the number of entries.
func (b *Bounded[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Keyed holds one bounded list per key.
type Keyed[K comparable, T any] struct {
	mu    sync.Mutex
	cap   int
	lists map[K]*Bounded[T]
}

// NewKeyed returns an empty set of lists, each holding at most capacity entries.
func NewKeyed[K comparable, T any](capacity int) *Keyed[K, T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Keyed[K, T]{cap: capacity, lists: make(map[K]*Bounded[T])}
}

// Append adds v to the list for key, creating it if needed.
func (k *Keyed[K, T]) Append(key K, v T) {
	k.list(key, true).Append(v)
}

// Get returns the list for key, or nil if nothing was appended.
func (k *Keyed[K, T]) Get(key K) *Bounded[T] {
	return k.list(key, false)
}

// Snapshot returns a copy of the entries for key.
func (k *Keyed[K, T]) Snapshot(key K) []T {
	if l := k.list(key, false); l != nil {
		return l.Snapshot()
	}
	return nil
}

// Delete drops the list for key.
func (k *Keyed[K, T]) Delete(key K) {
	k.mu.Lock()
	delete(k.lists, key)
	k.mu.Unlock()
}

// Keys returns every key that has a list.
func (k *Keyed[K, T]) Keys() []K {
	k.mu.Lock()
	defer k.mu.Unlock()
	keys := make([]K, 0, len(k.lists))
	for key := range k.lists {
		keys = append(keys, key)
	}
	return keys
}

func (k *Keyed[K, T]) list(key K, create bool) *Bounded[T] {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.lists[key]
	if !ok && create {
		l = NewBounded[T](k.cap)
		k.lists[key] = l
	}
	return l
}

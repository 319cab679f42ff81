package capture

import "sync"

// Releaser is a value with an explicit end of life.
type Releaser interface {
	Release()
}

// Mailbox holds at most one pending item. Put replaces and releases the previous item;
// Take empties the slot.
type Mailbox[T Releaser] struct {
	mu      sync.Mutex
	item    T
	full    bool
	dropped uint64
}

// Put stores v and releases the item it replaces. It reports whether an item was replaced.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	old, replaced := m.item, m.full
	m.item, m.full = v, true
	if replaced {
		m.dropped++
	}
	m.mu.Unlock()

	if replaced {
		old.Release()
	}
	return replaced
}

// Take removes and returns the pending item. ok is false when the slot is empty.
func (m *Mailbox[T]) Take() (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok = m.item, m.full
	var zero T
	m.item, m.full = zero, false
	return v, ok
}

// Dropped returns how many items were released without being taken.
func (m *Mailbox[T]) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Clear releases the pending item, if any.
func (m *Mailbox[T]) Clear() {
	if v, ok := m.Take(); ok {
		v.Release()
	}
}

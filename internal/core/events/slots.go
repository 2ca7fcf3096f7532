package events

import (
	"sync"
	"sync/atomic"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/internal/core/ports"
)

// Slot is a per-session mutable reference to a lazily-created virtual
// device. It transitions monotonically: empty, then populated on first
// use, then destroyed on session end, never re-populated afterwards.
// Setting publishes the whole value at once so a concurrent reader can
// never observe a half-constructed device.
type Slot[T any] struct {
	mu        sync.RWMutex
	value     T
	populated bool
	destroyed bool
}

func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{}
}

// Get returns the current value and whether the slot is populated.
func (s *Slot[T]) Get() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.populated
}

// Set publishes a new value. After Destroy it fails with
// domain.ErrSessionStopped.
func (s *Slot[T]) Set(value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return domain.ErrSessionStopped
	}
	s.value = value
	s.populated = true
	return nil
}

// GetOrCreate returns the current value, lazily creating it on first
// use. The create function runs at most once per slot lifetime.
func (s *Slot[T]) GetOrCreate(create func() (T, error)) (T, error) {
	s.mu.RLock()
	if s.populated {
		value := s.value
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.destroyed {
		return zero, domain.ErrSessionStopped
	}
	if s.populated {
		return s.value, nil
	}

	value, err := create()
	if err != nil {
		return zero, err
	}
	s.value = value
	s.populated = true
	return value, nil
}

// Destroy empties the slot permanently and returns the previous value,
// if any, so the caller can release it.
func (s *Slot[T]) Destroy() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, populated := s.value, s.populated
	var zero T
	s.value = zero
	s.populated = false
	s.destroyed = true
	return value, populated
}

// JoypadMap is the per-session joypad collection, keyed by controller
// index. Readers grab a copy-on-write snapshot without locking, so
// inserting controller N never blocks or tears a read of controller M.
type JoypadMap struct {
	mu        sync.Mutex
	snapshot  atomic.Pointer[map[int]ports.Joypad]
	destroyed bool
}

func NewJoypadMap() *JoypadMap {
	m := &JoypadMap{}
	empty := map[int]ports.Joypad{}
	m.snapshot.Store(&empty)
	return m
}

// Get returns the joypad at the given controller index.
func (m *JoypadMap) Get(index int) (ports.Joypad, bool) {
	snapshot := *m.snapshot.Load()
	pad, ok := snapshot[index]
	return pad, ok
}

// Snapshot returns the current point-in-time view.
func (m *JoypadMap) Snapshot() map[int]ports.Joypad {
	return *m.snapshot.Load()
}

// Set publishes a new joypad at the given controller index.
func (m *JoypadMap) Set(index int, pad ports.Joypad) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return domain.ErrSessionStopped
	}
	next := m.copyLocked()
	next[index] = pad
	m.snapshot.Store(&next)
	return nil
}

// Remove drops the joypad at the given controller index and returns it.
func (m *JoypadMap) Remove(index int) (ports.Joypad, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := *m.snapshot.Load()
	pad, ok := current[index]
	if !ok {
		return nil, false
	}
	next := m.copyLocked()
	delete(next, index)
	m.snapshot.Store(&next)
	return pad, true
}

// Destroy empties the collection permanently and returns the removed
// joypads so the caller can release them.
func (m *JoypadMap) Destroy() []ports.Joypad {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := *m.snapshot.Load()
	pads := make([]ports.Joypad, 0, len(current))
	for _, pad := range current {
		pads = append(pads, pad)
	}

	empty := map[int]ports.Joypad{}
	m.snapshot.Store(&empty)
	m.destroyed = true
	return pads
}

func (m *JoypadMap) copyLocked() map[int]ports.Joypad {
	current := *m.snapshot.Load()
	next := make(map[int]ports.Joypad, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	return next
}

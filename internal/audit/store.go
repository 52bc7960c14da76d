package audit

import (
	"sync"
	"time"
)

// DefaultMaxEvents is the store capacity when none is configured.
const DefaultMaxEvents = 10000

// EventStore is a fixed-capacity, insertion-ordered ring of events.
// Once full, each append overwrites the oldest event.
type EventStore struct {
	mu       sync.Mutex
	capacity int
	buf      []Event
	head     int // index of the oldest event once buf is full
	seq      uint64
	last     time.Time
	now      func() time.Time
}

// NewEventStore creates a store holding at most capacity events.
// A non-positive capacity falls back to DefaultMaxEvents.
func NewEventStore(capacity int) *EventStore {
	return newEventStore(capacity, time.Now)
}

func newEventStore(capacity int, now func() time.Time) *EventStore {
	if capacity <= 0 {
		capacity = DefaultMaxEvents
	}
	return &EventStore{
		capacity: capacity,
		now:      now,
	}
}

// Append stamps the event with its timestamp and sequence number, stores it
// at the tail and returns the stored copy. Timestamps never go backwards in
// insertion order, even if the wall clock does.
func (s *EventStore) Append(e Event) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	if ts.Before(s.last) {
		ts = s.last
	}
	s.last = ts
	s.seq++

	e.Timestamp = ts
	e.seq = s.seq

	if len(s.buf) < s.capacity {
		s.buf = append(s.buf, e)
		return e
	}

	s.buf[s.head] = e
	s.head = (s.head + 1) % s.capacity
	return e
}

// All returns a copy of the stored events, oldest first.
func (s *EventStore) All() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, 0, len(s.buf))
	out = append(out, s.buf[s.head:]...)
	out = append(out, s.buf[:s.head]...)
	return out
}

// Clear drops every stored event.
func (s *EventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = nil
	s.head = 0
}

// Len returns the number of stored events.
func (s *EventStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Capacity returns the maximum number of events kept.
func (s *EventStore) Capacity() int {
	return s.capacity
}

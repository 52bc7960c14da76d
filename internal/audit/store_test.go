package audit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func operations(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Operation
	}
	return out
}

func TestEventStoreFIFOEviction(t *testing.T) {
	for _, capacity := range []int{1, 2, 7, 50} {
		t.Run(fmt.Sprintf("capacity=%d", capacity), func(t *testing.T) {
			store := NewEventStore(capacity)
			total := capacity*3 + 1

			for i := 0; i < total; i++ {
				store.Append(Event{Operation: fmt.Sprintf("op-%d", i)})
			}

			all := store.All()
			require.Len(t, all, capacity)
			for i, e := range all {
				assert.Equal(t, fmt.Sprintf("op-%d", total-capacity+i), e.Operation)
			}
		})
	}
}

func TestEventStoreDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultMaxEvents, NewEventStore(0).Capacity())
	assert.Equal(t, DefaultMaxEvents, NewEventStore(-3).Capacity())
}

func TestEventStoreSnapshotIsolation(t *testing.T) {
	store := NewEventStore(2)
	store.Append(Event{Operation: "a"})
	store.Append(Event{Operation: "b"})

	snapshot := store.All()
	store.Append(Event{Operation: "c"})
	snapshot[0].Operation = "mutated"

	assert.Equal(t, []string{"mutated", "b"}, operations(snapshot))
	assert.Equal(t, []string{"b", "c"}, operations(store.All()))
}

func TestEventStoreClear(t *testing.T) {
	store := NewEventStore(3)
	for i := 0; i < 5; i++ {
		store.Append(Event{Operation: "x"})
	}

	store.Clear()
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, store.All())

	store.Append(Event{Operation: "after"})
	assert.Equal(t, []string{"after"}, operations(store.All()))
}

func TestEventStoreTimestampsNeverGoBackwards(t *testing.T) {
	clock := newFakeClock()
	store := newEventStore(10, clock.Now)

	first := store.Append(Event{Operation: "first"})
	clock.Advance(-time.Hour)
	second := store.Append(Event{Operation: "second"})

	assert.Equal(t, first.Timestamp, second.Timestamp)
	assert.Greater(t, second.seq, first.seq)
}

func TestEventStoreConcurrentAppend(t *testing.T) {
	store := NewEventStore(1000)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				store.Append(Event{Operation: fmt.Sprintf("w%d-%d", w, i)})
				_ = store.All()
			}
		}(w)
	}
	wg.Wait()

	all := store.All()
	require.Len(t, all, 1000)

	seen := make(map[uint64]bool, len(all))
	for i, e := range all {
		assert.False(t, seen[e.seq], "duplicate sequence %d", e.seq)
		seen[e.seq] = true
		if i > 0 {
			assert.Equal(t, all[i-1].seq+1, e.seq)
			assert.False(t, e.Timestamp.Before(all[i-1].Timestamp))
		}
	}
}

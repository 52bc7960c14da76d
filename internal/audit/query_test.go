package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(clock *fakeClock) *EventStore {
	store := newEventStore(100, clock.Now)
	store.Append(Event{Operation: "create-database", Result: ResultSuccess, ClusterID: "c1", DatabaseName: "orders"})
	clock.Advance(time.Second)
	store.Append(Event{Operation: "create-user", Result: ResultError, Error: "conflict", ClusterID: "c1", UserID: "U-1"})
	// same timestamp as the previous event
	store.Append(Event{Operation: "create-database", Result: ResultError, Error: "exists", ClusterID: "c2", DatabaseName: "orders"})
	clock.Advance(time.Second)
	store.Append(Event{Operation: "list-databases"})
	return store
}

func TestQueryWithoutFilterSortsNewestFirst(t *testing.T) {
	clock := newFakeClock()
	store := seedStore(clock)

	events, err := Query(store.All(), Filter{})
	require.NoError(t, err)

	assert.Equal(t, []string{"list-databases", "create-database", "create-user", "create-database"}, operations(events))
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Timestamp.After(events[i-1].Timestamp))
	}
	// the tie is broken by insertion order, later first
	assert.Equal(t, "c2", events[1].ClusterID)
}

func TestQueryPredicates(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	store := seedStore(clock)
	mid := start.Add(time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"operation", Filter{Operation: "create-database"}, []string{"create-database", "create-database"}},
		{"result", Filter{Result: ResultError}, []string{"create-database", "create-user"}},
		{"cluster", Filter{ClusterID: "c1"}, []string{"create-user", "create-database"}},
		{"database", Filter{DatabaseName: "orders", ClusterID: "c1"}, []string{"create-database"}},
		{"user", Filter{UserID: "U-1"}, []string{"create-user"}},
		{"since inclusive", Filter{Since: &mid}, []string{"list-databases", "create-database", "create-user"}},
		{"until inclusive", Filter{Until: &mid}, []string{"create-database", "create-user", "create-database"}},
		{"range", Filter{Since: &mid, Until: &mid}, []string{"create-database", "create-user"}},
		{"limit", Filter{Limit: 1}, []string{"list-databases"}},
		{"no match", Filter{Operation: "delete-user"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := Query(store.All(), tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, operations(events))
		})
	}
}

func TestQueryRejectsMalformedFilter(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Minute)

	tests := []struct {
		name   string
		filter Filter
		field  string
	}{
		{"unknown result", Filter{Result: "pending"}, "result"},
		{"inverted range", Filter{Since: &now, Until: &earlier}, "since"},
		{"negative limit", Filter{Limit: -1}, "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := Query([]Event{{Operation: "x"}}, tt.filter)
			require.Error(t, err)
			assert.Nil(t, events)

			var filterErr *FilterError
			require.True(t, errors.As(err, &filterErr))
			assert.Equal(t, tt.field, filterErr.Field)
		})
	}
}

func TestQueryDoesNotMutateInput(t *testing.T) {
	clock := newFakeClock()
	store := seedStore(clock)
	input := store.All()

	_, err := Query(input, Filter{})
	require.NoError(t, err)

	assert.Equal(t, []string{"create-database", "create-user", "create-database", "list-databases"}, operations(input))
}

func TestRecent(t *testing.T) {
	clock := newFakeClock()
	store := newEventStore(500, clock.Now)
	for i := 0; i < 150; i++ {
		store.Append(Event{Operation: "op"})
		clock.Advance(time.Millisecond)
	}

	assert.Len(t, Recent(store.All(), 0), DefaultRecentCount)
	recent := Recent(store.All(), 3)
	require.Len(t, recent, 3)
	assert.Equal(t, uint64(150), recent[0].seq)
}

func TestStats(t *testing.T) {
	clock := newFakeClock()
	store := seedStore(clock)

	stats := Stats(store.All())
	assert.Equal(t, OperationStats{Total: 2, Success: 1, Error: 1}, stats["create-database"])
	assert.Equal(t, OperationStats{Total: 1, Success: 0, Error: 1}, stats["create-user"])
	assert.Equal(t, OperationStats{Total: 1}, stats["list-databases"])
}

package audit

import (
	"fmt"
	"sort"
)

// DefaultRecentCount is used by RecentEvents when no count is given.
const DefaultRecentCount = 100

// Validate checks the filter without applying it.
func (f Filter) Validate() error {
	if !f.Result.Valid() {
		return &FilterError{
			Field:   "result",
			Message: fmt.Sprintf("must be %q or %q, got %q", ResultSuccess, ResultError, f.Result),
		}
	}
	if f.Since != nil && f.Until != nil && f.Since.After(*f.Until) {
		return &FilterError{
			Field:   "since",
			Message: "must not be after until",
		}
	}
	if f.Limit < 0 {
		return &FilterError{
			Field:   "limit",
			Message: fmt.Sprintf("must not be negative, got %d", f.Limit),
		}
	}
	return nil
}

// Matches reports whether e satisfies every predicate of the filter.
func (f Filter) Matches(e Event) bool {
	if f.Operation != "" && e.Operation != f.Operation {
		return false
	}
	if f.Result != ResultNone && e.Result != f.Result {
		return false
	}
	if f.ClusterID != "" && e.ClusterID != f.ClusterID {
		return false
	}
	if f.DatabaseName != "" && e.DatabaseName != f.DatabaseName {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.Timestamp.After(*f.Until) {
		return false
	}
	return true
}

// Query returns the events matching f, newest first. Ties on timestamp are
// broken by insertion order, later first. events is not modified.
func Query(events []Event, f Filter) ([]Event, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	out := make([]Event, 0, len(events))
	for _, e := range events {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	sortNewestFirst(out)

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Recent returns the n newest events. n <= 0 means DefaultRecentCount.
func Recent(events []Event, n int) []Event {
	if n <= 0 {
		n = DefaultRecentCount
	}
	out, _ := Query(events, Filter{Limit: n})
	return out
}

// Stats groups events by exact operation name.
func Stats(events []Event) map[string]OperationStats {
	stats := make(map[string]OperationStats)
	for _, e := range events {
		s := stats[e.Operation]
		s.Total++
		switch e.Result {
		case ResultSuccess:
			s.Success++
		case ResultError:
			s.Error++
		}
		stats[e.Operation] = s
	}
	return stats
}

func sortNewestFirst(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.seq > b.seq
	})
}

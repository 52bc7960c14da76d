package audit

import "time"

const (
	// MetricsWindow is the trailing window for throughput and recent errors.
	MetricsWindow = time.Minute

	maxRecentErrors = 10
)

// Snapshot derives metrics from events (oldest first) relative to now.
// Nothing is cached; every call recomputes from the given events.
func Snapshot(events []Event, now time.Time) Metrics {
	windowStart := now.Add(-MetricsWindow)

	var errorCount, inWindow int
	recentErrors := make([]Event, 0, maxRecentErrors)

	for _, e := range events {
		recent := !e.Timestamp.Before(windowStart)
		if recent {
			inWindow++
		}
		if e.Result != ResultError {
			continue
		}
		errorCount++
		if recent {
			recentErrors = append(recentErrors, e)
		}
	}

	if len(recentErrors) > maxRecentErrors {
		recentErrors = recentErrors[len(recentErrors)-maxRecentErrors:]
	}

	var errorRate float64
	if len(events) > 0 {
		errorRate = float64(errorCount) / float64(len(events))
	}

	return Metrics{
		TotalEvents:         len(events),
		ErrorRate:           errorRate,
		OperationsPerMinute: inWindow,
		RecentErrors:        recentErrors,
	}
}

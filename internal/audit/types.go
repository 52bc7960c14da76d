package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kubilitics/couchdb-mcp/internal/value"
)

// Result represents the outcome of an audited operation
type Result string

const (
	// ResultNone marks an invocation whose outcome is not known yet.
	ResultNone    Result = ""
	ResultSuccess Result = "success"
	ResultError   Result = "error"
)

// Valid reports whether r is one of the known results (including none).
func (r Result) Valid() bool {
	switch r {
	case ResultNone, ResultSuccess, ResultError:
		return true
	}
	return false
}

// Event represents a single audit event.
//
// Events are immutable once stored. Parameters is shared between snapshots
// and must be treated as read-only by callers.
type Event struct {
	Timestamp    time.Time
	Operation    string
	Parameters   value.Value
	Result       Result
	Error        string
	Duration     *time.Duration
	ClusterID    string
	DatabaseName string
	UserID       string
	Metadata     map[string]string

	// seq is the insertion sequence number assigned by the store.
	seq uint64
}

// eventJSON is the export shape; optional fields are omitted, never null.
type eventJSON struct {
	Timestamp    time.Time         `json:"timestamp"`
	Operation    string            `json:"operation"`
	Parameters   value.Value       `json:"parameters,omitempty"`
	Result       Result            `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
	DurationMs   *int64            `json:"duration,omitempty"`
	ClusterID    string            `json:"clusterId,omitempty"`
	DatabaseName string            `json:"databaseName,omitempty"`
	UserID       string            `json:"userId,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// MarshalJSON implements json.Marshaler. Duration is exported in milliseconds.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		Timestamp:    e.Timestamp,
		Operation:    e.Operation,
		Parameters:   e.Parameters,
		Result:       e.Result,
		Error:        e.Error,
		ClusterID:    e.ClusterID,
		DatabaseName: e.DatabaseName,
		UserID:       e.UserID,
		Metadata:     e.Metadata,
	}
	if e.Duration != nil {
		ms := e.Duration.Milliseconds()
		out.DurationMs = &ms
	}
	return json.Marshal(out)
}

// Filter selects events. Every non-empty field must match (logical AND).
type Filter struct {
	Operation    string
	Result       Result
	ClusterID    string
	DatabaseName string
	UserID       string

	// Since and Until are inclusive bounds on Timestamp.
	Since *time.Time
	Until *time.Time

	// Limit caps the number of returned events; 0 means no cap.
	Limit int
}

// FilterError reports a malformed filter.
type FilterError struct {
	Field   string
	Message string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("invalid audit filter %s: %s", e.Field, e.Message)
}

// OperationStats counts events per operation name.
type OperationStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Error   int `json:"error"`
}

// Metrics is a point-in-time view derived from the store.
type Metrics struct {
	TotalEvents         int     `json:"totalEvents"`
	ErrorRate           float64 `json:"errorRate"`
	OperationsPerMinute int     `json:"operationsPerMinute"`
	RecentErrors        []Event `json:"recentErrors"`
}

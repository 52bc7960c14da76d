package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kubilitics/couchdb-mcp/internal/value"
)

// Config represents audit logger configuration
type Config struct {
	// MaxEvents is the number of events kept in memory
	MaxEvents int

	// Verbosity gates diagnostic output (debug, info, warn, error).
	// At debug every event is emitted, otherwise only errors.
	Verbosity string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		MaxEvents: DefaultMaxEvents,
		Verbosity: "info",
	}
}

// Logger is the in-memory audit log. It sanitizes parameters, keeps a bounded
// history, answers queries and mirrors events to a diagnostic zap sink.
// All methods are safe for concurrent use.
type Logger struct {
	store   *EventStore
	sink    *zap.Logger
	verbose bool
	clock   func() time.Time

	subsMu  sync.RWMutex
	subs    map[uint64]func(Event)
	nextSub uint64
}

// RecordOption sets optional event fields.
type RecordOption func(*Event)

// WithDuration attaches the elapsed time of the operation. Negative
// durations are recorded as zero.
func WithDuration(d time.Duration) RecordOption {
	return func(e *Event) {
		if d < 0 {
			d = 0
		}
		e.Duration = &d
	}
}

// WithMetadata attaches a copy of md to the event.
func WithMetadata(md map[string]string) RecordOption {
	return func(e *Event) {
		if len(md) == 0 {
			return
		}
		cp := make(map[string]string, len(md))
		for k, v := range md {
			cp[k] = v
		}
		e.Metadata = cp
	}
}

// NewLogger creates a new audit logger. A nil sink disables diagnostic output.
func NewLogger(config *Config, sink *zap.Logger) (*Logger, error) {
	return newLogger(config, sink, time.Now)
}

func newLogger(config *Config, sink *zap.Logger, clock func() time.Time) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxEvents < 1 {
		return nil, fmt.Errorf("invalid max events %d: must be at least 1", config.MaxEvents)
	}

	verbosity := config.Verbosity
	if verbosity == "" {
		verbosity = "info"
	}
	level, err := zapcore.ParseLevel(verbosity)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.Verbosity, err)
	}

	if sink == nil {
		sink = zap.NewNop()
	}

	return &Logger{
		store:   newEventStore(config.MaxEvents, clock),
		sink:    sink,
		verbose: level == zapcore.DebugLevel,
		clock:   clock,
		subs:    make(map[uint64]func(Event)),
	}, nil
}

// RecordInvocation records that an operation was invoked; the outcome is not known yet.
func (l *Logger) RecordInvocation(operation string, params value.Value, opts ...RecordOption) {
	l.record(Event{Operation: operation, Parameters: params}, opts)
}

// RecordSuccess records a completed operation.
func (l *Logger) RecordSuccess(operation string, params value.Value, opts ...RecordOption) {
	l.record(Event{Operation: operation, Parameters: params, Result: ResultSuccess}, opts)
}

// RecordError records a failed operation. errMsg is stored verbatim and is
// not sanitized.
func (l *Logger) RecordError(operation string, params value.Value, errMsg string, opts ...RecordOption) {
	l.record(Event{Operation: operation, Parameters: params, Result: ResultError, Error: errMsg}, opts)
}

// RecordDatabaseOperation records an operation against a single database.
func (l *Logger) RecordDatabaseOperation(operation, clusterID, databaseName string, params value.Value, result Result, errMsg string, opts ...RecordOption) {
	l.record(Event{
		Operation:    operation,
		Parameters:   params,
		Result:       result,
		Error:        errMsg,
		ClusterID:    clusterID,
		DatabaseName: databaseName,
	}, opts)
}

// RecordUserOperation records an operation against a single user.
func (l *Logger) RecordUserOperation(operation, clusterID, userID string, params value.Value, result Result, errMsg string, opts ...RecordOption) {
	l.record(Event{
		Operation:  operation,
		Parameters: params,
		Result:     result,
		Error:      errMsg,
		ClusterID:  clusterID,
		UserID:     userID,
	}, opts)
}

func (l *Logger) record(e Event, opts []RecordOption) {
	if e.Operation == "" {
		e.Operation = "unknown"
	}
	if !e.Result.Valid() {
		e.Result = ResultNone
	}
	switch {
	case e.Result != ResultError:
		e.Error = ""
	case e.Error == "":
		e.Error = "unknown error"
	}

	e.Parameters = Sanitize(e.Parameters)
	for _, opt := range opts {
		opt(&e)
	}

	stored := l.store.Append(e)
	l.emit(stored)
	l.notify(stored)
}

// emit mirrors the event to the diagnostic sink. It never fails the caller.
func (l *Logger) emit(e Event) {
	if !l.verbose && e.Result != ResultError {
		return
	}
	defer func() { _ = recover() }()

	fields := []zap.Field{
		zap.Time("event_time", e.Timestamp),
		zap.String("operation", e.Operation),
	}
	if e.Result != ResultNone {
		fields = append(fields, zap.String("result", string(e.Result)))
	}
	if e.ClusterID != "" {
		fields = append(fields, zap.String("cluster_id", e.ClusterID))
	}
	if e.DatabaseName != "" {
		fields = append(fields, zap.String("database_name", e.DatabaseName))
	}
	if e.UserID != "" {
		fields = append(fields, zap.String("user_id", e.UserID))
	}
	if e.Duration != nil {
		fields = append(fields, zap.Duration("duration", *e.Duration))
	}

	if e.Result == ResultError {
		l.sink.Error("AUDIT", append(fields, zap.String("error", e.Error))...)
		return
	}
	l.sink.Info("AUDIT", fields...)
}

// Subscribe registers fn to receive every event after it is stored.
// fn runs on the recording goroutine and must not block; panics are
// swallowed. The returned function removes the subscription.
func (l *Logger) Subscribe(fn func(Event)) (cancel func()) {
	l.subsMu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.subsMu.Lock()
			delete(l.subs, id)
			l.subsMu.Unlock()
		})
	}
}

func (l *Logger) notify(e Event) {
	l.subsMu.RLock()
	subs := make([]func(Event), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.subsMu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() { _ = recover() }()
			fn(e)
		}()
	}
}

// Query returns the events matching filter, newest first.
func (l *Logger) Query(filter Filter) ([]Event, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return Query(l.store.All(), filter)
}

// ErrorEvents returns every failed event, newest first.
func (l *Logger) ErrorEvents() []Event {
	events, _ := Query(l.store.All(), Filter{Result: ResultError})
	return events
}

// RecentEvents returns the n newest events (DefaultRecentCount when n <= 0).
func (l *Logger) RecentEvents(n int) []Event {
	return Recent(l.store.All(), n)
}

// OperationStats returns total/success/error counts per operation.
func (l *Logger) OperationStats() map[string]OperationStats {
	return Stats(l.store.All())
}

// Export serializes the filtered events as a compact JSON array.
func (l *Logger) Export(filter Filter) ([]byte, error) {
	events, err := l.Query(filter)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit events: %w", err)
	}
	return data, nil
}

// Metrics computes the metrics snapshot at now. A zero now means the
// logger's clock.
func (l *Logger) Metrics(now time.Time) Metrics {
	if now.IsZero() {
		now = l.clock()
	}
	return Snapshot(l.store.All(), now)
}

// Clear drops every stored event.
func (l *Logger) Clear() {
	l.store.Clear()
}

// Len returns the number of stored events.
func (l *Logger) Len() int {
	return l.store.Len()
}

// Capacity returns the configured maximum number of events.
func (l *Logger) Capacity() int {
	return l.store.Capacity()
}

package sqlengine

import (
	"time"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
)

// Option defines a functional option for configuring a StateStore.
type Option func(*StateStore) error

// WithSnapshotsTableName sets the name of the snapshots table. It may be schema qualified.
func WithSnapshotsTableName(tableName string) Option {
	return func(ss *StateStore) error {
		if tableName == "" {
			return ErrEmptySnapshotsTableName
		}

		ss.snapshotsTableName = tableName

		return nil
	}
}

// WithIntervalsTableName sets the name of the intervals table. It may be schema qualified.
func WithIntervalsTableName(tableName string) Option {
	return func(ss *StateStore) error {
		if tableName == "" {
			return ErrEmptyIntervalsTableName
		}

		ss.intervalsTableName = tableName

		return nil
	}
}

// WithClock sets the time source for the created_ts column of interval log rows.
func WithClock(clock func() time.Time) Option {
	return func(ss *StateStore) error {
		if clock != nil {
			ss.clock = clock
		}

		return nil
	}
}

// WithLogger sets the logger for the StateStore.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Info level: Operation names, row counts, durations (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger snapshot.Logger) Option {
	return func(ss *StateStore) error {
		ss.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the StateStore.
// It receives the same messages as the Logger, together with the context of the operation, so trace and
// span ids can be correlated when tracing is enabled.
func WithContextualLogger(logger snapshot.ContextualLogger) Option {
	return func(ss *StateStore) error {
		ss.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the StateStore.
// It receives operation durations, processed row counts and database errors.
func WithMetrics(collector snapshot.MetricsCollector) Option {
	return func(ss *StateStore) error {
		ss.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the StateStore.
// One span is started per public operation.
func WithTracing(collector snapshot.TracingCollector) Option {
	return func(ss *StateStore) error {
		ss.tracingCollector = collector
		return nil
	}
}

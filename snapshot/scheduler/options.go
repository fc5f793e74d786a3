package scheduler

import (
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
)

// Option defines a functional option for configuring a Scheduler.
type Option func(*Scheduler) error

// WithBatchSize sets the default number of schedule slots evaluated per batch. Zero means unlimited.
// A batch size in the model's metadata takes precedence.
func WithBatchSize(size int) Option {
	return func(s *Scheduler) error {
		if size < 0 {
			return ErrInvalidBatchSize
		}

		s.batchSize = size

		return nil
	}
}

// WithDevelopmentMode records intervals the way development environments do, see Snapshot.IsTemporaryTable.
func WithDevelopmentMode() Option {
	return func(s *Scheduler) error {
		s.isDev = true

		return nil
	}
}

// WithLogger sets the logger for the Scheduler.
// Batches are logged at debug level, runs at info level, failures at error level.
func WithLogger(logger snapshot.Logger) Option {
	return func(s *Scheduler) error {
		s.logger = logger

		return nil
	}
}

// WithContextualLogger sets the context-aware logger for the Scheduler.
func WithContextualLogger(logger snapshot.ContextualLogger) Option {
	return func(s *Scheduler) error {
		s.contextualLogger = logger

		return nil
	}
}

// WithMetrics sets the metrics collector for the Scheduler.
func WithMetrics(collector snapshot.MetricsCollector) Option {
	return func(s *Scheduler) error {
		s.metricsCollector = collector

		return nil
	}
}

// WithTracing sets the tracing collector for the Scheduler. Every run gets one span.
func WithTracing(collector snapshot.TracingCollector) Option {
	return func(s *Scheduler) error {
		s.tracingCollector = collector

		return nil
	}
}

package scheduler

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
)

const (
	logMsgBatchEvaluated = "batch evaluated"
	logMsgBatchFailed    = "batch failed"
	logMsgRunFinished    = "scheduler run finished"
	logMsgRunFailed      = "scheduler run failed"
	logAttrRunID         = "run_id"
	logAttrSnapshot      = "snapshot"
	logAttrInterval      = "interval"
	logAttrSnapshots     = "snapshots"
	logAttrBatches       = "batches"
	logAttrDurationMS    = "duration_ms"
	logAttrError         = "error"
	logAttrErrorType     = "error_type"
	metricBatchDuration  = "snapshot_scheduler_batch_duration_seconds"
	metricRunDuration    = "snapshot_scheduler_run_duration_seconds"
	metricBatchesTotal   = "snapshot_scheduler_batches_total"
	metricRunErrors      = "snapshot_scheduler_run_errors_total"
	spanNameRun          = "snapshot_scheduler.run"
	spanAttrRunID        = "run_id"
	spanAttrSnapshots    = "snapshots"
	spanAttrBatches      = "batches"
	spanAttrErrorType    = "error_type"
	labelSnapshot        = "snapshot"
	labelStatus          = "status"
	statusSuccess        = "success"
	statusError          = "error"
)

const (
	errorTypeEvaluation = "evaluation"
	errorTypeRecording  = "recording"
	errorTypeCanceled   = "canceled"
	errorTypeCycle      = "dependency_cycle"
	errorTypeInvalid    = "invalid_input"
	errorTypeUnknown    = "unknown"
)

func errorType(err error) string {
	switch {
	case errors.Is(err, ErrEvaluationFailed):
		return errorTypeEvaluation
	case errors.Is(err, ErrRecordingFailed):
		return errorTypeRecording
	case errors.Is(err, ErrRunCanceled):
		return errorTypeCanceled
	case errors.Is(err, snapshot.ErrDependencyCycle):
		return errorTypeCycle
	case errors.Is(err, snapshot.ErrInvalidInput), errors.Is(err, snapshot.ErrPrecondition):
		return errorTypeInvalid
	default:
		return errorTypeUnknown
	}
}

func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// logDebug logs batch progress at debug level.
func (s *Scheduler) logDebug(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
	}
}

// logInfo logs run results at info level.
func (s *Scheduler) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, msg, args...)
	}
}

// logError logs failures at error level.
func (s *Scheduler) logError(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, args...)
	}
}

func (s *Scheduler) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := s.metricsCollector.(snapshot.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	s.metricsCollector.RecordDuration(metric, duration, labels)
}

func (s *Scheduler) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := s.metricsCollector.(snapshot.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metric, labels)
		return
	}

	s.metricsCollector.IncrementCounter(metric, labels)
}

// recordBatch logs and measures one evaluated batch.
func (s *Scheduler) recordBatch(
	ctx context.Context,
	snap *snapshot.Snapshot,
	batch snapshot.Interval,
	duration time.Duration,
	status string,
) {

	labels := map[string]string{labelSnapshot: snap.Name(), labelStatus: status}
	s.recordDuration(ctx, metricBatchDuration, duration, labels)
	s.incrementCounter(ctx, metricBatchesTotal, labels)

	args := []any{
		logAttrSnapshot, snap.SnapshotID().String(),
		logAttrInterval, batch.String(),
		logAttrDurationMS, toMilliseconds(duration),
	}

	if status == statusError {
		s.logError(ctx, logMsgBatchFailed, args...)
		return
	}

	s.logDebug(ctx, logMsgBatchEvaluated, args...)
}

type runObserver struct {
	s     *Scheduler
	ctx   context.Context
	runID string
	span  snapshot.SpanContext
	start time.Time
}

func (s *Scheduler) startRun(ctx context.Context, runID string) (*runObserver, context.Context) {
	var span snapshot.SpanContext

	if s.tracingCollector != nil {
		ctx, span = s.tracingCollector.StartSpan(ctx, spanNameRun, map[string]string{spanAttrRunID: runID})
	}

	return &runObserver{s: s, ctx: ctx, runID: runID, span: span, start: time.Now()}, ctx
}

func (o *runObserver) finishSuccess(result RunResult) {
	duration := time.Since(o.start)
	o.s.recordDuration(o.ctx, metricRunDuration, duration, map[string]string{labelStatus: statusSuccess})

	if o.span != nil {
		attrs := map[string]string{
			spanAttrSnapshots: strconv.Itoa(result.Snapshots),
			spanAttrBatches:   strconv.Itoa(result.Batches),
		}

		o.span.SetStatus(statusSuccess)
		o.s.tracingCollector.FinishSpan(o.span, statusSuccess, attrs)
	}

	o.s.logInfo(o.ctx, logMsgRunFinished,
		logAttrRunID, o.runID,
		logAttrSnapshots, result.Snapshots,
		logAttrBatches, result.Batches,
		logAttrDurationMS, toMilliseconds(duration),
	)
}

func (o *runObserver) finishError(err error, result RunResult) {
	duration := time.Since(o.start)
	errType := errorType(err)

	o.s.recordDuration(o.ctx, metricRunDuration, duration, map[string]string{labelStatus: statusError})
	o.s.incrementCounter(o.ctx, metricRunErrors, map[string]string{spanAttrErrorType: errType})

	if o.span != nil {
		o.span.SetStatus(statusError)
		o.span.AddAttribute(spanAttrErrorType, errType)
		o.s.tracingCollector.FinishSpan(o.span, statusError, map[string]string{spanAttrErrorType: errType})
	}

	o.s.logError(o.ctx, logMsgRunFailed,
		logAttrRunID, o.runID,
		logAttrBatches, result.Batches,
		logAttrError, err.Error(),
		logAttrErrorType, errType,
	)
}

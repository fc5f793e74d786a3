package sqlengine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/sqlengine/internal/adapters"
)

const (
	logMsgDBQueryFailed     = "database query execution failed"
	logMsgDBExecFailed      = "database statement execution failed"
	logMsgCloseRowsFailed   = "failed to close database rows"
	logMsgScanRowFailed     = "failed to scan database row"
	logMsgOperationFailed   = "state store operation failed"
	logMsgSQLExecuted       = "executed sql for: "
	logMsgOperation         = "state store operation: "
	logAttrError            = "error"
	logAttrErrorType        = "error_type"
	logAttrQuery            = "query"
	logAttrOperation        = "operation"
	logAttrRowCount         = "row_count"
	logAttrDurationMS       = "duration_ms"
	metricOperationDuration = "snapshot_state_operation_duration_seconds"
	metricRowsProcessed     = "snapshot_state_rows_total"
	metricDatabaseErrors    = "snapshot_state_database_errors_total"
	spanNamePrefix          = "snapshot_state."
	spanAttrOperation       = "operation"
	spanAttrRowCount        = "row_count"
	spanAttrDurationMS      = "duration_ms"
	spanAttrErrorType       = "error_type"
	statusSuccess           = "success"
	statusError             = "error"
)

const (
	operationCreateSchema     = "create_schema"
	operationPushSnapshots    = "push_snapshots"
	operationUpdateSnapshots  = "update_snapshots"
	operationGetSnapshots     = "get_snapshots"
	operationDeleteSnapshots  = "delete_snapshots"
	operationExpiredSnapshots = "expired_snapshots"
	operationGetIntervals     = "get_intervals"
	operationAddIntervals     = "add_intervals"
	operationRemoveIntervals  = "remove_intervals"
)

const (
	errorTypeBuildQuery    = "build_query"
	errorTypeDatabaseQuery = "database_query"
	errorTypeDatabaseExec  = "database_exec"
	errorTypeRowScan       = "row_scan"
	errorTypeEncodeRecord  = "encode_record"
	errorTypeDecodeRecord  = "decode_record"
	errorTypeNotFound      = "not_found"
	errorTypeInvalidInput  = "invalid_input"
	errorTypeUnknown       = "unknown"
)

// errorType maps an error returned by the StateStore to the label used in metrics and spans.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrBuildingQueryFailed):
		return errorTypeBuildQuery
	case errors.Is(err, ErrScanningDBRowFailed):
		return errorTypeRowScan
	case errors.Is(err, ErrQueryingStateFailed):
		return errorTypeDatabaseQuery
	case errors.Is(err, ErrWritingStateFailed):
		return errorTypeDatabaseExec
	case errors.Is(err, ErrEncodingRecordFailed):
		return errorTypeEncodeRecord
	case errors.Is(err, ErrDecodingRecordFailed):
		return errorTypeDecodeRecord
	case errors.Is(err, ErrSnapshotNotFound):
		return errorTypeNotFound
	case errors.Is(err, snapshot.ErrInvalidInput), errors.Is(err, snapshot.ErrPrecondition):
		return errorTypeInvalidInput
	default:
		return errorTypeUnknown
	}
}

// query executes sqlQuery and logs it with its duration at debug level.
func (ss *StateStore) query(ctx context.Context, sqlQuery string, action string) (adapters.DBRows, error) {
	start := time.Now()
	rows, err := ss.db.Query(ctx, sqlQuery)
	ss.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if err != nil {
		ss.logError(ctx, logMsgDBQueryFailed, err, logAttrQuery, sqlQuery)
		return nil, errors.Join(ErrQueryingStateFailed, err)
	}

	return rows, nil
}

// exec executes sqlQuery, logs it with its duration at debug level and returns the affected rows.
func (ss *StateStore) exec(ctx context.Context, sqlQuery string, action string) (int64, error) {
	start := time.Now()
	result, err := ss.db.Exec(ctx, sqlQuery)
	ss.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if err != nil {
		ss.logError(ctx, logMsgDBExecFailed, err, logAttrQuery, sqlQuery)
		return 0, errors.Join(ErrWritingStateFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Join(ErrWritingStateFailed, err)
	}

	return rowsAffected, nil
}

// execInTx executes the statements in one transaction and returns the affected rows per statement.
func (ss *StateStore) execInTx(ctx context.Context, action string, sqlQueries ...string) ([]int64, error) {
	start := time.Now()
	results, err := ss.db.ExecInTx(ctx, sqlQueries...)

	for _, sqlQuery := range sqlQueries {
		ss.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))
	}

	if err != nil {
		ss.logError(ctx, logMsgDBExecFailed, err, logAttrQuery, strings.Join(sqlQueries, "; "))
		return nil, errors.Join(ErrWritingStateFailed, err)
	}

	rowsAffected := make([]int64, 0, len(results))

	for _, result := range results {
		affected, affectedErr := result.RowsAffected()
		if affectedErr != nil {
			return nil, errors.Join(ErrWritingStateFailed, affectedErr)
		}

		rowsAffected = append(rowsAffected, affected)
	}

	return rowsAffected, nil
}

// closeRows closes database rows and logs any errors.
func (ss *StateStore) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if ss.logger != nil {
			ss.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}

		if ss.contextualLogger != nil {
			ss.contextualLogger.WarnContext(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// logQueryWithDuration logs SQL statements with execution time at debug level.
func (ss *StateStore) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	if ss.logger != nil {
		ss.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}

	if ss.contextualLogger != nil {
		ss.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level.
func (ss *StateStore) logOperation(ctx context.Context, action string, args ...any) {
	if ss.logger != nil {
		ss.logger.Info(logMsgOperation+action, args...)
	}

	if ss.contextualLogger != nil {
		ss.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
	}
}

// logError logs error information at the error level.
func (ss *StateStore) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if ss.logger != nil {
		ss.logger.Error(message, allArgs...)
	}

	if ss.contextualLogger != nil {
		ss.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// recordDuration records a duration metric, with context if the collector supports it.
func (ss *StateStore) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if ss.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := ss.metricsCollector.(snapshot.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	ss.metricsCollector.RecordDuration(metric, duration, labels)
}

// recordValue records a value metric, with context if the collector supports it.
func (ss *StateStore) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if ss.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := ss.metricsCollector.(snapshot.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metric, value, labels)
		return
	}

	ss.metricsCollector.RecordValue(metric, value, labels)
}

// incrementCounter increments a counter metric, with context if the collector supports it.
func (ss *StateStore) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if ss.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := ss.metricsCollector.(snapshot.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metric, labels)
		return
	}

	ss.metricsCollector.IncrementCounter(metric, labels)
}

// operationObserver encapsulates span lifecycle, metrics and logging of one public operation.
type operationObserver struct {
	ss        *StateStore
	ctx       context.Context
	operation string
	span      snapshot.SpanContext
	start     time.Time
}

// startOperation starts the observation of an operation. The returned context carries the span, if any.
func (ss *StateStore) startOperation(ctx context.Context, operation string) (*operationObserver, context.Context) {
	var span snapshot.SpanContext

	if ss.tracingCollector != nil {
		ctx, span = ss.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, map[string]string{
			spanAttrOperation: operation,
		})
	}

	return &operationObserver{
		ss:        ss,
		ctx:       ctx,
		operation: operation,
		span:      span,
		start:     time.Now(),
	}, ctx
}

// finishSuccess completes the operation, rowCount is the number of rows written or read.
func (o *operationObserver) finishSuccess(rowCount int) {
	duration := time.Since(o.start)
	labels := map[string]string{spanAttrOperation: o.operation, "status": statusSuccess}

	o.ss.recordDuration(o.ctx, metricOperationDuration, duration, labels)
	o.ss.recordValue(o.ctx, metricRowsProcessed, float64(rowCount), labels)

	if o.span != nil {
		attrs := map[string]string{
			spanAttrRowCount:   fmt.Sprintf("%d", rowCount),
			spanAttrDurationMS: fmt.Sprintf("%.2f", toMilliseconds(duration)),
		}

		o.span.SetStatus(statusSuccess)
		for key, value := range attrs {
			o.span.AddAttribute(key, value)
		}

		o.ss.tracingCollector.FinishSpan(o.span, statusSuccess, attrs)
	}

	o.ss.logOperation(o.ctx, o.operation, logAttrRowCount, rowCount, logAttrDurationMS, toMilliseconds(duration))
}

// finishError completes the operation with the error details of err.
func (o *operationObserver) finishError(err error) {
	duration := time.Since(o.start)
	errType := errorType(err)

	o.ss.recordDuration(o.ctx, metricOperationDuration, duration, map[string]string{
		spanAttrOperation: o.operation,
		"status":          statusError,
	})
	o.ss.incrementCounter(o.ctx, metricDatabaseErrors, map[string]string{
		spanAttrOperation: o.operation,
		"status":          statusError,
		spanAttrErrorType: errType,
	})

	if o.span != nil {
		o.span.SetStatus(statusError)
		o.span.AddAttribute(spanAttrErrorType, errType)
		o.ss.tracingCollector.FinishSpan(o.span, statusError, map[string]string{spanAttrErrorType: errType})
	}

	o.ss.logError(o.ctx, logMsgOperationFailed, err, logAttrOperation, o.operation, logAttrErrorType, errType)
}

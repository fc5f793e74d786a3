package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/sqlengine/internal/adapters"
)

// Dialect selects the SQL flavor the StateStore generates.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

const (
	defaultSnapshotsTableName = "snapshots"
	defaultIntervalsTableName = "intervals"
)

// StateStore persists snapshot records and their intervals.
type StateStore struct {
	db                 adapters.DBAdapter
	dialect            Dialect
	snapshotsTableName string
	intervalsTableName string
	clock              func() time.Time
	logger             snapshot.Logger
	contextualLogger   snapshot.ContextualLogger
	metricsCollector   snapshot.MetricsCollector
	tracingCollector   snapshot.TracingCollector
}

// NewStateStoreFromPGXPool creates a new PostgreSQL StateStore using a pgx Pool with optional configuration.
func NewStateStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*StateStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStateStore(adapters.NewPGXAdapter(db), DialectPostgres, options)
}

// NewStateStoreFromPGXPoolAndReplica creates a new PostgreSQL StateStore which reads from the replica pool.
// Interval replay happens right after writes in typical use, so only use a replica with synchronous
// replication.
func NewStateStoreFromPGXPoolAndReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*StateStore, error) {
	if db == nil || replica == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStateStore(adapters.NewPGXAdapterWithReplica(db, replica), DialectPostgres, options)
}

// NewStateStoreFromSQLDB creates a new StateStore using a sql.DB with optional configuration.
func NewStateStoreFromSQLDB(db *sql.DB, dialect Dialect, options ...Option) (*StateStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStateStore(adapters.NewSQLAdapter(db), dialect, options)
}

// NewStateStoreFromSQLX creates a new StateStore using a sqlx.DB with optional configuration.
func NewStateStoreFromSQLX(db *sqlx.DB, dialect Dialect, options ...Option) (*StateStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStateStore(adapters.NewSQLXAdapter(db), dialect, options)
}

func newStateStore(db adapters.DBAdapter, dialect Dialect, options []Option) (*StateStore, error) {
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, dialect)
	}

	ss := &StateStore{
		db:                 db,
		dialect:            dialect,
		snapshotsTableName: defaultSnapshotsTableName,
		intervalsTableName: defaultIntervalsTableName,
		clock:              time.Now,
	}

	for _, option := range options {
		if err := option(ss); err != nil {
			return nil, err
		}
	}

	return ss, nil
}

// CreateSchema creates both tables and their indexes if they don't exist yet.
func (ss *StateStore) CreateSchema(ctx context.Context) error {
	observer, ctx := ss.startOperation(ctx, operationCreateSchema)

	statements := ss.schemaStatements()
	for _, statement := range statements {
		if _, err := ss.exec(ctx, statement, operationCreateSchema); err != nil {
			observer.finishError(err)
			return err
		}
	}

	observer.finishSuccess(len(statements))

	return nil
}

// PushSnapshots stores new snapshots. Snapshots which are already stored are left untouched.
// Intervals are not part of the snapshot row, record them with AddSnapshotIntervals.
func (ss *StateStore) PushSnapshots(ctx context.Context, snaps ...*snapshot.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	observer, ctx := ss.startOperation(ctx, operationPushSnapshots)

	rows, err := ss.snapshotRows(snaps)
	if err != nil {
		observer.finishError(err)
		return err
	}

	sqlQuery, err := ss.buildInsertSnapshotsQuery(rows)
	if err != nil {
		observer.finishError(err)
		return err
	}

	rowsAffected, err := ss.exec(ctx, sqlQuery, operationPushSnapshots)
	if err != nil {
		observer.finishError(err)
		return err
	}

	observer.finishSuccess(int(rowsAffected))

	return nil
}

// UpdateSnapshots overwrites stored snapshots with their current state, e.g. after categorization or unpausing.
// It fails with ErrSnapshotNotFound for a snapshot which was never pushed.
func (ss *StateStore) UpdateSnapshots(ctx context.Context, snaps ...*snapshot.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	observer, ctx := ss.startOperation(ctx, operationUpdateSnapshots)

	rows, err := ss.snapshotRows(snaps)
	if err != nil {
		observer.finishError(err)
		return err
	}

	updated := 0

	for i, row := range rows {
		sqlQuery, buildErr := ss.buildUpdateSnapshotQuery(snaps[i].SnapshotID(), row)
		if buildErr != nil {
			observer.finishError(buildErr)
			return buildErr
		}

		rowsAffected, execErr := ss.exec(ctx, sqlQuery, operationUpdateSnapshots)
		if execErr != nil {
			observer.finishError(execErr)
			return execErr
		}

		if rowsAffected == 0 {
			notFoundErr := fmt.Errorf("%w: %s", ErrSnapshotNotFound, snaps[i].SnapshotID())
			observer.finishError(notFoundErr)

			return notFoundErr
		}

		updated += int(rowsAffected)
	}

	observer.finishSuccess(updated)

	return nil
}

// UnpauseSnapshots marks the snapshots as unpaused at the given time and stores them.
func (ss *StateStore) UnpauseSnapshots(ctx context.Context, unpausedAt time.Time, snaps ...*snapshot.Snapshot) error {
	for _, snap := range snaps {
		snap.SetUnpausedTS(&unpausedAt)
	}

	return ss.UpdateSnapshots(ctx, snaps...)
}

// GetSnapshots returns the records of the stored snapshots among ids, ordered by name and identifier.
// Unknown ids are skipped. The intervals of every record are replayed from the interval log.
// Intervals logged by other snapshots of the same version only count before the record's effective-from
// cutover. The record carries the cutover unfloored, HydrateIntervals floors it to the model's schedule.
func (ss *StateStore) GetSnapshots(ctx context.Context, ids ...snapshot.SnapshotID) ([]snapshot.SnapshotRecord, error) {
	if len(ids) == 0 {
		return []snapshot.SnapshotRecord{}, nil
	}

	observer, ctx := ss.startOperation(ctx, operationGetSnapshots)

	rows, err := ss.selectSnapshotRows(ctx, ids, true)
	if err != nil {
		observer.finishError(err)
		return nil, err
	}

	records, keys, err := decodeRecords(rows)
	if err != nil {
		observer.finishError(err)
		return nil, err
	}

	intervals, err := ss.loadIntervals(ctx, keys)
	if err != nil {
		observer.finishError(err)
		return nil, err
	}

	for i := range records {
		replayed := intervals[keys[i].id]
		records[i].Intervals = replayed.Intervals
		records[i].DevIntervals = replayed.DevIntervals
	}

	observer.finishSuccess(len(records))

	return records, nil
}

// GetIntervals returns the replayed intervals of the stored snapshots among ids, ordered like GetSnapshots.
// Like in GetSnapshots, the stored effective-from cutover is applied as is.
func (ss *StateStore) GetIntervals(ctx context.Context, ids ...snapshot.SnapshotID) ([]snapshot.SnapshotIntervals, error) {
	if len(ids) == 0 {
		return []snapshot.SnapshotIntervals{}, nil
	}

	observer, ctx := ss.startOperation(ctx, operationGetIntervals)

	rows, err := ss.selectSnapshotRows(ctx, ids, true)
	if err != nil {
		observer.finishError(err)
		return nil, err
	}

	_, keys, err := decodeRecords(rows)
	if err != nil {
		observer.finishError(err)
		return nil, err
	}

	intervals, err := ss.loadIntervals(ctx, keys)
	if err != nil {
		observer.finishError(err)
		return nil, err
	}

	result := make([]snapshot.SnapshotIntervals, 0, len(keys))
	for _, key := range keys {
		result = append(result, intervals[key.id])
	}

	observer.finishSuccess(len(result))

	return result, nil
}

// HydrateIntervals loads the intervals of the given snapshots from the interval log and sets them.
// The snapshots must be versioned. Snapshots without any logged interval end up with empty lists.
// A snapshot with an effective-from cutover only inherits what other snapshots of its version logged before it.
func (ss *StateStore) HydrateIntervals(ctx context.Context, snaps ...*snapshot.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	observer, ctx := ss.startOperation(ctx, operationGetIntervals)

	keys := make([]intervalKey, 0, len(snaps))
	for _, snap := range snaps {
		if snap.Version() == "" {
			err := fmt.Errorf("%w: %s", snapshot.ErrNotVersioned, snap.SnapshotID())
			observer.finishError(err)

			return err
		}

		keys = append(keys, intervalKey{
			id:              snap.SnapshotID(),
			version:         snap.Version(),
			effectiveFromTS: snap.NormalizedEffectiveFromTS(),
		})
	}

	intervals, err := ss.loadIntervals(ctx, keys)
	if err != nil {
		observer.finishError(err)
		return err
	}

	for _, snap := range snaps {
		replayed := intervals[snap.SnapshotID()]
		snap.SetIntervals(replayed.Intervals, replayed.DevIntervals)
	}

	observer.finishSuccess(len(snaps))

	return nil
}

// DeleteSnapshots removes the snapshots among ids together with their development intervals.
// Non-development intervals are removed once no stored snapshot shares their version anymore.
// Both deletes run in one transaction.
// It returns the number of deleted snapshots.
func (ss *StateStore) DeleteSnapshots(ctx context.Context, ids ...snapshot.SnapshotID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	observer, ctx := ss.startOperation(ctx, operationDeleteSnapshots)

	deleted, err := ss.selectSnapshotRows(ctx, ids, false)
	if err != nil {
		observer.finishError(err)
		return 0, err
	}

	if len(deleted) == 0 {
		observer.finishSuccess(0)
		return 0, nil
	}

	deletedIDs := make([]snapshot.SnapshotID, 0, len(deleted))
	for _, row := range deleted {
		deletedIDs = append(deletedIDs, row.id)
	}

	orphaned, err := ss.orphanedVersions(ctx, deleted, deletedIDs)
	if err != nil {
		observer.finishError(err)
		return 0, err
	}

	deleteSnapshotsQuery, err := ss.buildDeleteSnapshotsQuery(deletedIDs)
	if err != nil {
		observer.finishError(err)
		return 0, err
	}

	deleteIntervalsQuery, err := ss.buildDeleteIntervalsQuery(deletedIDs, orphaned)
	if err != nil {
		observer.finishError(err)
		return 0, err
	}

	rowsAffected, err := ss.execInTx(ctx, operationDeleteSnapshots, deleteSnapshotsQuery, deleteIntervalsQuery)
	if err != nil {
		observer.finishError(err)
		return 0, err
	}

	observer.finishSuccess(int(rowsAffected[0]))

	return rowsAffected[0], nil
}

// ExpiredSnapshots returns the ids of paused snapshots whose TTL has passed at now.
// Unpaused snapshots never expire.
func (ss *StateStore) ExpiredSnapshots(ctx context.Context, now time.Time) ([]snapshot.SnapshotID, error) {
	observer, ctx := ss.startOperation(ctx, operationExpiredSnapshots)

	sqlQuery, err := ss.buildSelectExpiredQuery(snapshot.ToTimestamp(now))
	if err != nil {
		observer.finishError(err)
		return nil, err
	}

	rows, err := ss.query(ctx, sqlQuery, operationExpiredSnapshots)
	if err != nil {
		observer.finishError(err)
		return nil, err
	}
	defer ss.closeRows(ctx, rows)

	ids := make([]snapshot.SnapshotID, 0)

	for rows.Next() {
		var id snapshot.SnapshotID
		if scanErr := rows.Scan(&id.Name, &id.Identifier); scanErr != nil {
			scanErr = errors.Join(ErrScanningDBRowFailed, scanErr)
			observer.finishError(scanErr)

			return nil, scanErr
		}

		ids = append(ids, id)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		rowsErr = errors.Join(ErrQueryingStateFailed, rowsErr)
		observer.finishError(rowsErr)

		return nil, rowsErr
	}

	observer.finishSuccess(len(ids))

	return ids, nil
}

// AddInterval logs that interval has been processed for the snapshot.
// Like Snapshot.AddInterval, development writes of snapshots using a temporary table are logged as
// development intervals. The snapshot must be versioned.
func (ss *StateStore) AddInterval(ctx context.Context, snap *snapshot.Snapshot, interval snapshot.Interval, isDev bool) error {
	if snap.Version() == "" {
		return fmt.Errorf("%w: %s", snapshot.ErrNotVersioned, snap.SnapshotID())
	}

	if interval.End <= interval.Start {
		return fmt.Errorf("%w: %s", snapshot.ErrInvalidInterval, interval)
	}

	row := ss.intervalRow(snap.SnapshotID(), snap.Version(), interval, snap.IsTemporaryTable(isDev), false)

	return ss.insertIntervalRows(ctx, operationAddIntervals, []intervalRow{row})
}

// AddSnapshotIntervals logs every interval of the given interval lists, e.g. after a snapshot inherited
// the intervals of its predecessor.
func (ss *StateStore) AddSnapshotIntervals(ctx context.Context, intervals ...snapshot.SnapshotIntervals) error {
	rows := make([]intervalRow, 0)

	for _, si := range intervals {
		if si.Version == "" {
			return fmt.Errorf("%w: %s", snapshot.ErrNotVersioned, si.SnapshotID())
		}

		for _, interval := range si.Intervals {
			rows = append(rows, ss.intervalRow(si.SnapshotID(), si.Version, interval, false, false))
		}

		for _, interval := range si.DevIntervals {
			rows = append(rows, ss.intervalRow(si.SnapshotID(), si.Version, interval, true, false))
		}
	}

	for _, row := range rows {
		if row.end <= row.start {
			return fmt.Errorf("%w: [%d, %d)", snapshot.ErrInvalidInterval, row.start, row.end)
		}
	}

	if len(rows) == 0 {
		return nil
	}

	return ss.insertIntervalRows(ctx, operationAddIntervals, rows)
}

// RemoveInterval logs the removal of interval from both interval lists of the snapshot.
// The removal of non-development intervals applies to all snapshots sharing the version.
func (ss *StateStore) RemoveInterval(ctx context.Context, snap *snapshot.Snapshot, interval snapshot.Interval) error {
	if snap.Version() == "" {
		return fmt.Errorf("%w: %s", snapshot.ErrNotVersioned, snap.SnapshotID())
	}

	if interval.End <= interval.Start {
		return fmt.Errorf("%w: %s", snapshot.ErrInvalidInterval, interval)
	}

	rows := []intervalRow{
		ss.intervalRow(snap.SnapshotID(), snap.Version(), interval, false, true),
		ss.intervalRow(snap.SnapshotID(), snap.Version(), interval, true, true),
	}

	return ss.insertIntervalRows(ctx, operationRemoveIntervals, rows)
}

func (ss *StateStore) insertIntervalRows(ctx context.Context, operation string, rows []intervalRow) error {
	observer, ctx := ss.startOperation(ctx, operation)

	sqlQuery, err := ss.buildInsertIntervalsQuery(rows)
	if err != nil {
		observer.finishError(err)
		return err
	}

	rowsAffected, err := ss.exec(ctx, sqlQuery, operation)
	if err != nil {
		observer.finishError(err)
		return err
	}

	observer.finishSuccess(int(rowsAffected))

	return nil
}

// decodeRecords decodes the payloads of rows and derives the interval log keys of the records.
func decodeRecords(rows []snapshotRow) ([]snapshot.SnapshotRecord, []intervalKey, error) {
	records := make([]snapshot.SnapshotRecord, 0, len(rows))
	keys := make([]intervalKey, 0, len(rows))

	for _, row := range rows {
		record, err := snapshot.UnmarshalRecord([]byte(row.payload))
		if err != nil {
			return nil, nil, errors.Join(ErrDecodingRecordFailed, fmt.Errorf("%s: %w", row.id, err))
		}

		key := intervalKey{id: row.id, version: row.version}
		if record.EffectiveFromTS != nil {
			key.effectiveFromTS = *record.EffectiveFromTS
		}

		records = append(records, record)
		keys = append(keys, key)
	}

	return records, keys, nil
}

// snapshotRow is the subset of a snapshots row needed besides its payload.
type snapshotRow struct {
	id      snapshot.SnapshotID
	version string
	payload string
}

func (ss *StateStore) selectSnapshotRows(ctx context.Context, ids []snapshot.SnapshotID, withPayload bool) ([]snapshotRow, error) {
	sqlQuery, err := ss.buildSelectSnapshotsQuery(ids, withPayload)
	if err != nil {
		return nil, err
	}

	rows, err := ss.query(ctx, sqlQuery, operationGetSnapshots)
	if err != nil {
		return nil, err
	}
	defer ss.closeRows(ctx, rows)

	result := make([]snapshotRow, 0, len(ids))

	for rows.Next() {
		var row snapshotRow

		dest := []any{&row.id.Name, &row.id.Identifier, &row.version}
		if withPayload {
			dest = append(dest, &row.payload)
		}

		if scanErr := rows.Scan(dest...); scanErr != nil {
			ss.logError(ctx, logMsgScanRowFailed, scanErr)
			return nil, errors.Join(ErrScanningDBRowFailed, scanErr)
		}

		result = append(result, row)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, errors.Join(ErrQueryingStateFailed, rowsErr)
	}

	return result, nil
}

// orphanedVersions returns the name and version pairs of the rows to delete which no other stored snapshot uses.
func (ss *StateStore) orphanedVersions(
	ctx context.Context,
	deleted []snapshotRow,
	deletedIDs []snapshot.SnapshotID,
) ([]snapshot.SnapshotNameVersion, error) {

	candidates := make([]snapshot.SnapshotNameVersion, 0, len(deleted))
	for _, row := range deleted {
		candidate := snapshot.SnapshotNameVersion{Name: row.id.Name, Version: row.version}
		if row.version != "" && !slices.Contains(candidates, candidate) {
			candidates = append(candidates, candidate)
		}
	}

	if len(candidates) == 0 {
		return candidates, nil
	}

	sqlQuery, err := ss.buildSelectUsedVersionsQuery(candidates, deletedIDs)
	if err != nil {
		return nil, err
	}

	rows, err := ss.query(ctx, sqlQuery, operationDeleteSnapshots)
	if err != nil {
		return nil, err
	}
	defer ss.closeRows(ctx, rows)

	used := make(map[snapshot.SnapshotNameVersion]struct{})

	for rows.Next() {
		var nameVersion snapshot.SnapshotNameVersion
		if scanErr := rows.Scan(&nameVersion.Name, &nameVersion.Version); scanErr != nil {
			ss.logError(ctx, logMsgScanRowFailed, scanErr)
			return nil, errors.Join(ErrScanningDBRowFailed, scanErr)
		}

		used[nameVersion] = struct{}{}
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, errors.Join(ErrQueryingStateFailed, rowsErr)
	}

	return slices.DeleteFunc(candidates, func(candidate snapshot.SnapshotNameVersion) bool {
		_, ok := used[candidate]
		return ok
	}), nil
}

func (ss *StateStore) snapshotRows(snaps []*snapshot.Snapshot) ([]snapshotColumns, error) {
	rows := make([]snapshotColumns, 0, len(snaps))

	for _, snap := range snaps {
		record := snap.ToRecord()
		record.Intervals = nil
		record.DevIntervals = nil

		payload, err := snapshot.MarshalRecord(record)
		if err != nil {
			return nil, errors.Join(ErrEncodingRecordFailed, fmt.Errorf("%s: %w", record.SnapshotID(), err))
		}

		expiresAt, err := snapshot.ResolveTTL(record.TTL, snapshot.FromTimestamp(record.UpdatedTS))
		if err != nil {
			return nil, errors.Join(ErrEncodingRecordFailed, fmt.Errorf("%s: %w", record.SnapshotID(), err))
		}

		rows = append(rows, snapshotColumns{
			id:         record.SnapshotID(),
			version:    record.Version,
			kindName:   string(record.KindName),
			payload:    string(payload),
			updatedTS:  record.UpdatedTS,
			expiresTS:  snapshot.ToTimestamp(expiresAt),
			unpausedTS: record.UnpausedTS,
		})
	}

	return rows, nil
}

package sqlengine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
)

const (
	colID         = "id"
	colName       = "name"
	colIdentifier = "identifier"
	colVersion    = "version"
	colKindName   = "kind_name"
	colPayload    = "payload"
	colUpdatedTS  = "updated_ts"
	colExpiresTS  = "expires_ts"
	colUnpausedTS = "unpaused_ts"
	colStartTS    = "start_ts"
	colEndTS      = "end_ts"
	colIsDev      = "is_dev"
	colIsRemoved  = "is_removed"
	colCreatedTS  = "created_ts"
)

type (
	sqlQueryString = string
)

// snapshotColumns is one row of the snapshots table.
type snapshotColumns struct {
	id         snapshot.SnapshotID
	version    string
	kindName   string
	payload    string
	updatedTS  int64
	expiresTS  int64
	unpausedTS *int64
}

func (c snapshotColumns) record() goqu.Record {
	var unpausedTS any
	if c.unpausedTS != nil {
		unpausedTS = *c.unpausedTS
	}

	return goqu.Record{
		colName:       c.id.Name,
		colIdentifier: c.id.Identifier,
		colVersion:    c.version,
		colKindName:   c.kindName,
		colPayload:    c.payload,
		colUpdatedTS:  c.updatedTS,
		colExpiresTS:  c.expiresTS,
		colUnpausedTS: unpausedTS,
	}
}

// intervalRow is one entry of the interval log.
type intervalRow struct {
	id        snapshot.SnapshotID
	version   string
	start     int64
	end       int64
	isDev     bool
	isRemoved bool
	createdTS int64
}

func (r intervalRow) record() goqu.Record {
	return goqu.Record{
		colName:       r.id.Name,
		colIdentifier: r.id.Identifier,
		colVersion:    r.version,
		colStartTS:    r.start,
		colEndTS:      r.end,
		colIsDev:      boolToSmallint(r.isDev),
		colIsRemoved:  boolToSmallint(r.isRemoved),
		colCreatedTS:  r.createdTS,
	}
}

func (ss *StateStore) intervalRow(
	id snapshot.SnapshotID,
	version string,
	interval snapshot.Interval,
	isDev bool,
	isRemoved bool,
) intervalRow {

	return intervalRow{
		id:        id,
		version:   version,
		start:     interval.Start,
		end:       interval.End,
		isDev:     isDev,
		isRemoved: isRemoved,
		createdTS: snapshot.ToTimestamp(ss.clock()),
	}
}

// boolToSmallint keeps the flag columns portable, SQLite has no boolean type.
func boolToSmallint(b bool) int {
	if b {
		return 1
	}

	return 0
}

func (ss *StateStore) schemaStatements() []sqlQueryString {
	idColumn := "id BIGSERIAL PRIMARY KEY"
	if ss.dialect == DialectSQLite {
		idColumn = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	snapshots := quoteIdentifier(ss.snapshotsTableName)
	intervals := quoteIdentifier(ss.intervalsTableName)
	indexPrefix := strings.ReplaceAll(ss.intervalsTableName, ".", "_")

	return []sqlQueryString{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name TEXT NOT NULL,
	identifier TEXT NOT NULL,
	version TEXT NOT NULL,
	kind_name TEXT NOT NULL,
	payload TEXT NOT NULL,
	updated_ts BIGINT NOT NULL,
	expires_ts BIGINT NOT NULL,
	unpaused_ts BIGINT,
	PRIMARY KEY (name, identifier)
)`, snapshots),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s,
	name TEXT NOT NULL,
	identifier TEXT NOT NULL,
	version TEXT NOT NULL,
	start_ts BIGINT NOT NULL,
	end_ts BIGINT NOT NULL,
	is_dev SMALLINT NOT NULL,
	is_removed SMALLINT NOT NULL,
	created_ts BIGINT NOT NULL
)`, intervals, idColumn),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (name, version)`,
			quoteIdentifier(indexPrefix+"_name_version_idx"), intervals),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (name, identifier)`,
			quoteIdentifier(indexPrefix+"_name_identifier_idx"), intervals),
	}
}

// quoteIdentifier quotes every dot-separated part of a possibly schema qualified name.
func quoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
	}

	return strings.Join(parts, ".")
}

func (ss *StateStore) builder() goqu.DialectWrapper {
	return goqu.Dialect(string(ss.dialect))
}

func idsExpression(ids []snapshot.SnapshotID) goqu.Expression {
	expressions := make([]goqu.Expression, 0, len(ids))
	for _, id := range ids {
		expressions = append(expressions, goqu.Ex{colName: id.Name, colIdentifier: id.Identifier})
	}

	return goqu.Or(expressions...)
}

func (ss *StateStore) buildInsertSnapshotsQuery(rows []snapshotColumns) (sqlQueryString, error) {
	records := make([]any, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}

	insertStmt := ss.builder().
		Insert(ss.snapshotsTableName).
		Rows(records...).
		OnConflict(goqu.DoNothing())

	return toSQL(insertStmt.ToSQL())
}

func (ss *StateStore) buildUpdateSnapshotQuery(id snapshot.SnapshotID, row snapshotColumns) (sqlQueryString, error) {
	updateStmt := ss.builder().
		Update(ss.snapshotsTableName).
		Set(goqu.Record{
			colVersion:    row.version,
			colKindName:   row.kindName,
			colPayload:    row.payload,
			colUpdatedTS:  row.updatedTS,
			colExpiresTS:  row.expiresTS,
			colUnpausedTS: row.record()[colUnpausedTS],
		}).
		Where(goqu.Ex{colName: id.Name, colIdentifier: id.Identifier})

	return toSQL(updateStmt.ToSQL())
}

func (ss *StateStore) buildSelectSnapshotsQuery(ids []snapshot.SnapshotID, withPayload bool) (sqlQueryString, error) {
	columns := []any{colName, colIdentifier, colVersion}
	if withPayload {
		columns = append(columns, colPayload)
	}

	selectStmt := ss.builder().
		From(ss.snapshotsTableName).
		Select(columns...).
		Where(idsExpression(ids)).
		Order(goqu.C(colName).Asc(), goqu.C(colIdentifier).Asc())

	return toSQL(selectStmt.ToSQL())
}

func (ss *StateStore) buildSelectExpiredQuery(nowTS int64) (sqlQueryString, error) {
	selectStmt := ss.builder().
		From(ss.snapshotsTableName).
		Select(colName, colIdentifier).
		Where(
			goqu.C(colExpiresTS).Lte(nowTS),
			goqu.C(colUnpausedTS).IsNull(),
		).
		Order(goqu.C(colName).Asc(), goqu.C(colIdentifier).Asc())

	return toSQL(selectStmt.ToSQL())
}

// buildSelectUsedVersionsQuery selects which of nameVersions are used by snapshots other than excluded.
func (ss *StateStore) buildSelectUsedVersionsQuery(
	nameVersions []snapshot.SnapshotNameVersion,
	excluded []snapshot.SnapshotID,
) (sqlQueryString, error) {

	expressions := make([]goqu.Expression, 0, len(nameVersions))
	for _, nameVersion := range nameVersions {
		expressions = append(expressions, goqu.Ex{colName: nameVersion.Name, colVersion: nameVersion.Version})
	}

	conditions := []goqu.Expression{goqu.Or(expressions...)}
	for _, id := range excluded {
		conditions = append(conditions, goqu.Or(
			goqu.C(colName).Neq(id.Name),
			goqu.C(colIdentifier).Neq(id.Identifier),
		))
	}

	selectStmt := ss.builder().
		From(ss.snapshotsTableName).
		Select(colName, colVersion).
		Distinct().
		Where(goqu.And(conditions...))

	return toSQL(selectStmt.ToSQL())
}

func (ss *StateStore) buildDeleteSnapshotsQuery(ids []snapshot.SnapshotID) (sqlQueryString, error) {
	deleteStmt := ss.builder().
		Delete(ss.snapshotsTableName).
		Where(idsExpression(ids))

	return toSQL(deleteStmt.ToSQL())
}

// buildDeleteIntervalsQuery deletes the development log rows of ids and the shared rows of orphaned versions.
func (ss *StateStore) buildDeleteIntervalsQuery(
	ids []snapshot.SnapshotID,
	orphaned []snapshot.SnapshotNameVersion,
) (sqlQueryString, error) {

	expressions := make([]goqu.Expression, 0, len(ids)+len(orphaned))

	for _, id := range ids {
		expressions = append(expressions, goqu.Ex{colName: id.Name, colIdentifier: id.Identifier, colIsDev: 1})
	}

	for _, nameVersion := range orphaned {
		expressions = append(expressions, goqu.Ex{colName: nameVersion.Name, colVersion: nameVersion.Version, colIsDev: 0})
	}

	deleteStmt := ss.builder().
		Delete(ss.intervalsTableName).
		Where(goqu.Or(expressions...))

	return toSQL(deleteStmt.ToSQL())
}

func (ss *StateStore) buildInsertIntervalsQuery(rows []intervalRow) (sqlQueryString, error) {
	records := make([]any, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}

	insertStmt := ss.builder().
		Insert(ss.intervalsTableName).
		Rows(records...)

	return toSQL(insertStmt.ToSQL())
}

// buildSelectIntervalsQuery selects the log rows relevant for keys in the order they were written.
func (ss *StateStore) buildSelectIntervalsQuery(keys []intervalKey) (sqlQueryString, error) {
	expressions := make([]goqu.Expression, 0, 2*len(keys))

	for _, key := range keys {
		expressions = append(
			expressions,
			goqu.Ex{colName: key.id.Name, colVersion: key.version, colIsDev: 0},
			goqu.Ex{colName: key.id.Name, colIdentifier: key.id.Identifier, colIsDev: 1},
		)
	}

	selectStmt := ss.builder().
		From(ss.intervalsTableName).
		Select(colName, colIdentifier, colVersion, colStartTS, colEndTS, colIsDev, colIsRemoved).
		Where(goqu.Or(expressions...)).
		Order(goqu.C(colID).Asc())

	return toSQL(selectStmt.ToSQL())
}

func toSQL(sqlQuery string, _ []any, err error) (sqlQueryString, error) {
	if err != nil {
		return "", errors.Join(ErrBuildingQueryFailed, err)
	}

	return sqlQuery, nil
}

package sqlengine

import (
	"errors"
)

var (
	ErrNilDatabaseConnection   = errors.New("database connection must not be nil")
	ErrUnsupportedDialect      = errors.New("unsupported sql dialect")
	ErrEmptySnapshotsTableName = errors.New("empty snapshots table name supplied")
	ErrEmptyIntervalsTableName = errors.New("empty intervals table name supplied")
	ErrBuildingQueryFailed     = errors.New("building query failed")
	ErrQueryingStateFailed     = errors.New("querying state failed")
	ErrWritingStateFailed      = errors.New("writing state failed")
	ErrScanningDBRowFailed     = errors.New("scanning db row failed")
	ErrEncodingRecordFailed    = errors.New("encoding snapshot record failed")
	ErrDecodingRecordFailed    = errors.New("decoding snapshot record failed")
	ErrSnapshotNotFound        = errors.New("snapshot not found")
)

package snapshot

// DataVersionLimit caps the number of data versions a snapshot remembers.
const DataVersionLimit = 10

// SnapshotID addresses one fingerprinted instance of a model.
type SnapshotID struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
}

func (id SnapshotID) String() string {
	return id.Name + "<" + id.Identifier + ">"
}

// SnapshotNameVersion addresses a physical table version of a model.
type SnapshotNameVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// SnapshotDataVersion is the frozen projection of a categorized snapshot which determines its physical table.
type SnapshotDataVersion struct {
	Fingerprint    Fingerprint     `json:"fingerprint"`
	Version        string          `json:"version"`
	TempVersion    string          `json:"temp_version,omitempty"`
	ChangeCategory *ChangeCategory `json:"change_category,omitempty"`

	// PhysicalSchemaName is empty for data versions recorded without a physical schema.
	PhysicalSchemaName string `json:"physical_schema,omitempty"`
}

// SnapshotID returns the id of the snapshot of the named model this data version belongs to.
func (v SnapshotDataVersion) SnapshotID(name string) SnapshotID {
	return SnapshotID{Name: name, Identifier: v.Fingerprint.ToIdentifier()}
}

// PhysicalSchema returns the recorded physical schema or DefaultPhysicalSchemaPrefix.
func (v SnapshotDataVersion) PhysicalSchema() string {
	if v.PhysicalSchemaName == "" {
		return DefaultPhysicalSchemaPrefix
	}

	return v.PhysicalSchemaName
}

// IsNewVersion reports whether the version is the one derived from the fingerprint, i.e. it requires a backfill.
func (v SnapshotDataVersion) IsNewVersion() bool {
	return v.Fingerprint.ToVersion() == v.Version
}

// SnapshotIntervals transports the interval lists of one snapshot, e.g. between a Snapshot and a state store.
type SnapshotIntervals struct {
	Name         string    `json:"name"`
	Identifier   string    `json:"identifier"`
	Version      string    `json:"version"`
	Intervals    Intervals `json:"intervals"`
	DevIntervals Intervals `json:"dev_intervals"`
}

func (si SnapshotIntervals) SnapshotID() SnapshotID {
	return SnapshotID{Name: si.Name, Identifier: si.Identifier}
}

// SnapshotTableInfo is everything needed to derive the table names of a categorized snapshot without its model.
type SnapshotTableInfo struct {
	Name             string                `json:"name"`
	Fingerprint      Fingerprint           `json:"fingerprint"`
	Version          string                `json:"version"`
	TempVersion      string                `json:"temp_version,omitempty"`
	PhysicalSchema   string                `json:"physical_schema"`
	Parents          []SnapshotID          `json:"parents"`
	PreviousVersions []SnapshotDataVersion `json:"previous_versions,omitempty"`
	ChangeCategory   ChangeCategory        `json:"change_category"`
	KindName         KindName              `json:"kind_name"`
}

func (ti SnapshotTableInfo) SnapshotID() SnapshotID {
	return SnapshotID{Name: ti.Name, Identifier: ti.Fingerprint.ToIdentifier()}
}

func (ti SnapshotTableInfo) NameVersion() SnapshotNameVersion {
	return SnapshotNameVersion{Name: ti.Name, Version: ti.Version}
}

// TableName returns the physical table of the snapshot. See Snapshot.TableName.
func (ti SnapshotTableInfo) TableName(isDev, forRead bool) string {
	return ti.naming().tableName(ti.Version, isDev, forRead)
}

func (ti SnapshotTableInfo) IsTemporaryTable(isDev bool) bool {
	return ti.naming().isTemporaryTable(isDev)
}

func (ti SnapshotTableInfo) IsNewVersion() bool {
	return ti.Fingerprint.ToVersion() == ti.Version
}

func (ti SnapshotTableInfo) DataVersion() SnapshotDataVersion {
	category := ti.ChangeCategory

	return SnapshotDataVersion{
		Fingerprint:        ti.Fingerprint,
		Version:            ti.Version,
		TempVersion:        ti.TempVersion,
		ChangeCategory:     &category,
		PhysicalSchemaName: ti.PhysicalSchema,
	}
}

func (ti SnapshotTableInfo) naming() namingInfo {
	return namingInfo{
		name:           ti.Name,
		fingerprint:    ti.Fingerprint,
		tempVersion:    ti.TempVersion,
		physicalSchema: ti.PhysicalSchema,
		changeCategory: ti.ChangeCategory,
	}
}

// allVersions appends current to previous and keeps the DataVersionLimit most recent entries.
func allVersions(previous []SnapshotDataVersion, current SnapshotDataVersion) []SnapshotDataVersion {
	versions := make([]SnapshotDataVersion, 0, len(previous)+1)
	versions = append(versions, previous...)
	versions = append(versions, current)

	if len(versions) > DataVersionLimit {
		versions = versions[len(versions)-DataVersionLimit:]
	}

	return versions
}

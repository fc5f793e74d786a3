package snapshot

import (
	"fmt"
	"slices"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var recordJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// SnapshotRecord is the persisted shape of a Snapshot.
//
// Nil interval lists mean the intervals are stored elsewhere, empty lists mean there are none.
type SnapshotRecord struct {
	Name             string                `json:"name"`
	Fingerprint      Fingerprint           `json:"fingerprint"`
	PhysicalSchema   string                `json:"physical_schema,omitempty"`
	Parents          []SnapshotID          `json:"parents"`
	KindName         KindName              `json:"kind_name"`
	Project          string                `json:"project"`
	TTL              string                `json:"ttl"`
	CreatedTS        int64                 `json:"created_ts"`
	UpdatedTS        int64                 `json:"updated_ts"`
	Version          string                `json:"version,omitempty"`
	TempVersion      string                `json:"temp_version,omitempty"`
	ChangeCategory   *ChangeCategory       `json:"change_category,omitempty"`
	PreviousVersions []SnapshotDataVersion `json:"previous_versions"`
	UnpausedTS       *int64                `json:"unpaused_ts,omitempty"`
	EffectiveFromTS  *int64                `json:"effective_from,omitempty"`
	Intervals        Intervals             `json:"intervals"`
	DevIntervals     Intervals             `json:"dev_intervals"`
}

// SnapshotID returns the id of the recorded snapshot.
func (r SnapshotRecord) SnapshotID() SnapshotID {
	return SnapshotID{Name: r.Name, Identifier: r.Fingerprint.ToIdentifier()}
}

// Validate checks the record for structural errors.
func (r SnapshotRecord) Validate() error {
	if r.Name == "" {
		return ErrEmptySnapshotName
	}

	if err := r.Fingerprint.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidRecord, r.Name, err)
	}

	if r.ChangeCategory != nil && !r.ChangeCategory.IsValid() {
		return fmt.Errorf("%w: %s: %w", ErrInvalidRecord, r.Name, ErrUnknownChangeCategory)
	}

	if len(r.PreviousVersions) > DataVersionLimit {
		return fmt.Errorf("%w: %s: more than %d previous versions", ErrInvalidRecord, r.Name, DataVersionLimit)
	}

	for _, interval := range slices.Concat(r.Intervals, r.DevIntervals) {
		if interval.End <= interval.Start {
			return fmt.Errorf("%w: %s: %w: %s", ErrInvalidRecord, r.Name, ErrInvalidInterval, interval)
		}
	}

	return nil
}

// TableInfo derives the table naming information of a categorized record without its model.
func (r SnapshotRecord) TableInfo() (SnapshotTableInfo, error) {
	if r.ChangeCategory == nil || !r.ChangeCategory.IsValid() {
		return SnapshotTableInfo{}, fmt.Errorf("%w: %s", ErrNotCategorized, r.SnapshotID())
	}

	if r.Version == "" {
		return SnapshotTableInfo{}, fmt.Errorf("%w: %s", ErrNotVersioned, r.SnapshotID())
	}

	physicalSchema := r.PhysicalSchema
	if physicalSchema == "" {
		physicalSchema = DefaultPhysicalSchema(r.Name)
	}

	return SnapshotTableInfo{
		Name:             r.Name,
		Fingerprint:      r.Fingerprint,
		Version:          r.Version,
		TempVersion:      r.TempVersion,
		PhysicalSchema:   physicalSchema,
		Parents:          slices.Clone(r.Parents),
		PreviousVersions: slices.Clone(r.PreviousVersions),
		ChangeCategory:   *r.ChangeCategory,
		KindName:         r.KindName,
	}, nil
}

// ToRecord captures the snapshot for persistence. Intervals are only included if they are hydrated.
func (s *Snapshot) ToRecord() SnapshotRecord {
	record := SnapshotRecord{
		Name:             s.name,
		Fingerprint:      s.fingerprint,
		PhysicalSchema:   s.physicalSchema,
		Parents:          s.Parents(),
		KindName:         s.KindName(),
		Project:          s.project,
		TTL:              s.ttl,
		CreatedTS:        s.createdTS,
		UpdatedTS:        s.updatedTS,
		Version:          s.version,
		TempVersion:      s.tempVersion,
		PreviousVersions: s.PreviousVersions(),
	}

	if s.changeCategory.IsValid() {
		category := s.changeCategory
		record.ChangeCategory = &category
	}

	if s.unpausedTS != nil {
		unpausedTS := *s.unpausedTS
		record.UnpausedTS = &unpausedTS
	}

	if s.effectiveFrom != nil {
		effectiveFromTS := ToTimestamp(*s.effectiveFrom)
		record.EffectiveFromTS = &effectiveFromTS
	}

	if s.intervalsHydrated {
		record.Intervals = s.intervals.Clone()
		record.DevIntervals = s.devIntervals.Clone()
	}

	return record
}

// RestoreSnapshot rebuilds a snapshot from its record and its model.
//
// The fingerprint is taken from the record as is. Intervals stay un-hydrated if the record carries none.
// Options are applied after the record, WithClock and WithAudits are the ones that make sense here.
func RestoreSnapshot(record SnapshotRecord, model Model, options ...Option) (*Snapshot, error) {
	if model == nil {
		return nil, ErrNilModel
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}

	if model.Name() != record.Name {
		return nil, fmt.Errorf("%w: model %s, record %s", ErrModelMismatch, model.Name(), record.Name)
	}

	s := &Snapshot{
		name:             record.Name,
		fingerprint:      record.Fingerprint,
		model:            model,
		parents:          slices.Clone(record.Parents),
		project:          record.Project,
		ttl:              record.TTL,
		createdTS:        record.CreatedTS,
		updatedTS:        record.UpdatedTS,
		physicalSchema:   record.PhysicalSchema,
		previousVersions: slices.Clone(record.PreviousVersions),
		version:          record.Version,
		tempVersion:      record.TempVersion,
		clock:            time.Now,
	}

	if s.ttl == "" {
		s.ttl = DefaultTTL
	}

	if record.ChangeCategory != nil {
		s.changeCategory = *record.ChangeCategory
	}

	if record.UnpausedTS != nil {
		unpausedTS := *record.UnpausedTS
		s.unpausedTS = &unpausedTS
	}

	if record.EffectiveFromTS != nil {
		effectiveFrom := FromTimestamp(*record.EffectiveFromTS)
		s.effectiveFrom = &effectiveFrom
	}

	if record.Intervals != nil || record.DevIntervals != nil {
		s.SetIntervals(record.Intervals, record.DevIntervals)
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	s.resolveAudits()

	return s, nil
}

// MarshalRecord encodes the record as JSON.
func MarshalRecord(record SnapshotRecord) ([]byte, error) {
	return recordJSON.Marshal(record)
}

// UnmarshalRecord decodes and validates a JSON record.
func UnmarshalRecord(data []byte) (SnapshotRecord, error) {
	var record SnapshotRecord
	if err := recordJSON.Unmarshal(data, &record); err != nil {
		return SnapshotRecord{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	if err := record.Validate(); err != nil {
		return SnapshotRecord{}, err
	}

	return record, nil
}

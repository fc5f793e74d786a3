package snapshot

import (
	"fmt"
	"slices"
	"time"
)

// Snapshot is a model at a certain point in time: its fingerprint, its physical version and the time ranges
// of data that have been processed for it.
//
// A Snapshot is not safe for concurrent mutation. Callers own a snapshot exclusively while they add or remove
// intervals.
type Snapshot struct {
	name        string
	fingerprint Fingerprint
	model       Model
	parents     []SnapshotID
	audits      []Audit
	project     string
	ttl         string
	createdTS   int64
	updatedTS   int64

	physicalSchema   string
	previousVersions []SnapshotDataVersion
	version          string
	tempVersion      string
	changeCategory   ChangeCategory
	unpausedTS       *int64
	effectiveFrom    *time.Time

	intervals         Intervals
	devIntervals      Intervals
	intervalsHydrated bool

	// creation only
	auditsByName map[string]Audit
	cache        *FingerprintCache
	clock        func() time.Time
}

// Option defines a functional option for creating a Snapshot.
type Option func(*Snapshot) error

// WithTTL sets how long the snapshot is kept after no environment references it anymore.
func WithTTL(ttl string) Option {
	return func(s *Snapshot) error {
		if err := ValidateTTL(ttl); err != nil {
			return err
		}

		s.ttl = ttl

		return nil
	}
}

// WithProject sets the project the snapshot belongs to.
func WithProject(project string) Option {
	return func(s *Snapshot) error {
		s.project = project
		return nil
	}
}

// WithVersion assigns the physical version upfront, e.g. when it was decided during planning.
func WithVersion(version string) Option {
	return func(s *Snapshot) error {
		s.version = version
		return nil
	}
}

// WithAudits sets the user-defined audits by name. Audits referenced by the model must be part of it.
func WithAudits(audits map[string]Audit) Option {
	return func(s *Snapshot) error {
		s.auditsByName = audits
		return nil
	}
}

// WithFingerprintCache shares a fingerprint cache between the snapshots of one model graph.
func WithFingerprintCache(cache *FingerprintCache) Option {
	return func(s *Snapshot) error {
		s.cache = cache
		return nil
	}
}

// WithClock replaces time.Now, e.g. in tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Snapshot) error {
		s.clock = clock
		return nil
	}
}

// WithPreviousVersions sets the data versions the snapshot is based on, oldest first.
// Only the DataVersionLimit most recent ones are kept.
func WithPreviousVersions(versions ...SnapshotDataVersion) Option {
	return func(s *Snapshot) error {
		if len(versions) > DataVersionLimit {
			versions = versions[len(versions)-DataVersionLimit:]
		}

		s.previousVersions = slices.Clone(versions)

		return nil
	}
}

// NewSnapshotFromModel creates a new, uncategorized snapshot for model.
//
// The fingerprint depends on all parents of model found in models. Intervals start out empty.
func NewSnapshotFromModel(model Model, models map[string]Model, options ...Option) (*Snapshot, error) {
	if model == nil {
		return nil, ErrNilModel
	}

	if model.Name() == "" {
		return nil, ErrEmptySnapshotName
	}

	s := &Snapshot{
		name:  model.Name(),
		model: model,
		ttl:   DefaultTTL,
		clock: time.Now,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	if s.cache == nil {
		s.cache = NewFingerprintCache()
	}

	fingerprint, err := FingerprintFromModel(model, models, s.auditsByName, s.cache)
	if err != nil {
		return nil, err
	}

	s.fingerprint = fingerprint

	for _, parentName := range ParentsFromModel(model, models) {
		parentFingerprint, parentErr := FingerprintFromModel(models[parentName], models, s.auditsByName, s.cache)
		if parentErr != nil {
			return nil, parentErr
		}

		s.parents = append(s.parents, SnapshotID{Name: parentName, Identifier: parentFingerprint.ToIdentifier()})
	}

	s.resolveAudits()
	s.createdTS = ToTimestamp(s.now())
	s.updatedTS = s.createdTS
	s.InitIntervals()

	return s, nil
}

func (s *Snapshot) Name() string             { return s.name }
func (s *Snapshot) Fingerprint() Fingerprint { return s.fingerprint }
func (s *Snapshot) Model() Model             { return s.model }
func (s *Snapshot) Project() string          { return s.project }
func (s *Snapshot) TTL() string              { return s.ttl }
func (s *Snapshot) CreatedTS() int64         { return s.createdTS }
func (s *Snapshot) UpdatedTS() int64         { return s.updatedTS }
func (s *Snapshot) TempVersion() string      { return s.tempVersion }
func (s *Snapshot) Identifier() string       { return s.fingerprint.ToIdentifier() }
func (s *Snapshot) KindName() KindName       { return s.model.Kind().Name }
func (s *Snapshot) DependsOnPast() bool      { return s.model.DependsOnPast() }
func (s *Snapshot) IsSymbolic() bool         { return s.model.Kind().IsSymbolic() }
func (s *Snapshot) IsPaused() bool           { return s.unpausedTS == nil }
func (s *Snapshot) Parents() []SnapshotID    { return slices.Clone(s.parents) }
func (s *Snapshot) Audits() []Audit          { return slices.Clone(s.audits) }

func (s *Snapshot) SnapshotID() SnapshotID {
	return SnapshotID{Name: s.name, Identifier: s.Identifier()}
}

func (s *Snapshot) QualifiedViewName() QualifiedViewName {
	return NewQualifiedViewName(s.name)
}

// Version returns the assigned physical version, or "" if none was assigned yet.
func (s *Snapshot) Version() string {
	return s.version
}

// ChangeCategory returns the assigned category. The second result is false before categorization.
func (s *Snapshot) ChangeCategory() (ChangeCategory, bool) {
	return s.changeCategory, s.changeCategory.IsValid()
}

func (s *Snapshot) IsForwardOnly() bool {
	return s.changeCategory.IsForwardOnly()
}

func (s *Snapshot) IsIndirectNonBreaking() bool {
	return s.changeCategory.IsIndirectNonBreaking()
}

// IsMaterializedView reports whether the model is a materialized view.
func (s *Snapshot) IsMaterializedView() bool {
	return s.model.Kind().IsMaterialized()
}

// UnpausedTS returns when the snapshot was unpaused. The second result is false while it is paused.
func (s *Snapshot) UnpausedTS() (int64, bool) {
	if s.unpausedTS == nil {
		return 0, false
	}

	return *s.unpausedTS, true
}

// SetUnpausedTS marks the snapshot as unpaused at the schedule boundary of t, or paused if t is nil.
func (s *Snapshot) SetUnpausedTS(t *time.Time) {
	if t == nil {
		s.unpausedTS = nil
		return
	}

	ts := ToTimestamp(s.model.CronFloor(*t))
	s.unpausedTS = &ts
	s.touch()
}

// EffectiveFrom returns the forward-only cutover. The second result is false if there is none.
func (s *Snapshot) EffectiveFrom() (time.Time, bool) {
	if s.effectiveFrom == nil {
		return time.Time{}, false
	}

	return *s.effectiveFrom, true
}

// SetEffectiveFrom sets the instant from which on this snapshot, and not the ones it inherits intervals from,
// owns the data. A nil value removes the cutover.
func (s *Snapshot) SetEffectiveFrom(t *time.Time) {
	if t == nil {
		s.effectiveFrom = nil
		return
	}

	effectiveFrom := *t
	s.effectiveFrom = &effectiveFrom
	s.touch()
}

// NormalizedEffectiveFromTS returns the cutover floored to the schedule, or 0 if there is none.
func (s *Snapshot) NormalizedEffectiveFromTS() int64 {
	if s.effectiveFrom == nil {
		return 0
	}

	return ToTimestamp(s.model.CronFloor(*s.effectiveFrom))
}

// PhysicalSchema returns the schema the snapshot's tables live in.
func (s *Snapshot) PhysicalSchema() string {
	if s.physicalSchema != "" {
		return s.physicalSchema
	}

	return DefaultPhysicalSchema(s.name)
}

// PreviousVersions returns the data versions the snapshot is based on, oldest first.
func (s *Snapshot) PreviousVersions() []SnapshotDataVersion {
	return slices.Clone(s.previousVersions)
}

// PreviousVersion returns the most recent previous data version. The second result is false if there is none.
func (s *Snapshot) PreviousVersion() (SnapshotDataVersion, bool) {
	if len(s.previousVersions) == 0 {
		return SnapshotDataVersion{}, false
	}

	return s.previousVersions[len(s.previousVersions)-1], true
}

// AllVersions returns the previous versions followed by the current one, limited to DataVersionLimit entries.
func (s *Snapshot) AllVersions() ([]SnapshotDataVersion, error) {
	current, err := s.DataVersion()
	if err != nil {
		return nil, err
	}

	return allVersions(s.previousVersions, current), nil
}

// DataHashMatches reports whether other was built from a model with the same data hash.
func (s *Snapshot) DataHashMatches(other Fingerprint) bool {
	return s.fingerprint.DataHash == other.DataHash
}

// CategorizeAs assigns the change category and with it the physical version.
//
// ForwardOnly and IndirectNonBreaking snapshots that have a previous version reuse its version and physical
// schema. All others get the version derived from their fingerprint. Once the snapshot is stored, its category
// is meant to stay fixed, callers categorize before pushing.
func (s *Snapshot) CategorizeAs(category ChangeCategory) error {
	if !category.IsValid() {
		return fmt.Errorf("%w: %d", ErrUnknownChangeCategory, int(category))
	}

	previous, hasPrevious := s.PreviousVersion()

	if category.ReusesPreviousVersion() && hasPrevious {
		s.version = previous.Version
		s.physicalSchema = previous.PhysicalSchema()
	} else {
		s.version = s.fingerprint.ToVersion()
	}

	s.changeCategory = category
	s.touch()

	return nil
}

// VersionGetOrGenerate returns the assigned version or the one derived from the fingerprint.
func (s *Snapshot) VersionGetOrGenerate() string {
	if s.version != "" {
		return s.version
	}

	return s.fingerprint.ToVersion()
}

// IsNewVersion reports whether the snapshot got a fresh physical version, which requires a backfill.
func (s *Snapshot) IsNewVersion() (bool, error) {
	if err := s.ensureCategorized(); err != nil {
		return false, err
	}

	return s.fingerprint.ToVersion() == s.version, nil
}

// DataVersion returns the frozen projection of the categorized snapshot.
func (s *Snapshot) DataVersion() (SnapshotDataVersion, error) {
	if err := s.ensureCategorized(); err != nil {
		return SnapshotDataVersion{}, err
	}

	category := s.changeCategory

	return SnapshotDataVersion{
		Fingerprint:        s.fingerprint,
		Version:            s.version,
		TempVersion:        s.tempVersion,
		ChangeCategory:     &category,
		PhysicalSchemaName: s.PhysicalSchema(),
	}, nil
}

// TableInfo returns what is needed to derive table names of the snapshot without its model.
func (s *Snapshot) TableInfo() (SnapshotTableInfo, error) {
	if err := s.ensureCategorized(); err != nil {
		return SnapshotTableInfo{}, err
	}

	return SnapshotTableInfo{
		Name:             s.name,
		Fingerprint:      s.fingerprint,
		Version:          s.version,
		TempVersion:      s.tempVersion,
		PhysicalSchema:   s.PhysicalSchema(),
		Parents:          s.Parents(),
		PreviousVersions: s.PreviousVersions(),
		ChangeCategory:   s.changeCategory,
		KindName:         s.KindName(),
	}, nil
}

// IsTemporaryTable reports whether writes in the given mode go to a temporary table.
// This is the case in development for forward-only and indirect non-breaking snapshots.
func (s *Snapshot) IsTemporaryTable(isDev bool) bool {
	return s.naming().isTemporaryTable(isDev)
}

// TableName returns the physical table of the snapshot.
//
// In development, writes of forward-only and indirect non-breaking snapshots go to a temporary table, while
// reads by other snapshots only use it for direct forward-only changes.
func (s *Snapshot) TableName(isDev, forRead bool) (string, error) {
	if err := s.ensureCategorized(); err != nil {
		return "", err
	}

	return s.naming().tableName(s.version, isDev, forRead), nil
}

// TableNameForMapping returns the table a child snapshot reads from during evaluation.
// Unpaused forward-only snapshots are live, so children read their regular table even in development.
func (s *Snapshot) TableNameForMapping(isDev bool) (string, error) {
	if err := s.ensureCategorized(); err != nil {
		return "", err
	}

	if isDev && s.IsForwardOnly() {
		isDev = s.IsPaused()
	}

	return s.naming().tableName(s.version, isDev, true), nil
}

// ExpiresAt returns when the snapshot may be deleted once no environment references it.
func (s *Snapshot) ExpiresAt() (time.Time, error) {
	return ResolveTTL(s.ttl, FromTimestamp(s.updatedTS))
}

// IsExpired reports whether the ttl has elapsed at now.
func (s *Snapshot) IsExpired(now time.Time) (bool, error) {
	expiresAt, err := s.ExpiresAt()
	if err != nil {
		return false, err
	}

	return !now.Before(expiresAt), nil
}

// Equal reports whether both snapshots have the same fingerprint.
func (s *Snapshot) Equal(other *Snapshot) bool {
	return other != nil && s.fingerprint == other.fingerprint
}

func (s *Snapshot) String() string {
	return "Snapshot<" + s.SnapshotID().String() + ">"
}

func (s *Snapshot) ensureCategorized() error {
	if !s.changeCategory.IsValid() {
		return fmt.Errorf("%w: %s", ErrNotCategorized, s.SnapshotID())
	}

	if s.version == "" {
		return fmt.Errorf("%w: %s", ErrNotVersioned, s.SnapshotID())
	}

	return nil
}

func (s *Snapshot) naming() namingInfo {
	return namingInfo{
		name:           s.name,
		fingerprint:    s.fingerprint,
		tempVersion:    s.tempVersion,
		physicalSchema: s.PhysicalSchema(),
		changeCategory: s.changeCategory,
	}
}

func (s *Snapshot) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}

	return s.clock()
}

// resolveAudits collects the user-defined audits the model references.
func (s *Snapshot) resolveAudits() {
	s.audits = nil
	referenced := make(map[string]bool)

	for _, ref := range s.model.AuditRefs() {
		if audit, ok := s.auditsByName[ref.Name]; ok && !referenced[ref.Name] {
			referenced[ref.Name] = true
			s.audits = append(s.audits, audit)
		}
	}
}

func (s *Snapshot) touch() {
	s.updatedTS = max(s.updatedTS, ToTimestamp(s.now()))
}

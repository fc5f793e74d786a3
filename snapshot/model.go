package snapshot

import (
	"time"
)

// KindName names how a model materializes its output.
type KindName string

const (
	KindIncrementalByTimeRange KindName = "INCREMENTAL_BY_TIME_RANGE"
	KindIncrementalByUniqueKey KindName = "INCREMENTAL_BY_UNIQUE_KEY"
	KindFull                   KindName = "FULL"
	KindView                   KindName = "VIEW"
	KindEmbedded               KindName = "EMBEDDED"
	KindSeed                   KindName = "SEED"
	KindExternal               KindName = "EXTERNAL"
)

// ModelKind is the kind tag of a model together with its kind-specific fields.
type ModelKind struct {
	Name             KindName
	TimeColumn       string   // INCREMENTAL_BY_TIME_RANGE only
	TimeColumnFormat string   // INCREMENTAL_BY_TIME_RANGE only
	UniqueKey        []string // INCREMENTAL_BY_UNIQUE_KEY only
	Materialized     bool     // VIEW only
}

func (k ModelKind) IsIncrementalByTimeRange() bool {
	return k.Name == KindIncrementalByTimeRange
}

func (k ModelKind) IsIncrementalByUniqueKey() bool {
	return k.Name == KindIncrementalByUniqueKey
}

func (k ModelKind) IsFull() bool {
	return k.Name == KindFull
}

func (k ModelKind) IsView() bool {
	return k.Name == KindView
}

func (k ModelKind) IsEmbedded() bool {
	return k.Name == KindEmbedded
}

func (k ModelKind) IsSeed() bool {
	return k.Name == KindSeed
}

func (k ModelKind) IsExternal() bool {
	return k.Name == KindExternal
}

// IsSymbolic reports whether models of this kind never execute.
func (k ModelKind) IsSymbolic() bool {
	return k.IsEmbedded() || k.IsExternal()
}

// IsMaterialized reports whether models of this kind own a physical table.
func (k ModelKind) IsMaterialized() bool {
	return !k.IsSymbolic() && !k.IsView()
}

// Column is one ordered name/value pair of a model's column declaration.
type Column struct {
	Name string
	Type string
}

// Macro is a named macro definition that is hashed verbatim.
type Macro struct {
	Name       string
	Definition string
}

// ModelContent holds the already rendered (or raw) fragments that make up a model's data hash.
//
// The fragments are opaque text. Their order is meaningful and preserved, except for Macros
// which are hashed in name order.
type ModelContent struct {
	Environment      string   // serialized execution environment with sorted keys
	Query            string   // the logic body
	PreStatements    []string // statements executed before the query
	PostStatements   []string // statements executed after the query
	MacroDefinitions []string // inline macro definitions
	Macros           []Macro  // templating macros the logic body may call
	Entrypoint       string   // non-SQL models
	ColumnHashes     []Column // seed models: content hash per column
	Columns          []Column // declared column names and types
	StorageFormat    string
	PartitionedBy    []string
	Stamp            string
	Comments         []string // inline comments of the rendered logic, part of the metadata hash
}

// ModelMetadata holds the descriptive attributes that make up a model's metadata hash.
// Empty strings and nil pointers are absent values.
type ModelMetadata struct {
	Dialect       string
	Owner         string
	Description   string
	Start         string
	Retention     *int
	BatchSize     *int
	MappingSchema map[string]any
	Tags          []string
	Grain         []string
}

// AuditRef is a reference from a model to an audit, with the arguments the model passes to it.
// Argument values are already rendered expressions.
type AuditRef struct {
	Name string
	Args map[string]string
}

// Model is the unit of work a Snapshot versions.
//
// Implementations must be deterministic: calling any method twice must return equal results.
type Model interface {
	Name() string
	DependsOn() []string
	Kind() ModelKind

	Cron() string
	// CronFloor returns the latest schedule boundary at or before t.
	CronFloor(t time.Time) time.Time
	// CronNext returns the first schedule boundary strictly after t.
	CronNext(t time.Time) time.Time
	Lookback() int
	Start() (time.Time, bool)
	DependsOnPast() bool

	// HashRawQuery tells whether Content should be requested raw instead of rendered.
	HashRawQuery() bool
	Content(raw bool) (ModelContent, error)
	Metadata() ModelMetadata
	AuditRefs() []AuditRef
}

// Audit is a data quality check a model can reference by name.
type Audit interface {
	Name() string
	Dialect() string
	Skip() bool
	Blocking() bool
	// Query returns the audit query rendered for model with the given arguments, or the raw query.
	Query(model Model, args map[string]string, raw bool) (string, error)
}

// builtInAudits are audits which need no definition and are hashed by their arguments only.
var builtInAudits = map[string]struct{}{
	"not_null":                      {},
	"not_null_non_blank":            {},
	"unique_values":                 {},
	"unique_combination_of_columns": {},
	"accepted_values":               {},
	"not_accepted_values":           {},
	"number_of_rows":                {},
	"forall":                        {},
	"at_least_one":                  {},
	"not_constant":                  {},
	"sequential_values":             {},
	"accepted_range":                {},
	"mutually_exclusive_ranges":     {},
}

// IsBuiltInAudit reports whether name refers to an audit that needs no definition.
func IsBuiltInAudit(name string) bool {
	_, ok := builtInAudits[name]
	return ok
}

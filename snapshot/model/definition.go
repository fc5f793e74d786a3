package model

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
)

var (
	lineCommentPattern  = regexp.MustCompile(`--[^\n]*`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

var kindNames = map[string]snapshot.KindName{
	"incremental_by_time_range": snapshot.KindIncrementalByTimeRange,
	"incremental_by_unique_key": snapshot.KindIncrementalByUniqueKey,
	"full":                      snapshot.KindFull,
	"view":                      snapshot.KindView,
	"embedded":                  snapshot.KindEmbedded,
	"seed":                      snapshot.KindSeed,
	"external":                  snapshot.KindExternal,
}

// Definition is a validated model. It implements snapshot.Model.
type Definition struct {
	spec          Spec
	kind          snapshot.ModelKind
	schedule      Schedule
	start         time.Time
	hasStart      bool
	dependsOn     []string
	dependsOnSelf bool
}

// New validates the spec and builds a Definition from it. Kind names are case-insensitive, the kind defaults
// to full and the schedule to "@daily".
func New(spec Spec) (*Definition, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, errors.Join(ErrInvalidDefinition, ErrEmptyName)
	}

	kind, err := parseKind(spec.Kind)
	if err != nil {
		return nil, errors.Join(ErrInvalidDefinition, fmt.Errorf("model %s: %w", spec.Name, err))
	}

	schedule, err := ParseSchedule(spec.Cron)
	if err != nil {
		return nil, errors.Join(ErrInvalidDefinition, fmt.Errorf("model %s: %w", spec.Name, err))
	}

	d := &Definition{
		spec:     spec,
		kind:     kind,
		schedule: schedule,
	}

	if spec.Start != "" {
		d.start, err = ParseTime(spec.Start)
		if err != nil {
			return nil, errors.Join(ErrInvalidDefinition, fmt.Errorf("model %s: %w", spec.Name, err))
		}

		d.hasStart = true
	}

	if spec.Lookback < 0 {
		return nil, fmt.Errorf("%w: model %s: lookback must not be negative", ErrInvalidDefinition, spec.Name)
	}

	for _, dependency := range spec.DependsOn {
		if dependency == spec.Name {
			d.dependsOnSelf = true
			continue
		}

		if !slices.Contains(d.dependsOn, dependency) {
			d.dependsOn = append(d.dependsOn, dependency)
		}
	}

	return d, nil
}

// MustNew is like New but panics on error.
func MustNew(spec Spec) *Definition {
	d, err := New(spec)
	if err != nil {
		panic(err)
	}

	return d
}

// ParseTime parses a date ("2006-01-02"), a timestamp without zone ("2006-01-02 15:04:05") or RFC 3339, in UTC.
func ParseTime(value string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.DateTime, time.RFC3339Nano} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidStart, value)
}

func parseKind(spec KindSpec) (snapshot.ModelKind, error) {
	name := snapshot.KindFull
	if spec.Name != "" {
		var ok bool
		if name, ok = kindNames[strings.ToLower(spec.Name)]; !ok {
			return snapshot.ModelKind{}, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Name)
		}
	}

	kind := snapshot.ModelKind{Name: name}

	switch name {
	case snapshot.KindIncrementalByTimeRange:
		if spec.TimeColumn == "" {
			return snapshot.ModelKind{}, fmt.Errorf("%w: %s requires a time_column", ErrUnknownKind, name)
		}

		kind.TimeColumn = spec.TimeColumn
		kind.TimeColumnFormat = spec.TimeColumnFormat
	case snapshot.KindIncrementalByUniqueKey:
		if len(spec.UniqueKey) == 0 {
			return snapshot.ModelKind{}, fmt.Errorf("%w: %s requires a unique_key", ErrUnknownKind, name)
		}

		kind.UniqueKey = slices.Clone(spec.UniqueKey)
	case snapshot.KindView:
		kind.Materialized = spec.Materialized
	}

	return kind, nil
}

func (d *Definition) Name() string                    { return d.spec.Name }
func (d *Definition) DependsOn() []string             { return slices.Clone(d.dependsOn) }
func (d *Definition) Kind() snapshot.ModelKind        { return d.kind }
func (d *Definition) Cron() string                    { return d.schedule.String() }
func (d *Definition) Lookback() int                   { return d.spec.Lookback }
func (d *Definition) HashRawQuery() bool              { return d.spec.HashRawQuery }
func (d *Definition) Schedule() Schedule              { return d.schedule }
func (d *Definition) Spec() Spec                      { return d.spec }
func (d *Definition) CronNext(t time.Time) time.Time  { return d.schedule.Next(t) }
func (d *Definition) CronFloor(t time.Time) time.Time { return d.schedule.Floor(t) }

// Start returns the declared start. The second result is false if none was declared.
func (d *Definition) Start() (time.Time, bool) {
	return d.start, d.hasStart
}

// DependsOnPast reports whether each interval depends on the previous ones, which is the case for models
// reading from themselves and for models merging by unique key.
func (d *Definition) DependsOnPast() bool {
	return d.dependsOnSelf || d.kind.IsIncrementalByUniqueKey()
}

// Content returns the hashable content. Rendered content has comments stripped and whitespace collapsed,
// raw content is returned as declared, including the macro definitions.
func (d *Definition) Content(raw bool) (snapshot.ModelContent, error) {
	render := renderStatement
	if raw {
		render = strings.TrimSpace
	}

	content := snapshot.ModelContent{
		Environment:    serializeEnvironment(d.spec.Environment),
		Query:          render(d.spec.Query),
		PreStatements:  mapStrings(d.spec.PreStatements, render),
		PostStatements: mapStrings(d.spec.PostStatements, render),
		Entrypoint:     d.spec.Entrypoint,
		StorageFormat:  d.spec.StorageFormat,
		PartitionedBy:  slices.Clone(d.spec.PartitionedBy),
		Stamp:          d.spec.Stamp,
		Comments:       extractComments(d.spec.Query),
	}

	if raw {
		content.MacroDefinitions = slices.Clone(d.spec.MacroDefinitions)
	}

	for name, definition := range d.spec.Macros {
		content.Macros = append(content.Macros, snapshot.Macro{Name: name, Definition: definition})
	}

	sort.Slice(content.Macros, func(i, j int) bool { return content.Macros[i].Name < content.Macros[j].Name })

	for _, column := range d.spec.Columns {
		content.Columns = append(content.Columns, snapshot.Column{Name: column.Name, Type: column.Type})
	}

	for _, column := range d.spec.ColumnHashes {
		content.ColumnHashes = append(content.ColumnHashes, snapshot.Column{Name: column.Name, Type: column.Type})
	}

	return content, nil
}

func (d *Definition) Metadata() snapshot.ModelMetadata {
	return snapshot.ModelMetadata{
		Dialect:       d.spec.Dialect,
		Owner:         d.spec.Owner,
		Description:   d.spec.Description,
		Start:         d.spec.Start,
		Retention:     d.spec.Retention,
		BatchSize:     d.spec.BatchSize,
		MappingSchema: d.spec.MappingSchema,
		Tags:          slices.Clone(d.spec.Tags),
		Grain:         slices.Clone(d.spec.Grain),
	}
}

func (d *Definition) AuditRefs() []snapshot.AuditRef {
	refs := make([]snapshot.AuditRef, 0, len(d.spec.Audits))
	for _, ref := range d.spec.Audits {
		refs = append(refs, snapshot.AuditRef{Name: ref.Name, Args: ref.Args})
	}

	return refs
}

func renderStatement(statement string) string {
	statement = blockCommentPattern.ReplaceAllString(statement, " ")
	statement = lineCommentPattern.ReplaceAllString(statement, " ")

	return strings.TrimSpace(whitespacePattern.ReplaceAllString(statement, " "))
}

func extractComments(query string) []string {
	var comments []string

	for _, comment := range blockCommentPattern.FindAllString(query, -1) {
		comments = append(comments, strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(comment, "/*"), "*/")))
	}

	for _, comment := range lineCommentPattern.FindAllString(blockCommentPattern.ReplaceAllString(query, " "), -1) {
		comments = append(comments, strings.TrimSpace(strings.TrimPrefix(comment, "--")))
	}

	return comments
}

func serializeEnvironment(environment map[string]string) string {
	if len(environment) == 0 {
		return ""
	}

	keys := make([]string, 0, len(environment))
	for key := range environment {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+environment[key])
	}

	return strings.Join(pairs, "\n")
}

func mapStrings(values []string, fn func(string) string) []string {
	mapped := make([]string, 0, len(values))
	for _, value := range values {
		mapped = append(mapped, fn(value))
	}

	return mapped
}

package model

// Spec is the declarative definition of a model.
type Spec struct {
	Name      string   `yaml:"name"`
	Kind      KindSpec `yaml:"kind"`
	DependsOn []string `yaml:"depends_on"`

	Cron     string `yaml:"cron"`
	Start    string `yaml:"start"`
	Lookback int    `yaml:"lookback"`

	Query            string            `yaml:"query"`
	HashRawQuery     bool              `yaml:"hash_raw_query"`
	PreStatements    []string          `yaml:"pre_statements"`
	PostStatements   []string          `yaml:"post_statements"`
	MacroDefinitions []string          `yaml:"macro_definitions"`
	Macros           map[string]string `yaml:"macros"`
	Entrypoint       string            `yaml:"entrypoint"`
	Environment      map[string]string `yaml:"environment"`

	Columns       []ColumnSpec `yaml:"columns"`
	ColumnHashes  []ColumnSpec `yaml:"column_hashes"`
	StorageFormat string       `yaml:"storage_format"`
	PartitionedBy []string     `yaml:"partitioned_by"`
	Stamp         string       `yaml:"stamp"`

	Dialect       string         `yaml:"dialect"`
	Owner         string         `yaml:"owner"`
	Description   string         `yaml:"description"`
	Retention     *int           `yaml:"retention"`
	BatchSize     *int           `yaml:"batch_size"`
	MappingSchema map[string]any `yaml:"mapping_schema"`
	Tags          []string       `yaml:"tags"`
	Grain         []string       `yaml:"grain"`

	Audits []AuditRefSpec `yaml:"audits"`
}

// KindSpec selects the kind of a model and carries its kind specific settings.
type KindSpec struct {
	Name             string   `yaml:"name"`
	TimeColumn       string   `yaml:"time_column"`
	TimeColumnFormat string   `yaml:"time_column_format"`
	UniqueKey        []string `yaml:"unique_key"`
	Materialized     bool     `yaml:"materialized"`
}

// ColumnSpec is a column name and its type, or its content hash for seeds.
type ColumnSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// AuditRefSpec references an audit by name.
type AuditRefSpec struct {
	Name string            `yaml:"name"`
	Args map[string]string `yaml:"args"`
}

// AuditSpec is the declarative definition of a user-defined audit.
type AuditSpec struct {
	Name     string            `yaml:"name"`
	Dialect  string            `yaml:"dialect"`
	Skip     bool              `yaml:"skip"`
	Blocking *bool             `yaml:"blocking"`
	Query    string            `yaml:"query"`
	Defaults map[string]string `yaml:"defaults"`
}

// File is the layout of a YAML definitions file.
type File struct {
	Models []Spec      `yaml:"models"`
	Audits []AuditSpec `yaml:"audits"`
}

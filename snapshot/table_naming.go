package snapshot

import (
	"strings"
)

const (
	// DefaultPhysicalSchemaPrefix prefixes the physical schemas snapshots are stored in.
	DefaultPhysicalSchemaPrefix = "snapshots"

	// DefaultSchema is used for models whose name carries no schema.
	DefaultSchema = "default"

	// ProdEnvironment is the environment whose views live in the unsuffixed schema.
	ProdEnvironment = "prod"

	tempTableSuffix = "__temp"
)

// TableName builds the physical table name "{schema}.{name with dots as __}__{version}[__temp]".
func TableName(physicalSchema, name, version string, isTemp bool) string {
	var b strings.Builder

	b.WriteString(physicalSchema)
	b.WriteString(".")
	b.WriteString(strings.ReplaceAll(name, ".", "__"))
	b.WriteString("__")
	b.WriteString(version)

	if isTemp {
		b.WriteString(tempTableSuffix)
	}

	return b.String()
}

// ParseModelName splits a model name into its optional catalog, optional schema and table part.
func ParseModelName(name string) (catalog, schema, table string) {
	parts := strings.Split(name, ".")

	switch len(parts) {
	case 1:
		return "", "", parts[0]
	case 2:
		return "", parts[0], parts[1]
	default:
		return parts[0], parts[1], strings.Join(parts[2:], ".")
	}
}

// DefaultPhysicalSchema returns the physical schema of a model which has no override.
func DefaultPhysicalSchema(name string) string {
	_, schema, _ := ParseModelName(name)
	if schema == "" {
		schema = DefaultSchema
	}

	return DefaultPhysicalSchemaPrefix + "__" + schema
}

// QualifiedViewName is the user facing view of a model, qualified per environment.
type QualifiedViewName struct {
	Catalog string
	Schema  string
	Table   string
}

// NewQualifiedViewName parses the model name into a QualifiedViewName.
func NewQualifiedViewName(name string) QualifiedViewName {
	catalog, schema, table := ParseModelName(name)

	return QualifiedViewName{Catalog: catalog, Schema: schema, Table: table}
}

// ForEnvironment returns the fully qualified view name in the given environment.
func (n QualifiedViewName) ForEnvironment(environment string) string {
	parts := make([]string, 0, 3)
	if n.Catalog != "" {
		parts = append(parts, n.Catalog)
	}

	parts = append(parts, n.SchemaForEnvironment(environment), n.Table)

	return strings.Join(parts, ".")
}

// SchemaForEnvironment suffixes the schema with "__{environment}" for all environments but prod.
func (n QualifiedViewName) SchemaForEnvironment(environment string) string {
	schema := n.Schema
	if schema == "" {
		schema = DefaultSchema
	}

	if !strings.EqualFold(environment, ProdEnvironment) {
		schema = schema + "__" + environment
	}

	return schema
}

// namingInfo is the part of a snapshot that table name derivation depends on.
type namingInfo struct {
	name           string
	fingerprint    Fingerprint
	tempVersion    string
	physicalSchema string
	changeCategory ChangeCategory
}

// isTemporaryTable reports whether writes in the given mode target a temporary table.
func (n namingInfo) isTemporaryTable(isDev bool) bool {
	return isDev && n.changeCategory.ReusesPreviousVersion()
}

func (n namingInfo) tableName(version string, isDev, forRead bool) string {
	var isTemp bool

	switch {
	case isDev && forRead:
		// readers only see the temporary table of a direct forward-only change
		isTemp = n.changeCategory.IsForwardOnly()
	case isDev:
		isTemp = n.changeCategory.ReusesPreviousVersion()
	}

	if isTemp {
		version = n.tempVersion
		if version == "" {
			version = n.fingerprint.ToVersion()
		}
	}

	return TableName(n.physicalSchema, n.name, version, isTemp)
}

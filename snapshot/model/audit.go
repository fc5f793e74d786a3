package model

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strings"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
)

const thisModelArg = "this_model"

var auditArgPattern = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_]*)`)

// SQLAudit is a user-defined audit whose query references its arguments as @name.
// It implements snapshot.Audit.
type SQLAudit struct {
	spec     AuditSpec
	blocking bool
}

// NewAudit validates the spec and builds an SQLAudit. Audits are blocking unless declared otherwise.
func NewAudit(spec AuditSpec) (*SQLAudit, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, errors.Join(ErrInvalidDefinition, ErrEmptyName)
	}

	if snapshot.IsBuiltInAudit(spec.Name) {
		return nil, fmt.Errorf("%w: audit %s shadows a built-in audit", ErrInvalidDefinition, spec.Name)
	}

	if strings.TrimSpace(spec.Query) == "" {
		return nil, fmt.Errorf("%w: audit %s has no query", ErrInvalidDefinition, spec.Name)
	}

	blocking := true
	if spec.Blocking != nil {
		blocking = *spec.Blocking
	}

	return &SQLAudit{spec: spec, blocking: blocking}, nil
}

func (a *SQLAudit) Name() string    { return a.spec.Name }
func (a *SQLAudit) Dialect() string { return a.spec.Dialect }
func (a *SQLAudit) Skip() bool      { return a.spec.Skip }
func (a *SQLAudit) Blocking() bool  { return a.blocking }

// Query returns the raw query, or the query with @this_model replaced by the model name and every other @name
// by the argument of that name. Arguments default to the audit's defaults; a missing argument is an error.
func (a *SQLAudit) Query(model snapshot.Model, args map[string]string, raw bool) (string, error) {
	if raw {
		return strings.TrimSpace(a.spec.Query), nil
	}

	values := maps.Clone(a.spec.Defaults)
	if values == nil {
		values = make(map[string]string)
	}

	maps.Copy(values, args)
	values[thisModelArg] = model.Name()

	var missing []string

	rendered := auditArgPattern.ReplaceAllStringFunc(a.spec.Query, func(ref string) string {
		value, ok := values[ref[1:]]
		if !ok {
			missing = append(missing, ref[1:])
			return ref
		}

		return value
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("audit %s: missing arguments %s", a.spec.Name, strings.Join(missing, ", "))
	}

	return renderStatement(rendered), nil
}

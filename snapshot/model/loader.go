package model

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
)

// Project is a validated set of models and audits.
type Project struct {
	Definitions []*Definition
	AuditDefs   []*SQLAudit
}

// Load decodes a YAML definitions file. Unknown fields are rejected.
func Load(r io.Reader) (*Project, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var file File
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrInvalidDefinition, err)
	}

	return NewProject(file)
}

// LoadFile is Load for the file at path.
func LoadFile(path string) (*Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Load(f)
}

// NewProject validates all models and audits of file. Names must be unique.
func NewProject(file File) (*Project, error) {
	project := &Project{}
	seen := make(map[string]bool)

	for _, spec := range file.Models {
		if seen[spec.Name] {
			return nil, errors.Join(ErrInvalidDefinition, fmt.Errorf("%w: model %s", ErrDuplicateName, spec.Name))
		}

		definition, err := New(spec)
		if err != nil {
			return nil, err
		}

		seen[spec.Name] = true
		project.Definitions = append(project.Definitions, definition)
	}

	seen = make(map[string]bool)

	for _, spec := range file.Audits {
		if seen[spec.Name] {
			return nil, errors.Join(ErrInvalidDefinition, fmt.Errorf("%w: audit %s", ErrDuplicateName, spec.Name))
		}

		audit, err := NewAudit(spec)
		if err != nil {
			return nil, err
		}

		seen[spec.Name] = true
		project.AuditDefs = append(project.AuditDefs, audit)
	}

	return project, nil
}

// Models returns the models by name.
func (p *Project) Models() map[string]snapshot.Model {
	models := make(map[string]snapshot.Model, len(p.Definitions))
	for _, definition := range p.Definitions {
		models[definition.Name()] = definition
	}

	return models
}

// Audits returns the user-defined audits by name.
func (p *Project) Audits() map[string]snapshot.Audit {
	audits := make(map[string]snapshot.Audit, len(p.AuditDefs))
	for _, audit := range p.AuditDefs {
		audits[audit.Name()] = audit
	}

	return audits
}

// Names returns the sorted model names.
func (p *Project) Names() []string {
	names := make([]string, 0, len(p.Definitions))
	for _, definition := range p.Definitions {
		names = append(names, definition.Name())
	}

	sort.Strings(names)

	return names
}

// Snapshots creates one snapshot per model, sharing one fingerprint cache. Options apply to every snapshot.
func (p *Project) Snapshots(options ...snapshot.Option) ([]*snapshot.Snapshot, error) {
	models := p.Models()
	cache := snapshot.NewFingerprintCache()

	options = append([]snapshot.Option{snapshot.WithAudits(p.Audits())}, options...)
	options = append(options, snapshot.WithFingerprintCache(cache))

	snapshots := make([]*snapshot.Snapshot, 0, len(models))

	for _, name := range p.Names() {
		s, err := snapshot.NewSnapshotFromModel(models[name], models, options...)
		if err != nil {
			return nil, err
		}

		snapshots = append(snapshots, s)
	}

	return snapshots, nil
}

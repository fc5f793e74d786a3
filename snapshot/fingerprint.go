package snapshot

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// defaultParentHash is the parent hash of fingerprints which were built without a model graph.
const defaultParentHash = "0"

// canonicalJSON encodes maps with sorted keys.
var canonicalJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Fingerprint is the four-part content hash of a model and its upstream graph.
type Fingerprint struct {
	DataHash           string `json:"data_hash"`
	MetadataHash       string `json:"metadata_hash"`
	ParentDataHash     string `json:"parent_data_hash"`
	ParentMetadataHash string `json:"parent_metadata_hash"`
}

// BuildFingerprint is a factory method for Fingerprint. Empty parent hashes default to "0".
func BuildFingerprint(dataHash, metadataHash, parentDataHash, parentMetadataHash string) (Fingerprint, error) {
	if parentDataHash == "" {
		parentDataHash = defaultParentHash
	}

	if parentMetadataHash == "" {
		parentMetadataHash = defaultParentHash
	}

	fingerprint := Fingerprint{
		DataHash:           dataHash,
		MetadataHash:       metadataHash,
		ParentDataHash:     parentDataHash,
		ParentMetadataHash: parentMetadataHash,
	}

	if err := fingerprint.Validate(); err != nil {
		return Fingerprint{}, err
	}

	return fingerprint, nil
}

// Validate ensures all four hashes are set.
func (f Fingerprint) Validate() error {
	if f.DataHash == "" || f.MetadataHash == "" || f.ParentDataHash == "" || f.ParentMetadataHash == "" {
		return ErrEmptyHash
	}

	return nil
}

// ToVersion derives the data-producing identity: it changes only when data or upstream data changes.
func (f Fingerprint) ToVersion() string {
	return Hash(f.DataHash, f.ParentDataHash)
}

// ToIdentifier derives the identity over all four hashes.
func (f Fingerprint) ToIdentifier() string {
	return Hash(f.DataHash, f.MetadataHash, f.ParentDataHash, f.ParentMetadataHash)
}

// FingerprintCache memoizes fingerprints by model name for one pass over a model graph.
//
// It is safe for concurrent use, but passes over different model graphs must not share a cache.
type FingerprintCache struct {
	mu      sync.Mutex
	entries map[string]Fingerprint
}

// NewFingerprintCache creates an empty FingerprintCache.
func NewFingerprintCache() *FingerprintCache {
	return &FingerprintCache{entries: make(map[string]Fingerprint)}
}

// Get returns the cached fingerprint of the named model.
func (c *FingerprintCache) Get(name string) (Fingerprint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fingerprint, ok := c.entries[name]

	return fingerprint, ok
}

// Len returns the number of cached fingerprints.
func (c *FingerprintCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

func (c *FingerprintCache) put(name string, fingerprint Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[name] = fingerprint
}

// FingerprintFromModel computes the fingerprint of model within the graph of models.
//
// Dependencies which are not part of models are ignored. If models is empty, the fingerprint does not
// depend on any parent. A nil cache is replaced by a fresh one, which means nothing is shared between calls.
func FingerprintFromModel(
	model Model,
	models map[string]Model,
	audits map[string]Audit,
	cache *FingerprintCache,
) (Fingerprint, error) {

	if model == nil {
		return Fingerprint{}, ErrNilModel
	}

	if cache == nil {
		cache = NewFingerprintCache()
	}

	f := fingerprinter{
		models:   models,
		audits:   audits,
		cache:    cache,
		visiting: make(map[string]bool),
	}

	return f.fingerprint(model)
}

type fingerprinter struct {
	models   map[string]Model
	audits   map[string]Audit
	cache    *FingerprintCache
	visiting map[string]bool
}

func (f fingerprinter) fingerprint(model Model) (Fingerprint, error) {
	name := model.Name()

	if cached, ok := f.cache.Get(name); ok {
		return cached, nil
	}

	if f.visiting[name] {
		return Fingerprint{}, fmt.Errorf("%w: %s", ErrDependencyCycle, name)
	}

	f.visiting[name] = true
	defer delete(f.visiting, name)

	parentVersions := make([]string, 0)
	parentMetadataHashes := make([]string, 0)

	for _, dependency := range uniqueSorted(model.DependsOn()) {
		parentModel, ok := f.models[dependency]
		if !ok || dependency == name {
			continue
		}

		parent, err := f.fingerprint(parentModel)
		if err != nil {
			return Fingerprint{}, err
		}

		parentVersions = append(parentVersions, parent.ToVersion())
		parentMetadataHashes = append(parentMetadataHashes, parent.MetadataHash, parent.ParentMetadataHash)
	}

	sort.Strings(parentVersions)
	sort.Strings(parentMetadataHashes)

	dataHash, err := modelDataHash(model)
	if err != nil {
		return Fingerprint{}, err
	}

	metadataHash, err := modelMetadataHash(model, f.audits)
	if err != nil {
		return Fingerprint{}, err
	}

	fingerprint := Fingerprint{
		DataHash:           dataHash,
		MetadataHash:       metadataHash,
		ParentDataHash:     Hash(parentVersions...),
		ParentMetadataHash: Hash(parentMetadataHashes...),
	}

	f.cache.put(name, fingerprint)

	return fingerprint, nil
}

func modelDataHash(model Model) (string, error) {
	content, err := model.Content(model.HashRawQuery())
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrRenderingFailed, model.Name(), err)
	}

	kind := model.Kind()

	data := hashInput{}
	data.add(content.Environment, string(kind.Name))
	data.addOptional(model.Cron())
	data.addOptional(content.StorageFormat)
	data.add(strconv.Itoa(model.Lookback()))
	data.add(content.PartitionedBy...)
	data.addOptional(content.Stamp)

	data.addOptional(content.Query)
	data.add(content.PreStatements...)
	data.add(content.PostStatements...)
	data.add(content.MacroDefinitions...)

	macros := slices.Clone(content.Macros)
	sort.SliceStable(macros, func(i, j int) bool { return macros[i].Name < macros[j].Name })
	for _, macro := range macros {
		data.add(macro.Name, macro.Definition)
	}

	if content.Entrypoint != "" {
		data.add(content.Entrypoint)
	}

	for _, column := range content.ColumnHashes {
		data.add(column.Name, column.Type)
	}

	for _, column := range content.Columns {
		data.add(column.Name, column.Type)
	}

	switch {
	case kind.IsIncrementalByTimeRange():
		data.add(kind.TimeColumn)
		data.addOptional(kind.TimeColumnFormat)
	case kind.IsIncrementalByUniqueKey():
		data.add(kind.UniqueKey...)
	}

	return data.sum(), nil
}

func modelMetadataHash(model Model, audits map[string]Audit) (string, error) {
	meta := model.Metadata()

	mappingSchema, err := canonicalJSON.MarshalToString(meta.MappingSchema)
	if err != nil {
		return "", fmt.Errorf("%w: %s: mapping schema: %w", ErrInvalidInput, model.Name(), err)
	}

	metadata := hashInput{}
	metadata.addOptional(meta.Dialect)
	metadata.addOptional(meta.Owner)
	metadata.addOptional(meta.Description)
	metadata.addOptional(meta.Start)
	metadata.addNullable(optionalInt(meta.Retention))
	metadata.addNullable(optionalInt(meta.BatchSize))
	metadata.add(mappingSchema)
	metadata.add(meta.Tags...)
	metadata.add(meta.Grain...)

	refs := slices.Clone(model.AuditRefs())
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })

	for _, ref := range refs {
		metadata.add(ref.Name)

		if IsBuiltInAudit(ref.Name) {
			for _, argName := range sortedKeys(ref.Args) {
				metadata.add(argName, ref.Args[argName])
			}

			continue
		}

		audit, ok := audits[ref.Name]
		if !ok {
			return "", fmt.Errorf("%w: '%s' referenced by %s", ErrUnknownAudit, ref.Name, model.Name())
		}

		query, queryErr := audit.Query(model, ref.Args, model.HashRawQuery())
		if queryErr != nil {
			return "", fmt.Errorf("%w: audit %s of %s: %w", ErrRenderingFailed, ref.Name, model.Name(), queryErr)
		}

		metadata.add(
			query,
			audit.Dialect(),
			strconv.FormatBool(audit.Skip()),
			strconv.FormatBool(audit.Blocking()),
		)
	}

	content, err := model.Content(false)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrRenderingFailed, model.Name(), err)
	}

	metadata.add(content.Comments...)

	return metadata.sum(), nil
}

// ParentsFromModel returns the sorted names of model's parents within models.
// Parents of embedded parents are included transitively, since embedded models have no table of their own.
func ParentsFromModel(model Model, models map[string]Model) []string {
	parents := make(map[string]struct{})
	collectParents(model, models, parents, map[string]bool{model.Name(): true})

	return sortedKeys(parents)
}

func collectParents(model Model, models map[string]Model, parents map[string]struct{}, seen map[string]bool) {
	for _, dependency := range model.DependsOn() {
		parent, ok := models[dependency]
		if !ok || dependency == model.Name() {
			continue
		}

		parents[dependency] = struct{}{}

		if parent.Kind().IsEmbedded() && !seen[dependency] {
			seen[dependency] = true
			collectParents(parent, models, parents, seen)
		}
	}
}

func optionalInt(value *int) *string {
	if value == nil {
		return nil
	}

	s := strconv.Itoa(*value)

	return &s
}

func uniqueSorted(values []string) []string {
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	return slices.Compact(sorted)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

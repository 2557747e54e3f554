package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/knowledgebase/netgraph/pkg/common"
	"github.com/knowledgebase/netgraph/pkg/logger"

	"github.com/go-playground/validator"
)

var (
	ErrDuplicateEntity = errors.New("duplicate entity id")
	ErrInvalidRecord   = errors.New("invalid record")
	ErrNoDataset       = errors.New("dataset not found")
)

// Source loads a complete dataset. Implementations read from files, object
// storage, or a database; the returned dataset is never mutated afterwards.
type Source interface {
	Load(ctx context.Context) (*common.Dataset, error)
}

// Writer persists a complete dataset, replacing any previous version with the
// same name.
type Writer interface {
	Save(ctx context.Context, d *common.Dataset) error
}

var validate = validator.New()

// Report lists problems in a dataset that do not prevent loading it.
type Report struct {
	// Relationships whose source or target is not a known entity id.
	Dangling []string
	// Entities whose connectionCount differs from their degree.
	Drift []string
}

func (r Report) Empty() bool {
	return len(r.Dangling) == 0 && len(r.Drift) == 0
}

// Validate checks every record against its validation tags and rejects
// duplicate entity ids. Dangling relationship endpoints and connectionCount
// drift are reported but tolerated; the filter keeps dangling edges out of
// every visible graph and connectionCount is only a display hint.
func Validate(d *common.Dataset) (Report, error) {
	var report Report

	seen := make(map[string]struct{}, len(d.Entities))
	for i := range d.Entities {
		e := &d.Entities[i]
		if err := validate.Struct(e); err != nil {
			return report, fmt.Errorf("%w: entity %d (%q): %v", ErrInvalidRecord, i, e.ID, err)
		}
		if _, dup := seen[e.ID]; dup {
			return report, fmt.Errorf("%w: %q", ErrDuplicateEntity, e.ID)
		}
		seen[e.ID] = struct{}{}
	}

	degree := make(map[string]int, len(d.Entities))
	for i := range d.Relationships {
		r := &d.Relationships[i]
		if err := validate.Struct(r); err != nil {
			return report, fmt.Errorf("%w: relationship %d (%s->%s): %v", ErrInvalidRecord, i, r.Source, r.Target, err)
		}
		_, okS := seen[r.Source]
		_, okT := seen[r.Target]
		if !okS || !okT {
			report.Dangling = append(report.Dangling, r.Source+"->"+r.Target)
			continue
		}
		degree[r.Source]++
		if r.Target != r.Source {
			degree[r.Target]++
		}
	}

	for _, e := range d.Entities {
		if e.ConnectionCount != degree[e.ID] {
			report.Drift = append(report.Drift, e.ID)
		}
	}
	report.Dangling = DedupeStrings(report.Dangling)
	return report, nil
}

// LogReport writes the non-fatal findings of Validate.
func LogReport(name string, r Report) {
	if len(r.Dangling) > 0 {
		logger.Warn("[Store] Relationships reference unknown entities", "dataset", name, "count", len(r.Dangling), "relationships", r.Dangling)
	}
	if len(r.Drift) > 0 {
		logger.Warn("[Store] connectionCount differs from relationship degree", "dataset", name, "count", len(r.Drift), "entities", r.Drift)
	}
}

// ComputeMetadata derives the banner statistics from the records.
func ComputeMetadata(entities []common.Entity, relationships []common.Relationship) common.Metadata {
	stats := common.Statistics{
		TotalEntities:         len(entities),
		EntityBreakdown:       map[string]int{common.EntityTypePerson: 0, common.EntityTypeOrganization: 0},
		TotalRelationships:    len(relationships),
		RelationshipBreakdown: map[string]int{},
	}
	for _, e := range entities {
		stats.EntityBreakdown[e.Type]++
	}
	for _, r := range relationships {
		stats.RelationshipBreakdown[r.Type]++
	}
	return common.Metadata{Statistics: stats}
}

// Banner renders the two summary lines shown above the graph.
func Banner(m common.Metadata) []string {
	s := m.Statistics
	return []string{
		fmt.Sprintf("%d Entities: %d Persons • %d Organizations",
			s.TotalEntities,
			s.EntityBreakdown[common.EntityTypePerson],
			s.EntityBreakdown[common.EntityTypeOrganization]),
		fmt.Sprintf("%d+ Documented Relationships: %d Financial Links • %d Control Structures • %d Sanctions Actions",
			s.TotalRelationships,
			s.RelationshipBreakdown["financial"],
			s.RelationshipBreakdown["control"],
			s.RelationshipBreakdown["sanctions"]),
	}
}

// Prepare validates d, logs the report and fills in missing metadata. It is
// the common tail of every Source.Load.
func Prepare(d *common.Dataset) (*common.Dataset, error) {
	report, err := Validate(d)
	if err != nil {
		return nil, err
	}
	LogReport(d.Name, report)
	if d.Metadata.Statistics.TotalEntities == 0 && len(d.Entities) > 0 {
		d.Metadata = ComputeMetadata(d.Entities, d.Relationships)
	}
	return d, nil
}

// Holder publishes the current dataset to readers and swaps it atomically on
// reload. Sessions keep the dataset they were created with.
type Holder struct {
	src     Source
	current atomic.Pointer[common.Dataset]
}

func NewHolder(src Source) *Holder {
	return &Holder{src: src}
}

// Current returns the latest loaded dataset, or nil before the first load.
func (h *Holder) Current() *common.Dataset {
	return h.current.Load()
}

func (h *Holder) Set(d *common.Dataset) {
	h.current.Store(d)
}

// Reload loads the dataset from the source and publishes it. On failure the
// previous dataset stays current.
func (h *Holder) Reload(ctx context.Context) error {
	if inv, ok := h.src.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
	d, err := h.src.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload dataset: %w", err)
	}
	h.current.Store(d)
	logger.Info("[Store] Dataset loaded", "dataset", d.Name, "entities", len(d.Entities), "relationships", len(d.Relationships))
	return nil
}

// Cache is a local copy of the last good dataset.
type Cache interface {
	Source
	Writer
}

// Fallback loads from primary and refreshes cache on success. When primary
// fails, the cached dataset is served instead.
type Fallback struct {
	primary Source
	cache   Cache
}

func NewFallback(primary Source, cache Cache) *Fallback {
	return &Fallback{primary: primary, cache: cache}
}

func (f *Fallback) Invalidate() {
	if inv, ok := f.primary.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
}

func (f *Fallback) Load(ctx context.Context) (*common.Dataset, error) {
	d, err := f.primary.Load(ctx)
	if err == nil {
		if err := f.cache.Save(ctx, d); err != nil {
			logger.Warn("[Store] Failed to refresh snapshot", "dataset", d.Name, "err", err)
		}
		return d, nil
	}

	logger.Warn("[Store] Primary source failed, using snapshot", "err", err)
	cached, cacheErr := f.cache.Load(ctx)
	if cacheErr != nil {
		return nil, errors.Join(err, cacheErr)
	}
	return cached, nil
}

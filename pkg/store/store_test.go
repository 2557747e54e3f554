package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/knowledgebase/netgraph/pkg/common"
)

func sample() *common.Dataset {
	return &common.Dataset{
		Name: "sample",
		Entities: []common.Entity{
			{ID: "A", Name: "Ahmed Saleh", Type: "person", ConnectionCount: 1},
			{ID: "B", Name: "Rafidain Bank", Type: "organization", ConnectionCount: 2},
			{ID: "C", Name: "Qi Card", Type: "organization", ConnectionCount: 1},
		},
		Relationships: []common.Relationship{
			{Source: "A", Target: "B", Type: "financial", Strength: 5},
			{Source: "B", Target: "C", Type: "control", Strength: 8},
		},
	}
}

func TestValidateClean(t *testing.T) {
	report, err := Validate(sample())
	if err != nil {
		t.Fatalf("Validate(sample) error = %v", err)
	}
	if !report.Empty() {
		t.Fatalf("Validate(sample) report = %+v, want empty", report)
	}
}

func TestValidateDuplicate(t *testing.T) {
	d := sample()
	d.Entities = append(d.Entities, common.Entity{ID: "A", Name: "Other", Type: "person"})
	_, err := Validate(d)
	if !errors.Is(err, ErrDuplicateEntity) {
		t.Fatalf("Validate(dup) error = %v, want ErrDuplicateEntity", err)
	}
}

func TestValidateInvalidRecord(t *testing.T) {
	tests := []struct {
		name string
		edit func(*common.Dataset)
	}{
		{"missing entity name", func(d *common.Dataset) { d.Entities[0].Name = "" }},
		{"negative connection count", func(d *common.Dataset) { d.Entities[1].ConnectionCount = -1 }},
		{"zero strength", func(d *common.Dataset) { d.Relationships[0].Strength = 0 }},
		{"missing relationship type", func(d *common.Dataset) { d.Relationships[1].Type = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sample()
			tt.edit(d)
			if _, err := Validate(d); !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("Validate() error = %v, want ErrInvalidRecord", err)
			}
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	d := sample()
	d.Relationships = append(d.Relationships,
		common.Relationship{Source: "A", Target: "Z", Type: "legal", Strength: 1},
		common.Relationship{Source: "A", Target: "Z", Type: "legal", Strength: 2},
	)
	d.Entities[2].ConnectionCount = 9

	report, err := Validate(d)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !reflect.DeepEqual(report.Dangling, []string{"A->Z"}) {
		t.Fatalf("Dangling = %v, want [A->Z]", report.Dangling)
	}
	if !reflect.DeepEqual(report.Drift, []string{"C"}) {
		t.Fatalf("Drift = %v, want [C]", report.Drift)
	}
}

func TestComputeMetadataAndBanner(t *testing.T) {
	d := sample()
	d.Relationships = append(d.Relationships, common.Relationship{Source: "A", Target: "C", Type: "sanctions", Strength: 3})
	m := ComputeMetadata(d.Entities, d.Relationships)

	if m.Statistics.TotalEntities != 3 || m.Statistics.TotalRelationships != 3 {
		t.Fatalf("ComputeMetadata totals = %d/%d, want 3/3", m.Statistics.TotalEntities, m.Statistics.TotalRelationships)
	}
	want := []string{
		"3 Entities: 1 Persons • 2 Organizations",
		"3+ Documented Relationships: 1 Financial Links • 1 Control Structures • 1 Sanctions Actions",
	}
	if got := Banner(m); !reflect.DeepEqual(got, want) {
		t.Fatalf("Banner() = %q, want %q", got, want)
	}
}

func TestBannerEmpty(t *testing.T) {
	want := []string{
		"0 Entities: 0 Persons • 0 Organizations",
		"0+ Documented Relationships: 0 Financial Links • 0 Control Structures • 0 Sanctions Actions",
	}
	if got := Banner(common.Metadata{}); !reflect.DeepEqual(got, want) {
		t.Fatalf("Banner(empty) = %q, want %q", got, want)
	}
}

func TestPrepareKeepsSuppliedMetadata(t *testing.T) {
	d := sample()
	d.Metadata.Statistics.TotalEntities = 42
	out, err := Prepare(d)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if out.Metadata.Statistics.TotalEntities != 42 {
		t.Fatalf("Prepare() TotalEntities = %d, want 42", out.Metadata.Statistics.TotalEntities)
	}

	d = sample()
	out, err = Prepare(d)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if out.Metadata.Statistics.TotalEntities != 3 {
		t.Fatalf("Prepare() computed TotalEntities = %d, want 3", out.Metadata.Statistics.TotalEntities)
	}
}

type fakeSource struct {
	data        *common.Dataset
	err         error
	loads       int
	invalidated int
}

func (f *fakeSource) Load(ctx context.Context) (*common.Dataset, error) {
	f.loads++
	return f.data, f.err
}

func (f *fakeSource) Invalidate() { f.invalidated++ }

func TestHolderReload(t *testing.T) {
	src := &fakeSource{data: sample()}
	h := NewHolder(src)
	if h.Current() != nil {
		t.Fatalf("Current() before load = %v, want nil", h.Current())
	}
	if err := h.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	first := h.Current()
	if first == nil || first.Name != "sample" {
		t.Fatalf("Current() = %v, want sample", first)
	}
	if src.invalidated != 1 {
		t.Fatalf("Invalidate calls = %d, want 1", src.invalidated)
	}

	boom := errors.New("boom")
	src.err = boom
	src.data = nil
	if err := h.Reload(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Reload() error = %v, want boom", err)
	}
	if h.Current() != first {
		t.Fatalf("Current() changed after failed reload")
	}
}

func TestChunkRange(t *testing.T) {
	var got [][2]int
	err := ChunkRange(7, 3, func(start, end int) error {
		got = append(got, [2]int{start, end})
		return nil
	})
	if err != nil {
		t.Fatalf("ChunkRange() error = %v", err)
	}
	want := [][2]int{{0, 3}, {3, 6}, {6, 7}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ChunkRange(7, 3) = %v, want %v", got, want)
	}

	calls := 0
	_ = ChunkRange(0, 3, func(int, int) error { calls++; return nil })
	if calls != 0 {
		t.Fatalf("ChunkRange(0, 3) calls = %d, want 0", calls)
	}
}

func TestDedupeStrings(t *testing.T) {
	got := DedupeStrings([]string{"a", "", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DedupeStrings() = %v, want %v", got, want)
	}
}

type memCache struct {
	data  *common.Dataset
	saves int
}

func (m *memCache) Load(ctx context.Context) (*common.Dataset, error) {
	if m.data == nil {
		return nil, ErrNoDataset
	}
	return m.data, nil
}

func (m *memCache) Save(ctx context.Context, d *common.Dataset) error {
	m.saves++
	m.data = d
	return nil
}

func TestFallback(t *testing.T) {
	primary := &fakeSource{data: sample()}
	cache := &memCache{}
	f := NewFallback(primary, cache)

	d, err := f.Load(context.Background())
	if err != nil || d.Name != "sample" {
		t.Fatalf("Load() = %v, %v, want sample", d, err)
	}
	if cache.saves != 1 {
		t.Fatalf("cache saves = %d, want 1", cache.saves)
	}

	primary.err = errors.New("unreachable")
	primary.data = nil
	d, err = f.Load(context.Background())
	if err != nil || d.Name != "sample" {
		t.Fatalf("Load() after primary failure = %v, %v, want cached sample", d, err)
	}

	empty := NewFallback(&fakeSource{err: errors.New("unreachable")}, &memCache{})
	if _, err := empty.Load(context.Background()); !errors.Is(err, ErrNoDataset) {
		t.Fatalf("Load() with empty cache error = %v, want ErrNoDataset", err)
	}
}

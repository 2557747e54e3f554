package files

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/knowledgebase/netgraph/pkg/common"
	"github.com/knowledgebase/netgraph/pkg/loader"
	ioloader "github.com/knowledgebase/netgraph/pkg/loader/io"
	"github.com/knowledgebase/netgraph/pkg/store"
)

const entitiesJSON = `[
  {"id": "A", "name": "Ahmed Saleh", "type": "person", "title": "Chairman", "connectionCount": 1, "keyFacts": ["Board member"]},
  {"id": "B", "name": "Rafidain Bank", "type": "organization", "connectionCount": 1}
]`

const relationshipsJSON = `[
  {"source": "A", "target": "B", "type": "financial", "strength": 5, "dateRange": "2019-2021"}
]`

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoadComputesMissingMetadata(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"iraq/entities.json":      entitiesJSON,
		"iraq/relationships.json": relationshipsJSON,
	})

	s := New("iraq", "iraq", ioloader.NewIOFileLoader(dir))
	d, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(d.Entities) != 2 || len(d.Relationships) != 1 {
		t.Fatalf("Load() = %d entities, %d relationships, want 2, 1", len(d.Entities), len(d.Relationships))
	}
	if d.Entities[0].KeyFacts[0] != "Board member" || d.Relationships[0].DateRange != "2019-2021" {
		t.Fatalf("Load() lost fields: %+v %+v", d.Entities[0], d.Relationships[0])
	}
	stats := d.Metadata.Statistics
	if stats.TotalEntities != 2 || stats.EntityBreakdown["person"] != 1 || stats.RelationshipBreakdown["financial"] != 1 {
		t.Fatalf("Load() statistics = %+v", stats)
	}
}

func TestLoadUsesMetadataFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"entities.json":      entitiesJSON,
		"relationships.json": relationshipsJSON,
		"metadata.json":      `{"statistics": {"totalEntities": 90, "totalRelationships": 300}}`,
	})

	d, err := New("root", "", ioloader.NewIOFileLoader(dir)).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if d.Metadata.Statistics.TotalEntities != 90 || d.Metadata.Statistics.TotalRelationships != 300 {
		t.Fatalf("Load() metadata = %+v, want file contents", d.Metadata.Statistics)
	}
}

func TestLoadRepairsJSON(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"entities.json":      `[{"id": "A", "name": "Ahmed Saleh", "type": "person", "connectionCount": 0},]`,
		"relationships.json": `[]`,
	})

	d, err := New("repair", "", ioloader.NewIOFileLoader(dir)).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(d.Entities) != 1 || d.Entities[0].ID != "A" {
		t.Fatalf("Load() entities = %+v, want [A]", d.Entities)
	}
}

func TestLoadMissingEntities(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"relationships.json": `[]`})

	_, err := New("missing", "", ioloader.NewIOFileLoader(dir)).Load(context.Background())
	if !errors.Is(err, loader.ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestLoadRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"entities.json":      `[{"id": "A", "name": "One", "type": "person"}, {"id": "A", "name": "Two", "type": "person"}]`,
		"relationships.json": `[]`,
	})

	_, err := New("dup", "", ioloader.NewIOFileLoader(dir)).Load(context.Background())
	if !errors.Is(err, store.ErrDuplicateEntity) {
		t.Fatalf("Load() error = %v, want ErrDuplicateEntity", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	files := ioloader.NewIOFileLoader(dir)
	s := New("saved", "out/saved", files)

	in := &common.Dataset{
		Name: "saved",
		Entities: []common.Entity{
			{ID: "A", Name: "Ahmed Saleh", Type: "person", ConnectionCount: 0},
		},
		Relationships: []common.Relationship{},
	}
	in.Metadata = store.ComputeMetadata(in.Entities, in.Relationships)
	if err := s.Save(context.Background(), in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "saved", "metadata.json")); err != nil {
		t.Fatalf("metadata.json not written: %v", err)
	}

	files.Invalidate()
	out, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(out.Entities) != 1 || out.Metadata.Statistics.TotalEntities != 1 {
		t.Fatalf("Load() after Save = %+v", out)
	}
}

type readOnly struct{}

func (readOnly) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return nil, loader.ErrNotFound
}

func TestSaveReadOnlyLoader(t *testing.T) {
	err := New("ro", "", readOnly{}).SaveMetadata(context.Background(), common.Metadata{})
	if err == nil {
		t.Fatalf("SaveMetadata() on read-only loader error = nil, want error")
	}
}

package neo4j

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/knowledgebase/netgraph/pkg/common"
	"github.com/knowledgebase/netgraph/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type call struct {
	query  string
	params map[string]any
}

type fakeRunner struct {
	calls   []call
	results map[string]*neo4j.EagerResult
}

func (f *fakeRunner) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	f.calls = append(f.calls, call{query: query, params: params})
	for marker, res := range f.results {
		if strings.Contains(query, marker) {
			return res, nil
		}
	}
	return &neo4j.EagerResult{}, nil
}

func record(keys []string, values ...any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func TestLoad(t *testing.T) {
	entityKeys := []string{"id", "name", "type", "title", "connectionCount", "keyFacts"}
	relKeys := []string{"source", "target", "type", "description", "strength", "dateRange"}
	runner := &fakeRunner{results: map[string]*neo4j.EagerResult{
		"d.metadata AS metadata": {Records: []*neo4j.Record{record([]string{"metadata"}, `{"statistics":{"totalEntities":2}}`)}},
		"MATCH (e:Entity": {Records: []*neo4j.Record{
			record(entityKeys, "A", "Ahmed Saleh", "person", "Chairman", int64(1), []any{"Board member"}),
			record(entityKeys, "B", "Rafidain Bank", "organization", nil, int64(1), nil),
		}},
		"-[r:RELATES]->": {Records: []*neo4j.Record{
			record(relKeys, "A", "B", "financial", "Loans", int64(5), "2019"),
		}},
	}}

	d, err := New(runner, "iraq").Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(d.Entities) != 2 || len(d.Relationships) != 1 {
		t.Fatalf("Load() = %d entities, %d relationships, want 2, 1", len(d.Entities), len(d.Relationships))
	}
	if !reflect.DeepEqual(d.Entities[0].KeyFacts, []string{"Board member"}) || d.Entities[1].Title != "" {
		t.Fatalf("Load() entities = %+v", d.Entities)
	}
	if d.Relationships[0].Strength != 5 {
		t.Fatalf("Load() strength = %v, want 5", d.Relationships[0].Strength)
	}
	if d.Metadata.Statistics.TotalEntities != 2 {
		t.Fatalf("Load() TotalEntities = %d, want 2", d.Metadata.Statistics.TotalEntities)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := New(&fakeRunner{}, "nope").Load(context.Background())
	if !errors.Is(err, store.ErrNoDataset) {
		t.Fatalf("Load() error = %v, want ErrNoDataset", err)
	}
}

func TestLoadBadValue(t *testing.T) {
	runner := &fakeRunner{results: map[string]*neo4j.EagerResult{
		"d.metadata AS metadata": {Records: []*neo4j.Record{record([]string{"metadata"}, nil)}},
		"MATCH (e:Entity": {Records: []*neo4j.Record{
			record([]string{"id", "name", "type"}, int64(7), "x", "person"),
		}},
	}}
	if _, err := New(runner, "bad").Load(context.Background()); !errors.Is(err, errBadRecord) {
		t.Fatalf("Load() error = %v, want errBadRecord", err)
	}
}

func TestSaveSkipsDangling(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, "iraq")
	s.chunkSize = 1

	d := &common.Dataset{
		Entities: []common.Entity{
			{ID: "A", Name: "A", Type: "person", KeyFacts: []string{"f"}},
			{ID: "B", Name: "B", Type: "person"},
		},
		Relationships: []common.Relationship{
			{Source: "A", Target: "B", Type: "control", Strength: 1},
			{Source: "A", Target: "Z", Type: "control", Strength: 1},
		},
	}
	if err := s.Save(context.Background(), d); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var entityBatches, relBatches int
	for _, c := range runner.calls {
		switch {
		case strings.Contains(c.query, "CREATE (e:Entity"):
			entityBatches++
		case strings.Contains(c.query, "CREATE (s)-[r:RELATES]->(t)"):
			relBatches++
			rows := c.params["rows"].([]any)
			if got := rows[0].(map[string]any)["target"]; got != "B" {
				t.Fatalf("relationship row target = %v, want B", got)
			}
		}
	}
	if entityBatches != 2 || relBatches != 1 {
		t.Fatalf("batches = %d entity, %d relationship, want 2, 1", entityBatches, relBatches)
	}
}

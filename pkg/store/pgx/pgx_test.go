package pgx

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/knowledgebase/netgraph/pkg/common"
	"github.com/knowledgebase/netgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	sql  string
	args []any
}

type fakeTx struct {
	pgxv5.Tx
	execs      []execCall
	committed  bool
	rolledBack bool
	failOn     string
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if t.failOn != "" && strings.Contains(sql, t.failOn) {
		return pgconn.CommandTag{}, errors.New("exec failed")
	}
	t.execs = append(t.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

// scanInto copies values into scan destinations of the same type.
func scanInto(values []any, dest []any) error {
	if len(values) != len(dest) {
		return errors.New("column count mismatch")
	}
	for i, v := range values {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.values, dest)
}

type fakeRows struct {
	pgxv5.Rows
	data [][]any
	i    int
}

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error { return scanInto(r.data[r.i-1], dest) }
func (r *fakeRows) Close()                 {}
func (r *fakeRows) Err() error             { return nil }

type fakeConn struct {
	tx            *fakeTx
	metadata      []byte
	noDataset     bool
	entities      [][]any
	relationships [][]any
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgxv5.Rows, error) {
	if strings.Contains(sql, "FROM entities") {
		return &fakeRows{data: c.entities}, nil
	}
	return &fakeRows{data: c.relationships}, nil
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgxv5.Row {
	if c.noDataset {
		return fakeRow{err: pgxv5.ErrNoRows}
	}
	return fakeRow{values: []any{c.metadata}}
}

func (c *fakeConn) Begin(ctx context.Context) (pgxv5.Tx, error) {
	return c.tx, nil
}

func TestLoad(t *testing.T) {
	conn := &fakeConn{
		entities: [][]any{
			{"A", "Ahmed Saleh", "person", "Chairman", int32(1), []byte(`["Board member"]`)},
			{"B", "Rafidain Bank", "organization", "", int32(1), []byte(`[]`)},
		},
		relationships: [][]any{
			{"A", "B", "financial", "Loans", 5.0, "2019"},
		},
	}

	d, err := New(conn, "iraq").Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if d.Name != "iraq" || len(d.Entities) != 2 || len(d.Relationships) != 1 {
		t.Fatalf("Load() = %+v", d)
	}
	if !reflect.DeepEqual(d.Entities[0].KeyFacts, []string{"Board member"}) || d.Entities[0].ConnectionCount != 1 {
		t.Fatalf("Load() entity = %+v", d.Entities[0])
	}
	if d.Relationships[0].Strength != 5 || d.Relationships[0].DateRange != "2019" {
		t.Fatalf("Load() relationship = %+v", d.Relationships[0])
	}
	if d.Metadata.Statistics.TotalEntities != 2 {
		t.Fatalf("Load() computed TotalEntities = %d, want 2", d.Metadata.Statistics.TotalEntities)
	}
}

func TestLoadStoredMetadata(t *testing.T) {
	conn := &fakeConn{
		metadata: []byte(`{"statistics":{"totalEntities":7}}`),
		entities: [][]any{{"A", "Ahmed Saleh", "person", "", int32(0), []byte(nil)}},
	}
	d, err := New(conn, "iraq").Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if d.Metadata.Statistics.TotalEntities != 7 {
		t.Fatalf("Load() TotalEntities = %d, want 7", d.Metadata.Statistics.TotalEntities)
	}
}

func TestLoadMissingDataset(t *testing.T) {
	_, err := New(&fakeConn{noDataset: true}, "nope").Load(context.Background())
	if !errors.Is(err, store.ErrNoDataset) {
		t.Fatalf("Load() error = %v, want ErrNoDataset", err)
	}
}

func TestSaveChunks(t *testing.T) {
	tx := &fakeTx{}
	s := New(&fakeConn{tx: tx}, "iraq", WithChunkSize(2))

	d := &common.Dataset{
		Entities: []common.Entity{
			{ID: "A", Name: "A", Type: "person"},
			{ID: "B", Name: "B", Type: "person"},
			{ID: "C", Name: "C", Type: "organization", KeyFacts: []string{"x"}},
		},
		Relationships: []common.Relationship{
			{Source: "A", Target: "B", Type: "control", Strength: 1},
		},
	}
	if err := s.Save(context.Background(), d); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !tx.committed {
		t.Fatalf("Save() did not commit")
	}

	var entityInserts [][]int32
	relInserts := 0
	for _, c := range tx.execs {
		switch {
		case strings.Contains(c.sql, "INSERT INTO entities"):
			entityInserts = append(entityInserts, c.args[1].([]int32))
		case strings.Contains(c.sql, "INSERT INTO relationships"):
			relInserts++
		}
	}
	want := [][]int32{{0, 1}, {2}}
	if !reflect.DeepEqual(entityInserts, want) {
		t.Fatalf("entity insert positions = %v, want %v", entityInserts, want)
	}
	if relInserts != 1 {
		t.Fatalf("relationship inserts = %d, want 1", relInserts)
	}
}

func TestSaveRollsBackOnError(t *testing.T) {
	tx := &fakeTx{failOn: "INSERT INTO relationships"}
	s := New(&fakeConn{tx: tx}, "iraq")
	d := &common.Dataset{
		Entities:      []common.Entity{{ID: "A", Name: "A", Type: "person"}},
		Relationships: []common.Relationship{{Source: "A", Target: "A", Type: "control", Strength: 1}},
	}
	if err := s.Save(context.Background(), d); err == nil {
		t.Fatalf("Save() error = nil, want error")
	}
	if tx.committed || !tx.rolledBack {
		t.Fatalf("Save() committed = %v, rolledBack = %v", tx.committed, tx.rolledBack)
	}
}

func TestSaveSanitizesText(t *testing.T) {
	tx := &fakeTx{}
	d := &common.Dataset{
		Entities: []common.Entity{
			{ID: "A", Name: "Ah\x00med", Type: "person", KeyFacts: []string{"bad\x00fact"}},
		},
	}
	if err := New(&fakeConn{tx: tx}, "iraq").Save(context.Background(), d); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	for _, c := range tx.execs {
		if !strings.Contains(c.sql, "INSERT INTO entities") {
			continue
		}
		if names := c.args[3].([]string); names[0] != "Ahmed" {
			t.Fatalf("Save() name = %q, want %q", names[0], "Ahmed")
		}
		if facts := c.args[7].([]string); facts[0] != `["badfact"]` {
			t.Fatalf("Save() key facts = %q", facts[0])
		}
		return
	}
	t.Fatalf("Save() issued no entity insert")
}

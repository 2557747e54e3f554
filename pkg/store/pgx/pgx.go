package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/knowledgebase/netgraph/internal/util"
	"github.com/knowledgebase/netgraph/pkg/common"
	"github.com/knowledgebase/netgraph/pkg/logger"
	"github.com/knowledgebase/netgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const defaultChunkSize = 1000

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Store keeps one named dataset in the datasets, entities and relationships
// tables. Record order is preserved through a position column.
type Store struct {
	conn      pgxIConn
	name      string
	chunkSize int
}

type Option func(*Store)

// WithChunkSize bounds the number of rows sent per insert statement.
func WithChunkSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// New creates a Store on an existing pool or connection.
func New(conn pgxIConn, name string, opts ...Option) *Store {
	s := &Store{conn: conn, name: name, chunkSize: defaultChunkSize}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

func (s *Store) Load(ctx context.Context) (*common.Dataset, error) {
	d := &common.Dataset{Name: s.name}

	var metadata []byte
	err := s.conn.QueryRow(ctx, selectDatasetSQL, s.name).Scan(&metadata)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", store.ErrNoDataset, s.name)
		}
		return nil, fmt.Errorf("failed to load dataset %q: %w", s.name, err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of %q: %w", s.name, err)
		}
	}

	if d.Entities, err = s.loadEntities(ctx); err != nil {
		return nil, err
	}
	if d.Relationships, err = s.loadRelationships(ctx); err != nil {
		return nil, err
	}
	return store.Prepare(d)
}

func (s *Store) loadEntities(ctx context.Context) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx, selectEntitiesSQL, s.name)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	entities := []common.Entity{}
	for rows.Next() {
		var (
			e        common.Entity
			count    int32
			keyFacts []byte
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &e.Title, &count, &keyFacts); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		e.ConnectionCount = int(count)
		if len(keyFacts) > 0 {
			if err := json.Unmarshal(keyFacts, &e.KeyFacts); err != nil {
				return nil, fmt.Errorf("failed to decode key facts of %q: %w", e.ID, err)
			}
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *Store) loadRelationships(ctx context.Context) ([]common.Relationship, error) {
	rows, err := s.conn.Query(ctx, selectRelationshipsSQL, s.name)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	relationships := []common.Relationship{}
	for rows.Next() {
		var r common.Relationship
		if err := rows.Scan(&r.Source, &r.Target, &r.Type, &r.Description, &r.Strength, &r.DateRange); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		relationships = append(relationships, r)
	}
	return relationships, rows.Err()
}

// Save replaces the stored dataset in a single transaction.
func (s *Store) Save(ctx context.Context, d *common.Dataset) error {
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upsertDatasetSQL, s.name, metadata); err != nil {
		return fmt.Errorf("failed to upsert dataset %q: %w", s.name, err)
	}
	if _, err := tx.Exec(ctx, deleteEntitiesSQL, s.name); err != nil {
		return fmt.Errorf("failed to clear entities: %w", err)
	}
	if _, err := tx.Exec(ctx, deleteRelationshipsSQL, s.name); err != nil {
		return fmt.Errorf("failed to clear relationships: %w", err)
	}

	err = store.ChunkRange(len(d.Entities), s.chunkSize, func(start, end int) error {
		return s.insertEntities(ctx, tx, start, d.Entities[start:end])
	})
	if err != nil {
		return err
	}
	err = store.ChunkRange(len(d.Relationships), s.chunkSize, func(start, end int) error {
		return s.insertRelationships(ctx, tx, start, d.Relationships[start:end])
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Debug("[Store][pgx] Dataset saved", "dataset", s.name, "entities", len(d.Entities), "relationships", len(d.Relationships))
	return nil
}

func (s *Store) insertEntities(ctx context.Context, tx pgxv5.Tx, offset int, entities []common.Entity) error {
	n := len(entities)
	positions := make([]int32, 0, n)
	ids := make([]string, 0, n)
	names := make([]string, 0, n)
	types := make([]string, 0, n)
	titles := make([]string, 0, n)
	counts := make([]int32, 0, n)
	facts := make([]string, 0, n)
	for i, e := range entities {
		kf := util.SanitizePostgresTexts(e.KeyFacts)
		if kf == nil {
			kf = []string{}
		}
		raw, err := json.Marshal(kf)
		if err != nil {
			return err
		}
		positions = append(positions, int32(offset+i))
		ids = append(ids, e.ID)
		names = append(names, util.SanitizePostgresText(e.Name))
		types = append(types, e.Type)
		titles = append(titles, util.SanitizePostgresText(e.Title))
		counts = append(counts, int32(e.ConnectionCount))
		facts = append(facts, string(raw))
	}
	if _, err := tx.Exec(ctx, insertEntitiesSQL, s.name, positions, ids, names, types, titles, counts, facts); err != nil {
		return fmt.Errorf("failed to insert entities: %w", err)
	}
	return nil
}

func (s *Store) insertRelationships(ctx context.Context, tx pgxv5.Tx, offset int, relationships []common.Relationship) error {
	n := len(relationships)
	positions := make([]int32, 0, n)
	sources := make([]string, 0, n)
	targets := make([]string, 0, n)
	types := make([]string, 0, n)
	descriptions := make([]string, 0, n)
	strengths := make([]float64, 0, n)
	dateRanges := make([]string, 0, n)
	for i, r := range relationships {
		positions = append(positions, int32(offset+i))
		sources = append(sources, r.Source)
		targets = append(targets, r.Target)
		types = append(types, r.Type)
		descriptions = append(descriptions, util.SanitizePostgresText(r.Description))
		strengths = append(strengths, r.Strength)
		dateRanges = append(dateRanges, util.SanitizePostgresText(r.DateRange))
	}
	if _, err := tx.Exec(ctx, insertRelationshipsSQL, s.name, positions, sources, targets, types, descriptions, strengths, dateRanges); err != nil {
		return fmt.Errorf("failed to insert relationships: %w", err)
	}
	return nil
}

const selectDatasetSQL = `SELECT metadata FROM datasets WHERE name = $1`

const selectEntitiesSQL = `
SELECT id, name, type, title, connection_count, key_facts
FROM entities
WHERE dataset = $1
ORDER BY position`

const selectRelationshipsSQL = `
SELECT source, target, type, description, strength, date_range
FROM relationships
WHERE dataset = $1
ORDER BY position`

const upsertDatasetSQL = `
INSERT INTO datasets (name, metadata, imported_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (name) DO UPDATE
SET metadata = EXCLUDED.metadata,
    imported_at = EXCLUDED.imported_at`

const deleteEntitiesSQL = `DELETE FROM entities WHERE dataset = $1`

const deleteRelationshipsSQL = `DELETE FROM relationships WHERE dataset = $1`

const insertEntitiesSQL = `
INSERT INTO entities (dataset, position, id, name, type, title, connection_count, key_facts)
SELECT $1, u.position, u.id, u.name, u.type, u.title, u.connection_count, u.key_facts::jsonb
FROM unnest($2::int[], $3::text[], $4::text[], $5::text[], $6::text[], $7::int[], $8::text[])
    AS u(position, id, name, type, title, connection_count, key_facts)`

const insertRelationshipsSQL = `
INSERT INTO relationships (dataset, position, source, target, type, description, strength, date_range)
SELECT $1, u.position, u.source, u.target, u.type, u.description, u.strength, u.date_range
FROM unnest($2::int[], $3::text[], $4::text[], $5::text[], $6::text[], $7::float8[], $8::text[])
    AS u(position, source, target, type, description, strength, date_range)`

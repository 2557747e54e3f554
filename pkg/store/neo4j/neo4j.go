// Package neo4j stores a dataset as a property graph: one :Entity node per
// entity and one :RELATES edge per relationship, scoped by dataset name.
package neo4j

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/knowledgebase/netgraph/pkg/common"
	"github.com/knowledgebase/netgraph/pkg/logger"
	"github.com/knowledgebase/netgraph/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const defaultChunkSize = 500

// Runner executes one Cypher statement and buffers its result.
type Runner interface {
	Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
}

// Executor runs statements through the official driver against one database.
type Executor struct {
	Driver neo4j.DriverWithContext
	DBName string
}

// NewExecutor creates a driver with basic auth. Callers own the driver and
// must Close it.
func NewExecutor(uri, username, password, dbName string) (*Executor, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	return &Executor{Driver: driver, DBName: dbName}, nil
}

func (e *Executor) Verify(ctx context.Context) error {
	return e.Driver.VerifyConnectivity(ctx)
}

func (e *Executor) Close(ctx context.Context) error {
	return e.Driver.Close(ctx)
}

func (e *Executor) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(
		ctx,
		e.Driver,
		query,
		params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(e.DBName),
	)
	if err != nil {
		return nil, fmt.Errorf("error executing neo4j query: %w", err)
	}
	return result, nil
}

// Store implements store.Source and store.Writer on a Runner.
type Store struct {
	runner    Runner
	name      string
	chunkSize int
}

func New(runner Runner, name string) *Store {
	return &Store{runner: runner, name: name, chunkSize: defaultChunkSize}
}

func (s *Store) Load(ctx context.Context) (*common.Dataset, error) {
	res, err := s.runner.Run(ctx, selectDatasetCypher, map[string]any{"name": s.name})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("%w: %q", store.ErrNoDataset, s.name)
	}

	d := &common.Dataset{Name: s.name}
	if raw, _ := stringValue(res.Records[0], "metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &d.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of %q: %w", s.name, err)
		}
	}

	res, err = s.runner.Run(ctx, selectEntitiesCypher, map[string]any{"name": s.name})
	if err != nil {
		return nil, err
	}
	d.Entities = make([]common.Entity, 0, len(res.Records))
	for _, rec := range res.Records {
		e, err := decodeEntity(rec)
		if err != nil {
			return nil, err
		}
		d.Entities = append(d.Entities, e)
	}

	res, err = s.runner.Run(ctx, selectRelationshipsCypher, map[string]any{"name": s.name})
	if err != nil {
		return nil, err
	}
	d.Relationships = make([]common.Relationship, 0, len(res.Records))
	for _, rec := range res.Records {
		r, err := decodeRelationship(rec)
		if err != nil {
			return nil, err
		}
		d.Relationships = append(d.Relationships, r)
	}

	return store.Prepare(d)
}

// Save replaces the dataset graph. Relationships whose endpoints are not
// entities of the dataset cannot be stored as edges and are skipped.
func (s *Store) Save(ctx context.Context, d *common.Dataset) error {
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return err
	}
	if _, err := s.runner.Run(ctx, mergeDatasetCypher, map[string]any{"name": s.name, "metadata": string(metadata)}); err != nil {
		return fmt.Errorf("failed to upsert dataset %q: %w", s.name, err)
	}
	if _, err := s.runner.Run(ctx, deleteEntitiesCypher, map[string]any{"name": s.name}); err != nil {
		return fmt.Errorf("failed to clear dataset %q: %w", s.name, err)
	}

	known := make(map[string]struct{}, len(d.Entities))
	entityRows := make([]any, 0, len(d.Entities))
	for i, e := range d.Entities {
		known[e.ID] = struct{}{}
		facts := make([]any, 0, len(e.KeyFacts))
		for _, f := range e.KeyFacts {
			facts = append(facts, f)
		}
		entityRows = append(entityRows, map[string]any{
			"position":        int64(i),
			"id":              e.ID,
			"name":            e.Name,
			"type":            e.Type,
			"title":           e.Title,
			"connectionCount": int64(e.ConnectionCount),
			"keyFacts":        facts,
		})
	}

	relRows := make([]any, 0, len(d.Relationships))
	skipped := 0
	for i, r := range d.Relationships {
		_, okS := known[r.Source]
		_, okT := known[r.Target]
		if !okS || !okT {
			skipped++
			continue
		}
		relRows = append(relRows, map[string]any{
			"position":    int64(i),
			"source":      r.Source,
			"target":      r.Target,
			"type":        r.Type,
			"description": r.Description,
			"strength":    r.Strength,
			"dateRange":   r.DateRange,
		})
	}
	if skipped > 0 {
		logger.Warn("[Store][neo4j] Skipping relationships with unknown endpoints", "dataset", s.name, "count", skipped)
	}

	if err := s.unwind(ctx, createEntitiesCypher, entityRows); err != nil {
		return fmt.Errorf("failed to create entities: %w", err)
	}
	if err := s.unwind(ctx, createRelationshipsCypher, relRows); err != nil {
		return fmt.Errorf("failed to create relationships: %w", err)
	}
	logger.Debug("[Store][neo4j] Dataset saved", "dataset", s.name, "entities", len(entityRows), "relationships", len(relRows))
	return nil
}

func (s *Store) unwind(ctx context.Context, query string, rows []any) error {
	return store.ChunkRange(len(rows), s.chunkSize, func(start, end int) error {
		_, err := s.runner.Run(ctx, query, map[string]any{"name": s.name, "rows": rows[start:end]})
		return err
	})
}

var errBadRecord = errors.New("unexpected record value")

func stringValue(rec *neo4j.Record, key string) (string, error) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T", errBadRecord, key, v)
	}
	return s, nil
}

func numberValue(rec *neo4j.Record, key string) (float64, error) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, fmt.Errorf("%w: %s is %T", errBadRecord, key, v)
}

func decodeEntity(rec *neo4j.Record) (common.Entity, error) {
	var (
		e    common.Entity
		errs []error
		err  error
	)
	e.ID, err = stringValue(rec, "id")
	errs = append(errs, err)
	e.Name, err = stringValue(rec, "name")
	errs = append(errs, err)
	e.Type, err = stringValue(rec, "type")
	errs = append(errs, err)
	e.Title, err = stringValue(rec, "title")
	errs = append(errs, err)
	count, err := numberValue(rec, "connectionCount")
	errs = append(errs, err)
	e.ConnectionCount = int(count)

	if v, ok := rec.Get("keyFacts"); ok && v != nil {
		list, ok := v.([]any)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: keyFacts is %T", errBadRecord, v))
		}
		for _, item := range list {
			if f, ok := item.(string); ok {
				e.KeyFacts = append(e.KeyFacts, f)
			}
		}
	}
	return e, errors.Join(errs...)
}

func decodeRelationship(rec *neo4j.Record) (common.Relationship, error) {
	var (
		r    common.Relationship
		errs []error
		err  error
	)
	r.Source, err = stringValue(rec, "source")
	errs = append(errs, err)
	r.Target, err = stringValue(rec, "target")
	errs = append(errs, err)
	r.Type, err = stringValue(rec, "type")
	errs = append(errs, err)
	r.Description, err = stringValue(rec, "description")
	errs = append(errs, err)
	r.Strength, err = numberValue(rec, "strength")
	errs = append(errs, err)
	r.DateRange, err = stringValue(rec, "dateRange")
	errs = append(errs, err)
	return r, errors.Join(errs...)
}

const selectDatasetCypher = `MATCH (d:Dataset {name: $name}) RETURN d.metadata AS metadata`

const selectEntitiesCypher = `
MATCH (e:Entity {dataset: $name})
RETURN e.id AS id, e.name AS name, e.type AS type, e.title AS title,
       e.connectionCount AS connectionCount, e.keyFacts AS keyFacts
ORDER BY e.position`

const selectRelationshipsCypher = `
MATCH (s:Entity {dataset: $name})-[r:RELATES]->(t:Entity {dataset: $name})
RETURN s.id AS source, t.id AS target, r.type AS type, r.description AS description,
       r.strength AS strength, r.dateRange AS dateRange
ORDER BY r.position`

const mergeDatasetCypher = `
MERGE (d:Dataset {name: $name})
SET d.metadata = $metadata, d.importedAt = datetime()`

const deleteEntitiesCypher = `MATCH (e:Entity {dataset: $name}) DETACH DELETE e`

const createEntitiesCypher = `
UNWIND $rows AS row
CREATE (e:Entity {dataset: $name})
SET e += row`

const createRelationshipsCypher = `
UNWIND $rows AS row
MATCH (s:Entity {dataset: $name, id: row.source})
MATCH (t:Entity {dataset: $name, id: row.target})
CREATE (s)-[r:RELATES]->(t)
SET r.position = row.position, r.type = row.type, r.description = row.description,
    r.strength = row.strength, r.dateRange = row.dateRange`

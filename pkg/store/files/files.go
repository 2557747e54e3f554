package files

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/knowledgebase/netgraph/pkg/common"
	"github.com/knowledgebase/netgraph/pkg/loader"
	"github.com/knowledgebase/netgraph/pkg/logger"
	"github.com/knowledgebase/netgraph/pkg/store"

	"github.com/kaptinlin/jsonrepair"
	"golang.org/x/sync/errgroup"
)

const (
	EntitiesFile      = "entities.json"
	RelationshipsFile = "relationships.json"
	MetadataFile      = "metadata.json"
)

// Store reads and writes the three dataset files below a prefix of a
// FileLoader. The same type serves a local directory and an S3 bucket.
type Store struct {
	name   string
	prefix string
	files  loader.FileLoader
}

func New(name, prefix string, files loader.FileLoader) *Store {
	return &Store{name: name, prefix: prefix, files: files}
}

// Load reads entities, relationships and metadata concurrently. A missing
// metadata file is not an error; statistics are computed from the records
// instead.
func (s *Store) Load(ctx context.Context) (*common.Dataset, error) {
	d := &common.Dataset{Name: s.name}
	var metadataFound bool

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.read(gCtx, EntitiesFile, &d.Entities)
	})
	g.Go(func() error {
		return s.read(gCtx, RelationshipsFile, &d.Relationships)
	})
	g.Go(func() error {
		err := s.read(gCtx, MetadataFile, &d.Metadata)
		if errors.Is(err, loader.ErrNotFound) {
			logger.Debug("[Store] No metadata file, computing statistics", "dataset", s.name)
			return nil
		}
		metadataFound = err == nil
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if d.Entities == nil {
		d.Entities = []common.Entity{}
	}
	if d.Relationships == nil {
		d.Relationships = []common.Relationship{}
	}
	if !metadataFound {
		d.Metadata = store.ComputeMetadata(d.Entities, d.Relationships)
	}
	return store.Prepare(d)
}

func (s *Store) read(ctx context.Context, file string, out any) error {
	key := loader.Join(s.prefix, file)
	data, err := s.files.ReadFile(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := Decode(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// Invalidate drops cached file contents when the loader caches.
func (s *Store) Invalidate() {
	if inv, ok := s.files.(loader.Invalidator); ok {
		inv.Invalidate()
	}
}

// Save writes all three files. The loader must implement loader.FileWriter.
func (s *Store) Save(ctx context.Context, d *common.Dataset) error {
	if err := s.write(ctx, EntitiesFile, d.Entities); err != nil {
		return err
	}
	if err := s.write(ctx, RelationshipsFile, d.Relationships); err != nil {
		return err
	}
	return s.SaveMetadata(ctx, d.Metadata)
}

// SaveMetadata rewrites only metadata.json.
func (s *Store) SaveMetadata(ctx context.Context, m common.Metadata) error {
	return s.write(ctx, MetadataFile, m)
}

func (s *Store) write(ctx context.Context, file string, v any) error {
	w, ok := s.files.(loader.FileWriter)
	if !ok {
		return fmt.Errorf("loader for %q is read-only", s.prefix)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	key := loader.Join(s.prefix, file)
	if err := w.WriteFile(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Decode unmarshals JSON data files. Hand-edited files with trailing commas,
// comments or unquoted keys are repaired before a second attempt.
func Decode(data []byte, out any) error {
	data = bytes.TrimSpace(data)
	if err := json.Unmarshal(data, out); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(string(data))
	if err != nil {
		return fmt.Errorf("json repair failed: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal failed after repair: %w", err)
	}
	return nil
}

// Package sqlite keeps the last good dataset in a local SQLite file so the
// server can start when its primary source is unreachable.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knowledgebase/netgraph/pkg/common"
	"github.com/knowledgebase/netgraph/pkg/store"

	_ "modernc.org/sqlite"
)

// Snapshot stores whole datasets as JSON documents keyed by name.
type Snapshot struct {
	conn *sql.DB
	name string
}

// Open opens or creates the snapshot database at path.
func Open(path, name string) (*Snapshot, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}

	return &Snapshot{conn: conn, name: name}, nil
}

func (s *Snapshot) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Snapshot) Save(ctx context.Context, d *common.Dataset) error {
	entities, err := json.Marshal(d.Entities)
	if err != nil {
		return err
	}
	relationships, err := json.Marshal(d.Relationships)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return err
	}

	_, err = s.conn.ExecContext(ctx, upsertSQL,
		s.name, string(entities), string(relationships), string(metadata),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write snapshot %q: %w", s.name, err)
	}
	return nil
}

func (s *Snapshot) Load(ctx context.Context) (*common.Dataset, error) {
	var entities, relationships, metadata, savedAt string
	err := s.conn.QueryRowContext(ctx, selectSQL, s.name).Scan(&entities, &relationships, &metadata, &savedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no snapshot of %q", store.ErrNoDataset, s.name)
		}
		return nil, fmt.Errorf("failed to read snapshot %q: %w", s.name, err)
	}

	d := &common.Dataset{Name: s.name}
	if err := json.Unmarshal([]byte(entities), &d.Entities); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot entities: %w", err)
	}
	if err := json.Unmarshal([]byte(relationships), &d.Relationships); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot relationships: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &d.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot metadata: %w", err)
	}
	return store.Prepare(d)
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	name TEXT PRIMARY KEY,
	entities TEXT NOT NULL,
	relationships TEXT NOT NULL,
	metadata TEXT NOT NULL,
	saved_at TEXT NOT NULL
);`

const upsertSQL = `
INSERT INTO snapshots (name, entities, relationships, metadata, saved_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	entities = excluded.entities,
	relationships = excluded.relationships,
	metadata = excluded.metadata,
	saved_at = excluded.saved_at`

const selectSQL = `SELECT entities, relationships, metadata, saved_at FROM snapshots WHERE name = ?`

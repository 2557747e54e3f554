// Package source builds the dataset source selected by DATA_SOURCE.
package source

import (
	"context"
	"fmt"

	"github.com/knowledgebase/netgraph/internal/storage"
	"github.com/knowledgebase/netgraph/internal/util"
	"github.com/knowledgebase/netgraph/pkg/logger"
	"github.com/knowledgebase/netgraph/pkg/store"
	"github.com/knowledgebase/netgraph/pkg/store/files"
	neostore "github.com/knowledgebase/netgraph/pkg/store/neo4j"
	pgstore "github.com/knowledgebase/netgraph/pkg/store/pgx"
	"github.com/knowledgebase/netgraph/pkg/store/sqlite"

	ioloader "github.com/knowledgebase/netgraph/pkg/loader/io"
	s3loader "github.com/knowledgebase/netgraph/pkg/loader/s3"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	KindFile     = "file"
	KindS3       = "s3"
	KindPostgres = "postgres"
	KindNeo4j    = "neo4j"
	KindSQLite   = "sqlite"
)

// Config selects and configures a dataset source.
type Config struct {
	Kind         string
	Dataset      string
	DataDir      string
	Prefix       string
	SQLitePath   string
	SnapshotPath string
}

// ConfigFromEnv reads DATA_SOURCE and the related variables.
func ConfigFromEnv() Config {
	dataset := util.GetEnvString("DATASET", "default")
	return Config{
		Kind:         util.GetEnvString("DATA_SOURCE", KindFile),
		Dataset:      dataset,
		DataDir:      util.GetEnvString("DATA_DIR", "./data"),
		Prefix:       util.GetEnvString("DATA_PREFIX", dataset),
		SQLitePath:   util.GetEnvString("SQLITE_PATH", "./data/netgraph.db"),
		SnapshotPath: util.GetEnv("SNAPSHOT_PATH"),
	}
}

// Deps carries shared clients. Pool is required for postgres.
type Deps struct {
	Pool *pgxpool.Pool
}

// Open returns the configured source and a function releasing what it
// opened. When SnapshotPath is set, the source is wrapped so that a failing
// primary falls back to the last good local snapshot.
func Open(ctx context.Context, cfg Config, deps Deps) (store.Source, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var src store.Source
	switch cfg.Kind {
	case KindFile:
		src = files.New(cfg.Dataset, "", ioloader.NewIOFileLoader(cfg.DataDir))
	case KindS3:
		client, err := storage.NewS3Client(ctx)
		if err != nil {
			return nil, cleanup, err
		}
		src = files.New(cfg.Dataset, cfg.Prefix, s3loader.NewS3FileLoaderWithClient(storage.Bucket(), client))
	case KindPostgres:
		if deps.Pool == nil {
			return nil, cleanup, fmt.Errorf("data source %q needs DATABASE_URL", cfg.Kind)
		}
		src = pgstore.New(deps.Pool, cfg.Dataset)
	case KindNeo4j:
		exec, err := neostore.NewExecutor(
			util.GetEnvString("NEO4J_URI", "neo4j://localhost:7687"),
			util.GetEnvString("NEO4J_USER", "neo4j"),
			util.GetEnv("NEO4J_PASSWORD"),
			util.GetEnvString("NEO4J_DATABASE", "neo4j"),
		)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { _ = exec.Close(context.Background()) })
		if err := exec.Verify(ctx); err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("neo4j unreachable: %w", err)
		}
		src = neostore.New(exec, cfg.Dataset)
	case KindSQLite:
		snap, err := sqlite.Open(cfg.SQLitePath, cfg.Dataset)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { _ = snap.Close() })
		src = snap
	default:
		return nil, cleanup, fmt.Errorf("unknown data source %q", cfg.Kind)
	}

	if cfg.SnapshotPath != "" && cfg.Kind != KindSQLite {
		snap, err := sqlite.Open(cfg.SnapshotPath, cfg.Dataset)
		if err != nil {
			logger.Warn("[Source] Snapshot cache unavailable", "path", cfg.SnapshotPath, "err", err)
		} else {
			closers = append(closers, func() { _ = snap.Close() })
			src = store.NewFallback(src, snap)
		}
	}

	logger.Info("[Source] Dataset source ready", "kind", cfg.Kind, "dataset", cfg.Dataset)
	return src, cleanup, nil
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/knowledgebase/netgraph/pkg/leaselock"
	"github.com/knowledgebase/netgraph/pkg/loader"
	"github.com/knowledgebase/netgraph/pkg/logger"
	"github.com/knowledgebase/netgraph/pkg/store"
	"github.com/knowledgebase/netgraph/pkg/store/files"

	"github.com/go-playground/validator"
)

// QueueImportMsg asks the worker to import the data files below Prefix as
// dataset Dataset.
type QueueImportMsg struct {
	CorrelationID string `json:"correlation_id" validate:"required"`
	Dataset       string `json:"dataset" validate:"required"`
	Prefix        string `json:"prefix"`
}

// DatasetImportedMsg is published on TopicDatasetImported after a
// successful import.
type DatasetImportedMsg struct {
	CorrelationID string `json:"correlation_id"`
	Dataset       string `json:"dataset"`
	Entities      int    `json:"entities"`
	Relationships int    `json:"relationships"`
}

// Locker serializes imports of the same dataset across workers.
type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// Importer holds what an import job needs. Files reads and writes the data
// files, Writer returns the database store for a dataset name and Publish
// sends topic notifications.
type Importer struct {
	Files   loader.FileLoader
	Writer  func(dataset string) store.Writer
	Locks   Locker
	Publish func(topic string, data []byte) error
}

var msgValidator = validator.New()

// ProcessImport loads the dataset files, validates them, writes recomputed
// statistics back to metadata.json, replaces the stored dataset and
// announces the new version.
func (im *Importer) ProcessImport(ctx context.Context, body []byte) error {
	var msg QueueImportMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to decode import message: %w", err)
	}
	if err := msgValidator.Struct(msg); err != nil {
		return fmt.Errorf("invalid import message: %w", err)
	}

	logger.Info("[Queue] Importing dataset", "dataset", msg.Dataset, "prefix", msg.Prefix, "correlation_id", msg.CorrelationID)

	opts := leaselock.Options{TTL: 2 * time.Minute, Wait: true, Owner: msg.CorrelationID + ":"}
	var imported DatasetImportedMsg
	err := im.Locks.WithLease(ctx, leaselock.ImportKey(msg.Dataset), opts, func(ctx context.Context) error {
		if inv, ok := im.Files.(loader.Invalidator); ok {
			inv.Invalidate()
		}
		src := files.New(msg.Dataset, msg.Prefix, im.Files)
		d, err := src.Load(ctx)
		if err != nil {
			return err
		}

		d.Metadata = store.ComputeMetadata(d.Entities, d.Relationships)
		if err := src.SaveMetadata(ctx, d.Metadata); err != nil {
			return err
		}
		if err := im.Writer(msg.Dataset).Save(ctx, d); err != nil {
			return err
		}

		imported = DatasetImportedMsg{
			CorrelationID: msg.CorrelationID,
			Dataset:       msg.Dataset,
			Entities:      len(d.Entities),
			Relationships: len(d.Relationships),
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("import of %q failed: %w", msg.Dataset, err)
	}

	data, err := json.Marshal(imported)
	if err != nil {
		return err
	}
	if err := im.Publish(TopicDatasetImported, data); err != nil {
		return fmt.Errorf("failed to announce import of %q: %w", msg.Dataset, err)
	}
	logger.Info("[Queue] Dataset imported", "dataset", msg.Dataset, "entities", imported.Entities, "relationships", imported.Relationships)
	return nil
}

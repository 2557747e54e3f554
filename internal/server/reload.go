package server

import (
	"context"
	"encoding/json"

	"github.com/knowledgebase/netgraph/internal/queue"
	"github.com/knowledgebase/netgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

type reloader interface {
	Reload(ctx context.Context) error
}

// ReloadOnImport reloads the dataset whenever an import of dataset is
// announced. Live sessions keep the snapshot they started with.
func ReloadOnImport(ctx context.Context, deliveries <-chan amqp091.Delivery, dataset string, r reloader) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				logger.Warn("[Server] Import notifications closed")
				return
			}
			var msg queue.DatasetImportedMsg
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				logger.Warn("[Server] Ignoring malformed import notification", "err", err)
				continue
			}
			if msg.Dataset != dataset {
				continue
			}
			if err := r.Reload(ctx); err != nil {
				logger.Error("[Server] Failed to reload dataset", "dataset", dataset, "err", err)
				continue
			}
			logger.Info("[Server] Dataset reloaded after import", "dataset", dataset, "correlation_id", msg.CorrelationID)
		}
	}
}

package routes

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/knowledgebase/netgraph/internal/queue"
	"github.com/knowledgebase/netgraph/internal/storage"
	"github.com/knowledgebase/netgraph/pkg/logger"
	"github.com/knowledgebase/netgraph/pkg/store/files"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// PostImportHandler queues an import of the data files below prefix.
func PostImportHandler(c echo.Context) error {
	type importData struct {
		Dataset string `json:"dataset" validate:"required,max=100"`
		Prefix  string `json:"prefix" validate:"max=500"`
	}

	type importResponse struct {
		CorrelationID string `json:"correlation_id"`
	}

	data := new(importData)
	if err := c.Bind(data); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}

	a := app(c)
	if a.Enqueue == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "Import queue not configured")
	}

	ctx := c.Request().Context()
	if a.S3 != nil {
		missing, err := storage.MissingFiles(ctx, a.S3, a.Bucket, data.Prefix, files.EntitiesFile, files.RelationshipsFile)
		if err != nil {
			logger.Error("[Server] Failed to list import files", "prefix", data.Prefix, "err", err)
			return errorJSON(c, http.StatusBadGateway, "Could not reach object storage")
		}
		if len(missing) > 0 {
			return errorJSON(c, http.StatusBadRequest, "Missing files: "+strings.Join(missing, ", "))
		}
	}

	correlationID, err := gonanoid.New()
	if err != nil {
		return fail(c, err)
	}
	msg, err := json.Marshal(queue.QueueImportMsg{
		CorrelationID: correlationID,
		Dataset:       data.Dataset,
		Prefix:        data.Prefix,
	})
	if err != nil {
		return fail(c, err)
	}
	if err := a.Enqueue(queue.ImportQueue, msg); err != nil {
		logger.Error("[Server] Failed to enqueue import", "dataset", data.Dataset, "err", err)
		return errorJSON(c, http.StatusBadGateway, "Could not enqueue import")
	}

	logger.Info("[Server] Import queued", "dataset", data.Dataset, "correlation_id", correlationID)
	return c.JSON(http.StatusAccepted, importResponse{CorrelationID: correlationID})
}

package routes

import (
	"net/http"

	"github.com/knowledgebase/netgraph/pkg/common"
	"github.com/knowledgebase/netgraph/pkg/store"

	"github.com/invopop/jsonschema"
	"github.com/labstack/echo/v4"
)

func currentDataset(c echo.Context) (*common.Dataset, error) {
	d := app(c).Data.Current()
	if d == nil {
		return nil, errorJSON(c, http.StatusServiceUnavailable, "No dataset loaded")
	}
	return d, nil
}

func GetMetadataHandler(c echo.Context) error {
	type metadataResponse struct {
		Dataset  string          `json:"dataset"`
		Metadata common.Metadata `json:"metadata"`
		Banner   []string        `json:"banner"`
	}

	d, err := currentDataset(c)
	if d == nil {
		return err
	}
	return c.JSON(http.StatusOK, metadataResponse{
		Dataset:  d.Name,
		Metadata: d.Metadata,
		Banner:   store.Banner(d.Metadata),
	})
}

func GetEntitiesHandler(c echo.Context) error {
	d, err := currentDataset(c)
	if d == nil {
		return err
	}
	return c.JSON(http.StatusOK, d.Entities)
}

func GetRelationshipsHandler(c echo.Context) error {
	d, err := currentDataset(c)
	if d == nil {
		return err
	}
	return c.JSON(http.StatusOK, d.Relationships)
}

var schemaTypes = map[string]any{
	"entities":      []common.Entity{},
	"relationships": []common.Relationship{},
	"metadata":      common.Metadata{},
}

// GetSchemaHandler describes the expected shape of each data file.
func GetSchemaHandler(c echo.Context) error {
	v, ok := schemaTypes[c.Param("kind")]
	if !ok {
		return errorJSON(c, http.StatusNotFound, "Unknown schema")
	}
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	return c.JSON(http.StatusOK, reflector.Reflect(v))
}

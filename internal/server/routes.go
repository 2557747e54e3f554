package server

import (
	"github.com/knowledgebase/netgraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Dataset routes
	apiRoutes.GET("/metadata", routes.GetMetadataHandler)
	apiRoutes.GET("/schema/:kind", routes.GetSchemaHandler)
	apiRoutes.GET("/entities", routes.GetEntitiesHandler)
	apiRoutes.GET("/relationships", routes.GetRelationshipsHandler)
	apiRoutes.POST("/imports", routes.PostImportHandler)

	// Session routes
	apiRoutes.POST("/sessions", routes.CreateSessionHandler)
	apiRoutes.DELETE("/sessions/:id", routes.DeleteSessionHandler)
	apiRoutes.GET("/sessions/:id/scene", routes.GetSceneHandler)
	apiRoutes.GET("/sessions/:id/scene.svg", routes.GetSceneSVGHandler)
	apiRoutes.GET("/sessions/:id/stream", routes.StreamSceneHandler)

	// Control bar routes
	apiRoutes.GET("/sessions/:id/controls", routes.GetControlsHandler)
	apiRoutes.PUT("/sessions/:id/search", routes.PutSearchHandler)
	apiRoutes.POST("/sessions/:id/entity-types/:type", routes.ToggleEntityTypeHandler)
	apiRoutes.POST("/sessions/:id/relationship-types/:type", routes.ToggleRelationshipTypeHandler)
	apiRoutes.PUT("/sessions/:id/layout", routes.PutLayoutHandler)
	apiRoutes.POST("/sessions/:id/zoom", routes.PostZoomHandler)

	// Interaction routes
	apiRoutes.POST("/sessions/:id/pointer", routes.PostPointerHandler)
	apiRoutes.PUT("/sessions/:id/selection", routes.PutSelectionHandler)
	apiRoutes.DELETE("/sessions/:id/selection", routes.DeleteSelectionHandler)
	apiRoutes.GET("/sessions/:id/details", routes.GetDetailsHandler)
}

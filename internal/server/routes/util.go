package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/knowledgebase/netgraph/internal/server/middleware"
	"github.com/knowledgebase/netgraph/pkg/graph/controls"
	"github.com/knowledgebase/netgraph/pkg/logger"
	"github.com/knowledgebase/netgraph/pkg/viewer"

	"github.com/labstack/echo/v4"
)

func app(c echo.Context) *middleware.App {
	return c.(*middleware.AppContext).App
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, viewer.ErrSessionNotFound),
		errors.Is(err, viewer.ErrSessionClosed),
		errors.Is(err, viewer.ErrNoSelection),
		errors.Is(err, viewer.ErrNotVisible):
		return http.StatusNotFound
	case errors.Is(err, controls.ErrUnknownLayout),
		errors.Is(err, controls.ErrUnknownZoom),
		errors.Is(err, controls.ErrEmptyType),
		errors.Is(err, viewer.ErrUnknownEvent):
		return http.StatusBadRequest
	case errors.Is(err, viewer.ErrNoDataset):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c echo.Context, err error) error {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Error("[Server] Request failed", "path", c.Path(), "err", err)
		return errorJSON(c, status, "Internal server error")
	}
	return errorJSON(c, status, err.Error())
}

// session resolves the :id path parameter.
func session(c echo.Context) (*viewer.Session, error) {
	return app(c).Sessions.Get(c.Param("id"))
}

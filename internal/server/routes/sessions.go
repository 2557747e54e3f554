package routes

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/knowledgebase/netgraph/pkg/graph/canvas"
	"github.com/knowledgebase/netgraph/pkg/graph/controls"
	"github.com/knowledgebase/netgraph/pkg/graph/render"
	"github.com/knowledgebase/netgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

func CreateSessionHandler(c echo.Context) error {
	type createSessionData struct {
		Width  float64 `json:"width" validate:"gte=0,lte=10000"`
		Height float64 `json:"height" validate:"gte=0,lte=10000"`
	}

	type createSessionResponse struct {
		ID       string            `json:"id"`
		Controls controls.Snapshot `json:"controls"`
		Scene    canvas.Scene      `json:"scene"`
	}

	data := new(createSessionData)
	if err := c.Bind(data); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}

	s, err := app(c).Sessions.Create(data.Width, data.Height)
	if err != nil {
		return fail(c, err)
	}

	ctx := c.Request().Context()
	snap, err := s.Controls(ctx)
	if err != nil {
		return fail(c, err)
	}
	scene, err := s.Scene(ctx)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusCreated, createSessionResponse{
		ID:       s.ID(),
		Controls: snap,
		Scene:    scene,
	})
}

func DeleteSessionHandler(c echo.Context) error {
	if err := app(c).Sessions.Close(c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func GetSceneHandler(c echo.Context) error {
	s, err := session(c)
	if err != nil {
		return fail(c, err)
	}
	scene, err := s.Scene(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, scene)
}

func GetSceneSVGHandler(c echo.Context) error {
	s, err := session(c)
	if err != nil {
		return fail(c, err)
	}
	scene, err := s.Scene(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentType, "image/svg+xml")
	c.Response().WriteHeader(http.StatusOK)
	return render.SVG(c.Response(), scene)
}

// StreamSceneHandler sends every published frame as a server-sent event
// until the client disconnects or the session closes.
func StreamSceneHandler(c echo.Context) error {
	s, err := session(c)
	if err != nil {
		return fail(c, err)
	}

	frames, cancel := s.Subscribe()
	defer cancel()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				fmt.Fprint(res, "event: close\ndata: {}\n\n")
				res.Flush()
				return nil
			}
			data, err := json.Marshal(f)
			if err != nil {
				logger.Error("[Server] Failed to encode frame", "session_id", s.ID(), "err", err)
				return nil
			}
			if _, err := fmt.Fprintf(res, "id: %d\nevent: frame\ndata: %s\n\n", f.Seq, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

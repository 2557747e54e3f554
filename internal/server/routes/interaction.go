package routes

import (
	"net/http"

	"github.com/knowledgebase/netgraph/pkg/viewer"

	"github.com/labstack/echo/v4"
)

func PostPointerHandler(c echo.Context) error {
	ev := new(viewer.PointerEvent)
	if err := c.Bind(ev); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(ev); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid pointer event")
	}

	s, err := session(c)
	if err != nil {
		return fail(c, err)
	}
	res, err := s.Pointer(c.Request().Context(), *ev)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func PutSelectionHandler(c echo.Context) error {
	type selectionData struct {
		ID string `json:"id" validate:"required"`
	}

	data := new(selectionData)
	if err := c.Bind(data); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}

	s, err := session(c)
	if err != nil {
		return fail(c, err)
	}
	d, err := s.Select(c.Request().Context(), data.ID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func DeleteSelectionHandler(c echo.Context) error {
	s, err := session(c)
	if err != nil {
		return fail(c, err)
	}
	if err := s.ClearSelection(c.Request().Context()); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func GetDetailsHandler(c echo.Context) error {
	s, err := session(c)
	if err != nil {
		return fail(c, err)
	}
	d, err := s.Details(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func GetControlsHandler(c echo.Context) error {
	s, err := session(c)
	if err != nil {
		return fail(c, err)
	}
	snap, err := s.Controls(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

func PutSearchHandler(c echo.Context) error {
	type searchData struct {
		Term string `json:"term" validate:"max=200"`
	}

	data := new(searchData)
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
	snap, err := s.SetSearch(c.Request().Context(), data.Term)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

func ToggleEntityTypeHandler(c echo.Context) error {
	s, err := session(c)
	if err != nil {
		return fail(c, err)
	}
	snap, err := s.ToggleEntityType(c.Request().Context(), c.Param("type"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

func ToggleRelationshipTypeHandler(c echo.Context) error {
	s, err := session(c)
	if err != nil {
		return fail(c, err)
	}
	snap, err := s.ToggleRelationshipType(c.Request().Context(), c.Param("type"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

func PutLayoutHandler(c echo.Context) error {
	type layoutData struct {
		Mode string `json:"mode" validate:"required"`
	}

	data := new(layoutData)
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
	snap, err := s.SetLayout(c.Request().Context(), data.Mode)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

func PostZoomHandler(c echo.Context) error {
	type zoomData struct {
		Direction string `json:"direction" validate:"required"`
	}

	data := new(zoomData)
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
	t, err := s.Zoom(c.Request().Context(), data.Direction)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

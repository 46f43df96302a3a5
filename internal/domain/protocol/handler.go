package protocol

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/oncoclinic/infusion/internal/platform/validation"
	"github.com/oncoclinic/infusion/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/protocols", h.ListProtocols)
	api.GET("/protocols/:id", h.GetProtocol)
	api.GET("/protocols/:id/template", h.GetTemplateForCycle)
	api.POST("/protocols", h.CreateProtocol)
	api.POST("/protocols/validate", h.ValidateProtocol)
	api.PUT("/protocols/:id", h.UpdateProtocol)
	api.POST("/protocols/:id/deactivate", h.DeactivateProtocol)
	api.DELETE("/protocols/:id", h.DeleteProtocol)
}

func writeError(c echo.Context, err error) error {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"message": "invalid protocol", "errors": verrs})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) CreateProtocol(c echo.Context) error {
	var p Protocol
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateProtocol(c.Request().Context(), &p); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// ValidateProtocol runs the checks without saving, for the authoring form.
func (h *Handler) ValidateProtocol(c echo.Context) error {
	var p Protocol
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	errs := h.svc.Validate(&p)
	if errs == nil {
		errs = validation.Errors{}
	}
	return c.JSON(http.StatusOK, map[string]any{"valid": len(errs) == 0, "errors": errs, "bucket": p.Bucket()})
}

func (h *Handler) GetProtocol(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetProtocol(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "protocol not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetTemplateForCycle(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cycle, err := strconv.Atoi(c.QueryParam("cycle"))
	if err != nil || cycle < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "cycle must be a positive integer")
	}
	tpl, err := h.svc.TemplateForCycle(c.Request().Context(), id, cycle)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, tpl)
}

func (h *Handler) ListProtocols(c echo.Context) error {
	pg := pagination.FromContext(c)
	activeOnly := c.QueryParam("active") != "false"
	items, total, err := h.svc.ListProtocols(c.Request().Context(), activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateProtocol(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var p Protocol
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	if err := h.svc.UpdateProtocol(c.Request().Context(), &p); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeactivateProtocol(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeactivateProtocol(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteProtocol(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteProtocol(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

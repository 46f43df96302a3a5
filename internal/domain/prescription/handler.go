package prescription

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/oncoclinic/infusion/internal/domain/protocol"
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
	api.POST("/prescriptions", h.CreatePrescription)
	api.POST("/prescriptions/validate", h.ValidatePrescription)
	api.POST("/prescriptions/recalculate", h.RecalculatePrescription)
	api.GET("/prescriptions/:id", h.GetPrescription)
	api.GET("/prescriptions/:id/infusion-profile", h.GetInfusionProfile)
	api.PATCH("/prescriptions/:id/status", h.ChangeStatus)
	api.POST("/prescriptions/:id/substitute", h.Substitute)
	api.GET("/patients/:id/prescriptions", h.ListByPatient)
	api.POST("/patients/:id/prescriptions/repeat-last", h.RepeatLast)
}

func writeError(c echo.Context, err error) error {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"message": "invalid prescription", "errors": verrs})
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoPrior), errors.Is(err, protocol.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrReasonRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotSubstitutable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func bindPrescription(c echo.Context) (Prescription, error) {
	var p Prescription
	if err := c.Bind(&p); err != nil {
		return p, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return p, nil
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	p, err := bindPrescription(c)
	if err != nil {
		return err
	}
	if err := h.svc.CreatePrescription(c.Request().Context(), &p); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// ValidatePrescription backs live form validation: it always answers 200
// with the recalculated draft and its findings.
func (h *Handler) ValidatePrescription(c echo.Context) error {
	p, err := bindPrescription(c)
	if err != nil {
		return err
	}
	calc, errs := h.svc.Validate(p)
	if errs == nil {
		errs = validation.Errors{}
	}
	return c.JSON(http.StatusOK, map[string]any{"valid": len(errs) == 0, "errors": errs, "prescription": calc})
}

func (h *Handler) RecalculatePrescription(c echo.Context) error {
	p, err := bindPrescription(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.svc.Recalculate(p))
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPrescription(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetInfusionProfile(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	prof, err := h.svc.InfusionProfile(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, prof)
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.ChangeStatus(c.Request().Context(), id, req.Status, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

type substituteRequest struct {
	Reason       string       `json:"reason"`
	Prescription Prescription `json:"prescription"`
}

func (h *Handler) Substitute(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req substituteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Substitute(c.Request().Context(), id, &req.Prescription, req.Reason); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, req.Prescription)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// RepeatLast answers 200 for every merge outcome; the client reads the
// outcome and decides.
func (h *Handler) RepeatLast(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	decision, err := h.svc.RepeatLast(c.Request().Context(), patientID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, decision)
}

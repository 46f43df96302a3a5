package appointment

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/oncoclinic/infusion/internal/domain/prescription"
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
	api.POST("/appointments", h.Book)
	api.GET("/appointments", h.ListByDate)
	api.GET("/appointments/:id", h.GetAppointment)
	api.GET("/appointments/:id/status-options", h.StatusOptions)
	api.PATCH("/appointments/:id/status", h.ChangeStatus)
	api.PATCH("/appointments/:id/checkin", h.SetCheckin)
	api.POST("/appointments/:id/reschedule", h.Reschedule)
	api.PATCH("/appointments/:id/pharmacy", h.SetPharmacyStatus)
	api.PATCH("/appointments/:id/pharmacy/expected-time", h.SetPharmacyExpectedTime)
	api.PUT("/appointments/:id/pharmacy/checklist", h.SetPreparedItems)
	api.POST("/appointments/batch/status", h.BatchStatus)
	api.POST("/appointments/batch/reschedule", h.BatchReschedule)
	api.POST("/appointments/batch/pharmacy", h.BatchPharmacyStatus)
	api.GET("/patients/:id/appointments", h.ListByPatient)

	api.GET("/agenda/availability", h.Availability)
	api.GET("/agenda/calendar", h.Calendar)
	api.GET("/agenda/capacity", h.Capacity)
}

func writeError(c echo.Context, err error) error {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"message": "invalid request", "errors": verrs})
	}
	if ce, ok := IsCapacityError(err); ok {
		code := http.StatusConflict
		if errors.Is(ce, ErrDayBlocked) {
			code = http.StatusUnprocessableEntity
		}
		return c.JSON(code, map[string]any{"message": ce.Error(), "capacity": ce.Result})
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, prescription.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidPharmacy), errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrRescheduleRequired), errors.Is(err, ErrPrescriptionNeeded), errors.Is(err, ErrNotInfusion):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrStatusNotAllowed), errors.Is(err, ErrCheckinRequired), errors.Is(err, ErrCheckinLocked),
		errors.Is(err, ErrAlreadyRescheduled), errors.Is(err, ErrPharmacyLocked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrDayBlocked):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func paramID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func queryPrescription(c echo.Context) (*uuid.UUID, error) {
	raw := c.QueryParam("prescription_id")
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid prescription_id")
	}
	return &id, nil
}

func (h *Handler) Book(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, res, err := h.svc.Book(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"appointment": a, "capacity": res})
}

func (h *Handler) ListByDate(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	items, err := h.svc.ListByDate(c.Request().Context(), date)
	if err != nil {
		return writeError(c, err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) StatusOptions(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"status": a.Status, "options": StatusOptions(a.Type, a.CheckedIn)})
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.ChangeStatus(c.Request().Context(), id, req.Status, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

type checkinRequest struct {
	CheckedIn bool `json:"checked_in"`
}

func (h *Handler) SetCheckin(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req checkinRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.SetCheckin(c.Request().Context(), id, req.CheckedIn)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Reschedule(c.Request().Context(), id, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

type batchRescheduleRequest struct {
	IDs []uuid.UUID `json:"ids"`
	RescheduleRequest
}

func (h *Handler) BatchReschedule(c echo.Context) error {
	var req batchRescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	items, err := h.svc.BatchReschedule(c.Request().Context(), req.IDs, req.RescheduleRequest)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) BatchStatus(c echo.Context) error {
	var req BatchStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return writeError(c, err)
	}
	items, err := h.svc.BatchStatus(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, map[string]any{"updated": items})
}

type pharmacyRequest struct {
	IDs             []uuid.UUID `json:"ids,omitempty"`
	Status          string      `json:"status"`
	ExpectedReadyAt string      `json:"expected_ready_at"`
	Items           []string    `json:"items"`
}

func (h *Handler) SetPharmacyStatus(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req pharmacyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.SetPharmacyStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) SetPharmacyExpectedTime(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req pharmacyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.SetPharmacyExpectedTime(c.Request().Context(), id, req.ExpectedReadyAt)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) SetPreparedItems(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req pharmacyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.SetPreparedItems(c.Request().Context(), id, req.Items)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) BatchPharmacyStatus(c echo.Context) error {
	var req pharmacyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.BatchPharmacyStatus(c.Request().Context(), req.IDs, req.Status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := paramID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Availability(c echo.Context) error {
	prescriptionID, err := queryPrescription(c)
	if err != nil {
		return err
	}
	av, err := h.svc.Availability(c.Request().Context(), c.QueryParam("date"), c.QueryParam("type"), prescriptionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, av)
}

func (h *Handler) Calendar(c echo.Context) error {
	prescriptionID, err := queryPrescription(c)
	if err != nil {
		return err
	}
	days, err := h.svc.Calendar(c.Request().Context(), c.QueryParam("month"), c.QueryParam("type"), prescriptionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, days)
}

func (h *Handler) Capacity(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.CapacityConfig())
}

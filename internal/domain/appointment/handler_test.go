package appointment

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/oncoclinic/infusion/internal/domain/capacity"
	"github.com/oncoclinic/infusion/internal/platform/validation"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	e := echo.New()
	e.Validator = validation.New()
	return NewHandler(f.svc), f, e
}

func jsonContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTP error, got %v", err)
	}
	return he.Code
}

func TestHandler_Book(t *testing.T) {
	h, f, e := newTestHandler()
	rx := f.prescribe(90)
	body := `{"patient_id":"` + uuid.New().String() + `","type":"infusion","date":"2026-03-03","start_time":"08:00",` +
		`"details":{"infusion":{"prescription_id":"` + rx.String() + `"}}}`
	c, rec := jsonContext(e, http.MethodPost, "/", body)

	if err := h.Book(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var got struct {
		Appointment Appointment     `json:"appointment"`
		Capacity    capacity.Result `json:"capacity"`
	}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Appointment.EndTime != "09:30" || got.Capacity.Limit != 8 {
		t.Errorf("unexpected response %+v", got)
	}
}

func TestHandler_Book_Full(t *testing.T) {
	h, f, e := newTestHandler()
	rx := f.prescribe(300)
	f.book(t, infusionRequest(rx, workday))

	body := `{"patient_id":"` + uuid.New().String() + `","type":"infusion","date":"2026-03-03","start_time":"08:00",` +
		`"details":{"infusion":{"prescription_id":"` + rx.String() + `"}}}`
	c, rec := jsonContext(e, http.MethodPost, "/", body)

	if err := h.Book(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var got struct {
		Capacity capacity.Result `json:"capacity"`
	}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if !got.Capacity.IsFull || got.Capacity.Booked != 1 {
		t.Errorf("expected full capacity in body, got %+v", got.Capacity)
	}
}

func TestHandler_Book_Closed(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"patient_id":"` + uuid.New().String() + `","type":"procedure","date":"2026-03-08","start_time":"08:00"}`
	c, rec := jsonContext(e, http.MethodPost, "/", body)

	if err := h.Book(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestHandler_ChangeStatus(t *testing.T) {
	h, f, e := newTestHandler()
	a := f.book(t, infusionRequest(f.prescribe(60), workday))

	c, rec := jsonContext(e, http.MethodPatch, "/", `{"status":"admitted"}`)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.ChangeStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, _ = jsonContext(e, http.MethodPatch, "/", `{"status":"in-infusion"}`)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if code := httpCode(t, h.ChangeStatus(c)); code != http.StatusConflict {
		t.Errorf("expected 409 before check-in, got %d", code)
	}

	c, _ = jsonContext(e, http.MethodPatch, "/", `{"status":"admitted"}`)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	if code := httpCode(t, h.ChangeStatus(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_StatusOptions(t *testing.T) {
	h, f, e := newTestHandler()
	a := f.book(t, infusionRequest(f.prescribe(60), workday))

	c, rec := jsonContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.StatusOptions(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got struct {
		Options []string `json:"options"`
	}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if len(got.Options) != len(infusionPreCheckin) {
		t.Errorf("expected pre check-in options, got %v", got.Options)
	}
}

func TestHandler_BatchStatus_Invalid(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := jsonContext(e, http.MethodPost, "/", `{"ids":[],"status":"admitted"}`)

	if err := h.BatchStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestHandler_Availability(t *testing.T) {
	h, _, e := newTestHandler()

	c, rec := jsonContext(e, http.MethodGet, "/?date=2026-03-03&type=consultation", "")
	if err := h.Availability(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Availability
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Limit != 2 || got.Remaining != 2 || got.DayBlocked {
		t.Errorf("unexpected availability %+v", got)
	}

	c, _ = jsonContext(e, http.MethodGet, "/?date=2026-03-03&type=infusion&prescription_id=nope", "")
	if code := httpCode(t, h.Availability(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_Calendar_UnknownPrescription(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := jsonContext(e, http.MethodGet, "/?month=2026-03&type=infusion&prescription_id="+uuid.New().String(), "")

	if code := httpCode(t, h.Calendar(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_Book_OutsideOpeningHours(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"patient_id":"` + uuid.New().String() + `","type":"procedure","date":"2026-03-03","start_time":"18:30"}`
	c, rec := jsonContext(e, http.MethodPost, "/", body)

	if err := h.Book(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"start_time"`) {
		t.Errorf("expected a start_time finding, got %s", rec.Body.String())
	}
	if len(f.repo.store) != 0 {
		t.Error("expected nothing booked")
	}
}

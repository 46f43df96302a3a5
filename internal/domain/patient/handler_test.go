package patient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(newTestService()), echo.New()
}

func TestHandler_CreatePatient(t *testing.T) {
	h, e := newTestHandler()
	body := `{"name":"Maria","record_number":"PR-9","birth_date":"1966-03-01T00:00:00Z","weight_kg":70}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_CreatePatient_Conflict(t *testing.T) {
	h, e := newTestHandler()
	h.svc.CreatePatient(context.Background(), &Patient{Name: "A", RecordNumber: "PR-9"})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"B","record_number":"PR-9"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.CreatePatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if err := h.GetPatient(c); err == nil {
		t.Error("expected error for not found")
	}
}

func TestHandler_GetBiometrics(t *testing.T) {
	h, e := newTestHandler()
	w, cr := 70.0, 1.0
	p := &Patient{Name: "A", RecordNumber: "PR-1", WeightKg: &w, Creatinine: &cr}
	h.svc.CreatePatient(context.Background(), p)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.GetBiometrics(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var bio map[string]any
	json.Unmarshal(rec.Body.Bytes(), &bio)
	if bio["weight_kg"] != 70.0 {
		t.Errorf("expected weight 70 in response, got %v", bio)
	}
}

func TestHandler_ListPatients_ByRecordNumber(t *testing.T) {
	h, e := newTestHandler()
	h.svc.CreatePatient(context.Background(), &Patient{Name: "A", RecordNumber: "PR-1"})
	h.svc.CreatePatient(context.Background(), &Patient{Name: "B", RecordNumber: "PR-2"})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?record_number=PR-2", nil), rec)
	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("expected 1 match, got %d", resp.Total)
	}
}

func TestHandler_DeletePatient_InvalidID(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")
	if err := h.DeletePatient(c); err == nil {
		t.Error("expected error for invalid id")
	}
}

package prescription

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

func jsonContext(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_CreatePrescription(t *testing.T) {
	h, e := newTestHandler()
	raw, _ := json.Marshal(samplePrescription())
	c, rec := jsonContext(e, http.MethodPost, string(raw))

	if err := h.CreatePrescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var got Prescription
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Patient.BSA == 0 || got.Status != StatusPending {
		t.Errorf("expected recalculated pending prescription, got %+v", got.Patient)
	}
}

func TestHandler_CreatePrescription_Unprocessable(t *testing.T) {
	h, e := newTestHandler()
	p := samplePrescription()
	p.Patient.Creatinine = 0
	p.Diagnosis = ""
	raw, _ := json.Marshal(p)
	c, rec := jsonContext(e, http.MethodPost, string(raw))

	if err := h.CreatePrescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body struct {
		Errors []struct {
			Path string `json:"path"`
			Rule string `json:"rule"`
		} `json:"errors"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	paths := map[string]bool{}
	for _, fe := range body.Errors {
		paths[fe.Path] = true
	}
	if !paths["diagnosis"] || !paths["patient.creatinine"] {
		t.Errorf("expected diagnosis and creatinine findings, got %+v", body.Errors)
	}
}

func TestHandler_ValidatePrescription(t *testing.T) {
	h, e := newTestHandler()
	p := samplePrescription()
	p.Patient.HeightCm = 0
	raw, _ := json.Marshal(p)
	c, rec := jsonContext(e, http.MethodPost, string(raw))

	if err := h.ValidatePrescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["valid"] != false {
		t.Errorf("expected invalid draft, got %v", body["valid"])
	}
}

func TestHandler_ChangeStatus_ReasonRequired(t *testing.T) {
	h, e := newTestHandler()
	p := samplePrescription()
	h.svc.CreatePrescription(context.Background(), &p)

	c, _ := jsonContext(e, http.MethodPatch, `{"status":"cancelled"}`)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	err := h.ChangeStatus(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_RepeatLast_NoPrior(t *testing.T) {
	h, e := newTestHandler()
	c, _ := jsonContext(e, http.MethodPost, "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.RepeatLast(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

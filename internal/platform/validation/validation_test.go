package validation

import (
	"errors"
	"testing"
)

type dose struct {
	Name string `json:"name" validate:"required"`
	Days []int  `json:"cycle_days" validate:"min=1,unique,dive,gte=1"`
}

type order struct {
	Patient string  `json:"patient_id" validate:"required"`
	Weight  float64 `json:"weight_kg" validate:"gt=0,lt=600"`
	Route   string  `json:"route" validate:"oneof=IV VO"`
	Doses   []dose  `json:"doses" validate:"dive"`
}

func pathSet(errs Errors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[e.Path] = e.Message
	}
	return out
}

func TestFields_UsesJSONPaths(t *testing.T) {
	v := New()
	errs := v.Fields(order{
		Weight: 700,
		Route:  "IM",
		Doses: []dose{
			{Name: "Cisplatin", Days: []int{1, 8}},
			{Days: []int{1, 1}},
		},
	})

	got := pathSet(errs)
	want := map[string]string{
		"patient_id":          "is required",
		"weight_kg":           "must be less than 600",
		"route":               "must be one of: IV, VO",
		"doses[1].name":       "is required",
		"doses[1].cycle_days": "must not contain duplicates",
	}
	for path, msg := range want {
		if got[path] != msg {
			t.Errorf("path %s: expected %q, got %q (all: %v)", path, msg, got[path], got)
		}
	}
}

func TestValidate_NilOnSuccess(t *testing.T) {
	v := New()
	err := v.Validate(order{Patient: "p1", Weight: 70, Route: "IV"})
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestValidate_ReturnsErrors(t *testing.T) {
	v := New()
	err := v.Validate(order{Route: "IV", Weight: 70})
	var errs Errors
	if !errors.As(err, &errs) || len(errs) != 1 {
		t.Fatalf("expected one field error, got %v", err)
	}
	if errs.Error() != "patient_id: is required" {
		t.Errorf("unexpected message %q", errs.Error())
	}
}

package patient

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestAgeAt(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		birth *time.Time
		want  int
	}{
		{"no birth date", nil, 0},
		{"birthday passed", date(1966, 3, 1), 60},
		{"birthday today", date(1966, 10, 16), 60},
		{"birthday tomorrow", date(1966, 10, 17), 59},
		{"future", date(2030, 1, 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Patient{BirthDate: tt.birth}
			if got := p.AgeAt(now); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestBiometrics(t *testing.T) {
	w, h, cr, sex := 70.0, 170.0, 0.9, "F"
	p := &Patient{BirthDate: date(1966, 3, 1), Sex: &sex, WeightKg: &w, HeightCm: &h, Creatinine: &cr}

	bio := p.Biometrics(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC))
	if bio.AgeYears != 60 || bio.WeightKg != 70 || bio.HeightCm != 170 || bio.Creatinine != 0.9 || bio.Sex != "F" {
		t.Errorf("unexpected biometrics %+v", bio)
	}

	empty := (&Patient{}).Biometrics(time.Now())
	if empty.WeightKg != 0 || empty.Sex != "" || empty.AgeYears != 0 {
		t.Errorf("expected zero biometrics, got %+v", empty)
	}
}

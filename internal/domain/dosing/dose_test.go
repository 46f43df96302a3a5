package dosing

import (
	"math"
	"testing"
)

func ptrFloat(f float64) *float64 { return &f }

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestBSA(t *testing.T) {
	tests := []struct {
		name   string
		weight float64
		height float64
		want   float64
	}{
		{"zero weight", 0, 170, 0},
		{"negative weight", -5, 170, 0},
		{"zero height", 70, 0, 0},
		{"reference adult", 70, 170, 1.81},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BSA(tt.weight, tt.height); got != tt.want {
				t.Errorf("BSA(%v, %v) = %v, want %v", tt.weight, tt.height, got, tt.want)
			}
		})
	}
}

func TestGFR_Male(t *testing.T) {
	got := GFR(70, 60, "M", 1.0, 0, 0)
	if !approx(got, 77.78, 0.01) {
		t.Errorf("expected ~77.78, got %v", got)
	}
}

func TestGFR_FemaleFactor(t *testing.T) {
	male := GFR(70, 60, "M", 1.0, 0.7, 125)
	for _, sex := range []string{"F", "f", "Feminino", "FEMININO"} {
		got := GFR(70, 60, sex, 1.0, 0.7, 125)
		if !approx(got, male*0.85, 1e-9) {
			t.Errorf("sex %q: expected %v, got %v", sex, male*0.85, got)
		}
	}
}

func TestGFR_MissingInputs(t *testing.T) {
	cases := []struct {
		name string
		got  float64
	}{
		{"weight", GFR(0, 60, "M", 1, 0, 0)},
		{"age", GFR(70, 0, "M", 1, 0, 0)},
		{"sex", GFR(70, 60, " ", 1, 0, 0)},
		{"creatinine", GFR(70, 60, "M", 0, 0, 0)},
	}
	for _, c := range cases {
		if c.got != 0 {
			t.Errorf("missing %s: expected 0, got %v", c.name, c.got)
		}
	}
}

func TestGFR_CreatinineFloor(t *testing.T) {
	low := GFR(70, 60, "M", 0.3, 0.7, 500)
	atFloor := GFR(70, 60, "M", 0.7, 0.7, 500)
	if low != atFloor {
		t.Errorf("creatinine below floor should be clamped: %v != %v", low, atFloor)
	}
}

func TestGFR_Ceiling(t *testing.T) {
	got := GFR(120, 20, "M", 0.5, 0.7, 125)
	if got != 125 {
		t.Errorf("expected capped 125, got %v", got)
	}
	got = GFR(120, 20, "M", 0.5, 0.7, 90)
	if got != 90 {
		t.Errorf("expected custom ceiling 90, got %v", got)
	}
}

func TestTheoreticalDose(t *testing.T) {
	p := Patient{WeightKg: 70, HeightCm: 170, AgeYears: 60, Sex: "M", Creatinine: 1.0}

	tests := []struct {
		name string
		rule Rule
		want float64
		tol  float64
	}{
		{"mg/m2 scales by BSA", Rule{ReferenceDose: 100, Unit: UnitMgM2}, 181, 1e-9},
		{"mg/kg scales by weight", Rule{ReferenceDose: 2, Unit: UnitMgKg}, 140, 1e-9},
		{"mcg/kg scales by weight", Rule{ReferenceDose: 5, Unit: UnitMcgKg}, 350, 1e-9},
		{"AUC uses GFR+25", Rule{ReferenceDose: 5, Unit: UnitAUC}, 5 * (77.7778 + 25), 0.01},
		{"fixed mg", Rule{ReferenceDose: 8, Unit: UnitMg}, 8, 0},
		{"fixed UI", Rule{ReferenceDose: 300, Unit: UnitUI}, 300, 0},
		{"fixed g", Rule{ReferenceDose: 1, Unit: UnitG}, 1, 0},
		{"unknown unit", Rule{ReferenceDose: 12, Unit: "ml"}, 12, 0},
		{"zero reference", Rule{ReferenceDose: 0, Unit: UnitMgM2}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TheoreticalDose(tt.rule, p)
			if !approx(got, tt.want, tt.tol) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTheoreticalDose_MissingBiometrics(t *testing.T) {
	if got := TheoreticalDose(Rule{ReferenceDose: 100, Unit: UnitMgM2}, Patient{}); got != 0 {
		t.Errorf("mg/m2 without biometrics: expected 0, got %v", got)
	}
	if got := TheoreticalDose(Rule{ReferenceDose: 5, Unit: UnitAUC}, Patient{}); got != 125 {
		t.Errorf("AUC without GFR inputs: expected 5*(0+25)=125, got %v", got)
	}
}

func TestFinalDose(t *testing.T) {
	if got := FinalDose(100, 120, ptrFloat(90)); got != 90 {
		t.Errorf("expected cap at 90, got %v", got)
	}
	if got := FinalDose(100, 80, ptrFloat(90)); got != 80 {
		t.Errorf("expected 80 under cap, got %v", got)
	}
	if got := FinalDose(0.5, 100, nil); got != 0.5 {
		t.Errorf("expected 0.5, got %v", got)
	}
	if got := FinalDose(0.12345, 100, nil); got != 0.123 {
		t.Errorf("expected 3 decimals 0.123, got %v", got)
	}
	if got := FinalDose(50.456, 100, nil); got != 50.46 {
		t.Errorf("expected 2 decimals 50.46, got %v", got)
	}
	if got := FinalDose(0, 100, nil); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
	if got := FinalDose(math.NaN(), 100, nil); got != 0 {
		t.Errorf("expected NaN to degrade to 0, got %v", got)
	}
}

func TestCompute_DefaultsAdjustment(t *testing.T) {
	d := Compute(Rule{ReferenceDose: 10, Unit: UnitMgKg}, Patient{WeightKg: 50})
	if d.Theoretical != 500 || d.Final != 500 {
		t.Errorf("expected 500/500, got %+v", d)
	}
}

func TestCompute_ExplicitZeroAdjustment(t *testing.T) {
	tests := []struct {
		name string
		adj  *float64
		want float64
	}{
		{"unset", nil, 100},
		{"zero", Percent(0), 0},
		{"reduced", Percent(80), 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Compute(Rule{ReferenceDose: 100, Unit: UnitMg, AdjustmentPercent: tt.adj}, Patient{})
			if d.Theoretical != 100 {
				t.Errorf("expected theoretical 100, got %v", d.Theoretical)
			}
			if d.Final != tt.want {
				t.Errorf("expected final %v, got %v", tt.want, d.Final)
			}
		})
	}
}

func TestRuleWithDefaults(t *testing.T) {
	r := Rule{ReferenceDose: 1, Unit: UnitMg}.WithDefaults()
	if r.CreatinineFloor != 0.7 || r.GFRCeiling != 125 || r.Adjustment() != 100 || r.AdjustmentPercent == nil {
		t.Errorf("unexpected defaults: %+v", r)
	}

	zero := Rule{ReferenceDose: 1, Unit: UnitMg, AdjustmentPercent: Percent(0)}.WithDefaults()
	if zero.Adjustment() != 0 {
		t.Errorf("expected explicit 0%% to be kept, got %v", zero.Adjustment())
	}
}

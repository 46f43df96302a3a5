// Package dosing computes body surface area, renal function and drug doses
// from a patient's biometrics and a dosing rule. Every function is pure and
// degrades to zero on missing or invalid input instead of returning an error.
package dosing

import (
	"encoding/json"
	"math"
	"strings"
)

// Unit is the unit a reference dose is expressed in.
type Unit string

const (
	UnitMg    Unit = "mg"
	UnitMgM2  Unit = "mg/m2"
	UnitMgKg  Unit = "mg/kg"
	UnitMcgKg Unit = "mcg/kg"
	UnitAUC   Unit = "AUC"
	UnitUI    Unit = "UI"
	UnitG     Unit = "g"
)

const (
	DefaultCreatinineFloor   = 0.7
	DefaultGFRCeiling        = 125.0
	DefaultAdjustmentPercent = 100.0

	femaleGFRFactor = 0.85
	aucGFROffset    = 25.0
)

var validUnits = map[Unit]bool{
	UnitMg: true, UnitMgM2: true, UnitMgKg: true, UnitMcgKg: true,
	UnitAUC: true, UnitUI: true, UnitG: true,
}

// Alternative spellings found in imported protocol data.
var unitAliases = map[string]Unit{
	"mg/m²":  UnitMgM2,
	"mg/m^2": UnitMgM2,
}

// ValidUnit reports whether u is one of the supported dose units.
func ValidUnit(u Unit) bool {
	return validUnits[u]
}

// ParseUnit trims s and maps known alternative spellings to the canonical
// unit. Unknown units are returned as given.
func ParseUnit(s string) Unit {
	s = strings.TrimSpace(s)
	if u, ok := unitAliases[s]; ok {
		return u
	}
	return Unit(s)
}

func (u *Unit) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*u = ParseUnit(s)
	return nil
}

// Patient is the biometric snapshot used by the formulas. Zero values mean
// "not informed".
type Patient struct {
	WeightKg   float64 `json:"weight_kg"`
	HeightCm   float64 `json:"height_cm"`
	AgeYears   int     `json:"age_years"`
	Sex        string  `json:"sex"`
	Creatinine float64 `json:"creatinine"`
}

// Rule is the dosing rule authored on a protocol item and snapshotted into
// prescription items.
type Rule struct {
	ReferenceDose     float64  `json:"reference_dose" validate:"gt=0"`
	Unit              Unit     `json:"unit" validate:"required,oneof=mg mg/m2 mg/kg mcg/kg AUC UI g"`
	CreatinineFloor   float64  `json:"creatinine_floor,omitempty" validate:"gte=0"`
	GFRCeiling        float64  `json:"gfr_ceiling,omitempty" validate:"gte=0"`
	AdjustmentPercent *float64 `json:"adjustment_percent,omitempty" validate:"omitempty,gte=0,lte=500"`
	MaxDose           *float64 `json:"max_dose,omitempty" validate:"omitempty,gt=0"`
}

// Percent returns a pointer to v, for literal adjustments.
func Percent(v float64) *float64 { return &v }

// Adjustment is the adjustment percentage to apply. An unset adjustment is
// 100%; an explicit 0 stays 0.
func (r Rule) Adjustment() float64 {
	if r.AdjustmentPercent == nil {
		return DefaultAdjustmentPercent
	}
	return *r.AdjustmentPercent
}

// WithDefaults returns a copy of r with zero floor and ceiling and an unset
// adjustment replaced by their defaults.
func (r Rule) WithDefaults() Rule {
	if r.CreatinineFloor <= 0 {
		r.CreatinineFloor = DefaultCreatinineFloor
	}
	if r.GFRCeiling <= 0 {
		r.GFRCeiling = DefaultGFRCeiling
	}
	r.AdjustmentPercent = Percent(r.Adjustment())
	return r
}

// BSA returns the Du Bois body surface area in m², rounded to 2 decimals.
func BSA(weightKg, heightCm float64) float64 {
	if !positive(weightKg) || !positive(heightCm) {
		return 0
	}
	return Round(0.007184*math.Pow(heightCm, 0.725)*math.Pow(weightKg, 0.425), 2)
}

// GFR estimates the glomerular filtration rate with the Cockcroft-Gault
// formula. The creatinine is raised to floor and the result capped at
// ceiling; zero floor or ceiling select the defaults. The result is not
// rounded.
func GFR(weightKg float64, ageYears int, sex string, creatinine, floor, ceiling float64) float64 {
	if !positive(weightKg) || ageYears <= 0 || strings.TrimSpace(sex) == "" || !positive(creatinine) {
		return 0
	}
	if floor <= 0 {
		floor = DefaultCreatinineFloor
	}
	if ceiling <= 0 {
		ceiling = DefaultGFRCeiling
	}

	cr := math.Max(creatinine, floor)
	gfr := (float64(140-ageYears) * weightKg) / (72 * cr)
	if IsFemale(sex) {
		gfr *= femaleGFRFactor
	}
	return math.Min(gfr, ceiling)
}

// IsFemale matches "F" and "FEMININO" case-insensitively.
func IsFemale(sex string) bool {
	s := strings.ToUpper(strings.TrimSpace(sex))
	return s == "F" || s == "FEMININO"
}

// TheoreticalDose applies the rule's unit to the patient's biometrics.
// Fixed-amount units and unknown units return the reference dose unchanged.
func TheoreticalDose(rule Rule, p Patient) float64 {
	ref := rule.ReferenceDose
	if !positive(ref) {
		return 0
	}

	switch rule.Unit {
	case UnitMgM2:
		return ref * BSA(p.WeightKg, p.HeightCm)
	case UnitMgKg, UnitMcgKg:
		if !positive(p.WeightKg) {
			return 0
		}
		return ref * p.WeightKg
	case UnitAUC:
		gfr := GFR(p.WeightKg, p.AgeYears, p.Sex, p.Creatinine, rule.CreatinineFloor, rule.GFRCeiling)
		return ref * (gfr + aucGFROffset)
	default:
		return ref
	}
}

// FinalDose applies the adjustment percentage and caps the result at
// maxDose. Doses under 1 keep 3 decimals, the rest 2.
func FinalDose(theoretical, adjustmentPercent float64, maxDose *float64) float64 {
	if !positive(theoretical) {
		return 0
	}
	if adjustmentPercent < 0 || math.IsNaN(adjustmentPercent) || math.IsInf(adjustmentPercent, 0) {
		adjustmentPercent = 0
	}

	dose := theoretical * adjustmentPercent / 100
	if maxDose != nil && *maxDose > 0 && dose > *maxDose {
		dose = *maxDose
	}
	if dose < 1 {
		return Round(dose, 3)
	}
	return Round(dose, 2)
}

// Doses is the computed pair for one rule.
type Doses struct {
	Theoretical float64 `json:"theoretical_dose"`
	Final       float64 `json:"final_dose"`
}

// Compute runs TheoreticalDose and FinalDose for a rule. An unset
// adjustment is treated as 100%.
func Compute(rule Rule, p Patient) Doses {
	theo := TheoreticalDose(rule, p)
	return Doses{
		Theoretical: Round(theo, 2),
		Final:       FinalDose(theo, rule.Adjustment(), rule.MaxDose),
	}
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

package prescription

import (
	"strings"
	"testing"

	"github.com/oncoclinic/infusion/internal/domain/dosing"
	"github.com/oncoclinic/infusion/internal/domain/protocol"
	"github.com/oncoclinic/infusion/internal/platform/validation"
)

func findingsAt(errs validation.Errors, path string) []validation.FieldError {
	var out []validation.FieldError
	for _, e := range errs {
		if e.Path == path {
			out = append(out, e)
		}
	}
	return out
}

func newTestValidator() *Validator {
	return NewValidator(validation.New())
}

func TestValidate_ValidPrescription(t *testing.T) {
	p := RecalculateAll(samplePrescription())
	if errs := newTestValidator().Validate(&p); len(errs) != 0 {
		t.Fatalf("expected no findings, got %v", errs)
	}
}

func TestValidate_AUCWithoutCreatinine(t *testing.T) {
	p := samplePrescription()
	p.Patient.Creatinine = 0
	errs := newTestValidator().CheckRules(&p)
	got := findingsAt(errs, "patient.creatinine")
	if len(got) != 1 || got[0].Rule != "auc_requirements" {
		t.Fatalf("expected AUC creatinine finding, got %v", errs)
	}
}

func TestValidate_AUCRequiresAgeAndSex(t *testing.T) {
	p := samplePrescription()
	p.Patient.AgeYears = 0
	p.Patient.Sex = ""
	errs := newTestValidator().CheckRules(&p)
	if len(findingsAt(errs, "patient.age_years")) != 1 || len(findingsAt(errs, "patient.sex")) != 1 {
		t.Fatalf("expected age and sex findings, got %v", errs)
	}
}

func TestValidate_MgM2RequiresBSA(t *testing.T) {
	p := samplePrescription()
	p.Patient.HeightCm = 0
	errs := newTestValidator().CheckRules(&p)
	if len(findingsAt(errs, "patient.bsa")) != 1 {
		t.Fatalf("expected bsa finding, got %v", errs)
	}
}

func TestValidate_CycleDayBeyondLength(t *testing.T) {
	p := samplePrescription()
	p.Blocks[1].Items[1].Medication.CycleDays = []int{1, 22, 30}
	errs := newTestValidator().CheckRules(&p)
	got := findingsAt(errs, "blocks[1].items[1].medication.cycle_days")
	if len(got) != 1 {
		t.Fatalf("expected one cycle day finding, got %v", errs)
	}
	if !strings.Contains(got[0].Message, "day 22") || !strings.Contains(got[0].Message, "21 days") {
		t.Errorf("unexpected message %q", got[0].Message)
	}
}

func TestValidate_NoCycleLengthSkipsDayCheck(t *testing.T) {
	p := samplePrescription()
	p.CycleLengthDays = 0
	p.Blocks[1].Items[1].Medication.CycleDays = []int{99}
	errs := newTestValidator().CheckRules(&p)
	if len(findingsAt(errs, "blocks[1].items[1].medication.cycle_days")) != 0 {
		t.Fatalf("expected no cycle day finding, got %v", errs)
	}
}

func TestValidate_BlockOrderDuplicatesAndGapsAreIndependent(t *testing.T) {
	tests := []struct {
		name   string
		orders []int
		want   int
	}{
		{"contiguous", []int{1, 2}, 0},
		{"duplicate only", []int{1, 1}, 1},
		{"gap only", []int{1, 3}, 1},
		{"duplicate and gap", []int{2, 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePrescription()
			for i, o := range tt.orders {
				p.Blocks[i].Order = o
			}
			errs := newTestValidator().CheckRules(&p)
			if got := len(findingsAt(errs, "blocks")); got != tt.want {
				t.Errorf("expected %d block findings, got %d (%v)", tt.want, got, errs)
			}
		})
	}
}

func TestValidate_RouteRules(t *testing.T) {
	p := samplePrescription()
	oral := p.Blocks[0].Items[0].Medication
	oral.Diluent = "SF 0.9%"
	oral.InfusionMinutes = 15
	iv := p.Blocks[1].Items[0].Medication
	iv.Diluent = ""
	iv.InfusionMinutes = 0

	errs := newTestValidator().CheckRules(&p)
	for _, path := range []string{
		"blocks[0].items[0].medication.diluent",
		"blocks[0].items[0].medication.infusion_minutes",
		"blocks[1].items[0].medication.diluent",
		"blocks[1].items[0].medication.infusion_minutes",
	} {
		if len(findingsAt(errs, path)) != 1 {
			t.Errorf("expected finding at %s, got %v", path, errs)
		}
	}
}

func TestValidate_FinalDoseOverride(t *testing.T) {
	p := RecalculateAll(samplePrescription())
	med := p.Blocks[1].Items[0].Medication
	med.Rule.MaxDose = ptrFloat(200)
	med.FinalDose = 250

	errs := newTestValidator().CheckRules(&p)
	if len(findingsAt(errs, "blocks[1].items[0].medication.final_dose")) != 1 {
		t.Fatalf("expected final dose finding, got %v", errs)
	}
}

func TestValidate_ChoiceMustBeSelected(t *testing.T) {
	p := samplePrescription()
	p.Blocks[0].Items = append(p.Blocks[0].Items, Item{
		Kind: protocol.KindChoice,
		Choice: &Choice{Label: "Antiemetic", Options: []Medication{
			ivMed("Granisetron", 1, dosing.UnitMg),
			ivMed("Palonosetron", 0.25, dosing.UnitMg),
		}},
	})
	errs := newTestValidator().CheckRules(&p)
	if len(findingsAt(errs, "blocks[0].items[1].choice.selected")) != 1 {
		t.Fatalf("expected unselected choice finding, got %v", errs)
	}

	p.Blocks[0].Items[1].Choice.Selected = ptrInt(1)
	p.Blocks[0].Items[1].Choice.Options[1].CycleDays = []int{40}
	errs = newTestValidator().CheckRules(&p)
	if len(findingsAt(errs, "blocks[0].items[1].choice.options[1].cycle_days")) != 1 {
		t.Fatalf("expected selected option to be checked, got %v", errs)
	}
}

func TestValidate_StructuralFindings(t *testing.T) {
	p := samplePrescription()
	p.Diagnosis = ""
	p.Patient.WeightKg = 650
	p.Blocks[1].Items[0].Medication.Rule.ReferenceDose = 0
	p.Blocks[1].Items[0].Medication.CycleDays = []int{1, 1}

	errs := newTestValidator().Validate(&p)
	for _, path := range []string{
		"diagnosis",
		"patient.weight_kg",
		"blocks[1].items[0].medication.rule.reference_dose",
		"blocks[1].items[0].medication.cycle_days",
	} {
		if len(findingsAt(errs, path)) == 0 {
			t.Errorf("expected structural finding at %s, got %v", path, errs)
		}
	}
}

package prescription

import (
	"fmt"
	"strings"

	"github.com/oncoclinic/infusion/internal/domain/dosing"
	"github.com/oncoclinic/infusion/internal/domain/protocol"
	"github.com/oncoclinic/infusion/internal/platform/validation"
)

// Rule is a cross-field check over a whole prescription. Rules never stop
// each other: every finding is collected.
type Rule interface {
	Name() string
	Check(p *Prescription) []validation.FieldError
}

type ruleFunc struct {
	name  string
	check func(p *Prescription) []validation.FieldError
}

func (r ruleFunc) Name() string { return r.name }

func (r ruleFunc) Check(p *Prescription) []validation.FieldError {
	errs := r.check(p)
	for i := range errs {
		errs[i].Rule = r.name
	}
	return errs
}

// DefaultRules are the clinical rules applied after the structural schema.
var DefaultRules = []Rule{
	ruleFunc{"choice_selected", checkChoiceSelected},
	ruleFunc{"auc_requirements", checkAUCRequirements},
	ruleFunc{"bsa_required", checkBSARequired},
	ruleFunc{"cycle_days", checkCycleDays},
	ruleFunc{"block_order", checkBlockOrder},
	ruleFunc{"route", checkRoutes},
	ruleFunc{"max_dose", checkMaxDose},
}

// Validator runs the structural schema and the clinical rules. It performs
// no I/O.
type Validator struct {
	schema *validation.Validator
	rules  []Rule
}

func NewValidator(schema *validation.Validator, rules ...Rule) *Validator {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Validator{schema: schema, rules: rules}
}

// Validate returns every finding, structural ones first.
func (v *Validator) Validate(p *Prescription) validation.Errors {
	var out validation.Errors
	if v.schema != nil {
		out = append(out, v.schema.Fields(p)...)
	}
	out = append(out, v.CheckRules(p)...)
	return out
}

// CheckRules runs the clinical rules only.
func (v *Validator) CheckRules(p *Prescription) validation.Errors {
	var out validation.Errors
	for _, r := range v.rules {
		out = append(out, r.Check(p)...)
	}
	return out
}

func itemPath(b, i int) string {
	return fmt.Sprintf("blocks[%d].items[%d]", b, i)
}

func optionPath(b, i, k int) string {
	return fmt.Sprintf("%s.choice.options[%d]", itemPath(b, i), k)
}

func checkChoiceSelected(p *Prescription) []validation.FieldError {
	var errs []validation.FieldError
	for b := range p.Blocks {
		for i, it := range p.Blocks[b].Items {
			if it.Kind != protocol.KindChoice || it.Choice == nil {
				continue
			}
			if _, ok := it.Choice.SelectedOption(); !ok {
				errs = append(errs, validation.FieldError{
					Path:    itemPath(b, i) + ".choice.selected",
					Message: fmt.Sprintf("select one option of %q", it.Choice.Label),
				})
			}
		}
	}
	return errs
}

func usesUnit(p *Prescription, unit dosing.Unit) bool {
	for _, am := range p.activeMedications() {
		if am.med.Rule.Unit == unit {
			return true
		}
	}
	return false
}

func checkAUCRequirements(p *Prescription) []validation.FieldError {
	if !usesUnit(p, dosing.UnitAUC) {
		return nil
	}
	var errs []validation.FieldError
	if p.Patient.Creatinine <= 0 {
		errs = append(errs, validation.FieldError{
			Path:    "patient.creatinine",
			Message: "serum creatinine is required for AUC dosing",
		})
	}
	if p.Patient.AgeYears <= 0 {
		errs = append(errs, validation.FieldError{
			Path:    "patient.age_years",
			Message: "patient age is required for AUC dosing",
		})
	}
	if strings.TrimSpace(p.Patient.Sex) == "" {
		errs = append(errs, validation.FieldError{
			Path:    "patient.sex",
			Message: "patient sex is required for AUC dosing",
		})
	}
	return errs
}

func checkBSARequired(p *Prescription) []validation.FieldError {
	if !usesUnit(p, dosing.UnitMgM2) {
		return nil
	}
	if dosing.BSA(p.Patient.WeightKg, p.Patient.HeightCm) > 0 {
		return nil
	}
	return []validation.FieldError{{
		Path:    "patient.bsa",
		Message: "body surface area must be greater than 0 for mg/m2 dosing",
	}}
}

func checkCycleDays(p *Prescription) []validation.FieldError {
	if p.CycleLengthDays <= 0 {
		return nil
	}
	var errs []validation.FieldError
	for _, am := range p.activeMedications() {
		for _, d := range am.med.CycleDays {
			if d > p.CycleLengthDays {
				errs = append(errs, validation.FieldError{
					Path:    am.path + ".cycle_days",
					Message: fmt.Sprintf("day %d exceeds the cycle length (%d days)", d, p.CycleLengthDays),
				})
				break
			}
		}
	}
	return errs
}

func checkBlockOrder(p *Prescription) []validation.FieldError {
	orders := make([]int, len(p.Blocks))
	for i, b := range p.Blocks {
		orders[i] = b.Order
	}
	rep := protocol.CheckBlockOrders(orders)

	var errs []validation.FieldError
	if len(rep.Duplicates) > 0 {
		errs = append(errs, validation.FieldError{
			Path:    "blocks",
			Message: fmt.Sprintf("duplicate block order(s): %s", joinInts(rep.Duplicates)),
		})
	}
	if rep.NotContiguous {
		errs = append(errs, validation.FieldError{
			Path:    "blocks",
			Message: "block orders must be a contiguous sequence starting at 1",
		})
	}
	return errs
}

func checkRoutes(p *Prescription) []validation.FieldError {
	var errs []validation.FieldError
	for _, am := range p.activeMedications() {
		m := am.med
		switch m.Route {
		case protocol.RouteVO:
			if strings.TrimSpace(m.Diluent) != "" {
				errs = append(errs, validation.FieldError{Path: am.path + ".diluent", Message: "oral medications take no diluent"})
			}
			if m.InfusionMinutes != 0 {
				errs = append(errs, validation.FieldError{Path: am.path + ".infusion_minutes", Message: "oral medications have no infusion time"})
			}
		case protocol.RouteIV:
			if strings.TrimSpace(m.Diluent) == "" {
				errs = append(errs, validation.FieldError{Path: am.path + ".diluent", Message: "intravenous medications require a diluent"})
			}
			if m.InfusionMinutes <= 0 {
				errs = append(errs, validation.FieldError{Path: am.path + ".infusion_minutes", Message: "intravenous medications require an infusion time"})
			}
		}
	}
	return errs
}

func checkMaxDose(p *Prescription) []validation.FieldError {
	var errs []validation.FieldError
	for _, am := range p.activeMedications() {
		maxDose := am.med.Rule.MaxDose
		if maxDose != nil && *maxDose > 0 && am.med.FinalDose > *maxDose {
			errs = append(errs, validation.FieldError{
				Path:    am.path + ".final_dose",
				Message: fmt.Sprintf("final dose %g exceeds the maximum dose %g", am.med.FinalDose, *maxDose),
			})
		}
	}
	return errs
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}

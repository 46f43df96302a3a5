package prescription

import (
	"github.com/google/uuid"

	"github.com/oncoclinic/infusion/internal/domain/dosing"
	"github.com/oncoclinic/infusion/internal/domain/protocol"
)

func ptrFloat(f float64) *float64 { return &f }
func ptrInt(i int) *int           { return &i }
func ptrStr(s string) *string     { return &s }

func ivMed(name string, ref float64, unit dosing.Unit) Medication {
	return Medication{
		ID:              uuid.NewString(),
		Name:            name,
		Rule:            dosing.Rule{ReferenceDose: ref, Unit: unit, AdjustmentPercent: dosing.Percent(100)},
		Route:           protocol.RouteIV,
		InfusionMinutes: 60,
		Diluent:         "SF 0.9% 250ml",
		CycleDays:       []int{1},
	}
}

func medItem(m Medication) Item {
	return Item{Kind: protocol.KindMedication, Medication: &m}
}

func samplePrescription() Prescription {
	return Prescription{
		PatientID:       uuid.New(),
		ProtocolName:    "Paclitaxel + Carboplatin",
		Diagnosis:       "C56",
		Cycle:           1,
		CycleLengthDays: 21,
		Patient:         Snapshot{WeightKg: 70, HeightCm: 170, AgeYears: 60, Sex: "F", Creatinine: 0.9},
		Status:          StatusPending,
		Blocks: []Block{
			{Order: 1, Category: protocol.CategoryPreMed, Items: []Item{
				medItem(Medication{
					ID: "pre-1", Name: "Ondansetron",
					Rule:      dosing.Rule{ReferenceDose: 8, Unit: dosing.UnitMg, AdjustmentPercent: dosing.Percent(100)},
					Route:     protocol.RouteVO,
					CycleDays: []int{1},
				}),
			}},
			{Order: 2, Category: protocol.CategoryTherapy, Items: []Item{
				medItem(ivMed("Paclitaxel", 175, dosing.UnitMgM2)),
				medItem(ivMed("Carboplatin", 5, dosing.UnitAUC)),
			}},
		},
	}
}

// templateFrom rebuilds a protocol template with the same medications and
// positions as p.
func templateFrom(p Prescription) protocol.Template {
	tpl := protocol.Template{ID: "tpl-1"}
	for _, blk := range p.Blocks {
		nb := protocol.Block{Order: blk.Order, Category: blk.Category}
		for _, it := range blk.Items {
			switch it.Kind {
			case protocol.KindMedication:
				nb.Items = append(nb.Items, protocol.NewMedicationItem(toTemplateMed(*it.Medication)))
			case protocol.KindChoice:
				var opts []protocol.Medication
				for _, o := range it.Choice.Options {
					opts = append(opts, toTemplateMed(o))
				}
				nb.Items = append(nb.Items, protocol.NewChoiceItem(it.Choice.Label, opts...))
			}
		}
		tpl.Blocks = append(tpl.Blocks, nb)
	}
	return tpl
}

func toTemplateMed(m Medication) protocol.Medication {
	return protocol.Medication{
		Name:            m.Name,
		Rule:            m.Rule,
		Route:           m.Route,
		InfusionMinutes: m.InfusionMinutes,
		Diluent:         protocol.Diluent{Selected: m.Diluent},
		CycleDays:       m.CycleDays,
	}
}

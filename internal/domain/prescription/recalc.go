package prescription

import (
	"github.com/oncoclinic/infusion/internal/domain/dosing"
	"github.com/oncoclinic/infusion/internal/domain/protocol"
)

// RecalculateAll returns a copy of p with every derived value refreshed:
// BSA and GFR on the snapshot, normalized cycle days and both doses of every
// medication, including unselected alternatives. Call it after any change
// to biometrics or dosing inputs.
func RecalculateAll(p Prescription) Prescription {
	out := p.Clone()
	bio := out.Patient.Biometrics()

	out.Patient.BSA = dosing.BSA(bio.WeightKg, bio.HeightCm)
	out.Patient.GFR = dosing.Round(dosing.GFR(bio.WeightKg, bio.AgeYears, bio.Sex, bio.Creatinine, 0, 0), 2)

	for b := range out.Blocks {
		for i := range out.Blocks[b].Items {
			it := &out.Blocks[b].Items[i]
			switch it.Kind {
			case protocol.KindMedication:
				if it.Medication != nil {
					recalculate(it.Medication, bio)
				}
			case protocol.KindChoice:
				if it.Choice != nil {
					for k := range it.Choice.Options {
						recalculate(&it.Choice.Options[k], bio)
					}
				}
			}
		}
	}
	return out
}

func recalculate(m *Medication, bio dosing.Patient) {
	m.CycleDays = protocol.NormalizeDays(m.CycleDays)
	if m.Rule.AdjustmentPercent == nil {
		m.Rule.AdjustmentPercent = dosing.Percent(dosing.DefaultAdjustmentPercent)
	}
	d := dosing.Compute(m.Rule, bio)
	m.TheoreticalDose = d.Theoretical
	m.FinalDose = d.Final
}

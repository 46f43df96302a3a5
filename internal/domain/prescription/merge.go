package prescription

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/oncoclinic/infusion/internal/domain/dosing"
	"github.com/oncoclinic/infusion/internal/domain/protocol"
)

// Discrepancy kinds reported by Merge.
const (
	DiscrepancyAdded            = "added"
	DiscrepancyReordered        = "reordered"
	DiscrepancyMaxDoseChanged   = "max_dose_changed"
	DiscrepancyChoiceUnselected = "choice_unselected"
)

// Discrepancy is a difference between the prior prescription and the
// template that a clinician has to acknowledge.
type Discrepancy struct {
	Kind       string `json:"kind"`
	Medication string `json:"medication"`
	Message    string `json:"message"`
}

// MergeResult is the outcome of reconciling a prior prescription with a
// template. When OK is false, Orphans lists the prior medications that have
// no place in the template and Blocks is nil.
type MergeResult struct {
	OK            bool          `json:"ok"`
	Blocks        []Block       `json:"blocks,omitempty"`
	Discrepancies []Discrepancy `json:"discrepancies,omitempty"`
	Orphans       []string      `json:"orphans,omitempty"`
}

type priorEntry struct {
	med        Medication
	blockOrder int
}

// priorIndex keys prior medications by normalized name. Repeated names are
// consumed in the order they were prescribed.
type priorIndex struct {
	entries map[string][]priorEntry
	keys    []string
}

func newPriorIndex(prior *Prescription) *priorIndex {
	idx := &priorIndex{entries: make(map[string][]priorEntry)}
	for _, blk := range prior.Blocks {
		for _, it := range blk.Items {
			var med *Medication
			switch it.Kind {
			case protocol.KindMedication:
				med = it.Medication
			case protocol.KindChoice:
				med, _ = it.Choice.SelectedOption()
			}
			if med == nil {
				continue
			}
			key := normalizeName(med.Name)
			if _, seen := idx.entries[key]; !seen {
				idx.keys = append(idx.keys, key)
			}
			idx.entries[key] = append(idx.entries[key], priorEntry{med: cloneMedication(*med), blockOrder: blk.Order})
		}
	}
	return idx
}

func (idx *priorIndex) take(name string) (priorEntry, bool) {
	key := normalizeName(name)
	queue := idx.entries[key]
	if len(queue) == 0 {
		return priorEntry{}, false
	}
	e := queue[0]
	if len(queue) == 1 {
		delete(idx.entries, key)
	} else {
		idx.entries[key] = queue[1:]
	}
	return e, true
}

func (idx *priorIndex) leftovers() []string {
	var out []string
	for _, key := range idx.keys {
		for _, e := range idx.entries[key] {
			out = append(out, e.med.Name)
		}
	}
	return out
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Merge carries the clinician's prior choices (reference dose, adjustment,
// maximum dose, diluent) onto the template's structure. It never guesses:
// anything that changed is reported as a discrepancy, and prior medications
// missing from the template fail the merge.
func Merge(prior *Prescription, tpl protocol.Template) MergeResult {
	idx := newPriorIndex(prior)
	var res MergeResult

	blocks := make([]Block, 0, len(tpl.Blocks))
	for _, blk := range tpl.Blocks {
		nb := Block{Order: blk.Order, Category: blk.Category, Items: make([]Item, 0, len(blk.Items))}
		for _, it := range blk.Items {
			switch it.Kind {
			case protocol.KindMedication:
				if it.Medication == nil {
					continue
				}
				med := fromTemplate(*it.Medication)
				if e, ok := idx.take(med.Name); ok {
					res.Discrepancies = append(res.Discrepancies, carry(&med, e, blk.Order, it.Medication.Rule.MaxDose)...)
				} else {
					res.Discrepancies = append(res.Discrepancies, Discrepancy{
						Kind:       DiscrepancyAdded,
						Medication: med.Name,
						Message:    fmt.Sprintf("%s was added to the protocol (block %d)", med.Name, blk.Order),
					})
				}
				nb.Items = append(nb.Items, Item{Kind: protocol.KindMedication, Medication: &med})

			case protocol.KindChoice:
				if it.Choice == nil {
					continue
				}
				ch := &Choice{Label: it.Choice.Label, Options: make([]Medication, len(it.Choice.Options))}
				for k, opt := range it.Choice.Options {
					ch.Options[k] = fromTemplate(opt)
				}
				for k, opt := range it.Choice.Options {
					e, ok := idx.take(opt.Name)
					if !ok {
						continue
					}
					res.Discrepancies = append(res.Discrepancies, carry(&ch.Options[k], e, blk.Order, opt.Rule.MaxDose)...)
					sel := k
					ch.Selected = &sel
					break
				}
				if ch.Selected == nil {
					res.Discrepancies = append(res.Discrepancies, Discrepancy{
						Kind:       DiscrepancyChoiceUnselected,
						Medication: ch.Label,
						Message:    fmt.Sprintf("no prior choice matches %q; select an option", ch.Label),
					})
				}
				nb.Items = append(nb.Items, Item{Kind: protocol.KindChoice, Choice: ch})
			}
		}
		blocks = append(blocks, nb)
	}

	if orphans := idx.leftovers(); len(orphans) > 0 {
		return MergeResult{Orphans: orphans}
	}
	res.OK = true
	res.Blocks = blocks
	return res
}

// fromTemplate seeds a prescription medication from a template entry with
// default adjustments and zero doses.
func fromTemplate(m protocol.Medication) Medication {
	rule := m.Rule.WithDefaults()
	rule.AdjustmentPercent = dosing.Percent(dosing.DefaultAdjustmentPercent)
	if m.Rule.MaxDose != nil {
		v := *m.Rule.MaxDose
		rule.MaxDose = &v
	}
	return Medication{
		ID:              uuid.NewString(),
		Name:            m.Name,
		Rule:            rule,
		Route:           m.Route,
		InfusionMinutes: m.InfusionMinutes,
		Diluent:         m.Diluent.Selected,
		DiluentOptions:  append([]string(nil), m.Diluent.Options...),
		CycleDays:       protocol.NormalizeDays(m.CycleDays),
		Notes:           m.Notes,
	}
}

// carry copies the prior choices onto med and returns what the clinician
// needs to review.
func carry(med *Medication, e priorEntry, blockOrder int, templateMax *float64) []Discrepancy {
	var out []Discrepancy
	old := e.med

	med.Rule.ReferenceDose = old.Rule.ReferenceDose
	med.Rule.AdjustmentPercent = dosing.Percent(old.Rule.Adjustment())
	med.Rule.MaxDose = old.Rule.MaxDose
	if old.Diluent != "" {
		med.Diluent = old.Diluent
	}
	med.TheoreticalDose = old.TheoreticalDose
	med.FinalDose = old.FinalDose

	if e.blockOrder != blockOrder {
		out = append(out, Discrepancy{
			Kind:       DiscrepancyReordered,
			Medication: med.Name,
			Message:    fmt.Sprintf("%s moved from block %d to block %d", med.Name, e.blockOrder, blockOrder),
		})
	}
	if !sameDose(old.Rule.MaxDose, templateMax) {
		out = append(out, Discrepancy{
			Kind:       DiscrepancyMaxDoseChanged,
			Medication: med.Name,
			Message: fmt.Sprintf("maximum dose of %s is %s in the protocol; keeping the prior %s",
				med.Name, formatDose(templateMax), formatDose(old.Rule.MaxDose)),
		})
	}
	return out
}

func sameDose(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func formatDose(v *float64) string {
	if v == nil {
		return "unset"
	}
	return fmt.Sprintf("%g", *v)
}

// Decision outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeConfirm = "confirm"
	OutcomeFailed  = "failed"
)

// DecisionRequest is handed to the client when a prior prescription is
// repeated. Applied carries Merged only; Confirm offers Merged or RawCopy
// and lists the discrepancies; Failed offers only RawCopy.
type DecisionRequest struct {
	Outcome       string        `json:"outcome"`
	Discrepancies []Discrepancy `json:"discrepancies,omitempty"`
	Orphans       []string      `json:"orphans,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
	Merged        *Prescription `json:"merged,omitempty"`
	RawCopy       *Prescription `json:"raw_copy,omitempty"`
}

// Plan tries the templates in order and returns the first successful merge
// as a decision. draft supplies the header of the new prescription (patient
// snapshot, cycle, protocol) and its blocks are ignored.
func Plan(prior Prescription, draft Prescription, templates []protocol.Template) DecisionRequest {
	raw := RawCopy(prior, draft)

	var firstOrphans []string
	for _, tpl := range templates {
		res := Merge(&prior, tpl)
		if !res.OK {
			if firstOrphans == nil {
				firstOrphans = res.Orphans
			}
			continue
		}

		merged := draft.Clone()
		merged.Blocks = res.Blocks
		tplID := tpl.ID
		merged.TemplateID = &tplID
		merged = RecalculateAll(merged)

		if len(res.Discrepancies) == 0 {
			return DecisionRequest{Outcome: OutcomeApplied, Merged: &merged}
		}
		return DecisionRequest{
			Outcome:       OutcomeConfirm,
			Discrepancies: res.Discrepancies,
			Merged:        &merged,
			RawCopy:       &raw,
		}
	}

	return DecisionRequest{Outcome: OutcomeFailed, Orphans: firstOrphans, RawCopy: &raw}
}

// RawCopy loads the prior items verbatim under draft's header, with no
// template association. Unset adjustments become 100% and doses are
// recomputed from the draft's biometrics.
func RawCopy(prior Prescription, draft Prescription) Prescription {
	out := draft.Clone()
	out.TemplateID = nil
	out.Blocks = cloneBlocks(prior.Blocks)
	for b := range out.Blocks {
		for i := range out.Blocks[b].Items {
			it := &out.Blocks[b].Items[i]
			if it.Medication != nil {
				resetDoses(it.Medication)
			}
			if it.Choice != nil {
				for k := range it.Choice.Options {
					resetDoses(&it.Choice.Options[k])
				}
			}
		}
	}
	return RecalculateAll(out)
}

func resetDoses(m *Medication) {
	if m.Rule.AdjustmentPercent == nil {
		m.Rule.AdjustmentPercent = dosing.Percent(dosing.DefaultAdjustmentPercent)
	}
	m.TheoreticalDose = 0
	m.FinalDose = 0
}

package prescription

import (
	"time"

	"github.com/google/uuid"

	"github.com/oncoclinic/infusion/internal/domain/dosing"
	"github.com/oncoclinic/infusion/internal/domain/protocol"
)

// Prescription statuses.
const (
	StatusPending     = "pending"
	StatusScheduled   = "scheduled"
	StatusInProgress  = "in-progress"
	StatusCompleted   = "completed"
	StatusSuspended   = "suspended"
	StatusSubstituted = "substituted"
	StatusCancelled   = "cancelled"
)

var validStatuses = map[string]bool{
	StatusPending: true, StatusScheduled: true, StatusInProgress: true, StatusCompleted: true,
	StatusSuspended: true, StatusSubstituted: true, StatusCancelled: true,
}

// Snapshot is the patient's biometrics at prescription time.
type Snapshot struct {
	WeightKg   float64 `json:"weight_kg" validate:"gt=0,lt=600"`
	HeightCm   float64 `json:"height_cm" validate:"gt=0"`
	AgeYears   int     `json:"age_years" validate:"gte=0"`
	Sex        string  `json:"sex"`
	Creatinine float64 `json:"creatinine" validate:"gte=0"`
	BSA        float64 `json:"bsa"`
	GFR        float64 `json:"gfr,omitempty"`
}

// Biometrics converts the snapshot for the dose formulas.
func (s Snapshot) Biometrics() dosing.Patient {
	return dosing.Patient{
		WeightKg:   s.WeightKg,
		HeightCm:   s.HeightCm,
		AgeYears:   s.AgeYears,
		Sex:        s.Sex,
		Creatinine: s.Creatinine,
	}
}

// Medication is a prescribed drug with its rule snapshot and computed doses.
type Medication struct {
	ID              string         `json:"id"`
	Name            string         `json:"name" validate:"required"`
	Rule            dosing.Rule    `json:"rule"`
	Route           protocol.Route `json:"route" validate:"required,oneof=IV VO SC IT IM"`
	InfusionMinutes int            `json:"infusion_minutes" validate:"gte=0"`
	Diluent         string         `json:"diluent,omitempty"`
	DiluentOptions  []string       `json:"diluent_options,omitempty"`
	CycleDays       []int          `json:"cycle_days" validate:"min=1,unique,dive,gte=1"`
	Notes           string         `json:"notes,omitempty"`
	TheoreticalDose float64        `json:"theoretical_dose"`
	FinalDose       float64        `json:"final_dose"`
}

// Choice is a group of alternatives of which one must be selected.
type Choice struct {
	Label    string       `json:"label"`
	Options  []Medication `json:"options" validate:"min=1,dive"`
	Selected *int         `json:"selected,omitempty"`
}

// SelectedOption returns the chosen alternative.
func (c *Choice) SelectedOption() (*Medication, bool) {
	if c == nil || c.Selected == nil || *c.Selected < 0 || *c.Selected >= len(c.Options) {
		return nil, false
	}
	return &c.Options[*c.Selected], true
}

// Item is either a medication or a choice, selected by Kind.
type Item struct {
	Kind       protocol.ItemKind `json:"kind" validate:"required,oneof=medication choice"`
	Medication *Medication       `json:"medication,omitempty"`
	Choice     *Choice           `json:"choice,omitempty"`
}

type Block struct {
	Order    int               `json:"order" validate:"gte=1"`
	Category protocol.Category `json:"category" validate:"required,oneof=pre_med qt pos_med_hospitalar pos_med_domiciliar"`
	Items    []Item            `json:"items" validate:"min=1,dive"`
}

type Prescription struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id" validate:"required"`
	ProtocolID      *uuid.UUID `db:"protocol_id" json:"protocol_id,omitempty"`
	TemplateID      *string    `db:"template_id" json:"template_id,omitempty"`
	ProtocolName    string     `db:"protocol_name" json:"protocol_name" validate:"required"`
	Diagnosis       string     `db:"diagnosis" json:"diagnosis" validate:"required"`
	Cycle           int        `db:"cycle" json:"cycle" validate:"gte=1"`
	CycleLengthDays int        `db:"cycle_length_days" json:"cycle_length_days" validate:"gte=0"`
	Patient         Snapshot   `db:"patient" json:"patient"`
	Blocks          []Block    `db:"blocks" json:"blocks" validate:"min=1,dive"`
	Status          string     `db:"status" json:"status"`
	StatusReason    *string    `db:"status_reason" json:"status_reason,omitempty"`
	SubstitutedByID *uuid.UUID `db:"substituted_by_id" json:"substituted_by_id,omitempty"`
	SubstitutesID   *uuid.UUID `db:"substitutes_id" json:"substitutes_id,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	PrescribedBy    string     `db:"prescribed_by" json:"prescribed_by,omitempty"`
	IssuedAt        time.Time  `db:"issued_at" json:"issued_at"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// activeMedication is a medication that will be administered, together with
// the JSON path it lives at.
type activeMedication struct {
	med  *Medication
	path string
}

// activeMedications walks plain items and the selected option of each
// choice. Unselected choices contribute nothing.
func (p *Prescription) activeMedications() []activeMedication {
	var out []activeMedication
	for b := range p.Blocks {
		for i := range p.Blocks[b].Items {
			it := &p.Blocks[b].Items[i]
			base := itemPath(b, i)
			switch it.Kind {
			case protocol.KindMedication:
				if it.Medication != nil {
					out = append(out, activeMedication{med: it.Medication, path: base + ".medication"})
				}
			case protocol.KindChoice:
				if opt, ok := it.Choice.SelectedOption(); ok {
					out = append(out, activeMedication{med: opt, path: optionPath(b, i, *it.Choice.Selected)})
				}
			}
		}
	}
	return out
}

// Clone deep-copies the block tree.
func (p Prescription) Clone() Prescription {
	p.Blocks = cloneBlocks(p.Blocks)
	return p
}

func cloneBlocks(blocks []Block) []Block {
	if blocks == nil {
		return nil
	}
	out := make([]Block, len(blocks))
	for b, blk := range blocks {
		out[b] = Block{Order: blk.Order, Category: blk.Category, Items: make([]Item, len(blk.Items))}
		for i, it := range blk.Items {
			out[b].Items[i] = cloneItem(it)
		}
	}
	return out
}

func cloneItem(it Item) Item {
	c := Item{Kind: it.Kind}
	if it.Medication != nil {
		m := cloneMedication(*it.Medication)
		c.Medication = &m
	}
	if it.Choice != nil {
		ch := Choice{Label: it.Choice.Label, Options: make([]Medication, len(it.Choice.Options))}
		for k, o := range it.Choice.Options {
			ch.Options[k] = cloneMedication(o)
		}
		if it.Choice.Selected != nil {
			sel := *it.Choice.Selected
			ch.Selected = &sel
		}
		c.Choice = &ch
	}
	return c
}

func cloneMedication(m Medication) Medication {
	m.CycleDays = append([]int(nil), m.CycleDays...)
	m.DiluentOptions = append([]string(nil), m.DiluentOptions...)
	if m.Rule.MaxDose != nil {
		v := *m.Rule.MaxDose
		m.Rule.MaxDose = &v
	}
	if m.Rule.AdjustmentPercent != nil {
		m.Rule.AdjustmentPercent = dosing.Percent(*m.Rule.AdjustmentPercent)
	}
	return m
}

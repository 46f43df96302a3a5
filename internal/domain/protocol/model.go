package protocol

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oncoclinic/infusion/internal/domain/dosing"
	"github.com/oncoclinic/infusion/internal/domain/duration"
)

// Category groups the blocks of a template.
type Category string

const (
	CategoryPreMed           Category = "pre_med"
	CategoryTherapy          Category = "qt"
	CategoryPostMedInpatient Category = "pos_med_hospitalar"
	CategoryPostMedHome      Category = "pos_med_domiciliar"
)

var validCategories = map[Category]bool{
	CategoryPreMed: true, CategoryTherapy: true, CategoryPostMedInpatient: true, CategoryPostMedHome: true,
}

// Route is the administration route of a medication.
type Route string

const (
	RouteIV Route = "IV"
	RouteVO Route = "VO"
	RouteSC Route = "SC"
	RouteIT Route = "IT"
	RouteIM Route = "IM"
)

var validRoutes = map[Route]bool{RouteIV: true, RouteVO: true, RouteSC: true, RouteIT: true, RouteIM: true}

// ItemKind tags the variant held by an Item.
type ItemKind string

const (
	KindMedication ItemKind = "medication"
	KindChoice     ItemKind = "choice"
)

// Diluent lists the diluents allowed for a medication and the default pick.
type Diluent struct {
	Options  []string `json:"options,omitempty"`
	Selected string   `json:"selected,omitempty"`
}

// Medication is a single drug entry of a template.
type Medication struct {
	Name            string      `json:"name" validate:"required"`
	Rule            dosing.Rule `json:"rule"`
	Route           Route       `json:"route" validate:"required,oneof=IV VO SC IT IM"`
	InfusionMinutes int         `json:"infusion_minutes" validate:"gte=0"`
	Diluent         Diluent     `json:"diluent"`
	CycleDays       []int       `json:"cycle_days" validate:"min=1,unique,dive,gte=1"`
	Notes           string      `json:"notes,omitempty"`
}

// ChoiceGroup holds mutually exclusive alternatives.
type ChoiceGroup struct {
	Label   string       `json:"label"`
	Options []Medication `json:"options" validate:"min=1,dive"`
}

// Item is either a medication or a choice group, selected by Kind.
type Item struct {
	Kind       ItemKind     `json:"kind" validate:"required,oneof=medication choice"`
	Medication *Medication  `json:"medication,omitempty"`
	Choice     *ChoiceGroup `json:"choice,omitempty"`
}

// NewMedicationItem wraps m as an Item.
func NewMedicationItem(m Medication) Item {
	return Item{Kind: KindMedication, Medication: &m}
}

// NewChoiceItem wraps a choice group as an Item.
func NewChoiceItem(label string, options ...Medication) Item {
	return Item{Kind: KindChoice, Choice: &ChoiceGroup{Label: label, Options: options}}
}

// Check verifies that exactly the variant named by Kind is populated.
func (it Item) Check() error {
	switch it.Kind {
	case KindMedication:
		if it.Medication == nil || it.Choice != nil {
			return fmt.Errorf("medication item must carry only a medication")
		}
	case KindChoice:
		if it.Choice == nil || it.Medication != nil {
			return fmt.Errorf("choice item must carry only a choice group")
		}
		if len(it.Choice.Options) == 0 {
			return fmt.Errorf("choice group %q has no options", it.Choice.Label)
		}
	default:
		return fmt.Errorf("unknown item kind %q", it.Kind)
	}
	return nil
}

// Block is an ordered section of a template.
type Block struct {
	Order    int      `json:"order" validate:"gte=1"`
	Category Category `json:"category" validate:"required,oneof=pre_med qt pos_med_hospitalar pos_med_domiciliar"`
	Items    []Item   `json:"items" validate:"min=1,dive"`
}

// Template is a revision of the protocol's block structure for a range of
// cycles. An empty ApplicableCycles matches every cycle.
type Template struct {
	ID               string  `json:"id"`
	ApplicableCycles string  `json:"applicable_cycles,omitempty"`
	Blocks           []Block `json:"blocks" validate:"min=1,dive"`
}

// AppliesTo reports whether the template covers the cycle number.
func (t Template) AppliesTo(cycle int) bool {
	if strings.TrimSpace(t.ApplicableCycles) == "" {
		return true
	}
	set, err := ParseCycles(t.ApplicableCycles)
	if err != nil {
		return false
	}
	return set[cycle]
}

type Protocol struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Name            string     `db:"name" json:"name" validate:"required"`
	Indication      *string    `db:"indication" json:"indication,omitempty"`
	TotalMinutes    int        `db:"total_minutes" json:"total_minutes" validate:"gte=0"`
	CycleLengthDays int        `db:"cycle_length_days" json:"cycle_length_days" validate:"gte=0"`
	TotalCycles     *int       `db:"total_cycles" json:"total_cycles,omitempty" validate:"omitempty,gte=1"`
	AllowedWeekdays []int      `db:"allowed_weekdays" json:"allowed_weekdays,omitempty" validate:"unique,dive,gte=0,lte=6"`
	Active          bool       `db:"active" json:"active"`
	Templates       []Template `db:"templates" json:"templates" validate:"dive"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Bucket classifies the protocol by its authored total time.
func (p *Protocol) Bucket() duration.Bucket {
	return duration.Classify(p.TotalMinutes)
}

// Weekdays converts AllowedWeekdays to time.Weekday values.
func (p *Protocol) Weekdays() []time.Weekday {
	out := make([]time.Weekday, 0, len(p.AllowedWeekdays))
	for _, d := range p.AllowedWeekdays {
		out = append(out, time.Weekday(d))
	}
	return out
}

// TemplateForCycle returns the first template covering the cycle, falling
// back to the first template.
func (p *Protocol) TemplateForCycle(cycle int) (*Template, bool) {
	if len(p.Templates) == 0 {
		return nil, false
	}
	for i := range p.Templates {
		if p.Templates[i].AppliesTo(cycle) {
			return &p.Templates[i], true
		}
	}
	return &p.Templates[0], true
}

// TemplatesByPreference lists the template for the cycle first, then the
// remaining ones in authored order.
func (p *Protocol) TemplatesByPreference(cycle int) []Template {
	first, ok := p.TemplateForCycle(cycle)
	if !ok {
		return nil
	}
	out := []Template{*first}
	for _, t := range p.Templates {
		if t.ID != first.ID {
			out = append(out, t)
		}
	}
	return out
}

// ParseCycles parses "1", "2-4" and "1,3,5-6" into a set of cycle numbers.
func ParseCycles(s string) (map[int]bool, error) {
	set := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || from < 1 {
			return nil, fmt.Errorf("invalid cycle %q", part)
		}
		to := from
		if isRange {
			to, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || to < from {
				return nil, fmt.Errorf("invalid cycle range %q", part)
			}
		}
		for c := from; c <= to; c++ {
			set[c] = true
		}
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no cycles in %q", s)
	}
	return set, nil
}

// BlockOrderReport describes problems with a sequence of block orders.
type BlockOrderReport struct {
	Duplicates    []int
	NotContiguous bool
}

// CheckBlockOrders reports duplicate orders and whether the distinct orders
// fail to form 1..N. The two findings are independent.
func CheckBlockOrders(orders []int) BlockOrderReport {
	var rep BlockOrderReport
	seen := make(map[int]int, len(orders))
	for _, o := range orders {
		seen[o]++
		if seen[o] == 2 {
			rep.Duplicates = append(rep.Duplicates, o)
		}
	}
	distinct := make([]int, 0, len(seen))
	for o := range seen {
		distinct = append(distinct, o)
	}
	sort.Ints(distinct)
	for i, o := range distinct {
		if o != i+1 {
			rep.NotContiguous = true
			break
		}
	}
	sort.Ints(rep.Duplicates)
	return rep
}

// OK reports whether no problem was found.
func (r BlockOrderReport) OK() bool {
	return len(r.Duplicates) == 0 && !r.NotContiguous
}

// NormalizeDays sorts and de-duplicates cycle days, dropping non-positive ones.
func NormalizeDays(days []int) []int {
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d < 1 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// ValidCategory reports whether c is a known block category.
func ValidCategory(c Category) bool { return validCategories[c] }

// ValidRoute reports whether r is a known administration route.
func ValidRoute(r Route) bool { return validRoutes[r] }

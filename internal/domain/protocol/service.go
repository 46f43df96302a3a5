package protocol

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/oncoclinic/infusion/internal/platform/validation"
)

type Service struct {
	protocols Repository
	schema    *validation.Validator
}

func NewService(protocols Repository, schema *validation.Validator) *Service {
	return &Service{protocols: protocols, schema: schema}
}

// Validate normalizes p in place and returns every structural and
// consistency finding, or nil.
func (s *Service) Validate(p *Protocol) validation.Errors {
	p.Name = strings.TrimSpace(p.Name)
	sort.Ints(p.AllowedWeekdays)

	var errs validation.Errors
	if s.schema != nil {
		errs = append(errs, s.schema.Fields(p)...)
	}

	seenIDs := make(map[string]bool, len(p.Templates))
	for t := range p.Templates {
		tpl := &p.Templates[t]
		base := fmt.Sprintf("templates[%d]", t)
		if tpl.ID == "" {
			tpl.ID = uuid.NewString()
		}
		if seenIDs[tpl.ID] {
			errs = append(errs, validation.FieldError{Path: base + ".id", Message: "duplicate template id " + tpl.ID})
		}
		seenIDs[tpl.ID] = true

		if strings.TrimSpace(tpl.ApplicableCycles) != "" {
			if _, err := ParseCycles(tpl.ApplicableCycles); err != nil {
				errs = append(errs, validation.FieldError{Path: base + ".applicable_cycles", Message: err.Error()})
			}
		}
		errs = append(errs, checkTemplate(base, tpl, p.CycleLengthDays)...)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func checkTemplate(base string, tpl *Template, cycleLength int) validation.Errors {
	var errs validation.Errors

	orders := make([]int, len(tpl.Blocks))
	for b, blk := range tpl.Blocks {
		orders[b] = blk.Order
	}
	rep := CheckBlockOrders(orders)
	for _, d := range rep.Duplicates {
		errs = append(errs, validation.FieldError{Path: base + ".blocks", Message: fmt.Sprintf("block order %d is used more than once", d)})
	}
	if rep.NotContiguous {
		errs = append(errs, validation.FieldError{Path: base + ".blocks", Message: "block orders must be contiguous starting at 1"})
	}

	for b := range tpl.Blocks {
		for i := range tpl.Blocks[b].Items {
			it := &tpl.Blocks[b].Items[i]
			path := fmt.Sprintf("%s.blocks[%d].items[%d]", base, b, i)
			if err := it.Check(); err != nil {
				errs = append(errs, validation.FieldError{Path: path, Message: err.Error()})
				continue
			}
			var meds []*Medication
			if it.Medication != nil {
				meds = append(meds, it.Medication)
			} else {
				for k := range it.Choice.Options {
					meds = append(meds, &it.Choice.Options[k])
				}
			}
			for _, m := range meds {
				m.CycleDays = NormalizeDays(m.CycleDays)
				if cycleLength > 0 && len(m.CycleDays) > 0 && m.CycleDays[len(m.CycleDays)-1] > cycleLength {
					errs = append(errs, validation.FieldError{
						Path:    path,
						Message: fmt.Sprintf("%s: day %d exceeds the cycle length (%d days)", m.Name, m.CycleDays[len(m.CycleDays)-1], cycleLength),
					})
				}
				if m.Diluent.Selected != "" && len(m.Diluent.Options) > 0 && !contains(m.Diluent.Options, m.Diluent.Selected) {
					errs = append(errs, validation.FieldError{
						Path:    path,
						Message: fmt.Sprintf("%s: selected diluent %q is not among the options", m.Name, m.Diluent.Selected),
					})
				}
			}
		}
	}
	return errs
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (s *Service) CreateProtocol(ctx context.Context, p *Protocol) error {
	if errs := s.Validate(p); errs != nil {
		return errs
	}
	p.Active = true
	return s.protocols.Create(ctx, p)
}

func (s *Service) GetProtocol(ctx context.Context, id uuid.UUID) (*Protocol, error) {
	return s.protocols.GetByID(ctx, id)
}

func (s *Service) UpdateProtocol(ctx context.Context, p *Protocol) error {
	if errs := s.Validate(p); errs != nil {
		return errs
	}
	return s.protocols.Update(ctx, p)
}

// DeactivateProtocol hides a protocol from new prescriptions while keeping
// it readable for existing ones.
func (s *Service) DeactivateProtocol(ctx context.Context, id uuid.UUID) error {
	p, err := s.protocols.GetByID(ctx, id)
	if err != nil {
		return err
	}
	p.Active = false
	return s.protocols.Update(ctx, p)
}

func (s *Service) DeleteProtocol(ctx context.Context, id uuid.UUID) error {
	return s.protocols.Delete(ctx, id)
}

func (s *Service) ListProtocols(ctx context.Context, activeOnly bool, limit, offset int) ([]*Protocol, int, error) {
	return s.protocols.List(ctx, activeOnly, limit, offset)
}

// TemplateForCycle resolves the template a new prescription of the given
// cycle starts from.
func (s *Service) TemplateForCycle(ctx context.Context, id uuid.UUID, cycle int) (*Template, error) {
	p, err := s.protocols.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	tpl, ok := p.TemplateForCycle(cycle)
	if !ok {
		return nil, ErrNoTemplate
	}
	return tpl, nil
}

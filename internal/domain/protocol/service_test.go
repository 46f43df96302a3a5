package protocol

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/oncoclinic/infusion/internal/domain/dosing"
	"github.com/oncoclinic/infusion/internal/platform/validation"
)

type mockProtocolRepo struct {
	store map[uuid.UUID]*Protocol
}

func newMockProtocolRepo() *mockProtocolRepo {
	return &mockProtocolRepo{store: make(map[uuid.UUID]*Protocol)}
}

func (m *mockProtocolRepo) Create(_ context.Context, p *Protocol) error {
	p.ID = uuid.New()
	m.store[p.ID] = p
	return nil
}

func (m *mockProtocolRepo) GetByID(_ context.Context, id uuid.UUID) (*Protocol, error) {
	p, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockProtocolRepo) Update(_ context.Context, p *Protocol) error {
	if _, ok := m.store[p.ID]; !ok {
		return ErrNotFound
	}
	m.store[p.ID] = p
	return nil
}

func (m *mockProtocolRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.store, id)
	return nil
}

func (m *mockProtocolRepo) List(_ context.Context, activeOnly bool, limit, offset int) ([]*Protocol, int, error) {
	var out []*Protocol
	for _, p := range m.store {
		if !activeOnly || p.Active {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func newTestService() *Service {
	return NewService(newMockProtocolRepo(), validation.New())
}

func ivMedication(name string, days ...int) Medication {
	return Medication{
		Name:            name,
		Rule:            dosing.Rule{ReferenceDose: 175, Unit: dosing.UnitMgM2, AdjustmentPercent: dosing.Percent(100)},
		Route:           RouteIV,
		InfusionMinutes: 180,
		Diluent:         Diluent{Options: []string{"SF 0.9% 500ml"}, Selected: "SF 0.9% 500ml"},
		CycleDays:       days,
	}
}

func sampleProtocol() *Protocol {
	return &Protocol{
		Name:            "Paclitaxel weekly",
		TotalMinutes:    180,
		CycleLengthDays: 21,
		AllowedWeekdays: []int{3, 1},
		Templates: []Template{{
			ApplicableCycles: "1-6",
			Blocks: []Block{
				{Order: 1, Category: CategoryPreMed, Items: []Item{
					NewChoiceItem("Antiemetic", ivMedication("Ondansetron", 1), ivMedication("Granisetron", 1)),
				}},
				{Order: 2, Category: CategoryTherapy, Items: []Item{NewMedicationItem(ivMedication("Paclitaxel", 8, 1, 15))}},
			},
		}},
	}
}

func findingsContain(errs validation.Errors, path, fragment string) bool {
	for _, e := range errs {
		if e.Path == path && strings.Contains(e.Message, fragment) {
			return true
		}
	}
	return false
}

func TestCreateProtocol(t *testing.T) {
	svc := newTestService()
	p := sampleProtocol()
	if err := svc.CreateProtocol(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Active {
		t.Error("expected new protocol to be active")
	}
	if p.Templates[0].ID == "" {
		t.Error("expected template id to be assigned")
	}
	if p.AllowedWeekdays[0] != 1 {
		t.Errorf("expected sorted weekdays, got %v", p.AllowedWeekdays)
	}
	days := p.Templates[0].Blocks[1].Items[0].Medication.CycleDays
	if len(days) != 3 || days[0] != 1 || days[2] != 15 {
		t.Errorf("expected normalized days, got %v", days)
	}
}

func TestValidate_Findings(t *testing.T) {
	svc := newTestService()

	t.Run("structural", func(t *testing.T) {
		p := sampleProtocol()
		p.Name = " "
		p.AllowedWeekdays = []int{7}
		errs := svc.Validate(p)
		if !findingsContain(errs, "name", "required") {
			t.Errorf("expected name finding, got %v", errs)
		}
		if !findingsContain(errs, "allowed_weekdays[0]", "at most 6") {
			t.Errorf("expected weekday finding, got %v", errs)
		}
	})

	t.Run("block orders", func(t *testing.T) {
		p := sampleProtocol()
		p.Templates[0].Blocks[1].Order = 3
		errs := svc.Validate(p)
		if !findingsContain(errs, "templates[0].blocks", "contiguous") {
			t.Errorf("expected contiguity finding, got %v", errs)
		}
	})

	t.Run("cycle day beyond length", func(t *testing.T) {
		p := sampleProtocol()
		p.CycleLengthDays = 14
		errs := svc.Validate(p)
		if !findingsContain(errs, "templates[0].blocks[1].items[0]", "day 15 exceeds the cycle length (14 days)") {
			t.Errorf("expected cycle day finding, got %v", errs)
		}
	})

	t.Run("bad cycles and duplicate ids", func(t *testing.T) {
		p := sampleProtocol()
		p.Templates[0].ID = "t1"
		p.Templates[0].ApplicableCycles = "3-1"
		dup := p.Templates[0]
		dup.ApplicableCycles = ""
		p.Templates = append(p.Templates, dup)
		errs := svc.Validate(p)
		if !findingsContain(errs, "templates[0].applicable_cycles", "invalid cycle range") {
			t.Errorf("expected applicable cycles finding, got %v", errs)
		}
		if !findingsContain(errs, "templates[1].id", "duplicate") {
			t.Errorf("expected duplicate id finding, got %v", errs)
		}
	})

	t.Run("diluent not offered", func(t *testing.T) {
		p := sampleProtocol()
		p.Templates[0].Blocks[1].Items[0].Medication.Diluent.Selected = "SG 5%"
		errs := svc.Validate(p)
		if !findingsContain(errs, "templates[0].blocks[1].items[0]", "not among the options") {
			t.Errorf("expected diluent finding, got %v", errs)
		}
	})
}

func TestCreateProtocol_ReturnsValidationErrors(t *testing.T) {
	svc := newTestService()
	p := sampleProtocol()
	p.Templates[0].Blocks[0].Items[0] = Item{Kind: KindChoice}

	err := svc.CreateProtocol(context.Background(), p)
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation.Errors, got %v", err)
	}
	if !findingsContain(verrs, "templates[0].blocks[0].items[0]", "only a choice group") {
		t.Errorf("expected item variant finding, got %v", verrs)
	}
}

func TestDeactivateProtocol(t *testing.T) {
	svc := newTestService()
	p := sampleProtocol()
	svc.CreateProtocol(context.Background(), p)

	if err := svc.DeactivateProtocol(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, total, _ := svc.ListProtocols(context.Background(), true, 20, 0)
	if total != 0 || len(items) != 0 {
		t.Errorf("expected no active protocols, got %d", total)
	}
	if err := svc.DeactivateProtocol(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTemplateForCycleService(t *testing.T) {
	svc := newTestService()
	p := sampleProtocol()
	svc.CreateProtocol(context.Background(), p)

	tpl, err := svc.TemplateForCycle(context.Background(), p.ID, 2)
	if err != nil || tpl.ID != p.Templates[0].ID {
		t.Fatalf("expected first template, got %v %v", tpl, err)
	}

	empty := &Protocol{Name: "Empty"}
	svc.CreateProtocol(context.Background(), empty)
	if _, err := svc.TemplateForCycle(context.Background(), empty.ID, 1); !errors.Is(err, ErrNoTemplate) {
		t.Errorf("expected ErrNoTemplate, got %v", err)
	}
}

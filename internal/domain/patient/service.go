package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oncoclinic/infusion/internal/domain/dosing"
)

type Service struct {
	patients Repository
	now      func() time.Time
}

func NewService(patients Repository) *Service {
	return &Service{patients: patients, now: time.Now}
}

func (s *Service) validate(p *Patient) error {
	p.Name = strings.TrimSpace(p.Name)
	p.RecordNumber = strings.TrimSpace(p.RecordNumber)
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.RecordNumber == "" {
		return fmt.Errorf("record_number is required")
	}
	if p.WeightKg != nil && (*p.WeightKg <= 0 || *p.WeightKg >= 600) {
		return fmt.Errorf("weight_kg must be between 0 and 600")
	}
	if p.HeightCm != nil && *p.HeightCm <= 0 {
		return fmt.Errorf("height_cm must be positive")
	}
	if p.Creatinine != nil && *p.Creatinine < 0 {
		return fmt.Errorf("creatinine must not be negative")
	}
	if p.BirthDate != nil && p.BirthDate.After(s.now()) {
		return fmt.Errorf("birth_date is in the future")
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := s.validate(p); err != nil {
		return err
	}
	p.Active = true
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByRecordNumber(ctx context.Context, recordNumber string) (*Patient, error) {
	return s.patients.GetByRecordNumber(ctx, recordNumber)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := s.validate(p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) SearchPatients(ctx context.Context, name string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, strings.TrimSpace(name), limit, offset)
}

// Biometrics returns the patient's dosing input as of today.
func (s *Service) Biometrics(ctx context.Context, id uuid.UUID) (dosing.Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return dosing.Patient{}, err
	}
	return p.Biometrics(s.now()), nil
}

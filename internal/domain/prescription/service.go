package prescription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oncoclinic/infusion/internal/domain/dosing"
	"github.com/oncoclinic/infusion/internal/domain/protocol"
	"github.com/oncoclinic/infusion/internal/platform/db"
	"github.com/oncoclinic/infusion/internal/platform/metrics"
	"github.com/oncoclinic/infusion/internal/platform/validation"
)

// ProtocolSource resolves the protocol a prescription was built from.
type ProtocolSource interface {
	GetProtocol(ctx context.Context, id uuid.UUID) (*protocol.Protocol, error)
}

// BiometricsSource returns a patient's current dosing input.
type BiometricsSource interface {
	Biometrics(ctx context.Context, patientID uuid.UUID) (dosing.Patient, error)
}

type Service struct {
	prescriptions Repository
	protocols     ProtocolSource
	patients      BiometricsSource
	validator     *Validator
	tx            db.TxRunner
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

func NewService(prescriptions Repository, protocols ProtocolSource, patients BiometricsSource,
	validator *Validator, tx db.TxRunner, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		prescriptions: prescriptions,
		protocols:     protocols,
		patients:      patients,
		validator:     validator,
		tx:            tx,
		metrics:       m,
		logger:        logger,
	}
}

// Recalculate refreshes derived values without saving.
func (s *Service) Recalculate(p Prescription) Prescription {
	return RecalculateAll(p)
}

// Validate recalculates p and returns every finding, or nil. Nothing is
// saved.
func (s *Service) Validate(p Prescription) (Prescription, validation.Errors) {
	p = RecalculateAll(p)
	errs := s.validator.Validate(&p)
	if len(errs) == 0 {
		return p, nil
	}
	return p, errs
}

func (s *Service) CreatePrescription(ctx context.Context, p *Prescription) error {
	calc, errs := s.Validate(*p)
	if errs != nil {
		for _, e := range errs {
			s.metrics.ValidationFinding(e.Rule)
		}
		s.metrics.PrescriptionOutcome("rejected")
		return errs
	}
	*p = calc
	p.Status = StatusPending
	p.StatusReason = nil
	p.SubstitutedByID = nil
	if err := s.prescriptions.Create(ctx, p); err != nil {
		return err
	}
	s.metrics.PrescriptionOutcome("created")
	return nil
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.ListByPatient(ctx, patientID, limit, offset)
}

// ChangeStatus moves a prescription to status. Suspension and cancellation
// need a reason. Substitution goes through Substitute.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, status, reason string) (*Prescription, error) {
	if !validStatuses[status] || status == StatusSubstituted {
		return nil, ErrInvalidStatus
	}
	reason = strings.TrimSpace(reason)
	if (status == StatusSuspended || status == StatusCancelled) && reason == "" {
		return nil, ErrReasonRequired
	}
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Status = status
	if reason != "" {
		p.StatusReason = &reason
	} else {
		p.StatusReason = nil
	}
	if err := s.prescriptions.Update(ctx, p); err != nil {
		return nil, err
	}
	s.metrics.PrescriptionOutcome(status)
	return p, nil
}

// Substitute creates replacement and marks the original as substituted,
// linking the two, in one transaction.
func (s *Service) Substitute(ctx context.Context, originalID uuid.UUID, replacement *Prescription, reason string) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		orig, err := s.prescriptions.GetByID(ctx, originalID)
		if err != nil {
			return err
		}
		switch orig.Status {
		case StatusCompleted, StatusCancelled, StatusSubstituted:
			return ErrNotSubstitutable
		}

		replacement.PatientID = orig.PatientID
		calc, errs := s.Validate(*replacement)
		if errs != nil {
			return errs
		}
		*replacement = calc
		replacement.Status = StatusPending
		replacement.SubstitutesID = &orig.ID
		if err := s.prescriptions.Create(ctx, replacement); err != nil {
			return fmt.Errorf("create substitute: %w", err)
		}

		orig.Status = StatusSubstituted
		orig.SubstitutedByID = &replacement.ID
		if r := strings.TrimSpace(reason); r != "" {
			orig.StatusReason = &r
		}
		if err := s.prescriptions.Update(ctx, orig); err != nil {
			return fmt.Errorf("mark original substituted: %w", err)
		}
		s.metrics.PrescriptionOutcome(StatusSubstituted)
		return nil
	})
}

// RepeatLast prepares the next cycle from the patient's latest prescription.
// The template for the new cycle is merged with the prior items; the result
// is a decision for the client and nothing is saved.
func (s *Service) RepeatLast(ctx context.Context, patientID uuid.UUID) (*DecisionRequest, error) {
	prior, err := s.prescriptions.LatestForPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoPrior
		}
		return nil, err
	}
	bio, err := s.patients.Biometrics(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load biometrics: %w", err)
	}

	draft := Prescription{
		PatientID:       patientID,
		ProtocolID:      prior.ProtocolID,
		ProtocolName:    prior.ProtocolName,
		Diagnosis:       prior.Diagnosis,
		Cycle:           prior.Cycle + 1,
		CycleLengthDays: prior.CycleLengthDays,
		Patient:         snapshotOf(bio),
		Status:          StatusPending,
		Notes:           prior.Notes,
	}

	var warnings []string
	var templates []protocol.Template
	if prior.ProtocolID != nil {
		proto, err := s.protocols.GetProtocol(ctx, *prior.ProtocolID)
		switch {
		case err == nil:
			draft.ProtocolName = proto.Name
			if proto.CycleLengthDays > 0 {
				draft.CycleLengthDays = proto.CycleLengthDays
			}
			if proto.TotalCycles != nil && draft.Cycle > *proto.TotalCycles {
				warnings = append(warnings, fmt.Sprintf("cycle %d exceeds the %d cycles planned by %s",
					draft.Cycle, *proto.TotalCycles, proto.Name))
			}
			templates = proto.TemplatesByPreference(draft.Cycle)
		case errors.Is(err, protocol.ErrNotFound):
			warnings = append(warnings, "the protocol of the prior prescription no longer exists")
		default:
			return nil, err
		}
	}

	decision := Plan(*prior, draft, templates)
	decision.Warnings = append(decision.Warnings, warnings...)
	s.metrics.RepeatOutcome(decision.Outcome)
	if decision.Outcome == OutcomeFailed {
		s.logger.Info().
			Str("patient_id", patientID.String()).
			Str("prior_id", prior.ID.String()).
			Strs("orphans", decision.Orphans).
			Msg("repeat prescription could not follow the protocol template")
	}
	return &decision, nil
}

func snapshotOf(bio dosing.Patient) Snapshot {
	return Snapshot{
		WeightKg:   bio.WeightKg,
		HeightCm:   bio.HeightCm,
		AgeYears:   bio.AgeYears,
		Sex:        bio.Sex,
		Creatinine: bio.Creatinine,
	}
}

// InfusionProfile is what scheduling needs to know about a prescription.
type InfusionProfile struct {
	PrescriptionID  uuid.UUID      `json:"prescription_id"`
	ProtocolName    string         `json:"protocol_name"`
	Minutes         int            `json:"minutes"`
	AllowedWeekdays []time.Weekday `json:"allowed_weekdays,omitempty"`
}

// InfusionProfile resolves the chair time and weekday restriction of a
// prescription. The protocol's authored time wins; without one, the
// infusion times of the active medications are summed.
func (s *Service) InfusionProfile(ctx context.Context, id uuid.UUID) (*InfusionProfile, error) {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prof := &InfusionProfile{PrescriptionID: p.ID, ProtocolName: p.ProtocolName}
	if p.ProtocolID != nil {
		proto, err := s.protocols.GetProtocol(ctx, *p.ProtocolID)
		if err != nil && !errors.Is(err, protocol.ErrNotFound) {
			return nil, err
		}
		if proto != nil {
			prof.Minutes = proto.TotalMinutes
			prof.AllowedWeekdays = proto.Weekdays()
		}
	}
	if prof.Minutes == 0 {
		for _, am := range p.activeMedications() {
			prof.Minutes += am.med.InfusionMinutes
		}
	}
	return prof, nil
}

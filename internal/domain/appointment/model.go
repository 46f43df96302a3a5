package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/oncoclinic/infusion/internal/domain/capacity"
	"github.com/oncoclinic/infusion/internal/domain/duration"
)

// Consultation kinds.
const (
	ConsultationTriage     = "triage"
	ConsultationNavigation = "navigation"
)

// Procedure kinds.
const (
	ProcedureInfuserRemoval = "retirada_infusor"
	ProcedureParacentesis   = "paracentese_alivio"
	ProcedureCatheterCare   = "manutencao_cti"
	ProcedureStitchRemoval  = "retirada_pontos"
	ProcedureBagChange      = "troca_bolsa"
	ProcedureDressing       = "curativo"
	ProcedureMedication     = "medicacao"
)

const (
	DefaultConsultationMinutes = 30
	DefaultProcedureMinutes    = 60
	// Chair time of an infusion whose prescription has no infusion time.
	DefaultInfusionMinutes     = 60
)

var consultationMinutes = map[string]int{
	ConsultationTriage:     40,
	ConsultationNavigation: 60,
}

var procedureMinutes = map[string]int{
	ProcedureInfuserRemoval: 30,
	ProcedureParacentesis:   60,
	ProcedureCatheterCare:   45,
	ProcedureStitchRemoval:  10,
	ProcedureBagChange:      30,
	ProcedureDressing:       20,
	ProcedureMedication:     10,
}

// InfusionDetails ties an infusion appointment to its prescription and
// carries the pharmacy workflow.
type InfusionDetails struct {
	PrescriptionID  uuid.UUID `json:"prescription_id" validate:"required"`
	PharmacyStatus  string    `json:"pharmacy_status"`
	ExpectedReadyAt string    `json:"expected_ready_at,omitempty"`
	PreparedItems   []string  `json:"prepared_items,omitempty"`
	Cycle           int       `json:"cycle,omitempty" validate:"gte=0"`
	CycleDay        int       `json:"cycle_day,omitempty" validate:"gte=0"`
	// Protocol time resolved when booked; 0 when the prescription had none.
	ProtocolMinutes int       `json:"protocol_minutes,omitempty"`
}

type ProcedureDetails struct {
	Kind  string `json:"kind" validate:"required,oneof=retirada_infusor paracentese_alivio manutencao_cti retirada_pontos troca_bolsa curativo medicacao"`
	Notes string `json:"notes,omitempty"`
}

type ConsultationDetails struct {
	Kind  string `json:"kind,omitempty" validate:"omitempty,oneof=triage navigation"`
	Notes string `json:"notes,omitempty"`
}

// Details holds the variant matching the appointment type.
type Details struct {
	Infusion     *InfusionDetails     `json:"infusion,omitempty"`
	Procedure    *ProcedureDetails    `json:"procedure,omitempty"`
	Consultation *ConsultationDetails `json:"consultation,omitempty"`
}

// History entry kinds.
const (
	ChangeCreated     = "created"
	ChangeStatus      = "status"
	ChangeCheckin     = "checkin"
	ChangeRescheduled = "rescheduled"
	ChangePharmacy    = "pharmacy"
)

// HistoryEntry records who changed what on an appointment.
type HistoryEntry struct {
	At       time.Time `json:"at"`
	UserID   string    `json:"user_id,omitempty"`
	UserName string    `json:"user_name,omitempty"`
	Kind     string    `json:"kind"`
	Field    string    `json:"field,omitempty"`
	OldValue string    `json:"old_value,omitempty"`
	NewValue string    `json:"new_value,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

type Appointment struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	PatientID         uuid.UUID      `db:"patient_id" json:"patient_id" validate:"required"`
	Type              string         `db:"type" json:"type" validate:"required,oneof=infusion consultation procedure"`
	Date              string         `db:"date" json:"date" validate:"required,datetime=2006-01-02"`
	StartTime         string         `db:"start_time" json:"start_time" validate:"required,datetime=15:04"`
	EndTime           string         `db:"end_time" json:"end_time"`
	Status            string         `db:"status" json:"status"`
	StatusReason      *string        `db:"status_reason" json:"status_reason,omitempty"`
	CheckedIn         bool           `db:"checked_in" json:"checked_in"`
	Overbooked        bool           `db:"overbooked" json:"overbooked"`
	Details           Details        `db:"details" json:"details"`
	History           []HistoryEntry `db:"history" json:"history,omitempty"`
	RescheduledFromID *uuid.UUID     `db:"rescheduled_from_id" json:"rescheduled_from_id,omitempty"`
	RescheduledToID   *uuid.UUID     `db:"rescheduled_to_id" json:"rescheduled_to_id,omitempty"`
	Notes             *string        `db:"notes" json:"notes,omitempty"`
	CreatedBy         string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// DurationMinutes is the booked chair or room time. A range ending after
// midnight wraps.
func (a *Appointment) DurationMinutes() int {
	return a.scheduled().Minutes()
}

func (a *Appointment) scheduled() duration.TimeRange {
	return duration.TimeRange{Start: a.StartTime, End: a.EndTime}
}

// AsBooking converts the appointment for capacity evaluation. protocolMinutes
// is the current protocol time of an infusion's prescription; when it is
// unknown the time stored at booking is used.
func (a *Appointment) AsBooking(protocolMinutes int) capacity.Booking {
	b := capacity.Booking{Type: a.Type, Status: a.Status}
	if a.Type != capacity.TypeInfusion {
		return b
	}
	b.Scheduled = a.scheduled()
	b.ProtocolMinutes = protocolMinutes
	if b.ProtocolMinutes <= 0 && a.Details.Infusion != nil {
		b.ProtocolMinutes = a.Details.Infusion.ProtocolMinutes
	}
	return b
}

func (a *Appointment) record(e HistoryEntry) {
	a.History = append(a.History, e)
}

// DefaultMinutes is the room time of a consultation or procedure when the
// kind has no specific duration.
func DefaultMinutes(apptType string, d Details) int {
	switch apptType {
	case capacity.TypeConsultation:
		if d.Consultation != nil {
			if m, ok := consultationMinutes[d.Consultation.Kind]; ok {
				return m
			}
		}
		return DefaultConsultationMinutes
	case capacity.TypeProcedure:
		if d.Procedure != nil {
			if m, ok := procedureMinutes[d.Procedure.Kind]; ok {
				return m
			}
		}
		return DefaultProcedureMinutes
	}
	return 0
}

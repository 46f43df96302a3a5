package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("appointment not found")
	ErrInvalidStatus      = errors.New("invalid appointment status")
	ErrStatusNotAllowed   = errors.New("status not available for this appointment")
	ErrReasonRequired     = errors.New("a reason is required for this status")
	ErrRescheduleRequired = errors.New("use the reschedule operation to reschedule an appointment")
	ErrCheckinRequired    = errors.New("status requires the patient to be checked in")
	ErrCheckinLocked      = errors.New("check-in cannot be removed while the status requires presence")
	ErrCapacityFull       = errors.New("no capacity left for this day")
	ErrDayBlocked         = errors.New("bookings are not allowed on this day")
	ErrAlreadyRescheduled = errors.New("appointment was already rescheduled")
	ErrNotInfusion        = errors.New("appointment is not an infusion")
	ErrPharmacyLocked     = errors.New("pharmacy status is locked for suspended or rescheduled appointments")
	ErrInvalidPharmacy    = errors.New("invalid pharmacy status")
	ErrPrescriptionNeeded = errors.New("infusion appointments require a prescription")
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetMany(ctx context.Context, ids []uuid.UUID) ([]*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	// ListByDateRange returns the appointments between from and to
	// inclusive, both formatted as YYYY-MM-DD, ordered by date and start.
	ListByDateRange(ctx context.Context, from, to string) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
}

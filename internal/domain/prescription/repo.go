package prescription

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("prescription not found")
	ErrNoPrior          = errors.New("patient has no prior prescription")
	ErrInvalidStatus    = errors.New("invalid prescription status")
	ErrReasonRequired   = errors.New("a reason is required for this status")
	ErrNotSubstitutable = errors.New("prescription can no longer be substituted")
)

type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
	// LatestForPatient returns the most recently issued prescription that
	// was not cancelled.
	LatestForPatient(ctx context.Context, patientID uuid.UUID) (*Prescription, error)
}

package protocol

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("protocol not found")
	ErrNoTemplate = errors.New("protocol has no templates")
)

type Repository interface {
	Create(ctx context.Context, p *Protocol) error
	GetByID(ctx context.Context, id uuid.UUID) (*Protocol, error)
	Update(ctx context.Context, p *Protocol) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Protocol, int, error)
}

package repository

import (
	"context"

	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
)

type DealRepository interface {
	Create(ctx context.Context, deal *entity.Deal) (string, error)
	GetByID(ctx context.Context, id string) (*entity.Deal, error)
	GetByNDAID(ctx context.Context, ndaID string) (*entity.Deal, error)
	// Update persists the whole deal document guarded by the expected
	// version. Milestone and payment changes ride along.
	Update(ctx context.Context, deal *entity.Deal, expectedVersion int) error
	ListByParty(ctx context.Context, partyID string) ([]entity.Deal, error)
}

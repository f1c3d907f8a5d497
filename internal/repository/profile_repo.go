package repository

import (
	"context"

	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
)

// MatchProfileRepository reads buyer acquisition profiles. Profiles are
// written by the external buyer-profile service; this side is read-only.
type MatchProfileRepository interface {
	GetByBuyerID(ctx context.Context, buyerID string) (*entity.MatchProfile, error)
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/chgenberg/bolaxo-sub002/internal/repository"
)

// DisclosureGate is the single authority on the buyer-side question
// "may this actor see the gated fields of this listing right now".
// Owner and admin bypass is the caller's business, not the gate's.
type DisclosureGate interface {
	CanView(ctx context.Context, listingID, actorID string) (bool, error)
}

type disclosureGate struct {
	ndaRepo repository.NDARequestRepository
	now     func() time.Time
}

func NewDisclosureGate(ndaRepo repository.NDARequestRepository) DisclosureGate {
	return &disclosureGate{
		ndaRepo: ndaRepo,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CanView recomputes expiry on every call. A stored "approved" past its
// deadline grants nothing; the status field alone is never trusted.
func (g *disclosureGate) CanView(ctx context.Context, listingID, actorID string) (bool, error) {
	req, err := g.ndaRepo.FindActive(ctx, listingID, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return req.GrantsDisclosure(g.now()), nil
}

package repository

import (
	"context"
	"time"

	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
)

type NDARequestRepository interface {
	// Create inserts the request. The storage layer must enforce "at
	// most one active request per (listing, buyer)" atomically and
	// return ErrDuplicate when the slot is taken.
	Create(ctx context.Context, req *entity.NDARequest) (string, error)
	GetByID(ctx context.Context, id string) (*entity.NDARequest, error)
	// FindActive returns the pending-or-approved request for the pair,
	// regardless of wall-clock expiry, or ErrNotFound.
	FindActive(ctx context.Context, listingID, buyerID string) (*entity.NDARequest, error)
	// Update persists status, reason, deadline and timestamps guarded by
	// the expected version; ErrOptimisticLock when a concurrent writer won.
	Update(ctx context.Context, req *entity.NDARequest, expectedVersion int) error
	ListByListing(ctx context.Context, listingID string) ([]entity.NDARequest, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]entity.NDARequest, error)
	// ListStale returns pending/approved rows whose deadline passed
	// before the cutoff, for the advisory expiry sweep.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]entity.NDARequest, error)
}

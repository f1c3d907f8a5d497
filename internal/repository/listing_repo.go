package repository

import (
	"context"

	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
)

type ListingFilter struct {
	SellerID  string
	Status    entity.ListingStatus
	Category  string
	Region    string
	Query     string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

type ListListingsResult struct {
	Listings   []entity.Listing
	TotalCount int64
}

type ListingRepository interface {
	Create(ctx context.Context, listing *entity.Listing) (string, error)
	GetByID(ctx context.Context, id string) (*entity.Listing, error)
	// Update persists the full document guarded by the optimistic
	// version the listing was loaded with.
	Update(ctx context.Context, listing *entity.Listing, expectedVersion int) error
	SoftDelete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListingFilter) (*ListListingsResult, error)
}

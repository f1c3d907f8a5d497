package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chgenberg/bolaxo-sub002/internal/adapter/redis"
	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/logger"
	"github.com/chgenberg/bolaxo-sub002/internal/repository"
)

type CreateListingInput struct {
	Title        string
	Category     string
	Region       string
	Description  string
	Strengths    []string
	Risks        []string
	RevenueRange entity.MoneyRange
	AskingPrice  entity.MoneyRange
	EmployeeBand string
	IsBrokered   bool
	ContactEmail string
	Gated        entity.GatedDetails
}

type UpdateListingInput struct {
	Title        *string
	Category     *string
	Region       *string
	Description  *string
	Strengths    []string
	Risks        []string
	RevenueRange *entity.MoneyRange
	AskingPrice  *entity.MoneyRange
	EmployeeBand *string
	ContactEmail *string
	Gated        *entity.GatedDetails
}

type ListingService interface {
	CreateListing(ctx context.Context, actor entity.Actor, input CreateListingInput) (*entity.Listing, error)
	PublishListing(ctx context.Context, listingID string, actor entity.Actor) (*entity.Listing, error)
	UpdateListing(ctx context.Context, listingID string, actor entity.Actor, input UpdateListingInput) (*entity.Listing, error)
	WithdrawListing(ctx context.Context, listingID string, actor entity.Actor) error
	GetPublicView(ctx context.Context, listingID string) (*entity.PublicListing, error)
	GetFullView(ctx context.Context, listingID string, actor entity.Actor) (*entity.FullListing, error)
	RemoveListing(ctx context.Context, listingID string, actor entity.Actor) error
	SearchListings(ctx context.Context, filter repository.ListingFilter) (*repository.ListListingsResult, error)
	TopListings(ctx context.Context, n int64) ([]entity.PublicListing, error)
	ListingStats(ctx context.Context, listingID string, actor entity.Actor) (*ListingStats, error)
	ScoreListing(ctx context.Context, listingID string, actor entity.Actor) (*entity.MatchResult, error)
}

type ListingStats struct {
	ListingID string `json:"listing_id"`
	ViewCount int64  `json:"view_count"`
}

type listingService struct {
	listingRepo repository.ListingRepository
	profileRepo repository.MatchProfileRepository
	gate        DisclosureGate
	cache       redis.PublicViewCache
	cacheTTL    time.Duration
	views       redis.ViewCounter
	log         logger.Logger
	now         func() time.Time
}

func NewListingService(
	listingRepo repository.ListingRepository,
	profileRepo repository.MatchProfileRepository,
	gate DisclosureGate,
	cache redis.PublicViewCache,
	cacheTTL time.Duration,
	views redis.ViewCounter,
	log logger.Logger,
) ListingService {
	return &listingService{
		listingRepo: listingRepo,
		profileRepo: profileRepo,
		gate:        gate,
		cache:       cache,
		cacheTTL:    cacheTTL,
		views:       views,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *listingService) CreateListing(ctx context.Context, actor entity.Actor, input CreateListingInput) (*entity.Listing, error) {
	if actor.Role != entity.RoleSeller && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only sellers can create listings", entity.ErrForbidden)
	}

	listing, err := entity.NewListing(actor.ID, input.Title, input.Category, input.Region, input.Description)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}
	listing.Strengths = input.Strengths
	listing.Risks = input.Risks
	listing.RevenueRange = input.RevenueRange
	listing.AskingPrice = input.AskingPrice
	listing.EmployeeBand = input.EmployeeBand
	listing.IsBrokered = input.IsBrokered
	listing.ContactEmail = input.ContactEmail
	listing.Gated = input.Gated

	id, err := s.listingRepo.Create(ctx, listing)
	if err != nil {
		s.log.Errorf("Failed to create listing for seller %s: %v", actor.ID, err)
		return nil, fmt.Errorf("failed to save listing: %w", err)
	}
	listing.ID = id

	s.log.Infof("Listing %s created by seller %s", id, actor.ID)
	return listing, nil
}

func (s *listingService) loadOwned(ctx context.Context, listingID string, actor entity.Actor) (*entity.Listing, error) {
	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: listing %s", entity.ErrNotFound, listingID)
		}
		return nil, fmt.Errorf("failed to load listing %s: %w", listingID, err)
	}
	if !listing.IsOwnedBy(actor) && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: listing %s is not owned by actor %s", entity.ErrForbidden, listingID, actor.ID)
	}
	return listing, nil
}

func (s *listingService) PublishListing(ctx context.Context, listingID string, actor entity.Actor) (*entity.Listing, error) {
	listing, err := s.loadOwned(ctx, listingID, actor)
	if err != nil {
		return nil, err
	}
	version := listing.Version
	if err := listing.Publish(); err != nil {
		return nil, err
	}
	if err := s.listingRepo.Update(ctx, listing, version); err != nil {
		return nil, s.translateUpdateErr(listingID, err)
	}
	listing.Version = version + 1
	_ = s.cache.Delete(ctx, listingID)
	s.log.Infof("Listing %s published by %s", listingID, actor.ID)
	return listing, nil
}

func (s *listingService) UpdateListing(ctx context.Context, listingID string, actor entity.Actor, input UpdateListingInput) (*entity.Listing, error) {
	listing, err := s.loadOwned(ctx, listingID, actor)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		listing.Title = *input.Title
	}
	if input.Category != nil {
		listing.Category = *input.Category
	}
	if input.Region != nil {
		listing.Region = *input.Region
	}
	if input.Description != nil {
		listing.Description = *input.Description
	}
	if input.Strengths != nil {
		listing.Strengths = input.Strengths
	}
	if input.Risks != nil {
		listing.Risks = input.Risks
	}
	if input.RevenueRange != nil {
		listing.RevenueRange = *input.RevenueRange
	}
	if input.AskingPrice != nil {
		listing.AskingPrice = *input.AskingPrice
	}
	if input.EmployeeBand != nil {
		listing.EmployeeBand = *input.EmployeeBand
	}
	if input.ContactEmail != nil {
		listing.ContactEmail = *input.ContactEmail
	}
	if input.Gated != nil {
		listing.Gated = *input.Gated
	}

	version := listing.Version
	if err := s.listingRepo.Update(ctx, listing, version); err != nil {
		return nil, s.translateUpdateErr(listingID, err)
	}
	listing.Version = version + 1
	_ = s.cache.Delete(ctx, listingID)
	s.log.Infof("Listing %s updated by %s", listingID, actor.ID)
	return listing, nil
}

// WithdrawListing soft-removes the listing. The row stays behind so NDA
// requests and deals referencing it keep resolving.
func (s *listingService) WithdrawListing(ctx context.Context, listingID string, actor entity.Actor) error {
	listing, err := s.loadOwned(ctx, listingID, actor)
	if err != nil {
		return err
	}
	version := listing.Version
	if err := listing.Withdraw(); err != nil {
		return err
	}
	if err := s.listingRepo.Update(ctx, listing, version); err != nil {
		return s.translateUpdateErr(listingID, err)
	}
	_ = s.cache.Delete(ctx, listingID)
	s.log.Infof("Listing %s withdrawn by %s", listingID, actor.ID)
	return nil
}

// RemoveListing is the moderation path: admins soft-delete a listing
// outright. The row survives so NDA requests and deals keep resolving.
func (s *listingService) RemoveListing(ctx context.Context, listingID string, actor entity.Actor) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: only admins can remove listings", entity.ErrForbidden)
	}
	if err := s.listingRepo.SoftDelete(ctx, listingID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: listing %s", entity.ErrNotFound, listingID)
		}
		return fmt.Errorf("failed to remove listing %s: %w", listingID, err)
	}
	_ = s.cache.Delete(ctx, listingID)
	s.log.Infof("Listing %s removed by admin %s", listingID, actor.ID)
	return nil
}

func (s *listingService) GetPublicView(ctx context.Context, listingID string) (*entity.PublicListing, error) {
	if cached, err := s.cache.Get(ctx, listingID); err == nil {
		return cached, nil
	}

	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: listing %s", entity.ErrNotFound, listingID)
		}
		return nil, fmt.Errorf("failed to load listing %s: %w", listingID, err)
	}
	if listing.Deleted || listing.Status == entity.ListingStatusWithdrawn {
		return nil, fmt.Errorf("%w: listing %s", entity.ErrNotFound, listingID)
	}

	view := listing.PublicView(s.now())
	if err := s.cache.Set(ctx, &view, s.cacheTTL); err != nil {
		s.log.Warnf("Failed to cache public view of listing %s: %v", listingID, err)
	}
	return &view, nil
}

// GetFullView returns the projection with gated fields when the actor is
// the owner, an admin, or a buyer holding an approved unexpired NDA.
// Non-owner reads bump the popularity counter as a side effect.
func (s *listingService) GetFullView(ctx context.Context, listingID string, actor entity.Actor) (*entity.FullListing, error) {
	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: listing %s", entity.ErrNotFound, listingID)
		}
		return nil, fmt.Errorf("failed to load listing %s: %w", listingID, err)
	}
	if !listing.VisibleTo(actor) {
		return nil, fmt.Errorf("%w: listing %s", entity.ErrNotFound, listingID)
	}

	if !listing.IsOwnedBy(actor) {
		if !actor.IsAdmin() {
			allowed, err := s.gate.CanView(ctx, listingID, actor.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate disclosure for listing %s: %w", listingID, err)
			}
			if !allowed {
				return nil, fmt.Errorf("%w: gated fields of listing %s require an approved NDA", entity.ErrForbidden, listingID)
			}
		}
		if err := s.views.Increment(ctx, listingID); err != nil {
			s.log.Warnf("Failed to increment view count for listing %s: %v", listingID, err)
		}
	}

	view := listing.FullView(s.now())
	return &view, nil
}

func (s *listingService) SearchListings(ctx context.Context, filter repository.ListingFilter) (*repository.ListListingsResult, error) {
	// Public search never exposes drafts or withdrawn listings.
	if filter.Status == "" {
		filter.Status = entity.ListingStatusActive
	}
	result, err := s.listingRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	return result, nil
}

// TopListings returns the public views of the most-viewed listings, in
// popularity order. Listings that went inactive since the last view are
// silently skipped.
func (s *listingService) TopListings(ctx context.Context, n int64) ([]entity.PublicListing, error) {
	ids, err := s.views.TopListings(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load popularity ranking: %w", err)
	}

	views := make([]entity.PublicListing, 0, len(ids))
	for _, id := range ids {
		view, err := s.GetPublicView(ctx, id)
		if err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if view.Status == entity.ListingStatusActive {
			views = append(views, *view)
		}
	}
	return views, nil
}

// ListingStats exposes the view counter to the owning seller and admins.
func (s *listingService) ListingStats(ctx context.Context, listingID string, actor entity.Actor) (*ListingStats, error) {
	if _, err := s.loadOwned(ctx, listingID, actor); err != nil {
		return nil, err
	}
	count, err := s.views.Get(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load view count for listing %s: %w", listingID, err)
	}
	return &ListingStats{ListingID: listingID, ViewCount: count}, nil
}

// ScoreListing computes the buyer's fit from public attributes only.
// Gated fields must never reach the scorer.
func (s *listingService) ScoreListing(ctx context.Context, listingID string, actor entity.Actor) (*entity.MatchResult, error) {
	view, err := s.GetPublicView(ctx, listingID)
	if err != nil {
		return nil, err
	}

	profile, err := s.profileRepo.GetByBuyerID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// No stated preferences: every criterion auto-satisfies.
			profile = &entity.MatchProfile{BuyerID: actor.ID}
		} else {
			return nil, fmt.Errorf("failed to load match profile for buyer %s: %w", actor.ID, err)
		}
	}

	result := entity.ScoreMatch(*view, *profile)
	return &result, nil
}

func (s *listingService) translateUpdateErr(listingID string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: listing %s", entity.ErrNotFound, listingID)
	case errors.Is(err, repository.ErrOptimisticLock):
		return fmt.Errorf("%w: listing %s was modified concurrently", entity.ErrInvalidTransition, listingID)
	default:
		return fmt.Errorf("failed to update listing %s: %w", listingID, err)
	}
}

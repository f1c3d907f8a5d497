package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chgenberg/bolaxo-sub002/internal/adapter/nats"
	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/logger"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/metrics"
	"github.com/chgenberg/bolaxo-sub002/internal/repository"
)

type SubmitNDAInput struct {
	ListingID  string
	Message    string
	BuyerEmail string
}

type NDAService interface {
	SubmitRequest(ctx context.Context, actor entity.Actor, input SubmitNDAInput) (*entity.NDARequest, error)
	DecideRequest(ctx context.Context, requestID string, actor entity.Actor, decision entity.Decision, reason string) (*entity.NDARequest, error)
	ExtendRequest(ctx context.Context, requestID string, actor entity.Actor) (*entity.NDARequest, error)
	GetRequest(ctx context.Context, requestID string, actor entity.Actor) (*entity.NDARequest, error)
	ListForListing(ctx context.Context, listingID string, actor entity.Actor) ([]entity.NDARequest, error)
	ListForBuyer(ctx context.Context, actor entity.Actor) ([]entity.NDARequest, error)
	// SweepExpired flips stale pending/approved rows to expired. It is
	// advisory: the lazy recompute in reads stays authoritative.
	SweepExpired(ctx context.Context, batchSize int) (int, error)
}

type ndaService struct {
	ndaRepo     repository.NDARequestRepository
	listingRepo repository.ListingRepository
	publisher   nats.MessagePublisher
	metrics     *metrics.Manager
	log         logger.Logger
	now         func() time.Time
}

func NewNDAService(
	ndaRepo repository.NDARequestRepository,
	listingRepo repository.ListingRepository,
	publisher nats.MessagePublisher,
	m *metrics.Manager,
	log logger.Logger,
) NDAService {
	return &ndaService{
		ndaRepo:     ndaRepo,
		listingRepo: listingRepo,
		publisher:   publisher,
		metrics:     m,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *ndaService) SubmitRequest(ctx context.Context, actor entity.Actor, input SubmitNDAInput) (*entity.NDARequest, error) {
	if actor.Role != entity.RoleBuyer {
		return nil, fmt.Errorf("%w: only buyers can request NDA access", entity.ErrForbidden)
	}

	listing, err := s.listingRepo.GetByID(ctx, input.ListingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: listing %s", entity.ErrNotFound, input.ListingID)
		}
		return nil, fmt.Errorf("failed to load listing %s: %w", input.ListingID, err)
	}
	if listing.Deleted || listing.Status != entity.ListingStatusActive {
		return nil, fmt.Errorf("%w: listing %s is not open for NDA requests", entity.ErrPreconditionFailed, input.ListingID)
	}

	now := s.now()

	// A stored-active request past its deadline still occupies the
	// uniqueness slot; persist its expiry before inserting the new one.
	if existing, err := s.ndaRepo.FindActive(ctx, input.ListingID, actor.ID); err == nil {
		if existing.Active(now) {
			return nil, entity.ErrDuplicateActiveRequest
		}
		version := existing.Version
		if err := existing.MarkExpired(now); err == nil {
			if errUpd := s.ndaRepo.Update(ctx, existing, version); errUpd != nil && !errors.Is(errUpd, repository.ErrOptimisticLock) {
				s.log.Warnf("Failed to persist expiry of NDA request %s: %v", existing.ID, errUpd)
			}
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for active NDA request: %w", err)
	}

	req, err := entity.NewNDARequest(input.ListingID, actor.ID, listing.SellerID, input.Message, input.BuyerEmail, now)
	if err != nil {
		return nil, err
	}

	id, err := s.ndaRepo.Create(ctx, req)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// A concurrent submit won the index race.
			return nil, entity.ErrDuplicateActiveRequest
		}
		s.log.Errorf("Failed to save NDA request for listing %s buyer %s: %v", input.ListingID, actor.ID, err)
		return nil, fmt.Errorf("failed to save NDA request: %w", err)
	}
	req.ID = id

	s.metrics.NDASubmittedTotal.Inc()
	s.publishNDAEvent(ctx, entity.SubjectNDASubmitted, req, listing)

	s.log.Infof("NDA request %s submitted by buyer %s for listing %s", id, actor.ID, input.ListingID)
	return req, nil
}

func (s *ndaService) DecideRequest(ctx context.Context, requestID string, actor entity.Actor, decision entity.Decision, reason string) (*entity.NDARequest, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.CanDecide(actor) {
		return nil, fmt.Errorf("%w: only the listing owner or an admin can decide NDA request %s", entity.ErrForbidden, requestID)
	}

	now := s.now()
	version := req.Version

	switch decision {
	case entity.DecisionApprove:
		if err := req.Approve(now); err != nil {
			return nil, err
		}
	case entity.DecisionReject:
		if err := req.Reject(reason, now); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", entity.ErrValidation, decision)
	}

	if err := s.ndaRepo.Update(ctx, req, version); err != nil {
		if errors.Is(err, repository.ErrOptimisticLock) {
			// A concurrent decision won; this one loses as a guard violation.
			return nil, fmt.Errorf("%w: NDA request %s was decided concurrently", entity.ErrInvalidTransition, requestID)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: NDA request %s", entity.ErrNotFound, requestID)
		}
		s.log.Errorf("Failed to persist decision on NDA request %s: %v", requestID, err)
		return nil, fmt.Errorf("failed to update NDA request: %w", err)
	}

	listing := s.listingForEvent(ctx, req.ListingID)
	if decision == entity.DecisionApprove {
		s.metrics.NDAApprovedTotal.Inc()
		s.publishNDAEvent(ctx, entity.SubjectNDAApproved, req, listing)
	} else {
		s.metrics.NDARejectedTotal.Inc()
		s.publishNDAEvent(ctx, entity.SubjectNDARejected, req, listing)
	}

	s.log.Infof("NDA request %s decided (%s) by %s", requestID, decision, actor.ID)
	return req, nil
}

func (s *ndaService) ExtendRequest(ctx context.Context, requestID string, actor entity.Actor) (*entity.NDARequest, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can extend NDA requests", entity.ErrForbidden)
	}
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	version := req.Version
	if err := req.Extend(s.now()); err != nil {
		return nil, err
	}
	if err := s.ndaRepo.Update(ctx, req, version); err != nil {
		if errors.Is(err, repository.ErrOptimisticLock) {
			return nil, fmt.Errorf("%w: NDA request %s was modified concurrently", entity.ErrInvalidTransition, requestID)
		}
		return nil, fmt.Errorf("failed to extend NDA request %s: %w", requestID, err)
	}

	s.log.Infof("NDA request %s extended by admin %s until %s", requestID, actor.ID, req.ExpiresAt)
	return req, nil
}

func (s *ndaService) GetRequest(ctx context.Context, requestID string, actor entity.Actor) (*entity.NDARequest, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.ID != req.BuyerID && actor.ID != req.SellerID && !actor.IsAdmin() && !actor.IsAdvisor() {
		return nil, fmt.Errorf("%w: NDA request %s", entity.ErrForbidden, requestID)
	}
	return req.RedactFor(actor), nil
}

func (s *ndaService) ListForListing(ctx context.Context, listingID string, actor entity.Actor) ([]entity.NDARequest, error) {
	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: listing %s", entity.ErrNotFound, listingID)
		}
		return nil, fmt.Errorf("failed to load listing %s: %w", listingID, err)
	}
	if !listing.IsOwnedBy(actor) && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: listing %s", entity.ErrForbidden, listingID)
	}

	requests, err := s.ndaRepo.ListByListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list NDA requests for listing %s: %w", listingID, err)
	}
	for i := range requests {
		requests[i] = *requests[i].RedactFor(actor)
	}
	return requests, nil
}

func (s *ndaService) ListForBuyer(ctx context.Context, actor entity.Actor) ([]entity.NDARequest, error) {
	requests, err := s.ndaRepo.ListByBuyer(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list NDA requests for buyer %s: %w", actor.ID, err)
	}
	return requests, nil
}

func (s *ndaService) SweepExpired(ctx context.Context, batchSize int) (int, error) {
	now := s.now()
	stale, err := s.ndaRepo.ListStale(ctx, now, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale NDA requests: %w", err)
	}

	flipped := 0
	for i := range stale {
		req := stale[i]
		version := req.Version
		if err := req.MarkExpired(now); err != nil {
			continue
		}
		if err := s.ndaRepo.Update(ctx, &req, version); err != nil {
			// Lost to a concurrent writer; the next sweep catches it.
			if !errors.Is(err, repository.ErrOptimisticLock) {
				s.log.Warnf("Failed to mark NDA request %s expired: %v", req.ID, err)
			}
			continue
		}
		flipped++
		s.metrics.NDAExpiredTotal.Inc()
		s.publishNDAEvent(ctx, entity.SubjectNDAExpired, &req, s.listingForEvent(ctx, req.ListingID))
	}

	if flipped > 0 {
		s.log.Infof("Expiry sweep flipped %d NDA requests", flipped)
	}
	return flipped, nil
}

func (s *ndaService) loadRequest(ctx context.Context, requestID string) (*entity.NDARequest, error) {
	req, err := s.ndaRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: NDA request %s", entity.ErrNotFound, requestID)
		}
		return nil, fmt.Errorf("failed to load NDA request %s: %w", requestID, err)
	}
	return req, nil
}

func (s *ndaService) listingForEvent(ctx context.Context, listingID string) *entity.Listing {
	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		s.log.Warnf("Failed to load listing %s for event payload: %v", listingID, err)
		return &entity.Listing{ID: listingID}
	}
	return listing
}

// publishNDAEvent is fire-and-forget: delivery failures are logged and
// never roll back the transition that already committed.
func (s *ndaService) publishNDAEvent(ctx context.Context, subject string, req *entity.NDARequest, listing *entity.Listing) {
	event := entity.NDAEvent{
		RequestID:       req.ID,
		ListingID:       req.ListingID,
		ListingTitle:    listing.Title,
		BuyerID:         req.BuyerID,
		BuyerEmail:      req.BuyerEmail,
		SellerID:        req.SellerID,
		SellerEmail:     listing.ContactEmail,
		Message:         req.Message,
		RejectionReason: req.RejectionReason,
		ExpiresAt:       req.ExpiresAt,
		OccurredAt:      s.now(),
	}
	if err := s.publisher.Publish(ctx, subject, event); err != nil {
		s.log.Warnf("Failed to publish %s event for NDA request %s: %v", subject, req.ID, err)
	}
}

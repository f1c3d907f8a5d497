package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/chgenberg/bolaxo-sub002/internal/adapter/nats"
	"github.com/chgenberg/bolaxo-sub002/internal/adapter/storage"
	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/logger"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/metrics"
	"github.com/chgenberg/bolaxo-sub002/internal/repository"
	"github.com/google/uuid"
)

type CreateDealInput struct {
	ListingID string
	// BuyerID may be empty when the acting buyer creates their own deal.
	BuyerID string
}

type MilestoneInput struct {
	Stage            entity.DealStage
	Title            string
	DueDate          *time.Time
	IsRequired       bool
	AssigneeID       string
	RequiresDocument entity.DocumentType
}

type PaymentInput struct {
	Type         entity.PaymentType
	Amount       float64
	CurrencyCode string
}

type DocumentInput struct {
	Type        entity.DocumentType
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type DealService interface {
	CreateDeal(ctx context.Context, actor entity.Actor, input CreateDealInput) (*entity.Deal, error)
	GetDeal(ctx context.Context, dealID string, actor entity.Actor) (*entity.Deal, error)
	GetDealByNDA(ctx context.Context, ndaID string, actor entity.Actor) (*entity.Deal, error)
	ListDeals(ctx context.Context, actor entity.Actor) ([]entity.Deal, error)
	AddMilestone(ctx context.Context, dealID string, actor entity.Actor, input MilestoneInput) (*entity.Deal, error)
	// CompleteMilestone marks a milestone done, auto-advancing the stage
	// when it was the stage's last required one. adminOverride lets an
	// admin push past an expired backing NDA, leaving an audit entry.
	CompleteMilestone(ctx context.Context, dealID, milestoneID string, actor entity.Actor, adminOverride bool) (*entity.Deal, error)
	RevertStage(ctx context.Context, dealID string, actor entity.Actor, reason string) (*entity.Deal, error)
	RecordPayment(ctx context.Context, dealID string, actor entity.Actor, input PaymentInput) (*entity.Deal, error)
	UpdatePaymentStatus(ctx context.Context, dealID, paymentID string, actor entity.Actor, status entity.PaymentStatus) (*entity.Deal, error)
	AttachDocument(ctx context.Context, dealID string, actor entity.Actor, input DocumentInput) (*entity.Deal, error)
	SignDocument(ctx context.Context, dealID, documentID string, actor entity.Actor) (*entity.Deal, error)
	DownloadDocument(ctx context.Context, dealID, documentID string, actor entity.Actor) (*entity.Document, io.ReadCloser, error)
}

type dealService struct {
	dealRepo    repository.DealRepository
	ndaRepo     repository.NDARequestRepository
	listingRepo repository.ListingRepository
	documents   storage.DocumentStore
	publisher   nats.MessagePublisher
	metrics     *metrics.Manager
	log         logger.Logger
	now         func() time.Time
}

func NewDealService(
	dealRepo repository.DealRepository,
	ndaRepo repository.NDARequestRepository,
	listingRepo repository.ListingRepository,
	documents storage.DocumentStore,
	publisher nats.MessagePublisher,
	m *metrics.Manager,
	log logger.Logger,
) DealService {
	return &dealService{
		dealRepo:    dealRepo,
		ndaRepo:     ndaRepo,
		listingRepo: listingRepo,
		documents:   documents,
		publisher:   publisher,
		metrics:     m,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *dealService) CreateDeal(ctx context.Context, actor entity.Actor, input CreateDealInput) (*entity.Deal, error) {
	buyerID := input.BuyerID
	if buyerID == "" {
		buyerID = actor.ID
	}

	nda, err := s.ndaRepo.FindActive(ctx, input.ListingID, buyerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: no approved NDA exists for listing %s and buyer %s", entity.ErrPreconditionFailed, input.ListingID, buyerID)
		}
		return nil, fmt.Errorf("failed to check NDA for deal creation: %w", err)
	}

	now := s.now()
	if !nda.GrantsDisclosure(now) {
		return nil, fmt.Errorf("%w: NDA request %s is %s, not approved", entity.ErrPreconditionFailed, nda.ID, nda.EffectiveStatus(now))
	}

	if actor.ID != nda.BuyerID && actor.ID != nda.SellerID && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only the deal parties or an admin can open a deal", entity.ErrForbidden)
	}

	deal, err := entity.NewDeal(input.ListingID, nda.BuyerID, nda.SellerID, nda.ID, now)
	if err != nil {
		return nil, err
	}

	id, err := s.dealRepo.Create(ctx, deal)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: a deal already exists for NDA request %s", entity.ErrPreconditionFailed, nda.ID)
		}
		s.log.Errorf("Failed to create deal for listing %s buyer %s: %v", input.ListingID, buyerID, err)
		return nil, fmt.Errorf("failed to save deal: %w", err)
	}
	deal.ID = id

	s.metrics.DealsCreatedTotal.Inc()
	s.log.Infof("Deal %s created for listing %s (buyer %s, seller %s)", id, input.ListingID, deal.BuyerID, deal.SellerID)
	return deal, nil
}

func (s *dealService) GetDeal(ctx context.Context, dealID string, actor entity.Actor) (*entity.Deal, error) {
	return s.loadAuthorized(ctx, dealID, actor)
}

func (s *dealService) GetDealByNDA(ctx context.Context, ndaID string, actor entity.Actor) (*entity.Deal, error) {
	deal, err := s.dealRepo.GetByNDAID(ctx, ndaID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: no deal for NDA request %s", entity.ErrNotFound, ndaID)
		}
		return nil, fmt.Errorf("failed to load deal for NDA request %s: %w", ndaID, err)
	}
	if !deal.IsParty(actor) && !actor.IsAdmin() && !actor.IsAdvisor() {
		return nil, fmt.Errorf("%w: deal %s", entity.ErrForbidden, deal.ID)
	}
	return deal, nil
}

func (s *dealService) ListDeals(ctx context.Context, actor entity.Actor) ([]entity.Deal, error) {
	deals, err := s.dealRepo.ListByParty(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals for %s: %w", actor.ID, err)
	}
	return deals, nil
}

func (s *dealService) AddMilestone(ctx context.Context, dealID string, actor entity.Actor, input MilestoneInput) (*entity.Deal, error) {
	deal, err := s.loadAuthorized(ctx, dealID, actor)
	if err != nil {
		return nil, err
	}

	now := s.now()
	version := deal.Version
	milestone := entity.Milestone{
		ID:               uuid.NewString(),
		Stage:            input.Stage,
		Title:            input.Title,
		DueDate:          input.DueDate,
		IsRequired:       input.IsRequired,
		AssigneeID:       input.AssigneeID,
		RequiresDocument: input.RequiresDocument,
	}
	if err := deal.AddMilestone(milestone, now); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, deal, version); err != nil {
		return nil, err
	}
	return deal, nil
}

func (s *dealService) CompleteMilestone(ctx context.Context, dealID, milestoneID string, actor entity.Actor, adminOverride bool) (*entity.Deal, error) {
	deal, err := s.loadAuthorized(ctx, dealID, actor)
	if err != nil {
		return nil, err
	}

	now := s.now()

	// The deal itself survives NDA expiry, but new milestone work stops
	// unless an admin explicitly overrides.
	if err := s.checkBackingNDA(ctx, deal, now); err != nil {
		if !(adminOverride && actor.IsAdmin()) {
			return nil, err
		}
		deal.RecordAdminOverride(actor, fmt.Sprintf("milestone %s completed past NDA expiry", milestoneID), now)
		s.log.Warnf("Admin %s overrode expired NDA on deal %s", actor.ID, dealID)
	}

	version := deal.Version
	fromStage := deal.Stage
	advanced, err := deal.CompleteMilestone(milestoneID, actor, now)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, deal, version); err != nil {
		return nil, err
	}

	if advanced {
		s.metrics.StageAdvancesTotal.Inc()
		s.publishStageAdvanced(ctx, deal, fromStage)
		s.log.Infof("Deal %s advanced from %s to %s", dealID, fromStage, deal.Stage)
	}
	return deal, nil
}

func (s *dealService) RevertStage(ctx context.Context, dealID string, actor entity.Actor, reason string) (*entity.Deal, error) {
	deal, err := s.loadAuthorized(ctx, dealID, actor)
	if err != nil {
		return nil, err
	}

	version := deal.Version
	if err := deal.RevertStage(actor, reason, s.now()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, deal, version); err != nil {
		return nil, err
	}

	s.log.Infof("Deal %s reverted to stage %s by %s: %s", dealID, deal.Stage, actor.ID, reason)
	return deal, nil
}

func (s *dealService) RecordPayment(ctx context.Context, dealID string, actor entity.Actor, input PaymentInput) (*entity.Deal, error) {
	deal, err := s.loadAuthorized(ctx, dealID, actor)
	if err != nil {
		return nil, err
	}

	version := deal.Version
	payment := entity.Payment{
		ID:           uuid.NewString(),
		Type:         input.Type,
		Status:       entity.PaymentStatusPending,
		Amount:       input.Amount,
		CurrencyCode: input.CurrencyCode,
	}
	if err := deal.AddPayment(payment, s.now()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, deal, version); err != nil {
		return nil, err
	}
	return deal, nil
}

func (s *dealService) UpdatePaymentStatus(ctx context.Context, dealID, paymentID string, actor entity.Actor, status entity.PaymentStatus) (*entity.Deal, error) {
	deal, err := s.loadAuthorized(ctx, dealID, actor)
	if err != nil {
		return nil, err
	}

	version := deal.Version
	if err := deal.UpdatePaymentStatus(paymentID, status, s.now()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, deal, version); err != nil {
		return nil, err
	}
	return deal, nil
}

func (s *dealService) AttachDocument(ctx context.Context, dealID string, actor entity.Actor, input DocumentInput) (*entity.Deal, error) {
	deal, err := s.loadAuthorized(ctx, dealID, actor)
	if err != nil {
		return nil, err
	}
	if input.FileName == "" || input.Body == nil {
		return nil, fmt.Errorf("%w: document file name and content are required", entity.ErrValidation)
	}

	storageKey, err := s.documents.Upload(ctx, dealID, input.FileName, input.Size, input.ContentType, input.Body)
	if err != nil {
		s.log.Errorf("Failed to upload document for deal %s: %v", dealID, err)
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	version := deal.Version
	doc := entity.Document{
		ID:         uuid.NewString(),
		Type:       input.Type,
		Status:     entity.DocumentStatusDraft,
		FileName:   input.FileName,
		StorageKey: storageKey,
		UploadedBy: actor.ID,
	}
	if err := deal.AddDocument(doc, s.now()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, deal, version); err != nil {
		return nil, err
	}
	return deal, nil
}

func (s *dealService) SignDocument(ctx context.Context, dealID, documentID string, actor entity.Actor) (*entity.Deal, error) {
	deal, err := s.loadAuthorized(ctx, dealID, actor)
	if err != nil {
		return nil, err
	}

	version := deal.Version
	if err := deal.MarkDocumentSigned(documentID, s.now()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, deal, version); err != nil {
		return nil, err
	}
	return deal, nil
}

// DownloadDocument streams the stored file back to an authorized party.
// The caller owns the returned reader.
func (s *dealService) DownloadDocument(ctx context.Context, dealID, documentID string, actor entity.Actor) (*entity.Document, io.ReadCloser, error) {
	deal, err := s.loadAuthorized(ctx, dealID, actor)
	if err != nil {
		return nil, nil, err
	}

	var doc *entity.Document
	for i := range deal.Documents {
		if deal.Documents[i].ID == documentID {
			doc = &deal.Documents[i]
			break
		}
	}
	if doc == nil || doc.StorageKey == "" {
		return nil, nil, fmt.Errorf("%w: document %s", entity.ErrNotFound, documentID)
	}

	body, err := s.documents.Download(ctx, doc.StorageKey)
	if err != nil {
		s.log.Errorf("Failed to fetch document %s of deal %s: %v", documentID, dealID, err)
		return nil, nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	return doc, body, nil
}

func (s *dealService) loadAuthorized(ctx context.Context, dealID string, actor entity.Actor) (*entity.Deal, error) {
	deal, err := s.dealRepo.GetByID(ctx, dealID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: deal %s", entity.ErrNotFound, dealID)
		}
		return nil, fmt.Errorf("failed to load deal %s: %w", dealID, err)
	}
	if !deal.IsParty(actor) && !actor.IsAdmin() && !actor.IsAdvisor() {
		return nil, fmt.Errorf("%w: deal %s", entity.ErrForbidden, dealID)
	}
	return deal, nil
}

func (s *dealService) checkBackingNDA(ctx context.Context, deal *entity.Deal, now time.Time) error {
	nda, err := s.ndaRepo.GetByID(ctx, deal.NDAID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: backing NDA request %s no longer exists", entity.ErrPreconditionFailed, deal.NDAID)
		}
		return fmt.Errorf("failed to load backing NDA request %s: %w", deal.NDAID, err)
	}
	if !nda.GrantsDisclosure(now) {
		return fmt.Errorf("%w: backing NDA request %s is %s", entity.ErrPreconditionFailed, deal.NDAID, nda.EffectiveStatus(now))
	}
	return nil
}

func (s *dealService) persist(ctx context.Context, deal *entity.Deal, expectedVersion int) error {
	if err := s.dealRepo.Update(ctx, deal, expectedVersion); err != nil {
		if errors.Is(err, repository.ErrOptimisticLock) {
			return fmt.Errorf("%w: deal %s was modified concurrently", entity.ErrInvalidTransition, deal.ID)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: deal %s", entity.ErrNotFound, deal.ID)
		}
		s.log.Errorf("Failed to persist deal %s: %v", deal.ID, err)
		return fmt.Errorf("failed to update deal: %w", err)
	}
	return nil
}

func (s *dealService) publishStageAdvanced(ctx context.Context, deal *entity.Deal, from entity.DealStage) {
	title := ""
	if listing, err := s.listingRepo.GetByID(ctx, deal.ListingID); err == nil {
		title = listing.Title
	}
	event := entity.DealStageAdvancedEvent{
		DealID:       deal.ID,
		ListingID:    deal.ListingID,
		ListingTitle: title,
		BuyerID:      deal.BuyerID,
		SellerID:     deal.SellerID,
		FromStage:    from,
		ToStage:      deal.Stage,
		OccurredAt:   s.now(),
	}
	if err := s.publisher.Publish(ctx, entity.SubjectDealStageAdvanced, event); err != nil {
		s.log.Warnf("Failed to publish stage advanced event for deal %s: %v", deal.ID, err)
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/logger"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/metrics"
	"github.com/chgenberg/bolaxo-sub002/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var (
	buyer  = entity.Actor{ID: "buyer-1", Role: entity.RoleBuyer}
	seller = entity.Actor{ID: "seller-1", Role: entity.RoleSeller}
	admin  = entity.Actor{ID: "admin-1", Role: entity.RoleAdmin}
)

func activeListing() *entity.Listing {
	return &entity.Listing{
		ID:           "listing-1",
		SellerID:     "seller-1",
		Title:        "Cafe chain",
		Status:       entity.ListingStatusActive,
		ContactEmail: "seller@example.com",
		Version:      2,
	}
}

func newNDAServiceForTest(ndaRepo *MockNDARequestRepository, listingRepo *MockListingRepository, publisher *MockPublisher) NDAService {
	svc := NewNDAService(ndaRepo, listingRepo, publisher, metrics.NewManager("test"), logger.NewNop())
	svc.(*ndaService).now = func() time.Time { return testNow }
	return svc
}

func pendingRequest() *entity.NDARequest {
	req, _ := entity.NewNDARequest("listing-1", "buyer-1", "seller-1", "Very interested", "buyer@example.com", testNow.Add(-24*time.Hour))
	req.ID = "nda-1"
	return req
}

func TestNDAService_SubmitRequest_Success(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	listingRepo := new(MockListingRepository)
	publisher := new(MockPublisher)
	svc := newNDAServiceForTest(ndaRepo, listingRepo, publisher)

	listingRepo.On("GetByID", mock.Anything, "listing-1").Return(activeListing(), nil).Once()
	ndaRepo.On("FindActive", mock.Anything, "listing-1", "buyer-1").Return(nil, repository.ErrNotFound).Once()
	ndaRepo.On("Create", mock.Anything, mock.MatchedBy(func(req *entity.NDARequest) bool {
		return req.ListingID == "listing-1" && req.BuyerID == "buyer-1" && req.SellerID == "seller-1" &&
			req.Status == entity.NDAStatusPending
	})).Return("nda-1", nil).Once()
	publisher.On("Publish", mock.Anything, entity.SubjectNDASubmitted, mock.Anything).Return(nil).Once()

	req, err := svc.SubmitRequest(context.Background(), buyer, SubmitNDAInput{
		ListingID:  "listing-1",
		Message:    "Very interested",
		BuyerEmail: "buyer@example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, "nda-1", req.ID)
	assert.Equal(t, testNow.Add(entity.NDARequestTTL), req.ExpiresAt)
	ndaRepo.AssertExpectations(t)
	listingRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestNDAService_SubmitRequest_NonBuyerForbidden(t *testing.T) {
	svc := newNDAServiceForTest(new(MockNDARequestRepository), new(MockListingRepository), new(MockPublisher))

	_, err := svc.SubmitRequest(context.Background(), seller, SubmitNDAInput{ListingID: "listing-1", Message: "hi"})
	assert.ErrorIs(t, err, entity.ErrForbidden)
}

func TestNDAService_SubmitRequest_InactiveListing(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	listingRepo := new(MockListingRepository)
	svc := newNDAServiceForTest(ndaRepo, listingRepo, new(MockPublisher))

	withdrawn := activeListing()
	withdrawn.Status = entity.ListingStatusWithdrawn
	listingRepo.On("GetByID", mock.Anything, "listing-1").Return(withdrawn, nil).Once()

	_, err := svc.SubmitRequest(context.Background(), buyer, SubmitNDAInput{ListingID: "listing-1", Message: "hi"})
	assert.ErrorIs(t, err, entity.ErrPreconditionFailed)
}

func TestNDAService_SubmitRequest_DuplicateActive(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	listingRepo := new(MockListingRepository)
	svc := newNDAServiceForTest(ndaRepo, listingRepo, new(MockPublisher))

	listingRepo.On("GetByID", mock.Anything, "listing-1").Return(activeListing(), nil).Once()
	ndaRepo.On("FindActive", mock.Anything, "listing-1", "buyer-1").Return(pendingRequest(), nil).Once()

	_, err := svc.SubmitRequest(context.Background(), buyer, SubmitNDAInput{ListingID: "listing-1", Message: "hi"})
	assert.ErrorIs(t, err, entity.ErrDuplicateActiveRequest)
	ndaRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestNDAService_SubmitRequest_StaleActiveRowIsExpiredFirst(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	listingRepo := new(MockListingRepository)
	publisher := new(MockPublisher)
	svc := newNDAServiceForTest(ndaRepo, listingRepo, publisher)

	// Stored as pending but past its deadline: does not block, gets its
	// expiry persisted, and the new request goes through.
	stale := pendingRequest()
	stale.ExpiresAt = testNow.Add(-time.Hour)
	staleVersion := stale.Version

	listingRepo.On("GetByID", mock.Anything, "listing-1").Return(activeListing(), nil).Once()
	ndaRepo.On("FindActive", mock.Anything, "listing-1", "buyer-1").Return(stale, nil).Once()
	ndaRepo.On("Update", mock.Anything, mock.MatchedBy(func(req *entity.NDARequest) bool {
		return req.ID == "nda-1" && req.Status == entity.NDAStatusExpired
	}), staleVersion).Return(nil).Once()
	ndaRepo.On("Create", mock.Anything, mock.Anything).Return("nda-2", nil).Once()
	publisher.On("Publish", mock.Anything, entity.SubjectNDASubmitted, mock.Anything).Return(nil).Once()

	req, err := svc.SubmitRequest(context.Background(), buyer, SubmitNDAInput{ListingID: "listing-1", Message: "second try"})
	require.NoError(t, err)
	assert.Equal(t, "nda-2", req.ID)
	ndaRepo.AssertExpectations(t)
}

func TestNDAService_SubmitRequest_IndexRaceMapsToDuplicate(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	listingRepo := new(MockListingRepository)
	svc := newNDAServiceForTest(ndaRepo, listingRepo, new(MockPublisher))

	listingRepo.On("GetByID", mock.Anything, "listing-1").Return(activeListing(), nil).Once()
	ndaRepo.On("FindActive", mock.Anything, "listing-1", "buyer-1").Return(nil, repository.ErrNotFound).Once()
	ndaRepo.On("Create", mock.Anything, mock.Anything).Return("", repository.ErrDuplicate).Once()

	_, err := svc.SubmitRequest(context.Background(), buyer, SubmitNDAInput{ListingID: "listing-1", Message: "hi"})
	assert.ErrorIs(t, err, entity.ErrDuplicateActiveRequest)
}

func TestNDAService_DecideRequest_Approve(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	listingRepo := new(MockListingRepository)
	publisher := new(MockPublisher)
	svc := newNDAServiceForTest(ndaRepo, listingRepo, publisher)

	req := pendingRequest()
	loadedVersion := req.Version
	ndaRepo.On("GetByID", mock.Anything, "nda-1").Return(req, nil).Once()
	ndaRepo.On("Update", mock.Anything, mock.MatchedBy(func(r *entity.NDARequest) bool {
		return r.Status == entity.NDAStatusApproved && r.ExpiresAt.Equal(testNow.Add(entity.NDAApprovalTTL))
	}), loadedVersion).Return(nil).Once()
	listingRepo.On("GetByID", mock.Anything, "listing-1").Return(activeListing(), nil).Once()
	publisher.On("Publish", mock.Anything, entity.SubjectNDAApproved, mock.Anything).Return(nil).Once()

	decided, err := svc.DecideRequest(context.Background(), "nda-1", seller, entity.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, entity.NDAStatusApproved, decided.Status)
	ndaRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestNDAService_DecideRequest_RejectCarriesReason(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	listingRepo := new(MockListingRepository)
	publisher := new(MockPublisher)
	svc := newNDAServiceForTest(ndaRepo, listingRepo, publisher)

	ndaRepo.On("GetByID", mock.Anything, "nda-1").Return(pendingRequest(), nil).Once()
	ndaRepo.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	listingRepo.On("GetByID", mock.Anything, "listing-1").Return(activeListing(), nil).Once()
	publisher.On("Publish", mock.Anything, entity.SubjectNDARejected, mock.MatchedBy(func(e interface{}) bool {
		event, ok := e.(entity.NDAEvent)
		return ok && event.RejectionReason == "not a serious buyer"
	})).Return(nil).Once()

	decided, err := svc.DecideRequest(context.Background(), "nda-1", admin, entity.DecisionReject, "not a serious buyer")
	require.NoError(t, err)
	assert.Equal(t, entity.NDAStatusRejected, decided.Status)
	publisher.AssertExpectations(t)
}

func TestNDAService_DecideRequest_Forbidden(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	svc := newNDAServiceForTest(ndaRepo, new(MockListingRepository), new(MockPublisher))

	ndaRepo.On("GetByID", mock.Anything, "nda-1").Return(pendingRequest(), nil).Twice()

	_, err := svc.DecideRequest(context.Background(), "nda-1", buyer, entity.DecisionApprove, "")
	assert.ErrorIs(t, err, entity.ErrForbidden)

	otherSeller := entity.Actor{ID: "seller-2", Role: entity.RoleSeller}
	_, err = svc.DecideRequest(context.Background(), "nda-1", otherSeller, entity.DecisionApprove, "")
	assert.ErrorIs(t, err, entity.ErrForbidden)
}

func TestNDAService_DecideRequest_ConcurrentLoser(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	svc := newNDAServiceForTest(ndaRepo, new(MockListingRepository), new(MockPublisher))

	ndaRepo.On("GetByID", mock.Anything, "nda-1").Return(pendingRequest(), nil).Once()
	ndaRepo.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(repository.ErrOptimisticLock).Once()

	_, err := svc.DecideRequest(context.Background(), "nda-1", seller, entity.DecisionApprove, "")
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)
}

func TestNDAService_DecideRequest_ExpiredPending(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	svc := newNDAServiceForTest(ndaRepo, new(MockListingRepository), new(MockPublisher))

	stale := pendingRequest()
	stale.ExpiresAt = testNow.Add(-time.Minute)
	ndaRepo.On("GetByID", mock.Anything, "nda-1").Return(stale, nil).Once()

	_, err := svc.DecideRequest(context.Background(), "nda-1", seller, entity.DecisionApprove, "")
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)
	ndaRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestNDAService_ExtendRequest_AdminOnly(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	svc := newNDAServiceForTest(ndaRepo, new(MockListingRepository), new(MockPublisher))

	_, err := svc.ExtendRequest(context.Background(), "nda-1", seller)
	assert.ErrorIs(t, err, entity.ErrForbidden)

	req := pendingRequest()
	originalDeadline := req.ExpiresAt
	ndaRepo.On("GetByID", mock.Anything, "nda-1").Return(req, nil).Once()
	ndaRepo.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	extended, err := svc.ExtendRequest(context.Background(), "nda-1", admin)
	require.NoError(t, err)
	assert.Equal(t, originalDeadline.Add(entity.NDAExtensionPeriod), extended.ExpiresAt)
}

func TestNDAService_GetRequest_AccessAndRedaction(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	svc := newNDAServiceForTest(ndaRepo, new(MockListingRepository), new(MockPublisher))

	req := pendingRequest()
	require.NoError(t, req.Reject("weak financing", testNow))
	ndaRepo.On("GetByID", mock.Anything, "nda-1").Return(req, nil)

	got, err := svc.GetRequest(context.Background(), "nda-1", buyer)
	require.NoError(t, err)
	assert.Equal(t, "weak financing", got.RejectionReason)

	got, err = svc.GetRequest(context.Background(), "nda-1", seller)
	require.NoError(t, err)
	assert.Empty(t, got.RejectionReason, "reason is private to the buyer and staff")

	stranger := entity.Actor{ID: "nosy", Role: entity.RoleBuyer}
	_, err = svc.GetRequest(context.Background(), "nda-1", stranger)
	assert.ErrorIs(t, err, entity.ErrForbidden)
}

func TestNDAService_ListForListing_OwnerOnly(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	listingRepo := new(MockListingRepository)
	svc := newNDAServiceForTest(ndaRepo, listingRepo, new(MockPublisher))

	listingRepo.On("GetByID", mock.Anything, "listing-1").Return(activeListing(), nil)

	_, err := svc.ListForListing(context.Background(), "listing-1", buyer)
	assert.ErrorIs(t, err, entity.ErrForbidden)

	ndaRepo.On("ListByListing", mock.Anything, "listing-1").Return([]entity.NDARequest{*pendingRequest()}, nil).Once()
	requests, err := svc.ListForListing(context.Background(), "listing-1", seller)
	require.NoError(t, err)
	assert.Len(t, requests, 1)
}

func TestNDAService_SweepExpired(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	listingRepo := new(MockListingRepository)
	publisher := new(MockPublisher)
	svc := newNDAServiceForTest(ndaRepo, listingRepo, publisher)

	first := *pendingRequest()
	first.ExpiresAt = testNow.Add(-time.Hour)
	second := *pendingRequest()
	second.ID = "nda-2"
	second.ExpiresAt = testNow.Add(-2 * time.Hour)

	ndaRepo.On("ListStale", mock.Anything, testNow, 100).Return([]entity.NDARequest{first, second}, nil).Once()
	// First flip wins, second loses to a concurrent writer.
	ndaRepo.On("Update", mock.Anything, mock.MatchedBy(func(r *entity.NDARequest) bool { return r.ID == "nda-1" }), first.Version).Return(nil).Once()
	ndaRepo.On("Update", mock.Anything, mock.MatchedBy(func(r *entity.NDARequest) bool { return r.ID == "nda-2" }), second.Version).Return(repository.ErrOptimisticLock).Once()
	listingRepo.On("GetByID", mock.Anything, "listing-1").Return(activeListing(), nil).Once()
	publisher.On("Publish", mock.Anything, entity.SubjectNDAExpired, mock.Anything).Return(nil).Once()

	flipped, err := svc.SweepExpired(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)
	ndaRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

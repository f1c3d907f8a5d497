package service

import (
	"context"
	"io"
	"time"

	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
	"github.com/chgenberg/bolaxo-sub002/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockListingRepository struct {
	mock.Mock
}

func (m *MockListingRepository) Create(ctx context.Context, listing *entity.Listing) (string, error) {
	args := m.Called(ctx, listing)
	return args.String(0), args.Error(1)
}

func (m *MockListingRepository) GetByID(ctx context.Context, id string) (*entity.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Listing), args.Error(1)
}

func (m *MockListingRepository) Update(ctx context.Context, listing *entity.Listing, expectedVersion int) error {
	args := m.Called(ctx, listing, expectedVersion)
	return args.Error(0)
}

func (m *MockListingRepository) SoftDelete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockListingRepository) List(ctx context.Context, filter repository.ListingFilter) (*repository.ListListingsResult, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ListListingsResult), args.Error(1)
}

type MockNDARequestRepository struct {
	mock.Mock
}

func (m *MockNDARequestRepository) Create(ctx context.Context, req *entity.NDARequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockNDARequestRepository) GetByID(ctx context.Context, id string) (*entity.NDARequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.NDARequest), args.Error(1)
}

func (m *MockNDARequestRepository) FindActive(ctx context.Context, listingID, buyerID string) (*entity.NDARequest, error) {
	args := m.Called(ctx, listingID, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.NDARequest), args.Error(1)
}

func (m *MockNDARequestRepository) Update(ctx context.Context, req *entity.NDARequest, expectedVersion int) error {
	args := m.Called(ctx, req, expectedVersion)
	return args.Error(0)
}

func (m *MockNDARequestRepository) ListByListing(ctx context.Context, listingID string) ([]entity.NDARequest, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.NDARequest), args.Error(1)
}

func (m *MockNDARequestRepository) ListByBuyer(ctx context.Context, buyerID string) ([]entity.NDARequest, error) {
	args := m.Called(ctx, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.NDARequest), args.Error(1)
}

func (m *MockNDARequestRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]entity.NDARequest, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.NDARequest), args.Error(1)
}

type MockDealRepository struct {
	mock.Mock
}

func (m *MockDealRepository) Create(ctx context.Context, deal *entity.Deal) (string, error) {
	args := m.Called(ctx, deal)
	return args.String(0), args.Error(1)
}

func (m *MockDealRepository) GetByID(ctx context.Context, id string) (*entity.Deal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Deal), args.Error(1)
}

func (m *MockDealRepository) GetByNDAID(ctx context.Context, ndaID string) (*entity.Deal, error) {
	args := m.Called(ctx, ndaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Deal), args.Error(1)
}

func (m *MockDealRepository) Update(ctx context.Context, deal *entity.Deal, expectedVersion int) error {
	args := m.Called(ctx, deal, expectedVersion)
	return args.Error(0)
}

func (m *MockDealRepository) ListByParty(ctx context.Context, partyID string) ([]entity.Deal, error) {
	args := m.Called(ctx, partyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Deal), args.Error(1)
}

type MockMatchProfileRepository struct {
	mock.Mock
}

func (m *MockMatchProfileRepository) GetByBuyerID(ctx context.Context, buyerID string) (*entity.MatchProfile, error) {
	args := m.Called(ctx, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.MatchProfile), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, message interface{}) error {
	args := m.Called(ctx, subject, message)
	return args.Error(0)
}

func (m *MockPublisher) PublishRaw(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

type MockPublicViewCache struct {
	mock.Mock
}

func (m *MockPublicViewCache) Get(ctx context.Context, listingID string) (*entity.PublicListing, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.PublicListing), args.Error(1)
}

func (m *MockPublicViewCache) Set(ctx context.Context, view *entity.PublicListing, ttl time.Duration) error {
	args := m.Called(ctx, view, ttl)
	return args.Error(0)
}

func (m *MockPublicViewCache) Delete(ctx context.Context, listingID string) error {
	args := m.Called(ctx, listingID)
	return args.Error(0)
}

type MockViewCounter struct {
	mock.Mock
}

func (m *MockViewCounter) Increment(ctx context.Context, listingID string) error {
	args := m.Called(ctx, listingID)
	return args.Error(0)
}

func (m *MockViewCounter) Get(ctx context.Context, listingID string) (int64, error) {
	args := m.Called(ctx, listingID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockViewCounter) TopListings(ctx context.Context, n int64) ([]string, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockDocumentStore struct {
	mock.Mock
}

func (m *MockDocumentStore) Upload(ctx context.Context, dealID, originalFileName string, size int64, contentType string, body io.Reader) (string, error) {
	args := m.Called(ctx, dealID, originalFileName, size, contentType, body)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentStore) Download(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	args := m.Called(ctx, storageKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

type MockDisclosureGate struct {
	mock.Mock
}

func (m *MockDisclosureGate) CanView(ctx context.Context, listingID, actorID string) (bool, error) {
	args := m.Called(ctx, listingID, actorID)
	return args.Bool(0), args.Error(1)
}

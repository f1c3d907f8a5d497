package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/logger"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/metrics"
	"github.com/chgenberg/bolaxo-sub002/internal/repository"
	"github.com/chgenberg/bolaxo-sub002/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) CreateListing(ctx context.Context, actor entity.Actor, input service.CreateListingInput) (*entity.Listing, error) {
	args := m.Called(ctx, actor, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Listing), args.Error(1)
}

func (m *MockListingService) PublishListing(ctx context.Context, listingID string, actor entity.Actor) (*entity.Listing, error) {
	args := m.Called(ctx, listingID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Listing), args.Error(1)
}

func (m *MockListingService) UpdateListing(ctx context.Context, listingID string, actor entity.Actor, input service.UpdateListingInput) (*entity.Listing, error) {
	args := m.Called(ctx, listingID, actor, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Listing), args.Error(1)
}

func (m *MockListingService) WithdrawListing(ctx context.Context, listingID string, actor entity.Actor) error {
	args := m.Called(ctx, listingID, actor)
	return args.Error(0)
}

func (m *MockListingService) GetPublicView(ctx context.Context, listingID string) (*entity.PublicListing, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.PublicListing), args.Error(1)
}

func (m *MockListingService) GetFullView(ctx context.Context, listingID string, actor entity.Actor) (*entity.FullListing, error) {
	args := m.Called(ctx, listingID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.FullListing), args.Error(1)
}

func (m *MockListingService) SearchListings(ctx context.Context, filter repository.ListingFilter) (*repository.ListListingsResult, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ListListingsResult), args.Error(1)
}

func (m *MockListingService) ScoreListing(ctx context.Context, listingID string, actor entity.Actor) (*entity.MatchResult, error) {
	args := m.Called(ctx, listingID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.MatchResult), args.Error(1)
}

func (m *MockListingService) RemoveListing(ctx context.Context, listingID string, actor entity.Actor) error {
	args := m.Called(ctx, listingID, actor)
	return args.Error(0)
}

func (m *MockListingService) TopListings(ctx context.Context, n int64) ([]entity.PublicListing, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.PublicListing), args.Error(1)
}

func (m *MockListingService) ListingStats(ctx context.Context, listingID string, actor entity.Actor) (*service.ListingStats, error) {
	args := m.Called(ctx, listingID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListingStats), args.Error(1)
}

type MockNDAService struct {
	mock.Mock
}

func (m *MockNDAService) SubmitRequest(ctx context.Context, actor entity.Actor, input service.SubmitNDAInput) (*entity.NDARequest, error) {
	args := m.Called(ctx, actor, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.NDARequest), args.Error(1)
}

func (m *MockNDAService) DecideRequest(ctx context.Context, requestID string, actor entity.Actor, decision entity.Decision, reason string) (*entity.NDARequest, error) {
	args := m.Called(ctx, requestID, actor, decision, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.NDARequest), args.Error(1)
}

func (m *MockNDAService) ExtendRequest(ctx context.Context, requestID string, actor entity.Actor) (*entity.NDARequest, error) {
	args := m.Called(ctx, requestID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.NDARequest), args.Error(1)
}

func (m *MockNDAService) GetRequest(ctx context.Context, requestID string, actor entity.Actor) (*entity.NDARequest, error) {
	args := m.Called(ctx, requestID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.NDARequest), args.Error(1)
}

func (m *MockNDAService) ListForListing(ctx context.Context, listingID string, actor entity.Actor) ([]entity.NDARequest, error) {
	args := m.Called(ctx, listingID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.NDARequest), args.Error(1)
}

func (m *MockNDAService) ListForBuyer(ctx context.Context, actor entity.Actor) ([]entity.NDARequest, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.NDARequest), args.Error(1)
}

func (m *MockNDAService) SweepExpired(ctx context.Context, batchSize int) (int, error) {
	args := m.Called(ctx, batchSize)
	return args.Int(0), args.Error(1)
}

func signToken(t *testing.T, userID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestRouter(listings service.ListingService, ndas service.NDAService) http.Handler {
	h := NewHandler(listings, ndas, nil, metrics.NewManager("test"), logger.NewNop())
	return h.Routes(testSecret)
}

func doRequest(t *testing.T, router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_RejectsMissingOrInvalidToken(t *testing.T) {
	router := newTestRouter(new(MockListingService), new(MockNDAService))

	rec := doRequest(t, router, http.MethodGet, "/v1/listings/abc", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/v1/listings/abc", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid signature but unknown role.
	rec = doRequest(t, router, http.MethodGet, "/v1/listings/abc", signToken(t, "u1", "superuser"), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoutes_GetPublicListing(t *testing.T) {
	listings := new(MockListingService)
	listings.On("GetPublicView", mock.Anything, "abc").Return(&entity.PublicListing{ID: "abc", Title: "Cafe"}, nil).Once()
	router := newTestRouter(listings, new(MockNDAService))

	rec := doRequest(t, router, http.MethodGet, "/v1/listings/abc", signToken(t, "buyer-1", "buyer"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Cafe"`)
	listings.AssertExpectations(t)
}

func TestRoutes_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", entity.ErrNotFound, http.StatusNotFound},
		{"forbidden", entity.ErrForbidden, http.StatusForbidden},
		{"validation", entity.ErrValidation, http.StatusBadRequest},
		{"invalid transition", entity.ErrInvalidTransition, http.StatusConflict},
		{"duplicate", entity.ErrDuplicateActiveRequest, http.StatusConflict},
		{"precondition", entity.ErrPreconditionFailed, http.StatusPreconditionFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			listings := new(MockListingService)
			listings.On("GetFullView", mock.Anything, "abc", mock.Anything).Return(nil, tc.err).Once()
			router := newTestRouter(listings, new(MockNDAService))

			rec := doRequest(t, router, http.MethodGet, "/v1/listings/abc/full", signToken(t, "buyer-1", "buyer"), "")
			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}

func TestRoutes_InternalErrorsAreOpaque(t *testing.T) {
	listings := new(MockListingService)
	listings.On("GetPublicView", mock.Anything, "abc").Return(nil, assertAnError).Once()
	router := newTestRouter(listings, new(MockNDAService))

	rec := doRequest(t, router, http.MethodGet, "/v1/listings/abc", signToken(t, "buyer-1", "buyer"), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "mongo connection lost")
}

func TestRoutes_SubmitNDARequest(t *testing.T) {
	ndas := new(MockNDAService)
	ndas.On("SubmitRequest", mock.Anything, entity.Actor{ID: "buyer-1", Role: entity.RoleBuyer}, service.SubmitNDAInput{
		ListingID:  "abc",
		Message:    "Very interested",
		BuyerEmail: "b@example.com",
	}).Return(&entity.NDARequest{ID: "nda-1", Status: entity.NDAStatusPending}, nil).Once()
	router := newTestRouter(new(MockListingService), ndas)

	rec := doRequest(t, router, http.MethodPost, "/v1/listings/abc/nda-requests",
		signToken(t, "buyer-1", "buyer"),
		`{"message":"Very interested","buyer_email":"b@example.com"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	ndas.AssertExpectations(t)
}

func TestRoutes_DecideRequest_BadDecision(t *testing.T) {
	router := newTestRouter(new(MockListingService), new(MockNDAService))

	rec := doRequest(t, router, http.MethodPost, "/v1/nda-requests/nda-1/decision",
		signToken(t, "seller-1", "seller"), `{"decision":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

var assertAnError = &opaqueError{}

type opaqueError struct{}

func (*opaqueError) Error() string { return "mongo connection lost" }

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
	"github.com/chgenberg/bolaxo-sub002/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newGateForTest(ndaRepo *MockNDARequestRepository) DisclosureGate {
	gate := NewDisclosureGate(ndaRepo)
	gate.(*disclosureGate).now = func() time.Time { return testNow }
	return gate
}

func TestDisclosureGate_NoRequestDeniesWithoutError(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	ndaRepo.On("FindActive", mock.Anything, "listing-1", "buyer-1").Return(nil, repository.ErrNotFound).Once()

	allowed, err := newGateForTest(ndaRepo).CanView(context.Background(), "listing-1", "buyer-1")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestDisclosureGate_ApprovedGrants(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	req := pendingRequest()
	require.NoError(t, req.Approve(testNow.Add(-time.Hour)))
	ndaRepo.On("FindActive", mock.Anything, "listing-1", "buyer-1").Return(req, nil).Once()

	allowed, err := newGateForTest(ndaRepo).CanView(context.Background(), "listing-1", "buyer-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDisclosureGate_PendingDenies(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	ndaRepo.On("FindActive", mock.Anything, "listing-1", "buyer-1").Return(pendingRequest(), nil).Once()

	allowed, err := newGateForTest(ndaRepo).CanView(context.Background(), "listing-1", "buyer-1")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestDisclosureGate_StoredApprovedPastDeadlineDenies(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	req := pendingRequest()
	require.NoError(t, req.Approve(testNow.Add(-time.Hour)))
	req.ExpiresAt = testNow.Add(-time.Minute)
	ndaRepo.On("FindActive", mock.Anything, "listing-1", "buyer-1").Return(req, nil).Once()

	allowed, err := newGateForTest(ndaRepo).CanView(context.Background(), "listing-1", "buyer-1")
	require.NoError(t, err)
	assert.False(t, allowed, "stored status is never trusted over the clock")
	assert.Equal(t, entity.NDAStatusApproved, req.Status, "the read does not mutate the row")
}

func TestDisclosureGate_RepositoryErrorPropagates(t *testing.T) {
	ndaRepo := new(MockNDARequestRepository)
	boom := errors.New("connection reset")
	ndaRepo.On("FindActive", mock.Anything, "listing-1", "buyer-1").Return(nil, boom).Once()

	allowed, err := newGateForTest(ndaRepo).CanView(context.Background(), "listing-1", "buyer-1")
	assert.ErrorIs(t, err, boom)
	assert.False(t, allowed)
}

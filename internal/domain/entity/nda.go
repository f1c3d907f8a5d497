package entity

import (
	"errors"
	"fmt"
	"time"
)

type NDAStatus string

const (
	NDAStatusPending  NDAStatus = "pending"
	NDAStatusApproved NDAStatus = "approved"
	NDAStatusRejected NDAStatus = "rejected"
	NDAStatusExpired  NDAStatus = "expired"
)

const (
	// NDARequestTTL is how long a freshly submitted request stays valid.
	NDARequestTTL = 30 * 24 * time.Hour
	// NDAApprovalTTL re-arms the deadline when the seller approves.
	NDAApprovalTTL = 30 * 24 * time.Hour
	// NDAExtensionPeriod is the admin extension granted on a pending request.
	NDAExtensionPeriod = 14 * 24 * time.Hour
)

// NDARequest gates a buyer's access to a listing's sensitive fields.
// SellerID is denormalized from the listing at creation time so the
// record survives later listing mutation.
type NDARequest struct {
	ID              string     `bson:"_id,omitempty"`
	ListingID       string     `bson:"listing_id"`
	BuyerID         string     `bson:"buyer_id"`
	SellerID        string     `bson:"seller_id"`
	Message         string     `bson:"message"`
	BuyerEmail      string     `bson:"buyer_email,omitempty"`
	Status          NDAStatus  `bson:"status"`
	RejectionReason string     `bson:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `bson:"created_at"`
	SignedAt        *time.Time `bson:"signed_at,omitempty"`
	ApprovedAt      *time.Time `bson:"approved_at,omitempty"`
	ExpiresAt       time.Time  `bson:"expires_at"`
	Version         int        `bson:"version"`
}

func NewNDARequest(listingID, buyerID, sellerID, message, buyerEmail string, now time.Time) (*NDARequest, error) {
	if listingID == "" {
		return nil, fmt.Errorf("%w: listing ID cannot be empty", ErrValidation)
	}
	if buyerID == "" {
		return nil, fmt.Errorf("%w: buyer ID cannot be empty", ErrValidation)
	}
	if message == "" {
		return nil, fmt.Errorf("%w: request message cannot be empty", ErrValidation)
	}
	if buyerID == sellerID {
		return nil, fmt.Errorf("%w: seller cannot request access to their own listing", ErrValidation)
	}
	signed := now
	return &NDARequest{
		ListingID:  listingID,
		BuyerID:    buyerID,
		SellerID:   sellerID,
		Message:    message,
		BuyerEmail: buyerEmail,
		Status:     NDAStatusPending,
		CreatedAt:  now,
		SignedAt:   &signed,
		ExpiresAt:  now.Add(NDARequestTTL),
		Version:    1,
	}, nil
}

// EffectiveStatus recomputes the status against the clock. A stored
// pending or approved row past its deadline counts as expired no matter
// what the status field says; authorization must go through here.
func (r *NDARequest) EffectiveStatus(now time.Time) NDAStatus {
	if (r.Status == NDAStatusPending || r.Status == NDAStatusApproved) && now.After(r.ExpiresAt) {
		return NDAStatusExpired
	}
	return r.Status
}

// Active reports whether the request still blocks a new submission for
// the same (listing, buyer) pair.
func (r *NDARequest) Active(now time.Time) bool {
	s := r.EffectiveStatus(now)
	return s == NDAStatusPending || s == NDAStatusApproved
}

// GrantsDisclosure is the single buyer-side disclosure rule: approved
// and not past the deadline.
func (r *NDARequest) GrantsDisclosure(now time.Time) bool {
	return r.EffectiveStatus(now) == NDAStatusApproved
}

func (r *NDARequest) transitionErr(requested NDAStatus, now time.Time) error {
	return fmt.Errorf("%w: cannot move NDA request from %s to %s", ErrInvalidTransition, r.EffectiveStatus(now), requested)
}

// Approve moves a pending request to approved and re-arms the deadline.
func (r *NDARequest) Approve(now time.Time) error {
	if r.EffectiveStatus(now) != NDAStatusPending {
		return r.transitionErr(NDAStatusApproved, now)
	}
	approved := now
	r.Status = NDAStatusApproved
	r.ApprovedAt = &approved
	r.ExpiresAt = now.Add(NDAApprovalTTL)
	r.Version++
	return nil
}

// Reject moves a pending request to its terminal rejected state. The
// reason is optional and shown to the requesting buyer only.
func (r *NDARequest) Reject(reason string, now time.Time) error {
	if r.EffectiveStatus(now) != NDAStatusPending {
		return r.transitionErr(NDAStatusRejected, now)
	}
	r.Status = NDAStatusRejected
	r.RejectionReason = reason
	r.Version++
	return nil
}

// Extend pushes the deadline of a pending request. Admin only; approval
// re-arming is handled by Approve.
func (r *NDARequest) Extend(now time.Time) error {
	if r.EffectiveStatus(now) != NDAStatusPending {
		return r.transitionErr(NDAStatusPending, now)
	}
	r.ExpiresAt = r.ExpiresAt.Add(NDAExtensionPeriod)
	r.Version++
	return nil
}

// MarkExpired persists the lazily computed expiry. Idempotent for rows
// already expired; rejected rows are immutable.
func (r *NDARequest) MarkExpired(now time.Time) error {
	switch r.EffectiveStatus(now) {
	case NDAStatusExpired:
		if r.Status != NDAStatusExpired {
			r.Status = NDAStatusExpired
			r.Version++
		}
		return nil
	default:
		return r.transitionErr(NDAStatusExpired, now)
	}
}

// RedactFor strips fields the actor is not allowed to see. The
// rejection reason is private to the buyer (and staff).
func (r *NDARequest) RedactFor(actor Actor) *NDARequest {
	if actor.ID == r.BuyerID || actor.IsAdmin() || actor.IsAdvisor() {
		return r
	}
	redacted := *r
	redacted.RejectionReason = ""
	return &redacted
}

// CanDecide reports whether the actor may approve or reject the request.
func (r *NDARequest) CanDecide(actor Actor) bool {
	return actor.IsAdmin() || actor.ID == r.SellerID
}

var errUnknownDecision = errors.New("unknown decision")

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionApprove, DecisionReject:
		return Decision(s), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownDecision, s)
	}
}

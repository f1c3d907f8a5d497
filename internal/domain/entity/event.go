package entity

import "time"

// NATS subjects for domain events. Consumers (notification dispatcher,
// analytics) subscribe on the wildcard prefixes.
const (
	SubjectNDASubmitted      = "nda.submitted"
	SubjectNDAApproved       = "nda.approved"
	SubjectNDARejected       = "nda.rejected"
	SubjectNDAExpired        = "nda.expired"
	SubjectDealStageAdvanced = "deal.stage.advanced"
)

// NDAEvent carries enough denormalized context for an email template to
// render without a second lookup.
type NDAEvent struct {
	RequestID       string    `json:"request_id"`
	ListingID       string    `json:"listing_id"`
	ListingTitle    string    `json:"listing_title"`
	BuyerID         string    `json:"buyer_id"`
	BuyerEmail      string    `json:"buyer_email,omitempty"`
	SellerID        string    `json:"seller_id"`
	SellerEmail     string    `json:"seller_email,omitempty"`
	Message         string    `json:"message,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	ExpiresAt       time.Time `json:"expires_at"`
	OccurredAt      time.Time `json:"occurred_at"`
}

type DealStageAdvancedEvent struct {
	DealID       string    `json:"deal_id"`
	ListingID    string    `json:"listing_id"`
	ListingTitle string    `json:"listing_title"`
	BuyerID      string    `json:"buyer_id"`
	SellerID     string    `json:"seller_id"`
	FromStage    DealStage `json:"from_stage"`
	ToStage      DealStage `json:"to_stage"`
	OccurredAt   time.Time `json:"occurred_at"`
}

package entity

import (
	"errors"
	"fmt"
	"time"
)

type ListingStatus string

const (
	ListingStatusDraft     ListingStatus = "draft"
	ListingStatusActive    ListingStatus = "active"
	ListingStatusExpired   ListingStatus = "expired"
	ListingStatusWithdrawn ListingStatus = "withdrawn"
)

// MoneyRange is a bucketed amount shown publicly instead of exact figures.
// Max == 0 with Min > 0 means "Min and above"; both zero means undisclosed.
type MoneyRange struct {
	Min          float64 `bson:"min" json:"min"`
	Max          float64 `bson:"max" json:"max"`
	CurrencyCode string  `bson:"currency_code" json:"currency_code"`
}

func (r MoneyRange) Undisclosed() bool {
	return r.Min == 0 && r.Max == 0
}

// GatedDetails are the listing attributes withheld until NDA approval.
type GatedDetails struct {
	LegalName          string   `bson:"legal_name" json:"legal_name"`
	RegistrationNumber string   `bson:"registration_number" json:"registration_number"`
	PostalAddress      string   `bson:"postal_address" json:"postal_address"`
	ExactRevenue       float64  `bson:"exact_revenue" json:"exact_revenue"`
	ExactEBITDA        float64  `bson:"exact_ebitda" json:"exact_ebitda"`
	NamedCustomers     []string `bson:"named_customers,omitempty" json:"named_customers,omitempty"`
	FinancialStatement string   `bson:"financial_statement,omitempty" json:"financial_statement,omitempty"`
}

type Listing struct {
	ID            string        `bson:"_id,omitempty"`
	SellerID      string        `bson:"seller_id"`
	Title         string        `bson:"title"`
	Category      string        `bson:"category"`
	Region        string        `bson:"region"`
	Description   string        `bson:"description"`
	Strengths     []string      `bson:"strengths,omitempty"`
	Risks         []string      `bson:"risks,omitempty"`
	RevenueRange  MoneyRange    `bson:"revenue_range"`
	AskingPrice   MoneyRange    `bson:"asking_price"`
	EmployeeBand  string        `bson:"employee_band"`
	IsBrokered    bool          `bson:"is_brokered"`
	IsVerified    bool          `bson:"is_verified"`
	ContactEmail  string        `bson:"contact_email"`
	Status        ListingStatus `bson:"status"`
	Gated         GatedDetails  `bson:"gated"`
	Deleted       bool          `bson:"deleted"`
	CreatedAt     time.Time     `bson:"created_at"`
	UpdatedAt     time.Time     `bson:"updated_at"`
	PublishedAt   *time.Time    `bson:"published_at,omitempty"`
	Version       int           `bson:"version"`
}

// PublicListing is the anonymized projection visible to any buyer.
// It must never carry gated fields; the cache serves it without checks.
type PublicListing struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Category     string        `json:"category"`
	Region       string        `json:"region"`
	Description  string        `json:"description"`
	Strengths    []string      `json:"strengths,omitempty"`
	Risks        []string      `json:"risks,omitempty"`
	RevenueRange MoneyRange    `json:"revenue_range"`
	AskingPrice  MoneyRange    `json:"asking_price"`
	EmployeeBand string        `json:"employee_band"`
	IsBrokered   bool          `json:"is_brokered"`
	IsVerified   bool          `json:"is_verified"`
	IsNew        bool          `json:"is_new"`
	Status       ListingStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// FullListing is the public projection plus gated details. Produced only
// for the owning seller, admins, or buyers holding an approved NDA.
type FullListing struct {
	PublicListing
	Gated GatedDetails `json:"gated"`
}

const newListingWindow = 14 * 24 * time.Hour

func NewListing(sellerID, title, category, region, description string) (*Listing, error) {
	if sellerID == "" {
		return nil, errors.New("seller ID cannot be empty")
	}
	if title == "" {
		return nil, errors.New("listing title cannot be empty")
	}
	now := time.Now().UTC()
	return &Listing{
		SellerID:    sellerID,
		Title:       title,
		Category:    category,
		Region:      region,
		Description: description,
		Status:      ListingStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}, nil
}

func (l *Listing) IsOwnedBy(actor Actor) bool {
	return actor.ID != "" && actor.ID == l.SellerID
}

// VisibleTo reports whether the listing should appear at all for the
// actor. Withdrawn and soft-deleted listings stay visible to the owner
// and admins so references from NDA requests keep resolving.
func (l *Listing) VisibleTo(actor Actor) bool {
	if l.Deleted || l.Status == ListingStatusWithdrawn {
		return l.IsOwnedBy(actor) || actor.IsAdmin()
	}
	return true
}

func (l *Listing) PublicView(now time.Time) PublicListing {
	return PublicListing{
		ID:           l.ID,
		Title:        l.Title,
		Category:     l.Category,
		Region:       l.Region,
		Description:  l.Description,
		Strengths:    l.Strengths,
		Risks:        l.Risks,
		RevenueRange: l.RevenueRange,
		AskingPrice:  l.AskingPrice,
		EmployeeBand: l.EmployeeBand,
		IsBrokered:   l.IsBrokered,
		IsVerified:   l.IsVerified,
		IsNew:        l.PublishedAt != nil && now.Sub(*l.PublishedAt) < newListingWindow,
		Status:       l.Status,
		CreatedAt:    l.CreatedAt,
	}
}

func (l *Listing) FullView(now time.Time) FullListing {
	return FullListing{
		PublicListing: l.PublicView(now),
		Gated:         l.Gated,
	}
}

func (l *Listing) Publish() error {
	if l.Status != ListingStatusDraft {
		return fmt.Errorf("%w: cannot publish listing in status %s", ErrInvalidTransition, l.Status)
	}
	now := time.Now().UTC()
	l.Status = ListingStatusActive
	l.PublishedAt = &now
	l.UpdatedAt = now
	return nil
}

func (l *Listing) Withdraw() error {
	if l.Status == ListingStatusWithdrawn {
		return fmt.Errorf("%w: listing already withdrawn", ErrInvalidTransition)
	}
	l.Status = ListingStatusWithdrawn
	l.UpdatedAt = time.Now().UTC()
	return nil
}

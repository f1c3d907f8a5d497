package mongo

import (
	"time"

	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Persistence documents. IDs live as ObjectIDs in mongo and as hex
// strings in the domain, so each aggregate gets a thin mapping type.

type listingDoc struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty"`
	SellerID     string               `bson:"seller_id"`
	Title        string               `bson:"title"`
	Category     string               `bson:"category"`
	Region       string               `bson:"region"`
	Description  string               `bson:"description"`
	Strengths    []string             `bson:"strengths,omitempty"`
	Risks        []string             `bson:"risks,omitempty"`
	RevenueRange entity.MoneyRange    `bson:"revenue_range"`
	AskingPrice  entity.MoneyRange    `bson:"asking_price"`
	EmployeeBand string               `bson:"employee_band"`
	IsBrokered   bool                 `bson:"is_brokered"`
	IsVerified   bool                 `bson:"is_verified"`
	ContactEmail string               `bson:"contact_email"`
	Status       entity.ListingStatus `bson:"status"`
	Gated        entity.GatedDetails  `bson:"gated"`
	Deleted      bool                 `bson:"deleted"`
	CreatedAt    time.Time            `bson:"created_at"`
	UpdatedAt    time.Time            `bson:"updated_at"`
	PublishedAt  *time.Time           `bson:"published_at,omitempty"`
	Version      int                  `bson:"version"`
}

func (d *listingDoc) toEntity() *entity.Listing {
	return &entity.Listing{
		ID:           d.ID.Hex(),
		SellerID:     d.SellerID,
		Title:        d.Title,
		Category:     d.Category,
		Region:       d.Region,
		Description:  d.Description,
		Strengths:    d.Strengths,
		Risks:        d.Risks,
		RevenueRange: d.RevenueRange,
		AskingPrice:  d.AskingPrice,
		EmployeeBand: d.EmployeeBand,
		IsBrokered:   d.IsBrokered,
		IsVerified:   d.IsVerified,
		ContactEmail: d.ContactEmail,
		Status:       d.Status,
		Gated:        d.Gated,
		Deleted:      d.Deleted,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		PublishedAt:  d.PublishedAt,
		Version:      d.Version,
	}
}

func fromListingEntity(l *entity.Listing) *listingDoc {
	return &listingDoc{
		SellerID:     l.SellerID,
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
		ContactEmail: l.ContactEmail,
		Status:       l.Status,
		Gated:        l.Gated,
		Deleted:      l.Deleted,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
		PublishedAt:  l.PublishedAt,
		Version:      l.Version,
	}
}

type ndaDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	ListingID       string             `bson:"listing_id"`
	BuyerID         string             `bson:"buyer_id"`
	SellerID        string             `bson:"seller_id"`
	Message         string             `bson:"message"`
	BuyerEmail      string             `bson:"buyer_email,omitempty"`
	Status          entity.NDAStatus   `bson:"status"`
	RejectionReason string             `bson:"rejection_reason,omitempty"`
	CreatedAt       time.Time          `bson:"created_at"`
	SignedAt        *time.Time         `bson:"signed_at,omitempty"`
	ApprovedAt      *time.Time         `bson:"approved_at,omitempty"`
	ExpiresAt       time.Time          `bson:"expires_at"`
	Version         int                `bson:"version"`
}

func (d *ndaDoc) toEntity() *entity.NDARequest {
	return &entity.NDARequest{
		ID:              d.ID.Hex(),
		ListingID:       d.ListingID,
		BuyerID:         d.BuyerID,
		SellerID:        d.SellerID,
		Message:         d.Message,
		BuyerEmail:      d.BuyerEmail,
		Status:          d.Status,
		RejectionReason: d.RejectionReason,
		CreatedAt:       d.CreatedAt,
		SignedAt:        d.SignedAt,
		ApprovedAt:      d.ApprovedAt,
		ExpiresAt:       d.ExpiresAt,
		Version:         d.Version,
	}
}

func fromNDAEntity(r *entity.NDARequest) *ndaDoc {
	return &ndaDoc{
		ListingID:       r.ListingID,
		BuyerID:         r.BuyerID,
		SellerID:        r.SellerID,
		Message:         r.Message,
		BuyerEmail:      r.BuyerEmail,
		Status:          r.Status,
		RejectionReason: r.RejectionReason,
		CreatedAt:       r.CreatedAt,
		SignedAt:        r.SignedAt,
		ApprovedAt:      r.ApprovedAt,
		ExpiresAt:       r.ExpiresAt,
		Version:         r.Version,
	}
}

type dealDoc struct {
	ID          primitive.ObjectID     `bson:"_id,omitempty"`
	ListingID   string                 `bson:"listing_id"`
	BuyerID     string                 `bson:"buyer_id"`
	SellerID    string                 `bson:"seller_id"`
	NDAID       string                 `bson:"nda_id"`
	Stage       entity.DealStage       `bson:"stage"`
	AgreedPrice *float64               `bson:"agreed_price,omitempty"`
	Milestones  []entity.Milestone     `bson:"milestones"`
	Documents   []entity.Document      `bson:"documents"`
	Payments    []entity.Payment       `bson:"payments"`
	Activity    []entity.ActivityEntry `bson:"activity"`
	CreatedAt   time.Time              `bson:"created_at"`
	UpdatedAt   time.Time              `bson:"updated_at"`
	Version     int                    `bson:"version"`
}

func (d *dealDoc) toEntity() *entity.Deal {
	return &entity.Deal{
		ID:          d.ID.Hex(),
		ListingID:   d.ListingID,
		BuyerID:     d.BuyerID,
		SellerID:    d.SellerID,
		NDAID:       d.NDAID,
		Stage:       d.Stage,
		AgreedPrice: d.AgreedPrice,
		Milestones:  d.Milestones,
		Documents:   d.Documents,
		Payments:    d.Payments,
		Activity:    d.Activity,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		Version:     d.Version,
	}
}

func fromDealEntity(deal *entity.Deal) *dealDoc {
	return &dealDoc{
		ListingID:   deal.ListingID,
		BuyerID:     deal.BuyerID,
		SellerID:    deal.SellerID,
		NDAID:       deal.NDAID,
		Stage:       deal.Stage,
		AgreedPrice: deal.AgreedPrice,
		Milestones:  deal.Milestones,
		Documents:   deal.Documents,
		Payments:    deal.Payments,
		Activity:    deal.Activity,
		CreatedAt:   deal.CreatedAt,
		UpdatedAt:   deal.UpdatedAt,
		Version:     deal.Version,
	}
}

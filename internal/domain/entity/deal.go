package entity

import (
	"fmt"
	"time"
)

type DealStage string

const (
	StageLOIPending     DealStage = "loi_pending"
	StageLOISigned      DealStage = "loi_signed"
	StageDDInProgress   DealStage = "dd_in_progress"
	StageDDComplete     DealStage = "dd_complete"
	StageSPANegotiation DealStage = "spa_negotiation"
	StageSPASigned      DealStage = "spa_signed"
	StageClosed         DealStage = "closed"
)

// dealStageOrder fixes the forward-only progression. Automated logic may
// never skip a stage; reverts go through the audited admin path.
var dealStageOrder = []DealStage{
	StageLOIPending,
	StageLOISigned,
	StageDDInProgress,
	StageDDComplete,
	StageSPANegotiation,
	StageSPASigned,
	StageClosed,
}

func stageIndex(s DealStage) int {
	for i, stage := range dealStageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// NextStage returns the stage after s, or s itself when s is terminal.
func NextStage(s DealStage) DealStage {
	i := stageIndex(s)
	if i < 0 || i == len(dealStageOrder)-1 {
		return s
	}
	return dealStageOrder[i+1]
}

func PrevStage(s DealStage) DealStage {
	i := stageIndex(s)
	if i <= 0 {
		return s
	}
	return dealStageOrder[i-1]
}

func StageAtOrAfter(s, threshold DealStage) bool {
	return stageIndex(s) >= stageIndex(threshold)
}

type PaymentType string

const (
	PaymentDeposit    PaymentType = "DEPOSIT"
	PaymentMain       PaymentType = "MAIN_PAYMENT"
	PaymentAdvisorFee PaymentType = "ADVISOR_FEE"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusEscrowed PaymentStatus = "escrowed"
	PaymentStatusReleased PaymentStatus = "released"
	PaymentStatusFailed   PaymentStatus = "failed"
)

type Payment struct {
	ID           string        `bson:"id"`
	Type         PaymentType   `bson:"type"`
	Status       PaymentStatus `bson:"status"`
	Amount       float64       `bson:"amount"`
	CurrencyCode string        `bson:"currency_code"`
	CreatedAt    time.Time     `bson:"created_at"`
	UpdatedAt    time.Time     `bson:"updated_at"`
}

type DocumentType string

const (
	DocumentLOI        DocumentType = "LOI"
	DocumentFinancials DocumentType = "FINANCIALS"
	DocumentDDReport   DocumentType = "DD_REPORT"
	DocumentSPA        DocumentType = "SPA"
)

type DocumentStatus string

const (
	DocumentStatusDraft            DocumentStatus = "draft"
	DocumentStatusPendingSignature DocumentStatus = "pending_signature"
	DocumentStatusSigned           DocumentStatus = "signed"
)

type Document struct {
	ID         string         `bson:"id"`
	Type       DocumentType   `bson:"type"`
	Status     DocumentStatus `bson:"status"`
	FileName   string         `bson:"file_name"`
	StorageKey string         `bson:"storage_key,omitempty"`
	UploadedBy string         `bson:"uploaded_by"`
	CreatedAt  time.Time      `bson:"created_at"`
	SignedAt   *time.Time     `bson:"signed_at,omitempty"`
}

type Milestone struct {
	ID          string     `bson:"id"`
	Stage       DealStage  `bson:"stage"`
	Title       string     `bson:"title"`
	DueDate     *time.Time `bson:"due_date,omitempty"`
	IsRequired  bool       `bson:"is_required"`
	AssigneeID  string     `bson:"assignee_id,omitempty"`
	Completed   bool       `bson:"completed"`
	CompletedAt *time.Time `bson:"completed_at,omitempty"`
	CompletedBy string     `bson:"completed_by,omitempty"`
	// RequiresDocument names a document type that must be signed before
	// this milestone may complete. Empty means no document criterion.
	RequiresDocument DocumentType `bson:"requires_document,omitempty"`
}

type ActivityKind string

const (
	ActivityStageAdvanced      ActivityKind = "stage_advanced"
	ActivityStageReverted      ActivityKind = "stage_reverted"
	ActivityMilestoneCompleted ActivityKind = "milestone_completed"
	ActivityAdminOverride      ActivityKind = "admin_override"
)

type ActivityEntry struct {
	Kind      ActivityKind `bson:"kind"`
	ActorID   string       `bson:"actor_id"`
	Detail    string       `bson:"detail"`
	CreatedAt time.Time    `bson:"created_at"`
}

// Deal tracks a buyer-seller transaction from LOI to closing. It can
// only come into existence behind an approved, unexpired NDA.
type Deal struct {
	ID          string          `bson:"_id,omitempty"`
	ListingID   string          `bson:"listing_id"`
	BuyerID     string          `bson:"buyer_id"`
	SellerID    string          `bson:"seller_id"`
	NDAID       string          `bson:"nda_id"`
	Stage       DealStage       `bson:"stage"`
	AgreedPrice *float64        `bson:"agreed_price,omitempty"`
	Milestones  []Milestone     `bson:"milestones"`
	Documents   []Document      `bson:"documents"`
	Payments    []Payment       `bson:"payments"`
	Activity    []ActivityEntry `bson:"activity"`
	CreatedAt   time.Time       `bson:"created_at"`
	UpdatedAt   time.Time       `bson:"updated_at"`
	Version     int             `bson:"version"`
}

func NewDeal(listingID, buyerID, sellerID, ndaID string, now time.Time) (*Deal, error) {
	if listingID == "" || buyerID == "" || sellerID == "" {
		return nil, fmt.Errorf("%w: deal requires listing, buyer and seller IDs", ErrValidation)
	}
	if ndaID == "" {
		return nil, fmt.Errorf("%w: deal requires the backing NDA request ID", ErrValidation)
	}
	return &Deal{
		ListingID: listingID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		NDAID:     ndaID,
		Stage:     StageLOIPending,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}, nil
}

func (d *Deal) IsParty(actor Actor) bool {
	return actor.ID == d.BuyerID || actor.ID == d.SellerID
}

func (d *Deal) milestone(id string) *Milestone {
	for i := range d.Milestones {
		if d.Milestones[i].ID == id {
			return &d.Milestones[i]
		}
	}
	return nil
}

func (d *Deal) document(id string) *Document {
	for i := range d.Documents {
		if d.Documents[i].ID == id {
			return &d.Documents[i]
		}
	}
	return nil
}

func (d *Deal) payment(id string) *Payment {
	for i := range d.Payments {
		if d.Payments[i].ID == id {
			return &d.Payments[i]
		}
	}
	return nil
}

func (d *Deal) documentSigned(t DocumentType) bool {
	for i := range d.Documents {
		if d.Documents[i].Type == t && d.Documents[i].Status == DocumentStatusSigned {
			return true
		}
	}
	return false
}

// requiredMilestonesDone reports whether every required milestone of the
// stage is completed. A stage with no required milestones does not
// auto-advance; someone has to add and complete at least one.
func (d *Deal) requiredMilestonesDone(stage DealStage) bool {
	found := false
	for i := range d.Milestones {
		m := &d.Milestones[i]
		if m.Stage != stage || !m.IsRequired {
			continue
		}
		found = true
		if !m.Completed {
			return false
		}
	}
	return found
}

func (d *Deal) appendActivity(kind ActivityKind, actorID, detail string, now time.Time) {
	d.Activity = append(d.Activity, ActivityEntry{
		Kind:      kind,
		ActorID:   actorID,
		Detail:    detail,
		CreatedAt: now,
	})
}

func (d *Deal) AddMilestone(m Milestone, now time.Time) error {
	if m.Title == "" {
		return fmt.Errorf("%w: milestone title cannot be empty", ErrValidation)
	}
	if stageIndex(m.Stage) < 0 {
		return fmt.Errorf("%w: unknown deal stage %q", ErrValidation, m.Stage)
	}
	if stageIndex(m.Stage) < stageIndex(d.Stage) {
		return fmt.Errorf("%w: cannot add milestone to past stage %s", ErrValidation, m.Stage)
	}
	d.Milestones = append(d.Milestones, m)
	d.UpdatedAt = now
	d.Version++
	return nil
}

// CompleteMilestone marks a milestone done and auto-advances the stage
// when it was the last required one. Returns true when the stage moved.
func (d *Deal) CompleteMilestone(milestoneID string, actor Actor, now time.Time) (advanced bool, err error) {
	m := d.milestone(milestoneID)
	if m == nil {
		return false, fmt.Errorf("%w: milestone %s", ErrNotFound, milestoneID)
	}
	if m.Completed {
		return false, fmt.Errorf("%w: milestone %s is already completed", ErrInvalidTransition, milestoneID)
	}
	if m.Stage != d.Stage {
		return false, fmt.Errorf("%w: milestone belongs to stage %s, deal is at %s", ErrInvalidTransition, m.Stage, d.Stage)
	}
	if m.RequiresDocument != "" && !d.documentSigned(m.RequiresDocument) {
		return false, fmt.Errorf("%w: milestone requires a signed %s document", ErrPreconditionFailed, m.RequiresDocument)
	}

	completed := now
	m.Completed = true
	m.CompletedAt = &completed
	m.CompletedBy = actor.ID
	d.appendActivity(ActivityMilestoneCompleted, actor.ID, m.Title, now)

	if d.Stage != StageClosed && d.requiredMilestonesDone(d.Stage) {
		from := d.Stage
		d.Stage = NextStage(d.Stage)
		d.appendActivity(ActivityStageAdvanced, actor.ID, fmt.Sprintf("%s -> %s", from, d.Stage), now)
		advanced = true
	}

	d.UpdatedAt = now
	d.Version++
	return advanced, nil
}

// RevertStage steps the deal back one stage. Restricted to admin and
// advisor roles and always leaves a distinct audit entry.
func (d *Deal) RevertStage(actor Actor, reason string, now time.Time) error {
	if !actor.IsAdmin() && !actor.IsAdvisor() {
		return fmt.Errorf("%w: only admin or advisor may revert a deal stage", ErrForbidden)
	}
	if d.Stage == StageLOIPending {
		return fmt.Errorf("%w: deal is already at the first stage", ErrInvalidTransition)
	}
	from := d.Stage
	d.Stage = PrevStage(d.Stage)
	d.appendActivity(ActivityStageReverted, actor.ID, fmt.Sprintf("%s -> %s: %s", from, d.Stage, reason), now)
	d.UpdatedAt = now
	d.Version++
	return nil
}

func (d *Deal) AddPayment(p Payment, now time.Time) error {
	if p.Amount <= 0 {
		return fmt.Errorf("%w: payment amount must be positive", ErrValidation)
	}
	switch p.Type {
	case PaymentDeposit, PaymentMain, PaymentAdvisorFee:
	default:
		return fmt.Errorf("%w: unknown payment type %q", ErrValidation, p.Type)
	}
	if p.Status == "" {
		p.Status = PaymentStatusPending
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	d.Payments = append(d.Payments, p)
	d.UpdatedAt = now
	d.Version++
	return nil
}

// UpdatePaymentStatus applies a payment status change. A MAIN_PAYMENT
// may not be released before the SPA is signed.
func (d *Deal) UpdatePaymentStatus(paymentID string, status PaymentStatus, now time.Time) error {
	p := d.payment(paymentID)
	if p == nil {
		return fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
	}
	if status == PaymentStatusReleased && p.Type == PaymentMain && !StageAtOrAfter(d.Stage, StageSPASigned) {
		return fmt.Errorf("%w: main payment cannot be released before stage %s", ErrInvalidTransition, StageSPASigned)
	}
	p.Status = status
	p.UpdatedAt = now
	d.UpdatedAt = now
	d.Version++
	return nil
}

func (d *Deal) AddDocument(doc Document, now time.Time) error {
	switch doc.Type {
	case DocumentLOI, DocumentFinancials, DocumentDDReport, DocumentSPA:
	default:
		return fmt.Errorf("%w: unknown document type %q", ErrValidation, doc.Type)
	}
	if doc.Status == "" {
		doc.Status = DocumentStatusDraft
	}
	doc.CreatedAt = now
	d.Documents = append(d.Documents, doc)
	d.UpdatedAt = now
	d.Version++
	return nil
}

func (d *Deal) MarkDocumentSigned(documentID string, now time.Time) error {
	doc := d.document(documentID)
	if doc == nil {
		return fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	if doc.Status == DocumentStatusSigned {
		return fmt.Errorf("%w: document %s is already signed", ErrInvalidTransition, documentID)
	}
	signed := now
	doc.Status = DocumentStatusSigned
	doc.SignedAt = &signed
	d.UpdatedAt = now
	d.Version++
	return nil
}

func (d *Deal) RecordAdminOverride(actor Actor, detail string, now time.Time) {
	d.appendActivity(ActivityAdminOverride, actor.ID, detail, now)
}

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/logger"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/metrics"
	"github.com/chgenberg/bolaxo-sub002/internal/repository"
	"github.com/chgenberg/bolaxo-sub002/internal/service"
	"github.com/go-chi/chi/v5"
)

const maxDocumentSize = 32 << 20

type Handler struct {
	listings service.ListingService
	ndas     service.NDAService
	deals    service.DealService
	metrics  *metrics.Manager
	log      logger.Logger
}

func NewHandler(
	listings service.ListingService,
	ndas service.NDAService,
	deals service.DealService,
	m *metrics.Manager,
	log logger.Logger,
) *Handler {
	return &Handler{listings: listings, ndas: ndas, deals: deals, metrics: m, log: log}
}

func (h *Handler) Routes(jwtSecret string) chi.Router {
	r := chi.NewRouter()
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware(h.metrics))
	r.Use(AuthMiddleware(jwtSecret, h.log))

	r.Route("/v1/listings", func(r chi.Router) {
		r.Get("/", h.searchListings)
		r.Post("/", h.createListing)
		r.Get("/top", h.topListings)
		r.Route("/{listingID}", func(r chi.Router) {
			r.Get("/", h.getPublicListing)
			r.Put("/", h.updateListing)
			r.Delete("/", h.withdrawListing)
			r.Post("/publish", h.publishListing)
			r.Get("/full", h.getFullListing)
			r.Get("/score", h.scoreListing)
			r.Get("/stats", h.listingStats)
			r.Post("/nda-requests", h.submitNDARequest)
			r.Get("/nda-requests", h.listNDAForListing)
		})
	})

	r.Delete("/v1/admin/listings/{listingID}", h.removeListing)

	r.Route("/v1/nda-requests", func(r chi.Router) {
		r.Get("/", h.listNDAForBuyer)
		r.Route("/{requestID}", func(r chi.Router) {
			r.Get("/", h.getNDARequest)
			r.Get("/deal", h.getDealByNDA)
			r.Post("/decision", h.decideNDARequest)
			r.Post("/extend", h.extendNDARequest)
		})
	})

	r.Route("/v1/deals", func(r chi.Router) {
		r.Get("/", h.listDeals)
		r.Post("/", h.createDeal)
		r.Route("/{dealID}", func(r chi.Router) {
			r.Get("/", h.getDeal)
			r.Post("/milestones", h.addMilestone)
			r.Post("/milestones/{milestoneID}/complete", h.completeMilestone)
			r.Post("/revert", h.revertStage)
			r.Post("/payments", h.recordPayment)
			r.Post("/payments/{paymentID}/status", h.updatePaymentStatus)
			r.Post("/documents", h.attachDocument)
			r.Get("/documents/{documentID}", h.downloadDocument)
			r.Post("/documents/{documentID}/sign", h.signDocument)
		})
	})

	return r
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.log.Errorf("Failed to encode response: %v", err)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, entity.ErrValidation):
		status, kind = http.StatusBadRequest, "validation"
	case errors.Is(err, entity.ErrForbidden):
		status, kind = http.StatusForbidden, "forbidden"
	case errors.Is(err, entity.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, entity.ErrDuplicateActiveRequest):
		status, kind = http.StatusConflict, "duplicate"
	case errors.Is(err, entity.ErrInvalidTransition):
		status, kind = http.StatusConflict, "invalid_transition"
	case errors.Is(err, entity.ErrPreconditionFailed):
		status, kind = http.StatusPreconditionFailed, "precondition"
	}

	route := chi.RouteContext(r.Context()).RoutePattern()
	h.metrics.APIErrorsTotal.WithLabelValues(route, kind).Inc()
	if status == http.StatusInternalServerError {
		h.log.Errorf("Request %s %s failed: %v", r.Method, r.URL.Path, err)
		h.writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (entity.Actor, bool) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
	}
	return actor, ok
}

// --- listings ---

type listingPayload struct {
	Title        string               `json:"title"`
	Category     string               `json:"category"`
	Region       string               `json:"region"`
	Description  string               `json:"description"`
	Strengths    []string             `json:"strengths"`
	Risks        []string             `json:"risks"`
	RevenueRange *entity.MoneyRange   `json:"revenue_range"`
	AskingPrice  *entity.MoneyRange   `json:"asking_price"`
	EmployeeBand string               `json:"employee_band"`
	IsBrokered   bool                 `json:"is_brokered"`
	ContactEmail string               `json:"contact_email"`
	Gated        *entity.GatedDetails `json:"gated"`
}

func (h *Handler) createListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body listingPayload
	if !h.decode(w, r, &body) {
		return
	}

	input := service.CreateListingInput{
		Title:        body.Title,
		Category:     body.Category,
		Region:       body.Region,
		Description:  body.Description,
		Strengths:    body.Strengths,
		Risks:        body.Risks,
		EmployeeBand: body.EmployeeBand,
		IsBrokered:   body.IsBrokered,
		ContactEmail: body.ContactEmail,
	}
	if body.RevenueRange != nil {
		input.RevenueRange = *body.RevenueRange
	}
	if body.AskingPrice != nil {
		input.AskingPrice = *body.AskingPrice
	}
	if body.Gated != nil {
		input.Gated = *body.Gated
	}

	listing, err := h.listings.CreateListing(r.Context(), actor, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, listing)
}

func (h *Handler) updateListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Title        *string              `json:"title"`
		Category     *string              `json:"category"`
		Region       *string              `json:"region"`
		Description  *string              `json:"description"`
		Strengths    []string             `json:"strengths"`
		Risks        []string             `json:"risks"`
		RevenueRange *entity.MoneyRange   `json:"revenue_range"`
		AskingPrice  *entity.MoneyRange   `json:"asking_price"`
		EmployeeBand *string              `json:"employee_band"`
		ContactEmail *string              `json:"contact_email"`
		Gated        *entity.GatedDetails `json:"gated"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	listing, err := h.listings.UpdateListing(r.Context(), chi.URLParam(r, "listingID"), actor, service.UpdateListingInput{
		Title:        body.Title,
		Category:     body.Category,
		Region:       body.Region,
		Description:  body.Description,
		Strengths:    body.Strengths,
		Risks:        body.Risks,
		RevenueRange: body.RevenueRange,
		AskingPrice:  body.AskingPrice,
		EmployeeBand: body.EmployeeBand,
		ContactEmail: body.ContactEmail,
		Gated:        body.Gated,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listing)
}

func (h *Handler) publishListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	listing, err := h.listings.PublishListing(r.Context(), chi.URLParam(r, "listingID"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listing)
}

func (h *Handler) withdrawListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.listings.WithdrawListing(r.Context(), chi.URLParam(r, "listingID"), actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getPublicListing(w http.ResponseWriter, r *http.Request) {
	view, err := h.listings.GetPublicView(r.Context(), chi.URLParam(r, "listingID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) getFullListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	view, err := h.listings.GetFullView(r.Context(), chi.URLParam(r, "listingID"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) scoreListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	result, err := h.listings.ScoreListing(r.Context(), chi.URLParam(r, "listingID"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) searchListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	filter := repository.ListingFilter{
		SellerID:  q.Get("seller_id"),
		Status:    entity.ListingStatus(q.Get("status")),
		Category:  q.Get("category"),
		Region:    q.Get("region"),
		Query:     q.Get("q"),
		Page:      page,
		PageSize:  pageSize,
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}
	result, err := h.listings.SearchListings(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) topListings(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.ParseInt(r.URL.Query().Get("n"), 10, 64)
	if n <= 0 || n > 100 {
		n = 10
	}
	views, err := h.listings.TopListings(r.Context(), n)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) listingStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	stats, err := h.listings.ListingStats(r.Context(), chi.URLParam(r, "listingID"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) removeListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.listings.RemoveListing(r.Context(), chi.URLParam(r, "listingID"), actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- NDA requests ---

func (h *Handler) submitNDARequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Message    string `json:"message"`
		BuyerEmail string `json:"buyer_email"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	req, err := h.ndas.SubmitRequest(r.Context(), actor, service.SubmitNDAInput{
		ListingID:  chi.URLParam(r, "listingID"),
		Message:    body.Message,
		BuyerEmail: body.BuyerEmail,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) decideNDARequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Decision string `json:"decision"`
		Reason   string `json:"reason"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	decision, err := entity.ParseDecision(body.Decision)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	req, err := h.ndas.DecideRequest(r.Context(), chi.URLParam(r, "requestID"), actor, decision, body.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

func (h *Handler) extendNDARequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, err := h.ndas.ExtendRequest(r.Context(), chi.URLParam(r, "requestID"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

func (h *Handler) getNDARequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, err := h.ndas.GetRequest(r.Context(), chi.URLParam(r, "requestID"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

func (h *Handler) listNDAForListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	reqs, err := h.ndas.ListForListing(r.Context(), chi.URLParam(r, "listingID"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reqs)
}

func (h *Handler) listNDAForBuyer(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	reqs, err := h.ndas.ListForBuyer(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reqs)
}

// --- deals ---

func (h *Handler) createDeal(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		ListingID string `json:"listing_id"`
		BuyerID   string `json:"buyer_id"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	deal, err := h.deals.CreateDeal(r.Context(), actor, service.CreateDealInput{
		ListingID: body.ListingID,
		BuyerID:   body.BuyerID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, deal)
}

func (h *Handler) getDeal(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	deal, err := h.deals.GetDeal(r.Context(), chi.URLParam(r, "dealID"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deal)
}

func (h *Handler) listDeals(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	deals, err := h.deals.ListDeals(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deals)
}

func (h *Handler) addMilestone(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Stage            string              `json:"stage"`
		Title            string              `json:"title"`
		DueDate          *time.Time          `json:"due_date"`
		IsRequired       bool                `json:"is_required"`
		AssigneeID       string              `json:"assignee_id"`
		RequiresDocument entity.DocumentType `json:"requires_document"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	input := service.MilestoneInput{
		Stage:            entity.DealStage(body.Stage),
		Title:            body.Title,
		IsRequired:       body.IsRequired,
		AssigneeID:       body.AssigneeID,
		RequiresDocument: body.RequiresDocument,
	}
	input.DueDate = body.DueDate
	deal, err := h.deals.AddMilestone(r.Context(), chi.URLParam(r, "dealID"), actor, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, deal)
}

func (h *Handler) completeMilestone(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	adminOverride := r.URL.Query().Get("admin_override") == "true"
	deal, err := h.deals.CompleteMilestone(r.Context(), chi.URLParam(r, "dealID"), chi.URLParam(r, "milestoneID"), actor, adminOverride)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deal)
}

func (h *Handler) revertStage(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	deal, err := h.deals.RevertStage(r.Context(), chi.URLParam(r, "dealID"), actor, body.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deal)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Type         entity.PaymentType `json:"type"`
		Amount       float64            `json:"amount"`
		CurrencyCode string             `json:"currency_code"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	deal, err := h.deals.RecordPayment(r.Context(), chi.URLParam(r, "dealID"), actor, service.PaymentInput{
		Type:         body.Type,
		Amount:       body.Amount,
		CurrencyCode: body.CurrencyCode,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, deal)
}

func (h *Handler) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Status entity.PaymentStatus `json:"status"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	deal, err := h.deals.UpdatePaymentStatus(r.Context(), chi.URLParam(r, "dealID"), chi.URLParam(r, "paymentID"), actor, body.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deal)
}

func (h *Handler) attachDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxDocumentSize); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed multipart body"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file field"})
		return
	}
	defer file.Close()

	deal, err := h.deals.AttachDocument(r.Context(), chi.URLParam(r, "dealID"), actor, service.DocumentInput{
		Type:        entity.DocumentType(r.FormValue("type")),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, deal)
}

func (h *Handler) getDealByNDA(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	deal, err := h.deals.GetDealByNDA(r.Context(), chi.URLParam(r, "requestID"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deal)
}

func (h *Handler) downloadDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	doc, body, err := h.deals.DownloadDocument(r.Context(), chi.URLParam(r, "dealID"), chi.URLParam(r, "documentID"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	if _, err := io.Copy(w, body); err != nil {
		h.log.Errorf("Failed to stream document %s: %v", doc.ID, err)
	}
}

func (h *Handler) signDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	deal, err := h.deals.SignDocument(r.Context(), chi.URLParam(r, "dealID"), chi.URLParam(r, "documentID"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deal)
}

package http

import (
	"log/slog"
	"net/http"

	"github.com/claimpilot/claimpilot/internal/domain/claim"
	"github.com/claimpilot/claimpilot/internal/service"
)

// Handlers holds the services the REST API exposes.
type Handlers struct {
	claims  *service.ClaimService
	reviews *service.ReviewService
	ws      http.Handler
	log     *slog.Logger
}

// NewHandlers creates the handler set. ws serves the reviewer WebSocket
// channel and is mounted by MountRoutes.
func NewHandlers(claims *service.ClaimService, reviews *service.ReviewService, ws http.Handler, log *slog.Logger) *Handlers {
	return &Handlers{claims: claims, reviews: reviews, ws: ws, log: log}
}

// createClaimRequest is the body of POST /claims.
type createClaimRequest struct {
	UserID       string `json:"user_id"`
	ClaimType    string `json:"claim_type"`
	DocumentPath string `json:"document_path"`
	ClaimNumber  string `json:"claim_number"`
}

// CreateClaim handles POST /claims: store the claim and queue it for
// automated processing.
func (h *Handlers) CreateClaim(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createClaimRequest](w, r)
	if !ok {
		return
	}

	c, err := h.claims.Submit(r.Context(), &claim.Claim{
		UserID:       req.UserID,
		ClaimType:    req.ClaimType,
		DocumentPath: req.DocumentPath,
		ClaimNumber:  req.ClaimNumber,
	})
	if err != nil {
		writeDomainError(w, err, "claim not found")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListClaims handles GET /claims.
func (h *Handlers) ListClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.claims.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "claims not found")
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

// GetClaim handles GET /claims/{id}.
func (h *Handlers) GetClaim(w http.ResponseWriter, r *http.Request) {
	c, err := h.claims.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "claim not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ProcessClaim handles POST /claims/{id}/process: run the agent over the
// claim synchronously. Normal intake goes through the queue; this endpoint
// exists for retries and local development.
func (h *Handlers) ProcessClaim(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.claims.Process(r.Context(), id); err != nil {
		writeDomainError(w, err, "claim not found")
		return
	}
	status, err := h.claims.Status(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "claim not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetClaimStatus handles GET /claims/{id}/status: the claim status plus the
// processing steps recorded so far.
func (h *Handlers) GetClaimStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.claims.Status(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "claim not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetClaimDecision handles GET /claims/{id}/decision.
func (h *Handlers) GetClaimDecision(w http.ResponseWriter, r *http.Request) {
	d, err := h.claims.Decision(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

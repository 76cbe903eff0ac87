package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Claims
		r.Post("/claims", h.CreateClaim)
		r.Get("/claims", h.ListClaims)
		r.Get("/claims/{id}", h.GetClaim)
		r.Post("/claims/{id}/process", h.ProcessClaim)
		r.Get("/claims/{id}/status", h.GetClaimStatus)
		r.Get("/claims/{id}/decision", h.GetClaimDecision)

		// Human review
		r.Post("/claims/{id}/review", h.ApplyReviewAction)
		r.Get("/claims/{id}/review", h.ListReviewLog)
		r.Post("/claims/{id}/ask-agent", h.AskAgent)
		r.Get("/reviews/active", h.ListActiveReviews)
	})

	// Reviewer WebSocket channel. Joined per claim.
	if h.ws != nil {
		r.Get("/ws/claims/{claimID}", h.ws.ServeHTTP)
	}
}

package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the request/response optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/efficient_frontier", h.HandleEfficientFrontier)

	// Two-asset variant
	r.Post("/portfolio_optimization", h.HandlePortfolioOptimization)
	r.Options("/portfolio_optimization", h.HandlePreflight)
}

// RegisterStreamRoutes registers the websocket routes. They must not sit
// behind middleware that buffers or compresses the response.
func (h *Handler) RegisterStreamRoutes(r chi.Router) {
	r.Get("/ws/efficient_frontier", h.HandleStreamFrontier)
}

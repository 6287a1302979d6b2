package analytics

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers provides HTTP handlers for analytics endpoints
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates a new analytics handlers instance
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("module", "analytics_handlers").Logger(),
	}
}

// RegisterRoutes registers all analytics routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/portfolios/{portfolioID}/performance", h.GetPerformance)
}

// GetPerformance returns the performance metrics for a portfolio
func (h *Handlers) GetPerformance(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := strconv.ParseInt(chi.URLParam(r, "portfolioID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid portfolio ID", http.StatusBadRequest)
		return
	}

	metrics, err := h.service.Performance(portfolioID)
	if err != nil {
		if errors.Is(err, ErrInsufficientHistory) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to compute performance")
		http.Error(w, "Failed to compute performance", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(metrics)
}

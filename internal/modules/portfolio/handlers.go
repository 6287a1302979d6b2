package portfolio

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stockquest/rebalancer/internal/domain"
)

// Handlers provides HTTP handlers for portfolio endpoints
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates a new portfolio handlers instance
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("module", "portfolio_handlers").Logger(),
	}
}

// RegisterRoutes registers all portfolio routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios/{portfolioID}", func(r chi.Router) {
		r.Get("/", h.GetPortfolio)
		r.Get("/positions", h.GetPositions)
		r.Post("/trades", h.RecordTrade)
		r.Post("/prices", h.UpdatePrices)
		r.Post("/snapshot", h.TakeSnapshot)
	})
}

// PortfolioResponse is the portfolio summary payload
type PortfolioResponse struct {
	ID         int64                      `json:"id"`
	TotalValue decimal.Decimal            `json:"total_value"`
	Weights    map[string]decimal.Decimal `json:"weights"`
	Positions  []domain.Position          `json:"positions"`
}

// GetPortfolio returns the portfolio snapshot with derived weights
func (h *Handlers) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	portfolio, err := h.service.GetPortfolio(portfolioID)
	if err != nil {
		h.log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to load portfolio")
		http.Error(w, "Failed to load portfolio", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, PortfolioResponse{
		ID:         portfolio.ID,
		TotalValue: portfolio.TotalValue(),
		Weights:    portfolio.Weights(),
		Positions:  portfolio.Positions,
	})
}

// GetPositions returns the raw position list
func (h *Handlers) GetPositions(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	portfolio, err := h.service.GetPortfolio(portfolioID)
	if err != nil {
		h.log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to load positions")
		http.Error(w, "Failed to load positions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, portfolio.Positions)
}

// TradeRequest is a buy or sell fill to record
type TradeRequest struct {
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"` // BUY or SELL
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// RecordTrade applies a fill to the portfolio
func (h *Handlers) RecordTrade(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var (
		pos domain.Position
		err error
	)
	switch req.Side {
	case string(domain.ActionBuy):
		pos, err = h.service.RecordBuy(portfolioID, req.Symbol, req.Quantity, req.Price)
	case string(domain.ActionSell):
		pos, err = h.service.RecordSell(portfolioID, req.Symbol, req.Quantity, req.Price)
	default:
		http.Error(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidQuantity) ||
			errors.Is(err, domain.ErrInvalidPrice) ||
			errors.Is(err, domain.ErrInsufficientPosition) {
			status = http.StatusUnprocessableEntity
		}
		h.log.Error().Err(err).Int64("portfolio_id", portfolioID).Str("symbol", req.Symbol).Msg("Failed to record trade")
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// PricesRequest is a quote snapshot to apply
type PricesRequest struct {
	Prices map[string]decimal.Decimal `json:"prices"`
}

// UpdatePrices applies current quotes to the held positions
func (h *Handlers) UpdatePrices(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	var req PricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.UpdatePrices(portfolioID, req.Prices); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidPrice) {
			status = http.StatusUnprocessableEntity
		}
		h.log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to update prices")
		http.Error(w, err.Error(), status)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TakeSnapshot records today's portfolio value
func (h *Handlers) TakeSnapshot(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	snap, err := h.service.TakeSnapshot(portfolioID)
	if err != nil {
		h.log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to take snapshot")
		http.Error(w, "Failed to take snapshot", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) portfolioID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "portfolioID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid portfolio ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

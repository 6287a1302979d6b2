package rebalancing

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

// Handlers provides HTTP handlers for rebalancing endpoints
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates a new rebalancing handlers instance
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("module", "rebalancing_handlers").Logger(),
	}
}

// RegisterRoutes registers all rebalancing routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios/{portfolioID}", func(r chi.Router) {
		r.Get("/strategies", h.ListStrategies)
		r.Post("/strategies", h.CreateStrategy)
		r.Get("/proposals", h.ListProposals)
		r.Post("/proposals", h.Propose)
	})
	r.Delete("/strategies/{strategyID}", h.DeleteStrategy)
	r.Get("/proposals/{proposalID}", h.GetProposal)
	r.Post("/proposals/{proposalID}/status", h.UpdateProposalStatus)
	r.Post("/actions/{actionID}/execute", h.ExecuteAction)
	r.Post("/actions/{actionID}/fail", h.FailAction)
}

// CreateStrategy stores a new strategy for a portfolio
func (h *Handlers) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := pathID(w, r, "portfolioID")
	if !ok {
		return
	}

	var strategy domain.RebalancingStrategy
	if err := json.NewDecoder(r.Body).Decode(&strategy); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.service.CreateStrategy(portfolioID, strategy)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidStrategy) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to create strategy")
		http.Error(w, "Failed to create strategy", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// ListStrategies returns a portfolio's strategies
func (h *Handlers) ListStrategies(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := pathID(w, r, "portfolioID")
	if !ok {
		return
	}

	strategies, err := h.service.GetStrategies(portfolioID)
	if err != nil {
		h.log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to list strategies")
		http.Error(w, "Failed to list strategies", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, strategies)
}

// DeleteStrategy removes a strategy
func (h *Handlers) DeleteStrategy(w http.ResponseWriter, r *http.Request) {
	strategyID, ok := pathID(w, r, "strategyID")
	if !ok {
		return
	}

	if err := h.service.DeleteStrategy(strategyID); err != nil {
		h.log.Error().Err(err).Int64("strategy_id", strategyID).Msg("Failed to delete strategy")
		http.Error(w, "Failed to delete strategy", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ProposeRequest selects the strategy and supplies the price snapshot for a
// proposal run
type ProposeRequest struct {
	StrategyID int64                      `json:"strategy_id"`
	Prices     map[string]decimal.Decimal `json:"prices"`
}

// Propose generates and persists a rebalancing proposal
func (h *Handlers) Propose(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := pathID(w, r, "portfolioID")
	if !ok {
		return
	}

	var req ProposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Propose(portfolioID, req.StrategyID, req.Prices)
	if err != nil {
		switch {
		case errors.Is(err, ErrStrategyNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, domain.ErrInvalidStrategy), errors.Is(err, domain.ErrMissingPriceData):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			h.log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to generate proposal")
			http.Error(w, "Failed to generate proposal", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// GetProposal returns one stored proposal
func (h *Handlers) GetProposal(w http.ResponseWriter, r *http.Request) {
	proposalID, ok := pathID(w, r, "proposalID")
	if !ok {
		return
	}

	result, err := h.service.GetProposal(proposalID)
	if err != nil {
		if errors.Is(err, ErrProposalNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Int64("proposal_id", proposalID).Msg("Failed to load proposal")
		http.Error(w, "Failed to load proposal", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListProposals returns a portfolio's proposals, newest first
func (h *Handlers) ListProposals(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := pathID(w, r, "portfolioID")
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	results, err := h.service.ListProposals(portfolioID, limit)
	if err != nil {
		h.log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to list proposals")
		http.Error(w, "Failed to list proposals", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, results)
}

// StatusRequest is a proposal lifecycle transition
type StatusRequest struct {
	Status domain.ResultStatus `json:"status"`
}

// UpdateProposalStatus approves or rejects a proposal
func (h *Handlers) UpdateProposalStatus(w http.ResponseWriter, r *http.Request) {
	proposalID, ok := pathID(w, r, "proposalID")
	if !ok {
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	switch req.Status {
	case domain.ResultApproved, domain.ResultRejected, domain.ResultExecuted, domain.ResultPartiallyExecuted:
	default:
		http.Error(w, "Invalid status", http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateProposalStatus(proposalID, req.Status); err != nil {
		if errors.Is(err, ErrProposalNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Int64("proposal_id", proposalID).Msg("Failed to update proposal status")
		http.Error(w, "Failed to update proposal status", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ExecuteAction records an action as executed
func (h *Handlers) ExecuteAction(w http.ResponseWriter, r *http.Request) {
	actionID, ok := pathID(w, r, "actionID")
	if !ok {
		return
	}

	action, err := h.service.ExecuteAction(actionID)
	if err != nil {
		if errors.Is(err, ErrActionNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Int64("action_id", actionID).Msg("Failed to execute action")
		http.Error(w, "Failed to execute action", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, action)
}

// FailRequest carries the failure cause for an action
type FailRequest struct {
	Reason string `json:"reason"`
}

// FailAction records an action as failed
func (h *Handlers) FailAction(w http.ResponseWriter, r *http.Request) {
	actionID, ok := pathID(w, r, "actionID")
	if !ok {
		return
	}

	var req FailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	action, err := h.service.FailAction(actionID, req.Reason)
	if err != nil {
		if errors.Is(err, ErrActionNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Int64("action_id", actionID).Msg("Failed to mark action failed")
		http.Error(w, "Failed to mark action failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, action)
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		http.Error(w, "Invalid "+param, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/duelbet/settlement/internal/domain"
)

// MarketService defines the market operations the handler needs.
type MarketService interface {
	Create(ctx context.Context, params domain.MarketParams) (domain.Market, error)
	Get(ctx context.Context, id string) (domain.Market, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	ListByState(ctx context.Context, state domain.MarketState, opts domain.ListOpts) ([]domain.Market, error)
	Events(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.MarketEvent, error)
	SetPaused(ctx context.Context, caller common.Address, paused bool) error
}

// MarketHandler serves market creation and read endpoints.
type MarketHandler struct {
	svc    MarketService
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(svc MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		svc:    svc,
		logger: logHandler(logger, "market"),
	}
}

type createMarketRequest struct {
	Question       string           `json:"question"`
	OutcomeLabels  [2]string        `json:"outcome_labels"`
	Creator        string           `json:"creator"`
	Resolver       string           `json:"resolver"`
	Treasury       string           `json:"treasury"`
	EndTime        time.Time        `json:"end_time"`
	ResolutionTime time.Time        `json:"resolution_time"`
	Fees           domain.FeeParams `json:"fees"`
}

// CreateMarket admits a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	creator, err := parseAddress(req.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resolver, err := parseAddress(req.Resolver)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	treasury, err := parseAddress(req.Treasury)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.svc.Create(r.Context(), domain.MarketParams{
		Question:       req.Question,
		OutcomeLabels:  req.OutcomeLabels,
		Creator:        creator,
		Resolver:       resolver,
		Treasury:       treasury,
		EndTime:        req.EndTime,
		ResolutionTime: req.ResolutionTime,
		Fees:           req.Fees,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create market failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

// listMarketsResponse wraps the market list with its count.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Count   int             `json:"count"`
}

// ListMarkets returns persisted markets, optionally filtered by state.
// GET /api/markets?state=active&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		markets []domain.Market
		err     error
	)
	if raw := r.URL.Query().Get("state"); raw != "" {
		state, perr := domain.ParseMarketState(raw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		markets, err = h.svc.ListByState(r.Context(), state, opts)
	} else {
		markets, err = h.svc.List(r.Context(), opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: markets, Count: len(markets)})
}

// GetMarket returns one market snapshot.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	m, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ListEvents returns a market's settlement journal, oldest first.
// GET /api/markets/{id}/events
func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	events, err := h.svc.Events(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list events failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	if events == nil {
		events = []domain.MarketEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

type pauseRequest struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

// SetPaused toggles the market creation switch. Platform only.
// POST /api/admin/pause
func (h *MarketHandler) SetPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.SetPaused(r.Context(), caller, req.Paused); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

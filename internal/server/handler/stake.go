package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/duelbet/settlement/internal/domain"
)

// StakeService defines the stake operations the handler needs.
type StakeService interface {
	Place(ctx context.Context, marketID string, bettor common.Address, outcomeIndex int, gross int64) (domain.Stake, error)
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Stake, error)
	ListByBettor(ctx context.Context, marketID string, bettor common.Address) ([]domain.Stake, error)
}

// StakeHandler serves stake placement and listing endpoints.
type StakeHandler struct {
	svc    StakeService
	logger *slog.Logger
}

// NewStakeHandler creates a StakeHandler.
func NewStakeHandler(svc StakeService, logger *slog.Logger) *StakeHandler {
	return &StakeHandler{
		svc:    svc,
		logger: logHandler(logger, "stake"),
	}
}

type placeStakeRequest struct {
	Bettor       string `json:"bettor"`
	OutcomeIndex int    `json:"outcome_index"`
	Amount       int64  `json:"amount"`
}

// PlaceStake escrows the gross amount from the bettor and records the stake.
// POST /api/markets/{id}/stakes
func (h *StakeHandler) PlaceStake(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req placeStakeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bettor, err := parseAddress(req.Bettor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stake, err := h.svc.Place(r.Context(), marketID, bettor, req.OutcomeIndex, req.Amount)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "place stake failed",
			slog.String("market_id", marketID),
			slog.String("bettor", bettor.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, stake)
}

// ListStakes returns a market's stakes in placement order, optionally
// filtered to one bettor.
// GET /api/markets/{id}/stakes?bettor=0x...
func (h *StakeHandler) ListStakes(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var (
		stakes []domain.Stake
		err    error
	)
	if raw := r.URL.Query().Get("bettor"); raw != "" {
		bettor, perr := parseAddress(raw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		stakes, err = h.svc.ListByBettor(r.Context(), marketID, bettor)
	} else {
		stakes, err = h.svc.ListByMarket(r.Context(), marketID, parseListOpts(r))
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list stakes failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	if stakes == nil {
		stakes = []domain.Stake{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stakes": stakes,
		"count":  len(stakes),
	})
}

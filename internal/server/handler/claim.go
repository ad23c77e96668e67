package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/duelbet/settlement/internal/engine"
	"github.com/duelbet/settlement/internal/service"
)

// ClaimService defines the pull-payment operations the handler needs.
type ClaimService interface {
	ClaimWinnings(ctx context.Context, marketID string, caller common.Address) (engine.ClaimResult, error)
	ClaimRefund(ctx context.Context, marketID string, caller common.Address) (engine.ClaimResult, error)
	ClaimCreatorFees(ctx context.Context, marketID string, caller common.Address) (engine.ClaimResult, error)
	ClaimPlatformFees(ctx context.Context, marketID string, caller common.Address) (engine.ClaimResult, error)
	Claimable(ctx context.Context, marketID string, caller common.Address) (service.Claimable, error)
}

// ClaimHandler serves the claim endpoints.
type ClaimHandler struct {
	svc    ClaimService
	logger *slog.Logger
}

// NewClaimHandler creates a ClaimHandler.
func NewClaimHandler(svc ClaimService, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{
		svc:    svc,
		logger: logHandler(logger, "claim"),
	}
}

type claimRequest struct {
	Claimant string `json:"claimant"`
}

type claimResponse struct {
	Amount   int64    `json:"amount"`
	StakeIDs []string `json:"stake_ids,omitempty"`
}

// ClaimWinnings pays the claimant's pool share from a resolved market.
// POST /api/markets/{id}/claims/winnings
func (h *ClaimHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, "winnings", h.svc.ClaimWinnings)
}

// ClaimRefund returns the claimant's net stakes from a refunding market.
// POST /api/markets/{id}/claims/refund
func (h *ClaimHandler) ClaimRefund(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, "refund", h.svc.ClaimRefund)
}

// ClaimCreatorFees pays accrued creator fees to the market creator.
// POST /api/markets/{id}/claims/creator-fees
func (h *ClaimHandler) ClaimCreatorFees(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, "creator_fees", h.svc.ClaimCreatorFees)
}

// ClaimPlatformFees sends accrued platform fees to the market's treasury.
// POST /api/markets/{id}/claims/platform-fees
func (h *ClaimHandler) ClaimPlatformFees(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, "platform_fees", h.svc.ClaimPlatformFees)
}

func (h *ClaimHandler) claim(
	w http.ResponseWriter,
	r *http.Request,
	kind string,
	op func(ctx context.Context, marketID string, caller common.Address) (engine.ClaimResult, error),
) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Claimant)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := op(r.Context(), marketID, caller)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "claim failed",
			slog.String("market_id", marketID),
			slog.String("claimant", caller.Hex()),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{Amount: res.Amount, StakeIDs: res.StakeIDs})
}

// Claimable reports what the claimant could withdraw from a market right now.
// GET /api/markets/{id}/claimable?claimant=0x...
func (h *ClaimHandler) Claimable(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}
	caller, err := parseAddress(r.URL.Query().Get("claimant"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.svc.Claimable(r.Context(), marketID, caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

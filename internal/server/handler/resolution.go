package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/duelbet/settlement/internal/domain"
)

// ResolutionService defines the state-machine operations the handler needs.
type ResolutionService interface {
	Propose(ctx context.Context, marketID string, caller common.Address, outcomeIndex int) (domain.Market, error)
	Finalize(ctx context.Context, marketID string) (domain.Market, error)
	Reverse(ctx context.Context, marketID string, caller common.Address, newOutcomeIndex int) (domain.Market, error)
}

// ResolutionHandler serves the propose/finalize/reverse endpoints.
type ResolutionHandler struct {
	svc    ResolutionService
	logger *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler.
func NewResolutionHandler(svc ResolutionService, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		svc:    svc,
		logger: logHandler(logger, "resolution"),
	}
}

type resolutionRequest struct {
	Caller       string `json:"caller"`
	OutcomeIndex int    `json:"outcome_index"`
}

// Propose records the resolver's asserted outcome.
// POST /api/markets/{id}/propose
func (h *ResolutionHandler) Propose(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req resolutionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.svc.Propose(r.Context(), marketID, caller, req.OutcomeIndex)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "propose failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Finalize commits a proposed outcome after the dispute delay. No body:
// finalization is permissionless.
// POST /api/markets/{id}/finalize
func (h *ResolutionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	m, err := h.svc.Finalize(r.Context(), marketID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "finalize failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Reverse corrects a finalized outcome.
// POST /api/markets/{id}/reverse
func (h *ResolutionHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req resolutionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.svc.Reverse(r.Context(), marketID, caller, req.OutcomeIndex)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "reverse failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

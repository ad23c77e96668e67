package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/duelbet/settlement/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a settlement error to its HTTP status: bad input is
// 400, authorization failures are 403, state and timing conflicts are 409,
// and escrow transport failures are 502.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")

	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidOutcome),
		errors.Is(err, domain.ErrEmptyQuestion),
		errors.Is(err, domain.ErrInvalidSchedule),
		errors.Is(err, domain.ErrZeroAddress),
		errors.Is(err, domain.ErrFeeCapExceeded):
		writeError(w, http.StatusBadRequest, userMessage(err))

	case errors.Is(err, domain.ErrNotResolver),
		errors.Is(err, domain.ErrNotCreator),
		errors.Is(err, domain.ErrNotPlatform),
		errors.Is(err, domain.ErrCreatorStake):
		writeError(w, http.StatusForbidden, userMessage(err))

	case errors.Is(err, domain.ErrBettingClosed),
		errors.Is(err, domain.ErrResolutionEarly),
		errors.Is(err, domain.ErrDelayNotElapsed),
		errors.Is(err, domain.ErrResolutionPending),
		errors.Is(err, domain.ErrMarketNotActive),
		errors.Is(err, domain.ErrMarketNotProposed),
		errors.Is(err, domain.ErrMarketNotResolved),
		errors.Is(err, domain.ErrMarketNotRefunding),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrNothingToClaim),
		errors.Is(err, domain.ErrReversalLimit),
		errors.Is(err, domain.ErrSameOutcome),
		errors.Is(err, domain.ErrCreationPaused),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, userMessage(err))

	case errors.Is(err, domain.ErrEscrowTransfer):
		writeError(w, http.StatusBadGateway, userMessage(err))

	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// userMessage strips the service wrapping prefix and returns the innermost
// sentinel's text, which is safe to show to clients.
func userMessage(err error) string {
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return err.Error()
		}
		err = inner
	}
}

// decodeBody reads a JSON request body into v, rejecting payloads over 1 MiB.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseAddress validates and parses a hex account address.
func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}

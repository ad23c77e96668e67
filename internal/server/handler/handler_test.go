package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelbet/settlement/internal/domain"
	"github.com/duelbet/settlement/internal/engine"
	"github.com/duelbet/settlement/internal/service"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const testAddr = "0x1000000000000000000000000000000000000001"

// stubClaims fails every operation with a fixed error, for status mapping
// tests.
type stubClaims struct {
	err error
}

func (s *stubClaims) ClaimWinnings(context.Context, string, common.Address) (engine.ClaimResult, error) {
	return engine.ClaimResult{}, s.err
}

func (s *stubClaims) ClaimRefund(context.Context, string, common.Address) (engine.ClaimResult, error) {
	return engine.ClaimResult{}, s.err
}

func (s *stubClaims) ClaimCreatorFees(context.Context, string, common.Address) (engine.ClaimResult, error) {
	return engine.ClaimResult{}, s.err
}

func (s *stubClaims) ClaimPlatformFees(context.Context, string, common.Address) (engine.ClaimResult, error) {
	return engine.ClaimResult{}, s.err
}

func (s *stubClaims) Claimable(context.Context, string, common.Address) (service.Claimable, error) {
	return service.Claimable{}, s.err
}

func claimReq(t *testing.T, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"claimant":%q}`, testAddr)
	req := httptest.NewRequest(http.MethodPost, "/api/markets/m1/claims/winnings", strings.NewReader(body))
	req.SetPathValue("id", "m1")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestClaimErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"not resolved", domain.ErrMarketNotResolved, http.StatusConflict},
		{"nothing to claim", domain.ErrNothingToClaim, http.StatusConflict},
		{"not platform", domain.ErrNotPlatform, http.StatusForbidden},
		{"lock held", domain.ErrLockHeld, http.StatusConflict},
		{"escrow transport", domain.ErrEscrowTransfer, http.StatusBadGateway},
		{"unknown", fmt.Errorf("pool exhausted"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Service wrapping must not disturb the mapping.
			wrapped := fmt.Errorf("claim_service: winnings on m1: %w", tc.err)
			h := NewClaimHandler(&stubClaims{err: wrapped}, testLogger)

			rec := claimReq(t, h.ClaimWinnings)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestClaimErrorBodyCarriesSentinelText(t *testing.T) {
	wrapped := fmt.Errorf("claim_service: winnings on m1: %w", domain.ErrNothingToClaim)
	h := NewClaimHandler(&stubClaims{err: wrapped}, testLogger)

	rec := claimReq(t, h.ClaimWinnings)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.ErrNothingToClaim.Error(), resp["error"])
}

func TestClaimRejectsBadClaimant(t *testing.T) {
	h := NewClaimHandler(&stubClaims{}, testLogger)

	req := httptest.NewRequest(http.MethodPost, "/api/markets/m1/claims/winnings",
		strings.NewReader(`{"claimant":"not-an-address"}`))
	req.SetPathValue("id", "m1")
	rec := httptest.NewRecorder()
	h.ClaimWinnings(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// stubMarkets returns canned values for the market handler.
type stubMarkets struct {
	market domain.Market
	err    error
}

func (s *stubMarkets) Create(context.Context, domain.MarketParams) (domain.Market, error) {
	return s.market, s.err
}

func (s *stubMarkets) Get(context.Context, string) (domain.Market, error) {
	return s.market, s.err
}

func (s *stubMarkets) List(context.Context, domain.ListOpts) ([]domain.Market, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []domain.Market{s.market}, nil
}

func (s *stubMarkets) ListByState(context.Context, domain.MarketState, domain.ListOpts) ([]domain.Market, error) {
	if s.err != nil {
		return nil, s.err
	}
	return nil, nil
}

func (s *stubMarkets) Events(context.Context, string, domain.ListOpts) ([]domain.MarketEvent, error) {
	return nil, s.err
}

func (s *stubMarkets) SetPaused(context.Context, common.Address, bool) error {
	return s.err
}

func TestCreateMarket(t *testing.T) {
	created := domain.Market{ID: "m1", Question: "q", State: domain.StateActive}
	h := NewMarketHandler(&stubMarkets{market: created}, testLogger)

	body := fmt.Sprintf(`{
		"question": "q",
		"outcome_labels": ["Yes", "No"],
		"creator": %q, "resolver": %q, "treasury": %q,
		"end_time": %q, "resolution_time": %q,
		"fees": {"base_fee_bps": 100}
	}`, testAddr, testAddr, testAddr,
		time.Now().Add(time.Hour).Format(time.RFC3339),
		time.Now().Add(2*time.Hour).Format(time.RFC3339))

	req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateMarket(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var got domain.Market
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "m1", got.ID)
}

func TestCreateMarketValidationErrors(t *testing.T) {
	t.Run("bad address", func(t *testing.T) {
		h := NewMarketHandler(&stubMarkets{}, testLogger)
		body := `{"question":"q","creator":"nope","resolver":"nope","treasury":"nope"}`
		req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.CreateMarket(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("fee cap exceeded maps to 400", func(t *testing.T) {
		h := NewMarketHandler(&stubMarkets{err: domain.ErrFeeCapExceeded}, testLogger)
		body := fmt.Sprintf(`{"question":"q","creator":%q,"resolver":%q,"treasury":%q}`,
			testAddr, testAddr, testAddr)
		req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.CreateMarket(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("creation paused maps to 409", func(t *testing.T) {
		h := NewMarketHandler(&stubMarkets{err: domain.ErrCreationPaused}, testLogger)
		body := fmt.Sprintf(`{"question":"q","creator":%q,"resolver":%q,"treasury":%q}`,
			testAddr, testAddr, testAddr)
		req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.CreateMarket(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestListMarketsRejectsUnknownState(t *testing.T) {
	h := NewMarketHandler(&stubMarkets{}, testLogger)
	req := httptest.NewRequest(http.MethodGet, "/api/markets?state=limbo", nil)
	rec := httptest.NewRecorder()
	h.ListMarkets(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseListOptsClampsLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/markets?limit=9999&offset=20", nil)
	opts := parseListOpts(req)
	assert.Equal(t, 500, opts.Limit)
	assert.Equal(t, 20, opts.Offset)

	req = httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	opts = parseListOpts(req)
	assert.Equal(t, 50, opts.Limit)
	assert.Zero(t, opts.Offset)
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(testLogger)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duelbet/settlement/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

var _ domain.MarketStore = (*MarketStore)(nil)

const marketCols = `id, question, outcome_label_1, outcome_label_2,
	creator, resolver, treasury, end_time, resolution_time,
	base_fee_bps, platform_fee_bps, creator_fee_bps, max_additional_fee_bps,
	state, total_volume, outcome_total_1, outcome_total_2,
	proposed_outcome, proposed_at, correct_outcome, reversal_count,
	claimable_creator_fees, claimable_platform_fees,
	created_at, updated_at`

func marketArgs(m domain.Market) []any {
	var proposedAt *time.Time
	if !m.ProposedAt.IsZero() {
		t := m.ProposedAt
		proposedAt = &t
	}
	return []any{
		m.ID, m.Question, m.OutcomeLabels[0], m.OutcomeLabels[1],
		m.Creator.Hex(), m.Resolver.Hex(), m.Treasury.Hex(),
		m.EndTime, m.ResolutionTime,
		m.Fees.BaseFeeBps, m.Fees.PlatformFeeBps, m.Fees.CreatorFeeBps, m.Fees.MaxAdditionalFeeBps,
		m.State.String(), m.TotalVolume, m.OutcomeTotals[0], m.OutcomeTotals[1],
		m.ProposedOutcome, proposedAt, m.CorrectOutcome, m.ReversalCount,
		m.ClaimableCreatorFees, m.ClaimablePlatformFees,
		m.CreatedAt, m.UpdatedAt,
	}
}

// Insert persists a newly created market.
func (s *MarketStore) Insert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (` + marketCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`

	if _, err := s.pool.Exec(ctx, query, marketArgs(m)...); err != nil {
		return fmt.Errorf("postgres: insert market %s: %w", m.ID, err)
	}
	return nil
}

// Update overwrites the mutable ledger columns of an existing market.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	var proposedAt *time.Time
	if !m.ProposedAt.IsZero() {
		t := m.ProposedAt
		proposedAt = &t
	}
	const query = `
		UPDATE markets SET
			state                   = $2,
			total_volume            = $3,
			outcome_total_1         = $4,
			outcome_total_2         = $5,
			proposed_outcome        = $6,
			proposed_at             = $7,
			correct_outcome         = $8,
			reversal_count          = $9,
			claimable_creator_fees  = $10,
			claimable_platform_fees = $11,
			updated_at              = $12
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		m.ID, m.State.String(), m.TotalVolume,
		m.OutcomeTotals[0], m.OutcomeTotals[1],
		m.ProposedOutcome, proposedAt, m.CorrectOutcome, m.ReversalCount,
		m.ClaimableCreatorFees, m.ClaimablePlatformFees, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m          domain.Market
		creator    string
		resolver   string
		treasury   string
		state      string
		proposedAt *time.Time
	)
	err := row.Scan(
		&m.ID, &m.Question, &m.OutcomeLabels[0], &m.OutcomeLabels[1],
		&creator, &resolver, &treasury, &m.EndTime, &m.ResolutionTime,
		&m.Fees.BaseFeeBps, &m.Fees.PlatformFeeBps, &m.Fees.CreatorFeeBps, &m.Fees.MaxAdditionalFeeBps,
		&state, &m.TotalVolume, &m.OutcomeTotals[0], &m.OutcomeTotals[1],
		&m.ProposedOutcome, &proposedAt, &m.CorrectOutcome, &m.ReversalCount,
		&m.ClaimableCreatorFees, &m.ClaimablePlatformFees,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Creator = common.HexToAddress(creator)
	m.Resolver = common.HexToAddress(resolver)
	m.Treasury = common.HexToAddress(treasury)
	if m.State, err = domain.ParseMarketState(state); err != nil {
		return domain.Market{}, err
	}
	if proposedAt != nil {
		m.ProposedAt = *proposedAt
	}
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets ordered by creation time with pagination and optional
// time filtering.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.list(ctx, "", opts)
}

// ListByState returns markets currently in the given state.
func (s *MarketStore) ListByState(ctx context.Context, state domain.MarketState, opts domain.ListOpts) ([]domain.Market, error) {
	return s.list(ctx, state.String(), opts)
}

func (s *MarketStore) list(ctx context.Context, state string, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if state != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, state)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

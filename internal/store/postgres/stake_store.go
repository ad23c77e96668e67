package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duelbet/settlement/internal/domain"
)

// StakeStore implements domain.StakeStore using PostgreSQL.
type StakeStore struct {
	pool *pgxpool.Pool
}

// NewStakeStore creates a new StakeStore backed by the given connection pool.
func NewStakeStore(pool *pgxpool.Pool) *StakeStore {
	return &StakeStore{pool: pool}
}

var _ domain.StakeStore = (*StakeStore)(nil)

const stakeCols = `id, market_id, bettor, outcome_index,
	gross_amount, fee_amount, net_amount, placed_at, claimed`

// Insert persists a newly placed stake.
func (s *StakeStore) Insert(ctx context.Context, st domain.Stake) error {
	const query = `
		INSERT INTO stakes (` + stakeCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		st.ID, st.MarketID, st.Bettor.Hex(), st.OutcomeIndex,
		st.GrossAmount, st.FeeAmount, st.NetAmount, st.PlacedAt, st.Claimed,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert stake %s: %w", st.ID, err)
	}
	return nil
}

// MarkClaimed flips the claimed flag on the given stakes in one statement.
func (s *StakeStore) MarkClaimed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE stakes SET claimed = TRUE WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("postgres: mark stakes claimed: %w", err)
	}
	return nil
}

func scanStake(row pgx.Row) (domain.Stake, error) {
	var (
		st     domain.Stake
		bettor string
	)
	err := row.Scan(
		&st.ID, &st.MarketID, &bettor, &st.OutcomeIndex,
		&st.GrossAmount, &st.FeeAmount, &st.NetAmount, &st.PlacedAt, &st.Claimed,
	)
	if err != nil {
		return domain.Stake{}, err
	}
	st.Bettor = common.HexToAddress(bettor)
	return st, nil
}

// ListByMarket returns a market's stakes in placement order.
func (s *StakeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Stake, error) {
	query := `SELECT ` + stakeCols + ` FROM stakes WHERE market_id = $1 ORDER BY placed_at ASC, id ASC`
	args := []any{marketID}
	argIdx := 2

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
		return nil, fmt.Errorf("postgres: list stakes for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var stakes []domain.Stake
	for rows.Next() {
		st, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stake: %w", err)
		}
		stakes = append(stakes, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list stakes rows: %w", err)
	}
	return stakes, nil
}

// ListByBettor returns one bettor's stakes in a market in placement order.
func (s *StakeStore) ListByBettor(ctx context.Context, marketID string, bettor common.Address) ([]domain.Stake, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stakeCols+` FROM stakes
		WHERE market_id = $1 AND bettor = $2
		ORDER BY placed_at ASC, id ASC`,
		marketID, bettor.Hex(),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stakes for bettor %s: %w", bettor.Hex(), err)
	}
	defer rows.Close()

	var stakes []domain.Stake
	for rows.Next() {
		st, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stake: %w", err)
		}
		stakes = append(stakes, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bettor stakes rows: %w", err)
	}
	return stakes, nil
}

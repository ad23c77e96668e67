package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duelbet/settlement/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The journal is
// append-only; rows only leave it when the archiver moves a finalized market
// to cold storage.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

var _ domain.EventStore = (*EventStore)(nil)

// Append persists one settlement event. The payload map is stored as JSONB.
func (s *EventStore) Append(ctx context.Context, e domain.MarketEvent) error {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal event payload: %w", err)
	}

	const query = `
		INSERT INTO market_events (id, market_id, event_type, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = s.pool.Exec(ctx, query,
		e.ID, e.MarketID, string(e.Type), payloadJSON, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", e.Type, err)
	}
	return nil
}

// ListByMarket returns a market's events in occurrence order.
func (s *EventStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	query := `SELECT id, market_id, event_type, payload, occurred_at
		FROM market_events WHERE market_id = $1`
	args := []any{marketID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND occurred_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND occurred_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY occurred_at ASC, id ASC"

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
		return nil, fmt.Errorf("postgres: list events for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var events []domain.MarketEvent
	for rows.Next() {
		var (
			e           domain.MarketEvent
			eventType   string
			payloadJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.MarketID, &eventType, &payloadJSON, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Type = domain.EventType(eventType)
		if payloadJSON != nil {
			if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal event payload: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}

// DeleteByMarket removes a market's events after archival and reports how many
// rows went away.
func (s *EventStore) DeleteByMarket(ctx context.Context, marketID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM market_events WHERE market_id = $1`, marketID)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events for market %s: %w", marketID, err)
	}
	return tag.RowsAffected(), nil
}

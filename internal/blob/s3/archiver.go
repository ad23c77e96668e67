package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/duelbet/settlement/internal/domain"
)

// ArchiveImpl implements domain.Archiver by exporting a finalized market's
// full record (snapshot, stakes, event journal) to JSONL in object storage
// and then pruning the event journal from the primary store. Markets and
// stakes stay in PostgreSQL; only the per-market event journal, which grows
// without bound, is moved to cold storage.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	markets domain.MarketStore
	stakes  domain.StakeStore
	events  domain.EventStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	markets domain.MarketStore,
	stakes domain.StakeStore,
	events domain.EventStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		markets: markets,
		stakes:  stakes,
		events:  events,
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// archiveRecord is the JSONL line layout: a tag plus exactly one populated
// field, so the file is self-describing when read back.
type archiveRecord struct {
	Kind   string              `json:"kind"` // "market", "stake", or "event"
	Market *domain.Market      `json:"market,omitempty"`
	Stake  *domain.Stake       `json:"stake,omitempty"`
	Event  *domain.MarketEvent `json:"event,omitempty"`
}

// ArchiveMarket exports one market to archive/markets/{id}.jsonl and deletes
// its event journal from the primary store. It returns the number of journal
// rows pruned. The upload happens before the delete, so a failed upload
// leaves the journal intact.
func (a *ArchiveImpl) ArchiveMarket(ctx context.Context, marketID string) (int64, error) {
	m, err := a.markets.GetByID(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive market %s: %w", marketID, err)
	}
	stakes, err := a.stakes.ListByMarket(ctx, marketID, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive market %s stakes: %w", marketID, err)
	}
	events, err := a.events.ListByMarket(ctx, marketID, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive market %s events: %w", marketID, err)
	}

	records := make([]archiveRecord, 0, 1+len(stakes)+len(events))
	records = append(records, archiveRecord{Kind: "market", Market: &m})
	for i := range stakes {
		records = append(records, archiveRecord{Kind: "stake", Stake: &stakes[i]})
	}
	for i := range events {
		records = append(records, archiveRecord{Kind: "event", Event: &events[i]})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive market %s marshal: %w", marketID, err)
	}

	path := fmt.Sprintf("archive/markets/%s.jsonl", marketID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive market %s upload: %w", marketID, err)
	}

	pruned, err := a.events.DeleteByMarket(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive market %s prune journal: %w", marketID, err)
	}
	return pruned, nil
}

// ArchiveFinalized archives every resolved or refunding market whose last
// update is strictly before the cutoff. It returns the total number of
// journal rows pruned and stops at the first failing market.
func (a *ArchiveImpl) ArchiveFinalized(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for _, state := range []domain.MarketState{domain.StateResolved, domain.StateRefunding} {
		markets, err := a.markets.ListByState(ctx, state, domain.ListOpts{})
		if err != nil {
			return total, fmt.Errorf("s3blob: archive finalized list %s: %w", state, err)
		}
		for _, m := range markets {
			if !m.UpdatedAt.Before(before) {
				continue
			}
			pruned, err := a.ArchiveMarket(ctx, m.ID)
			if err != nil {
				return total, err
			}
			total += pruned
		}
	}
	return total, nil
}

// marshalJSONL serialises records as newline-delimited JSON, one compact line
// per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

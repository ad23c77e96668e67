package domain

import "time"

// EventType names a settlement event in the append-only journal.
type EventType string

const (
	EventStakePlaced         EventType = "stake_placed"
	EventResolutionProposed  EventType = "resolution_proposed"
	EventMarketResolved      EventType = "market_resolved"
	EventMarketRefunding     EventType = "market_refunding"
	EventResolutionReversed  EventType = "resolution_reversed"
	EventWinningsClaimed     EventType = "winnings_claimed"
	EventRefundClaimed       EventType = "refund_claimed"
	EventCreatorFeesClaimed  EventType = "creator_fees_claimed"
	EventPlatformFeesClaimed EventType = "platform_fees_claimed"
)

// MarketEvent is one entry in a market's event journal. The payload carries
// the transition-specific details as loosely typed key/value pairs so the
// journal schema never needs migrating when an event gains a field.
type MarketEvent struct {
	ID         string         `json:"id"`
	MarketID   string         `json:"market_id"`
	Type       EventType      `json:"type"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

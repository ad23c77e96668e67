package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/duelbet/settlement/internal/domain"
)

const (
	// eventChannelPrefix is the pub/sub channel namespace; one channel per
	// market so subscribers can follow a single question.
	eventChannelPrefix = "settle:events:"

	// eventStream is the durable stream every settlement event is appended
	// to, in global order.
	eventStream = "settle:events"
)

// eventSink journals a settlement event and fans it out. The database append
// is the durable record and its failure is returned to the caller; pub/sub
// and stream delivery are best-effort and only logged.
type eventSink struct {
	events domain.EventStore
	bus    domain.SignalBus
	logger *slog.Logger
}

func newEventSink(events domain.EventStore, bus domain.SignalBus, logger *slog.Logger) *eventSink {
	return &eventSink{
		events: events,
		bus:    bus,
		logger: logger.With(slog.String("component", "event_sink")),
	}
}

func (s *eventSink) record(ctx context.Context, ev domain.MarketEvent) error {
	if err := s.events.Append(ctx, ev); err != nil {
		return fmt.Errorf("event journal append: %w", err)
	}

	if s.bus == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.WarnContext(ctx, "event marshal failed",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := s.bus.Publish(ctx, eventChannelPrefix+ev.MarketID, payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("market_id", ev.MarketID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, eventStream, payload); err != nil {
		s.logger.WarnContext(ctx, "event stream append failed",
			slog.String("market_id", ev.MarketID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/slot-inventory/internal/core/domain"
)

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.InventoryEvent) error {
	p.logger.Info("inventory event",
		zap.String("type", string(event.Type)),
		zap.String("slot_id", event.SlotID),
		zap.Strings("item_ids", event.ItemIDs),
		zap.Int("quantity_delta", event.QuantityDelta),
		zap.Int("slot_item_count", event.SlotItemCount),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

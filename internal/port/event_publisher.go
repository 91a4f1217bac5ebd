package port

import (
	"context"

	"github.com/rl1809/slot-inventory/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, event domain.InventoryEvent) error
	Close() error
}

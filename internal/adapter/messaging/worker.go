package messaging

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/rl1809/slot-inventory/internal/core/domain"
	"github.com/rl1809/slot-inventory/internal/port"
)

const (
	publishTimeout  = 5 * time.Second
	publishRetries  = 3
	retryInitial    = 100 * time.Millisecond
	retryMaxElapsed = 10 * time.Second
)

// RunWorker publishes events from queue until it is closed. A publish that still
// fails after retries is logged and dropped; the mutation is already committed.
func RunWorker(id int, queue <-chan domain.InventoryEvent, publisher port.EventPublisher, logger *zap.Logger) {
	logger = logger.With(zap.Int("worker", id))
	for event := range queue {
		if err := publishWithRetry(publisher, event); err != nil {
			logger.Error("failed to publish event",
				zap.String("type", string(event.Type)),
				zap.String("slot_id", event.SlotID),
				zap.Error(err),
			)
			continue
		}
		logger.Debug("published event",
			zap.String("type", string(event.Type)),
			zap.String("slot_id", event.SlotID),
		)
	}
}

func publishWithRetry(publisher port.EventPublisher, event domain.InventoryEvent) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitial
	policy.MaxElapsedTime = retryMaxElapsed

	return backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		return publisher.Publish(ctx, event)
	}, backoff.WithMaxRetries(policy, publishRetries))
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rl1809/slot-inventory/internal/core/domain"
	"github.com/rl1809/slot-inventory/internal/port"
)

// SlotService is the slot registry: it owns slot lifecycle and the global slot ceiling.
type SlotService struct {
	store  port.Store
	limits domain.Limits
	feed   *ChangeFeed
	now    func() time.Time
}

func NewSlotService(store port.Store, limits domain.Limits, feed *ChangeFeed) *SlotService {
	return &SlotService{
		store:  store,
		limits: limits,
		feed:   feed,
		now:    utcNow,
	}
}

// CreateSlot registers an empty slot. Code uniqueness is left to the store so that
// two concurrent creates with the same code cannot both succeed.
func (s *SlotService) CreateSlot(ctx context.Context, code string, capacity int) (_ *domain.Slot, err error) {
	ctx, span := startSpan(ctx, "SlotService.CreateSlot",
		attribute.String("slot.code", code), attribute.Int("slot.capacity", capacity))
	defer func() { endSpan(span, err) }()

	if code == "" {
		return nil, domain.NewInvalidArgument("code", "must not be empty")
	}
	if capacity <= 0 {
		return nil, domain.NewInvalidArgument("capacity", "must be positive")
	}

	var slot domain.Slot
	err = s.store.RunInTx(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		count, err := repo.CountSlots(ctx)
		if err != nil {
			return fmt.Errorf("count slots: %w", err)
		}
		if count >= s.limits.MaxSlots {
			return &domain.SlotLimitReachedError{Limit: s.limits.MaxSlots}
		}

		now := s.now()
		slot = domain.Slot{
			ID:               uuid.NewString(),
			Code:             code,
			Capacity:         capacity,
			CurrentItemCount: 0,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := repo.CreateSlot(ctx, slot); err != nil {
			if errors.Is(err, port.ErrUniqueViolation) {
				return &domain.DuplicateCodeError{Code: code}
			}
			return fmt.Errorf("insert slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.feed.emit(domain.InventoryEvent{
		Type:       domain.EventSlotCreated,
		SlotID:     slot.ID,
		OccurredAt: slot.CreatedAt,
	})
	return &slot, nil
}

func (s *SlotService) ListSlots(ctx context.Context) (_ []domain.Slot, err error) {
	ctx, span := startSpan(ctx, "SlotService.ListSlots")
	defer func() { endSpan(span, err) }()

	slots, err := s.store.ListSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// GetSlot returns nil without error when the slot does not exist.
func (s *SlotService) GetSlot(ctx context.Context, id string) (_ *domain.Slot, err error) {
	ctx, span := startSpan(ctx, "SlotService.GetSlot", attribute.String("slot.id", id))
	defer func() { endSpan(span, err) }()

	slot, err := s.store.GetSlot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

// GetSlotByCode returns nil without error when no slot carries the code.
func (s *SlotService) GetSlotByCode(ctx context.Context, code string) (_ *domain.Slot, err error) {
	ctx, span := startSpan(ctx, "SlotService.GetSlotByCode", attribute.String("slot.code", code))
	defer func() { endSpan(span, err) }()

	slot, err := s.store.GetSlotByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get slot by code: %w", err)
	}
	return slot, nil
}

// DeleteSlot removes the slot together with every item it holds.
func (s *SlotService) DeleteSlot(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "SlotService.DeleteSlot", attribute.String("slot.id", id))
	defer func() { endSpan(span, err) }()

	var (
		removed int
		now     time.Time
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		slot, err := repo.GetSlotForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("lock slot: %w", err)
		}
		if slot == nil {
			return domain.SlotNotFound(id)
		}
		removed = slot.CurrentItemCount
		now = s.now()
		if err := repo.DeleteItemsBySlot(ctx, id); err != nil {
			return fmt.Errorf("delete slot items: %w", err)
		}
		if err := repo.DeleteSlot(ctx, id); err != nil {
			return fmt.Errorf("delete slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.feed.emit(domain.InventoryEvent{
		Type:          domain.EventSlotDeleted,
		SlotID:        id,
		QuantityDelta: -removed,
		OccurredAt:    now,
	})
	return nil
}

package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rl1809/slot-inventory/internal/core/domain"
	"github.com/rl1809/slot-inventory/internal/port"
)

// ItemService is the item ledger. Every mutation locks the owning slot row, checks
// the cached counter and writes items and counter in the same transaction.
type ItemService struct {
	store  port.Store
	limits domain.Limits
	feed   *ChangeFeed
	now    func() time.Time
}

func NewItemService(store port.Store, limits domain.Limits, feed *ChangeFeed) *ItemService {
	return &ItemService{
		store:  store,
		limits: limits,
		feed:   feed,
		now:    utcNow,
	}
}

// checkCapacity rejects a projected count above the slot capacity or the global per-slot ceiling.
func (s *ItemService) checkCapacity(slot *domain.Slot, projected int) error {
	if projected > slot.Capacity {
		return &domain.CapacityExceededError{SlotID: slot.ID, Attempted: projected, Limit: slot.Capacity}
	}
	if projected > s.limits.MaxItemsPerSlot {
		return &domain.CapacityExceededError{
			SlotID:    slot.ID,
			Attempted: projected,
			Limit:     s.limits.MaxItemsPerSlot,
			Ceiling:   true,
		}
	}
	return nil
}

func lockSlot(ctx context.Context, repo port.DatabaseRepository, slotID string) (*domain.Slot, error) {
	slot, err := repo.GetSlotForUpdate(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("lock slot: %w", err)
	}
	if slot == nil {
		return nil, domain.SlotNotFound(slotID)
	}
	return slot, nil
}

func (s *ItemService) AddItem(ctx context.Context, slotID, name string, price int64, quantity int) (_ *domain.Item, err error) {
	ctx, span := startSpan(ctx, "ItemService.AddItem",
		attribute.String("slot.id", slotID), attribute.Int("item.quantity", quantity))
	defer func() { endSpan(span, err) }()

	if quantity <= 0 {
		return nil, domain.NewInvalidArgument("quantity", "must be positive")
	}
	if price < 0 {
		return nil, domain.NewInvalidArgument("price", "must not be negative")
	}

	var (
		item      domain.Item
		projected int
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		slot, err := lockSlot(ctx, repo, slotID)
		if err != nil {
			return err
		}
		projected = slot.CurrentItemCount + quantity
		if err := s.checkCapacity(slot, projected); err != nil {
			return err
		}

		now := s.now()
		item = domain.Item{
			ID:        uuid.NewString(),
			SlotID:    slotID,
			Name:      name,
			Price:     price,
			Quantity:  quantity,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.CreateItem(ctx, item); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		if err := repo.UpdateSlotItemCount(ctx, slotID, projected, now); err != nil {
			return fmt.Errorf("update slot count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.feed.emit(domain.InventoryEvent{
		Type:          domain.EventItemAdded,
		SlotID:        slotID,
		ItemIDs:       []string{item.ID},
		QuantityDelta: quantity,
		SlotItemCount: projected,
		OccurredAt:    item.CreatedAt,
	})
	return &item, nil
}

// BulkAddItems adds entries in order and returns the total quantity added. Entries
// with a non-positive quantity are skipped. The first capacity breach aborts the
// whole call and nothing from it is committed.
func (s *ItemService) BulkAddItems(ctx context.Context, slotID string, entries []domain.ItemEntry) (_ int, err error) {
	ctx, span := startSpan(ctx, "ItemService.BulkAddItems",
		attribute.String("slot.id", slotID), attribute.Int("bulk.entries", len(entries)))
	defer func() { endSpan(span, err) }()

	for i, e := range entries {
		if e.Price < 0 {
			return 0, domain.NewInvalidArgument(fmt.Sprintf("entries[%d].price", i), "must not be negative")
		}
	}

	var (
		added   int
		running int
		ids     []string
		now     time.Time
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		added, ids = 0, nil

		slot, err := lockSlot(ctx, repo, slotID)
		if err != nil {
			return err
		}
		running = slot.CurrentItemCount
		now = s.now()

		for _, e := range entries {
			if e.Quantity <= 0 {
				continue
			}
			projected := running + e.Quantity
			if err := s.checkCapacity(slot, projected); err != nil {
				return err
			}

			item := domain.Item{
				ID:        uuid.NewString(),
				SlotID:    slotID,
				Name:      e.Name,
				Price:     e.Price,
				Quantity:  e.Quantity,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := repo.CreateItem(ctx, item); err != nil {
				return fmt.Errorf("insert item: %w", err)
			}
			running = projected
			added += e.Quantity
			ids = append(ids, item.ID)
		}

		if added == 0 {
			return nil
		}
		if err := repo.UpdateSlotItemCount(ctx, slotID, running, now); err != nil {
			return fmt.Errorf("update slot count: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if added > 0 {
		s.feed.emit(domain.InventoryEvent{
			Type:          domain.EventItemsBulkAdded,
			SlotID:        slotID,
			ItemIDs:       ids,
			QuantityDelta: added,
			SlotItemCount: running,
			OccurredAt:    now,
		})
	}
	return added, nil
}

func (s *ItemService) ListItemsBySlot(ctx context.Context, slotID string) (_ []domain.Item, err error) {
	ctx, span := startSpan(ctx, "ItemService.ListItemsBySlot", attribute.String("slot.id", slotID))
	defer func() { endSpan(span, err) }()

	var items []domain.Item
	err = s.store.RunReadOnly(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		slot, err := repo.GetSlot(ctx, slotID)
		if err != nil {
			return fmt.Errorf("get slot: %w", err)
		}
		if slot == nil {
			return domain.SlotNotFound(slotID)
		}
		items, err = repo.ListItemsBySlot(ctx, slotID)
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *ItemService) GetItem(ctx context.Context, itemID string) (_ *domain.Item, err error) {
	ctx, span := startSpan(ctx, "ItemService.GetItem", attribute.String("item.id", itemID))
	defer func() { endSpan(span, err) }()

	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if item == nil {
		return nil, domain.ItemNotFound(itemID)
	}
	return item, nil
}

// UpdatePrice sets the price and refreshes updated_at. Slot occupancy is untouched.
func (s *ItemService) UpdatePrice(ctx context.Context, itemID string, price int64) (err error) {
	ctx, span := startSpan(ctx, "ItemService.UpdatePrice", attribute.String("item.id", itemID))
	defer func() { endSpan(span, err) }()

	if price < 0 {
		return domain.NewInvalidArgument("price", "must not be negative")
	}

	var (
		slotID string
		now    time.Time
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		item, err := repo.GetItem(ctx, itemID)
		if err != nil {
			return fmt.Errorf("get item: %w", err)
		}
		if item == nil {
			return domain.ItemNotFound(itemID)
		}
		slotID = item.SlotID
		now = s.now()
		if err := repo.UpdateItemPrice(ctx, itemID, price, now); err != nil {
			return fmt.Errorf("update price: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.feed.emit(domain.InventoryEvent{
		Type:       domain.EventItemPriceUpdated,
		SlotID:     slotID,
		ItemIDs:    []string{itemID},
		OccurredAt: now,
	})
	return nil
}

// RemoveQuantity removes up to *quantity units of an item owned by the slot, or the
// whole item when quantity is nil. An item that reaches zero is deleted. It returns
// the number of units removed.
func (s *ItemService) RemoveQuantity(ctx context.Context, slotID, itemID string, quantity *int) (_ int, err error) {
	ctx, span := startSpan(ctx, "ItemService.RemoveQuantity",
		attribute.String("slot.id", slotID), attribute.String("item.id", itemID))
	defer func() { endSpan(span, err) }()

	if quantity != nil && *quantity <= 0 {
		return 0, domain.NewInvalidArgument("quantity", "must be positive")
	}

	var (
		removed   int
		remaining int
		now       time.Time
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		slot, err := lockSlot(ctx, repo, slotID)
		if err != nil {
			return err
		}
		item, err := repo.GetItemInSlot(ctx, slotID, itemID)
		if err != nil {
			return fmt.Errorf("get item: %w", err)
		}
		if item == nil {
			return domain.ItemNotFound(itemID)
		}

		removed = item.Quantity
		if quantity != nil {
			removed = min(*quantity, item.Quantity)
		}
		left := item.Quantity - removed
		remaining = slot.CurrentItemCount - removed
		now = s.now()

		if left <= 0 {
			if err := repo.DeleteItem(ctx, itemID); err != nil {
				return fmt.Errorf("delete item: %w", err)
			}
		} else if err := repo.UpdateItemQuantity(ctx, itemID, left, now); err != nil {
			return fmt.Errorf("update item quantity: %w", err)
		}
		if err := repo.UpdateSlotItemCount(ctx, slotID, remaining, now); err != nil {
			return fmt.Errorf("update slot count: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.feed.emit(domain.InventoryEvent{
		Type:          domain.EventItemRemoved,
		SlotID:        slotID,
		ItemIDs:       []string{itemID},
		QuantityDelta: -removed,
		SlotItemCount: remaining,
		OccurredAt:    now,
	})
	return removed, nil
}

// BulkRemoveItems deletes the listed items from the slot, or every item when itemIDs
// is empty. All listed ids must belong to the slot; otherwise nothing is removed and a
// PartialSetNotFoundError names the missing ones. It returns the quantity removed.
func (s *ItemService) BulkRemoveItems(ctx context.Context, slotID string, itemIDs []string) (_ int, err error) {
	ctx, span := startSpan(ctx, "ItemService.BulkRemoveItems",
		attribute.String("slot.id", slotID), attribute.Int("bulk.ids", len(itemIDs)))
	defer func() { endSpan(span, err) }()

	ids := dedupe(itemIDs)

	var (
		removed   int
		remaining int
		removedID []string
		now       time.Time
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		removed, removedID = 0, nil

		slot, err := lockSlot(ctx, repo, slotID)
		if err != nil {
			return err
		}

		var items []domain.Item
		if len(ids) == 0 {
			items, err = repo.ListItemsBySlot(ctx, slotID)
		} else {
			items, err = repo.ListItemsInSlotByIDs(ctx, slotID, ids)
		}
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}

		if len(ids) > 0 {
			if missing := missingIDs(ids, items); len(missing) > 0 {
				return &domain.PartialSetNotFoundError{SlotID: slotID, Missing: missing}
			}
		}

		remaining = slot.CurrentItemCount
		for _, item := range items {
			if err := repo.DeleteItem(ctx, item.ID); err != nil {
				return fmt.Errorf("delete item %s: %w", item.ID, err)
			}
			remaining -= item.Quantity
			removed += item.Quantity
			removedID = append(removedID, item.ID)
		}
		if len(items) == 0 {
			return nil
		}

		now = s.now()
		if err := repo.UpdateSlotItemCount(ctx, slotID, remaining, now); err != nil {
			return fmt.Errorf("update slot count: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(removedID) > 0 {
		s.feed.emit(domain.InventoryEvent{
			Type:          domain.EventItemsBulkRemoved,
			SlotID:        slotID,
			ItemIDs:       removedID,
			QuantityDelta: -removed,
			SlotItemCount: remaining,
			OccurredAt:    now,
		})
	}
	return removed, nil
}

func dedupe(ids []string) []string {
	if ids == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func missingIDs(requested []string, found []domain.Item) []string {
	present := make(map[string]struct{}, len(found))
	for _, item := range found {
		present[item.ID] = struct{}{}
	}
	var missing []string
	for _, id := range requested {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}

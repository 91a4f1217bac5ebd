package service

import (
	"context"
	"testing"
	"time"

	"github.com/rl1809/slot-inventory/internal/adapter/storage"
	"github.com/rl1809/slot-inventory/internal/core/domain"
)

var testLimits = domain.Limits{MaxSlots: 10, MaxItemsPerSlot: 100}

type testEnv struct {
	store *storage.MemoryAdapter
	feed  *ChangeFeed
	slots *SlotService
	items *ItemService
	view  *ViewService
}

func newTestEnv(t *testing.T, limits domain.Limits) *testEnv {
	t.Helper()
	store, err := storage.NewMemoryAdapter()
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	feed := NewChangeFeed(256)
	t.Cleanup(feed.Close)
	return &testEnv{
		store: store,
		feed:  feed,
		slots: NewSlotService(store, limits, feed),
		items: NewItemService(store, limits, feed),
		view:  NewViewService(store),
	}
}

func (e *testEnv) mustCreateSlot(t *testing.T, code string, capacity int) *domain.Slot {
	t.Helper()
	slot, err := e.slots.CreateSlot(context.Background(), code, capacity)
	if err != nil {
		t.Fatalf("create slot %s: %v", code, err)
	}
	return slot
}

func (e *testEnv) mustAddItem(t *testing.T, slotID, name string, quantity int) *domain.Item {
	t.Helper()
	item, err := e.items.AddItem(context.Background(), slotID, name, 100, quantity)
	if err != nil {
		t.Fatalf("add item %s: %v", name, err)
	}
	return item
}

// assertInvariant checks that the cached counter equals the sum of item quantities
// and stays within capacity.
func (e *testEnv) assertInvariant(t *testing.T, slotID string) *domain.Slot {
	t.Helper()
	ctx := context.Background()
	slot, err := e.store.GetSlot(ctx, slotID)
	if err != nil || slot == nil {
		t.Fatalf("get slot %s: %v", slotID, err)
	}
	items, err := e.store.ListItemsBySlot(ctx, slotID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	sum := 0
	for _, it := range items {
		if it.Quantity <= 0 {
			t.Errorf("item %s persisted with quantity %d", it.ID, it.Quantity)
		}
		sum += it.Quantity
	}
	if slot.CurrentItemCount != sum {
		t.Errorf("counter %d != item sum %d", slot.CurrentItemCount, sum)
	}
	if slot.CurrentItemCount > slot.Capacity {
		t.Errorf("counter %d exceeds capacity %d", slot.CurrentItemCount, slot.Capacity)
	}
	return slot
}

// drain returns the events queued so far without blocking.
func (e *testEnv) drain() []domain.InventoryEvent {
	var events []domain.InventoryEvent
	for {
		select {
		case evt, ok := <-e.feed.Events():
			if !ok {
				return events
			}
			events = append(events, evt)
		case <-time.After(10 * time.Millisecond):
			return events
		}
	}
}

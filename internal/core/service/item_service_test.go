package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rl1809/slot-inventory/internal/core/domain"
)

func intPtr(v int) *int { return &v }

func TestAddItem_FillsExactlyToCapacity(t *testing.T) {
	env := newTestEnv(t, testLimits)
	slot := env.mustCreateSlot(t, "A", 10)

	env.mustAddItem(t, slot.ID, "bolt", 10)
	got := env.assertInvariant(t, slot.ID)
	if got.CurrentItemCount != 10 {
		t.Errorf("expected count 10, got %d", got.CurrentItemCount)
	}

	_, err := env.items.AddItem(context.Background(), slot.ID, "nut", 100, 1)
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	var ce *domain.CapacityExceededError
	if !errors.As(err, &ce) || ce.Attempted != 11 || ce.Limit != 10 || ce.Ceiling {
		t.Errorf("unexpected error detail: %+v", ce)
	}
	env.assertInvariant(t, slot.ID)
}

func TestAddItem_PerSlotCeiling(t *testing.T) {
	env := newTestEnv(t, domain.Limits{MaxSlots: 10, MaxItemsPerSlot: 5})
	slot := env.mustCreateSlot(t, "A", 10)

	// A small add into a large slot is allowed while under the ceiling.
	env.mustAddItem(t, slot.ID, "bolt", 1)
	env.mustAddItem(t, slot.ID, "bolt", 4)

	_, err := env.items.AddItem(context.Background(), slot.ID, "nut", 100, 1)
	var ce *domain.CapacityExceededError
	if !errors.As(err, &ce) || !ce.Ceiling || ce.Limit != 5 || ce.Attempted != 6 {
		t.Fatalf("expected ceiling breach, got %v", err)
	}
	if got := env.assertInvariant(t, slot.ID); got.CurrentItemCount != 5 {
		t.Errorf("expected count 5, got %d", got.CurrentItemCount)
	}
}

func TestAddItem_SlotNotFound(t *testing.T) {
	env := newTestEnv(t, testLimits)

	_, err := env.items.AddItem(context.Background(), "missing", "bolt", 1, 1)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAddItem_InvalidArguments(t *testing.T) {
	env := newTestEnv(t, testLimits)
	slot := env.mustCreateSlot(t, "A", 10)
	ctx := context.Background()

	if _, err := env.items.AddItem(ctx, slot.ID, "bolt", 1, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("zero quantity: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := env.items.AddItem(ctx, slot.ID, "bolt", -1, 1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("negative price: expected ErrInvalidArgument, got %v", err)
	}
	env.assertInvariant(t, slot.ID)
}

func TestAddItem_ConcurrentCannotOverfill(t *testing.T) {
	env := newTestEnv(t, testLimits)
	slot := env.mustCreateSlot(t, "A", 10)

	var ok, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.items.AddItem(context.Background(), slot.ID, "bolt", 100, 6)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrCapacityExceeded):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 || rejected.Load() != 1 {
		t.Errorf("expected one success and one rejection, got %d/%d", ok.Load(), rejected.Load())
	}
	if got := env.assertInvariant(t, slot.ID); got.CurrentItemCount != 6 {
		t.Errorf("expected count 6, got %d", got.CurrentItemCount)
	}
}

func TestAddItem_ManyConcurrentWriters(t *testing.T) {
	env := newTestEnv(t, domain.Limits{MaxSlots: 10, MaxItemsPerSlot: 1000})
	slot := env.mustCreateSlot(t, "A", 50)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.items.AddItem(context.Background(), slot.ID, "bolt", 1, 1); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 50 {
		t.Errorf("expected 50 successful adds, got %d", ok.Load())
	}
	env.assertInvariant(t, slot.ID)
}

func TestBulkAddItems_SkipsNonPositive(t *testing.T) {
	env := newTestEnv(t, testLimits)
	slot := env.mustCreateSlot(t, "A", 10)

	added, err := env.items.BulkAddItems(context.Background(), slot.ID, []domain.ItemEntry{
		{Name: "bolt", Price: 10, Quantity: 4},
		{Name: "skip", Price: 10, Quantity: 0},
		{Name: "nut", Price: 20, Quantity: 6},
	})
	if err != nil {
		t.Fatalf("BulkAddItems: %v", err)
	}
	if added != 10 {
		t.Errorf("expected 10 added, got %d", added)
	}

	items, _ := env.items.ListItemsBySlot(context.Background(), slot.ID)
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
	if got := env.assertInvariant(t, slot.ID); got.CurrentItemCount != 10 {
		t.Errorf("expected count 10, got %d", got.CurrentItemCount)
	}
}

func TestBulkAddItems_AllOrNothing(t *testing.T) {
	env := newTestEnv(t, testLimits)
	slot := env.mustCreateSlot(t, "A", 10)
	env.mustAddItem(t, slot.ID, "existing", 1)
	env.drain()

	_, err := env.items.BulkAddItems(context.Background(), slot.ID, []domain.ItemEntry{
		{Name: "a", Quantity: 3},
		{Name: "b", Quantity: 3},
		{Name: "c", Quantity: 5},
	})
	var ce *domain.CapacityExceededError
	if !errors.As(err, &ce) || ce.Attempted != 12 {
		t.Fatalf("expected breach at 12, got %v", err)
	}

	items, _ := env.items.ListItemsBySlot(context.Background(), slot.ID)
	if len(items) != 1 {
		t.Errorf("expected only the pre-existing item, got %d", len(items))
	}
	if got := env.assertInvariant(t, slot.ID); got.CurrentItemCount != 1 {
		t.Errorf("expected count 1, got %d", got.CurrentItemCount)
	}
	if events := env.drain(); len(events) != 0 {
		t.Errorf("expected no events for a rejected bulk add, got %+v", events)
	}
}

func TestBulkAddItems_Empty(t *testing.T) {
	env := newTestEnv(t, testLimits)
	slot := env.mustCreateSlot(t, "A", 10)

	added, err := env.items.BulkAddItems(context.Background(), slot.ID, []domain.ItemEntry{{Name: "x", Quantity: 0}})
	if err != nil || added != 0 {
		t.Errorf("expected 0, nil; got %d, %v", added, err)
	}
	env.assertInvariant(t, slot.ID)
}

func TestBulkAddItems_SlotNotFound(t *testing.T) {
	env := newTestEnv(t, testLimits)

	_, err := env.items.BulkAddItems(context.Background(), "missing", []domain.ItemEntry{{Name: "x", Quantity: 1}})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListItemsBySlot(t *testing.T) {
	env := newTestEnv(t, testLimits)
	ctx := context.Background()
	a := env.mustCreateSlot(t, "A", 10)
	b := env.mustCreateSlot(t, "B", 10)
	env.mustAddItem(t, a.ID, "bolt", 2)
	env.mustAddItem(t, b.ID, "nut", 3)

	items, err := env.items.ListItemsBySlot(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListItemsBySlot: %v", err)
	}
	if len(items) != 1 || items[0].Name != "bolt" {
		t.Errorf("unexpected items: %+v", items)
	}

	if _, err := env.items.ListItemsBySlot(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePrice(t *testing.T) {
	env := newTestEnv(t, testLimits)
	ctx := context.Background()
	slot := env.mustCreateSlot(t, "A", 10)
	item := env.mustAddItem(t, slot.ID, "bolt", 3)

	later := item.UpdatedAt.Add(time.Hour)
	env.items.now = func() time.Time { return later }

	if err := env.items.UpdatePrice(ctx, item.ID, 999); err != nil {
		t.Fatalf("UpdatePrice: %v", err)
	}
	got, err := env.items.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Price != 999 {
		t.Errorf("expected price 999, got %d", got.Price)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("expected updated_at %v, got %v", later, got.UpdatedAt)
	}
	if s := env.assertInvariant(t, slot.ID); s.CurrentItemCount != 3 {
		t.Errorf("price change must not touch occupancy, got %d", s.CurrentItemCount)
	}

	if err := env.items.UpdatePrice(ctx, "missing", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := env.items.UpdatePrice(ctx, item.ID, -5); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRemoveQuantity_Partial(t *testing.T) {
	env := newTestEnv(t, testLimits)
	ctx := context.Background()
	slot := env.mustCreateSlot(t, "A", 10)
	item := env.mustAddItem(t, slot.ID, "bolt", 5)

	removed, err := env.items.RemoveQuantity(ctx, slot.ID, item.ID, intPtr(2))
	if err != nil || removed != 2 {
		t.Fatalf("expected 2, nil; got %d, %v", removed, err)
	}
	got, _ := env.items.GetItem(ctx, item.ID)
	if got.Quantity != 3 {
		t.Errorf("expected quantity 3, got %d", got.Quantity)
	}
	if s := env.assertInvariant(t, slot.ID); s.CurrentItemCount != 3 {
		t.Errorf("expected count 3, got %d", s.CurrentItemCount)
	}
}

func TestRemoveQuantity_MoreThanHeldDeletesItem(t *testing.T) {
	env := newTestEnv(t, testLimits)
	ctx := context.Background()
	slot := env.mustCreateSlot(t, "A", 10)
	item := env.mustAddItem(t, slot.ID, "bolt", 3)

	removed, err := env.items.RemoveQuantity(ctx, slot.ID, item.ID, intPtr(7))
	if err != nil || removed != 3 {
		t.Fatalf("expected 3, nil; got %d, %v", removed, err)
	}
	if _, err := env.items.GetItem(ctx, item.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected item deleted, got %v", err)
	}
	if s := env.assertInvariant(t, slot.ID); s.CurrentItemCount != 0 {
		t.Errorf("expected count 0, got %d", s.CurrentItemCount)
	}
}

func TestRemoveQuantity_AllTwice(t *testing.T) {
	env := newTestEnv(t, testLimits)
	ctx := context.Background()
	slot := env.mustCreateSlot(t, "A", 10)
	item := env.mustAddItem(t, slot.ID, "bolt", 4)

	removed, err := env.items.RemoveQuantity(ctx, slot.ID, item.ID, nil)
	if err != nil || removed != 4 {
		t.Fatalf("expected 4, nil; got %d, %v", removed, err)
	}

	_, err = env.items.RemoveQuantity(ctx, slot.ID, item.ID, nil)
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != domain.EntityItem {
		t.Errorf("expected item NotFoundError, got %v", err)
	}
	env.assertInvariant(t, slot.ID)
}

func TestRemoveQuantity_WrongSlot(t *testing.T) {
	env := newTestEnv(t, testLimits)
	ctx := context.Background()
	a := env.mustCreateSlot(t, "A", 10)
	b := env.mustCreateSlot(t, "B", 10)
	item := env.mustAddItem(t, a.ID, "bolt", 4)

	if _, err := env.items.RemoveQuantity(ctx, b.ID, item.ID, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if s := env.assertInvariant(t, a.ID); s.CurrentItemCount != 4 {
		t.Errorf("expected count 4, got %d", s.CurrentItemCount)
	}
	if _, err := env.items.RemoveQuantity(ctx, "missing", item.ID, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing slot, got %v", err)
	}
}

func TestRemoveQuantity_NonPositive(t *testing.T) {
	env := newTestEnv(t, testLimits)
	slot := env.mustCreateSlot(t, "A", 10)
	item := env.mustAddItem(t, slot.ID, "bolt", 4)

	if _, err := env.items.RemoveQuantity(context.Background(), slot.ID, item.ID, intPtr(0)); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestBulkRemoveItems_PartialSetRejected(t *testing.T) {
	env := newTestEnv(t, testLimits)
	ctx := context.Background()
	slot := env.mustCreateSlot(t, "A", 10)
	a := env.mustAddItem(t, slot.ID, "a", 2)

	_, err := env.items.BulkRemoveItems(ctx, slot.ID, []string{a.ID, "b"})
	if !errors.Is(err, domain.ErrPartialSetNotFound) {
		t.Fatalf("expected ErrPartialSetNotFound, got %v", err)
	}
	var pe *domain.PartialSetNotFoundError
	if !errors.As(err, &pe) || len(pe.Missing) != 1 || pe.Missing[0] != "b" {
		t.Errorf("expected missing [b], got %v", err)
	}

	if _, err := env.items.GetItem(ctx, a.ID); err != nil {
		t.Errorf("expected item a to survive, got %v", err)
	}
	if s := env.assertInvariant(t, slot.ID); s.CurrentItemCount != 2 {
		t.Errorf("expected count 2, got %d", s.CurrentItemCount)
	}
}

func TestBulkRemoveItems_Listed(t *testing.T) {
	env := newTestEnv(t, testLimits)
	ctx := context.Background()
	slot := env.mustCreateSlot(t, "A", 10)
	a := env.mustAddItem(t, slot.ID, "a", 2)
	b := env.mustAddItem(t, slot.ID, "b", 3)
	c := env.mustAddItem(t, slot.ID, "c", 1)

	removed, err := env.items.BulkRemoveItems(ctx, slot.ID, []string{a.ID, b.ID, a.ID})
	if err != nil || removed != 5 {
		t.Fatalf("expected 5, nil; got %d, %v", removed, err)
	}
	items, _ := env.items.ListItemsBySlot(ctx, slot.ID)
	if len(items) != 1 || items[0].ID != c.ID {
		t.Errorf("expected only c left, got %+v", items)
	}
	if s := env.assertInvariant(t, slot.ID); s.CurrentItemCount != 1 {
		t.Errorf("expected count 1, got %d", s.CurrentItemCount)
	}
}

func TestBulkRemoveItems_NilRemovesAll(t *testing.T) {
	env := newTestEnv(t, testLimits)
	ctx := context.Background()
	slot := env.mustCreateSlot(t, "A", 10)
	env.mustAddItem(t, slot.ID, "a", 2)
	env.mustAddItem(t, slot.ID, "b", 3)

	removed, err := env.items.BulkRemoveItems(ctx, slot.ID, nil)
	if err != nil || removed != 5 {
		t.Fatalf("expected 5, nil; got %d, %v", removed, err)
	}
	if s := env.assertInvariant(t, slot.ID); s.CurrentItemCount != 0 {
		t.Errorf("expected count 0, got %d", s.CurrentItemCount)
	}
}

func TestBulkRemoveItems_EmptyListRemovesAll(t *testing.T) {
	env := newTestEnv(t, testLimits)
	ctx := context.Background()
	slot := env.mustCreateSlot(t, "A", 10)
	env.mustAddItem(t, slot.ID, "a", 2)
	env.mustAddItem(t, slot.ID, "b", 1)

	removed, err := env.items.BulkRemoveItems(ctx, slot.ID, []string{})
	if err != nil || removed != 3 {
		t.Fatalf("expected 3, nil; got %d, %v", removed, err)
	}
	if s := env.assertInvariant(t, slot.ID); s.CurrentItemCount != 0 {
		t.Errorf("expected count 0, got %d", s.CurrentItemCount)
	}
	items, err := env.items.ListItemsBySlot(ctx, slot.ID)
	if err != nil || len(items) != 0 {
		t.Errorf("expected no items left, got %d, %v", len(items), err)
	}
}

func TestBulkRemoveItems_EmptySlot(t *testing.T) {
	env := newTestEnv(t, testLimits)
	slot := env.mustCreateSlot(t, "A", 10)
	env.drain()

	removed, err := env.items.BulkRemoveItems(context.Background(), slot.ID, nil)
	if err != nil || removed != 0 {
		t.Fatalf("expected 0, nil; got %d, %v", removed, err)
	}
	if events := env.drain(); len(events) != 0 {
		t.Errorf("expected no event for an empty removal, got %+v", events)
	}
}

func TestBulkRemoveItems_SlotNotFound(t *testing.T) {
	env := newTestEnv(t, testLimits)

	if _, err := env.items.BulkRemoveItems(context.Background(), "missing", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMutationsEmitEvents(t *testing.T) {
	env := newTestEnv(t, testLimits)
	ctx := context.Background()
	slot := env.mustCreateSlot(t, "A", 10)
	item := env.mustAddItem(t, slot.ID, "bolt", 4)
	if _, err := env.items.RemoveQuantity(ctx, slot.ID, item.ID, intPtr(1)); err != nil {
		t.Fatalf("RemoveQuantity: %v", err)
	}
	if err := env.slots.DeleteSlot(ctx, slot.ID); err != nil {
		t.Fatalf("DeleteSlot: %v", err)
	}

	events := env.drain()
	want := []struct {
		typ   domain.EventType
		delta int
	}{
		{domain.EventSlotCreated, 0},
		{domain.EventItemAdded, 4},
		{domain.EventItemRemoved, -1},
		{domain.EventSlotDeleted, -3},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), events)
	}
	for i, w := range want {
		if events[i].Type != w.typ || events[i].QuantityDelta != w.delta || events[i].SlotID != slot.ID {
			t.Errorf("event %d: expected %s/%d, got %+v", i, w.typ, w.delta, events[i])
		}
	}
}

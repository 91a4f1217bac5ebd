package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/rl1809/slot-inventory/internal/core/domain"
	"github.com/rl1809/slot-inventory/internal/port"
)

const (
	slotsTable = "slots"
	itemsTable = "items"
)

var memorySchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		slotsTable: {
			Name: slotsTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id":   {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
				"code": {Name: "code", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Code"}},
			},
		},
		itemsTable: {
			Name: itemsTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id":      {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
				"slot_id": {Name: "slot_id", Indexer: &memdb.StringFieldIndex{Field: "SlotID"}},
			},
		},
	},
}

// MemoryAdapter is an in-process store backed by go-memdb. Write transactions are
// serialized by memdb, which gives the same guarantee as a slot row lock.
type MemoryAdapter struct {
	db *memdb.MemDB
}

func NewMemoryAdapter() (*MemoryAdapter, error) {
	db, err := memdb.NewMemDB(memorySchema)
	if err != nil {
		return nil, fmt.Errorf("create memdb: %w", err)
	}
	return &MemoryAdapter{db: db}, nil
}

func (m *MemoryAdapter) RunInTx(ctx context.Context, fn port.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := m.db.Txn(true)
	defer txn.Abort()

	if err := fn(ctx, &memoryRepository{txn: txn}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (m *MemoryAdapter) RunReadOnly(ctx context.Context, fn port.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := m.db.Txn(false)
	defer txn.Abort()
	return fn(ctx, &memoryRepository{txn: txn})
}

func (m *MemoryAdapter) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryAdapter) read(ctx context.Context, fn func(r *memoryRepository) error) error {
	return m.RunReadOnly(ctx, func(_ context.Context, repo port.DatabaseRepository) error {
		return fn(repo.(*memoryRepository))
	})
}

func (m *MemoryAdapter) write(ctx context.Context, fn func(r *memoryRepository) error) error {
	return m.RunInTx(ctx, func(_ context.Context, repo port.DatabaseRepository) error {
		return fn(repo.(*memoryRepository))
	})
}

func (m *MemoryAdapter) CountSlots(ctx context.Context) (n int, err error) {
	err = m.read(ctx, func(r *memoryRepository) error {
		n, err = r.CountSlots(ctx)
		return err
	})
	return n, err
}

func (m *MemoryAdapter) CreateSlot(ctx context.Context, slot domain.Slot) error {
	return m.write(ctx, func(r *memoryRepository) error { return r.CreateSlot(ctx, slot) })
}

func (m *MemoryAdapter) GetSlot(ctx context.Context, id string) (slot *domain.Slot, err error) {
	err = m.read(ctx, func(r *memoryRepository) error {
		slot, err = r.GetSlot(ctx, id)
		return err
	})
	return slot, err
}

func (m *MemoryAdapter) GetSlotByCode(ctx context.Context, code string) (slot *domain.Slot, err error) {
	err = m.read(ctx, func(r *memoryRepository) error {
		slot, err = r.GetSlotByCode(ctx, code)
		return err
	})
	return slot, err
}

// GetSlotForUpdate outside a transaction is a plain read.
func (m *MemoryAdapter) GetSlotForUpdate(ctx context.Context, id string) (*domain.Slot, error) {
	return m.GetSlot(ctx, id)
}

func (m *MemoryAdapter) ListSlots(ctx context.Context) (slots []domain.Slot, err error) {
	err = m.read(ctx, func(r *memoryRepository) error {
		slots, err = r.ListSlots(ctx)
		return err
	})
	return slots, err
}

func (m *MemoryAdapter) UpdateSlotItemCount(ctx context.Context, id string, count int, updatedAt time.Time) error {
	return m.write(ctx, func(r *memoryRepository) error { return r.UpdateSlotItemCount(ctx, id, count, updatedAt) })
}

func (m *MemoryAdapter) DeleteSlot(ctx context.Context, id string) error {
	return m.write(ctx, func(r *memoryRepository) error { return r.DeleteSlot(ctx, id) })
}

func (m *MemoryAdapter) CreateItem(ctx context.Context, item domain.Item) error {
	return m.write(ctx, func(r *memoryRepository) error { return r.CreateItem(ctx, item) })
}

func (m *MemoryAdapter) GetItem(ctx context.Context, id string) (item *domain.Item, err error) {
	err = m.read(ctx, func(r *memoryRepository) error {
		item, err = r.GetItem(ctx, id)
		return err
	})
	return item, err
}

func (m *MemoryAdapter) GetItemInSlot(ctx context.Context, slotID, itemID string) (item *domain.Item, err error) {
	err = m.read(ctx, func(r *memoryRepository) error {
		item, err = r.GetItemInSlot(ctx, slotID, itemID)
		return err
	})
	return item, err
}

func (m *MemoryAdapter) ListItems(ctx context.Context) (items []domain.Item, err error) {
	err = m.read(ctx, func(r *memoryRepository) error {
		items, err = r.ListItems(ctx)
		return err
	})
	return items, err
}

func (m *MemoryAdapter) ListItemsBySlot(ctx context.Context, slotID string) (items []domain.Item, err error) {
	err = m.read(ctx, func(r *memoryRepository) error {
		items, err = r.ListItemsBySlot(ctx, slotID)
		return err
	})
	return items, err
}

func (m *MemoryAdapter) ListItemsInSlotByIDs(ctx context.Context, slotID string, ids []string) (items []domain.Item, err error) {
	err = m.read(ctx, func(r *memoryRepository) error {
		items, err = r.ListItemsInSlotByIDs(ctx, slotID, ids)
		return err
	})
	return items, err
}

func (m *MemoryAdapter) UpdateItemQuantity(ctx context.Context, id string, quantity int, updatedAt time.Time) error {
	return m.write(ctx, func(r *memoryRepository) error { return r.UpdateItemQuantity(ctx, id, quantity, updatedAt) })
}

func (m *MemoryAdapter) UpdateItemPrice(ctx context.Context, id string, price int64, updatedAt time.Time) error {
	return m.write(ctx, func(r *memoryRepository) error { return r.UpdateItemPrice(ctx, id, price, updatedAt) })
}

func (m *MemoryAdapter) DeleteItem(ctx context.Context, id string) error {
	return m.write(ctx, func(r *memoryRepository) error { return r.DeleteItem(ctx, id) })
}

func (m *MemoryAdapter) DeleteItemsBySlot(ctx context.Context, slotID string) error {
	return m.write(ctx, func(r *memoryRepository) error { return r.DeleteItemsBySlot(ctx, slotID) })
}

// memoryRepository runs every call inside one memdb transaction. Stored objects are
// never mutated in place; updates insert a modified copy.
type memoryRepository struct {
	txn *memdb.Txn
}

func (r *memoryRepository) CountSlots(ctx context.Context) (int, error) {
	it, err := r.txn.Get(slotsTable, "id")
	if err != nil {
		return 0, fmt.Errorf("scan slots: %w", err)
	}
	n := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n++
	}
	return n, nil
}

func (r *memoryRepository) CreateSlot(ctx context.Context, slot domain.Slot) error {
	for _, idx := range []struct{ name, value string }{{"id", slot.ID}, {"code", slot.Code}} {
		existing, err := r.txn.First(slotsTable, idx.name, idx.value)
		if err != nil {
			return fmt.Errorf("lookup slot %s: %w", idx.name, err)
		}
		if existing != nil {
			return fmt.Errorf("slot %s %q: %w", idx.name, idx.value, port.ErrUniqueViolation)
		}
	}
	if err := r.txn.Insert(slotsTable, &slot); err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (r *memoryRepository) GetSlot(ctx context.Context, id string) (*domain.Slot, error) {
	return r.firstSlot("id", id)
}

func (r *memoryRepository) GetSlotByCode(ctx context.Context, code string) (*domain.Slot, error) {
	return r.firstSlot("code", code)
}

func (r *memoryRepository) GetSlotForUpdate(ctx context.Context, id string) (*domain.Slot, error) {
	return r.firstSlot("id", id)
}

func (r *memoryRepository) firstSlot(index, value string) (*domain.Slot, error) {
	obj, err := r.txn.First(slotsTable, index, value)
	if err != nil {
		return nil, fmt.Errorf("lookup slot: %w", err)
	}
	if obj == nil {
		return nil, nil
	}
	slot := *obj.(*domain.Slot)
	return &slot, nil
}

func (r *memoryRepository) ListSlots(ctx context.Context) ([]domain.Slot, error) {
	it, err := r.txn.Get(slotsTable, "id")
	if err != nil {
		return nil, fmt.Errorf("scan slots: %w", err)
	}
	var slots []domain.Slot
	for obj := it.Next(); obj != nil; obj = it.Next() {
		slots = append(slots, *obj.(*domain.Slot))
	}
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].CreatedAt.Equal(slots[j].CreatedAt) {
			return slots[i].CreatedAt.Before(slots[j].CreatedAt)
		}
		return slots[i].Code < slots[j].Code
	})
	return slots, nil
}

func (r *memoryRepository) UpdateSlotItemCount(ctx context.Context, id string, count int, updatedAt time.Time) error {
	slot, err := r.firstSlot("id", id)
	if err != nil {
		return err
	}
	if slot == nil {
		return fmt.Errorf("slot %s not found", id)
	}
	slot.CurrentItemCount = count
	slot.UpdatedAt = updatedAt
	if err := r.txn.Insert(slotsTable, slot); err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	return nil
}

func (r *memoryRepository) DeleteSlot(ctx context.Context, id string) error {
	obj, err := r.txn.First(slotsTable, "id", id)
	if err != nil {
		return fmt.Errorf("lookup slot: %w", err)
	}
	if obj == nil {
		return nil
	}
	if err := r.DeleteItemsBySlot(ctx, id); err != nil {
		return err
	}
	if err := r.txn.Delete(slotsTable, obj); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	return nil
}

func (r *memoryRepository) CreateItem(ctx context.Context, item domain.Item) error {
	existing, err := r.txn.First(itemsTable, "id", item.ID)
	if err != nil {
		return fmt.Errorf("lookup item: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("item %s: %w", item.ID, port.ErrUniqueViolation)
	}
	if err := r.txn.Insert(itemsTable, &item); err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (r *memoryRepository) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	obj, err := r.txn.First(itemsTable, "id", id)
	if err != nil {
		return nil, fmt.Errorf("lookup item: %w", err)
	}
	if obj == nil {
		return nil, nil
	}
	item := *obj.(*domain.Item)
	return &item, nil
}

func (r *memoryRepository) GetItemInSlot(ctx context.Context, slotID, itemID string) (*domain.Item, error) {
	item, err := r.GetItem(ctx, itemID)
	if err != nil || item == nil || item.SlotID != slotID {
		return nil, err
	}
	return item, nil
}

func (r *memoryRepository) ListItems(ctx context.Context) ([]domain.Item, error) {
	return r.collectItems("id")
}

func (r *memoryRepository) ListItemsBySlot(ctx context.Context, slotID string) ([]domain.Item, error) {
	return r.collectItems("slot_id", slotID)
}

func (r *memoryRepository) ListItemsInSlotByIDs(ctx context.Context, slotID string, ids []string) ([]domain.Item, error) {
	var items []domain.Item
	for _, id := range ids {
		item, err := r.GetItemInSlot(ctx, slotID, id)
		if err != nil {
			return nil, err
		}
		if item != nil {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (r *memoryRepository) collectItems(index string, args ...interface{}) ([]domain.Item, error) {
	it, err := r.txn.Get(itemsTable, index, args...)
	if err != nil {
		return nil, fmt.Errorf("scan items: %w", err)
	}
	var items []domain.Item
	for obj := it.Next(); obj != nil; obj = it.Next() {
		items = append(items, *obj.(*domain.Item))
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (r *memoryRepository) UpdateItemQuantity(ctx context.Context, id string, quantity int, updatedAt time.Time) error {
	return r.updateItem(id, func(item *domain.Item) {
		item.Quantity = quantity
		item.UpdatedAt = updatedAt
	})
}

func (r *memoryRepository) UpdateItemPrice(ctx context.Context, id string, price int64, updatedAt time.Time) error {
	return r.updateItem(id, func(item *domain.Item) {
		item.Price = price
		item.UpdatedAt = updatedAt
	})
}

func (r *memoryRepository) updateItem(id string, mutate func(*domain.Item)) error {
	item, err := r.GetItem(context.Background(), id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("item %s not found", id)
	}
	mutate(item)
	if err := r.txn.Insert(itemsTable, item); err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func (r *memoryRepository) DeleteItem(ctx context.Context, id string) error {
	obj, err := r.txn.First(itemsTable, "id", id)
	if err != nil {
		return fmt.Errorf("lookup item: %w", err)
	}
	if obj == nil {
		return nil
	}
	if err := r.txn.Delete(itemsTable, obj); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

func (r *memoryRepository) DeleteItemsBySlot(ctx context.Context, slotID string) error {
	if _, err := r.txn.DeleteAll(itemsTable, "slot_id", slotID); err != nil {
		return fmt.Errorf("delete slot items: %w", err)
	}
	return nil
}

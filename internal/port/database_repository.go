package port

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/slot-inventory/internal/core/domain"
)

// ErrUniqueViolation is returned by stores when an insert collides with a unique key.
var ErrUniqueViolation = errors.New("unique constraint violation")

// DatabaseRepository is the record-level contract for slots and items.
// Lookups return (nil, nil) when the record does not exist.
type DatabaseRepository interface {
	// CountSlots counts all slots; inside a transaction it blocks concurrent slot inserts.
	CountSlots(ctx context.Context) (int, error)
	CreateSlot(ctx context.Context, slot domain.Slot) error
	GetSlot(ctx context.Context, id string) (*domain.Slot, error)
	GetSlotByCode(ctx context.Context, code string) (*domain.Slot, error)
	// GetSlotForUpdate reads the slot and holds a write lock on it until the transaction ends.
	GetSlotForUpdate(ctx context.Context, id string) (*domain.Slot, error)
	ListSlots(ctx context.Context) ([]domain.Slot, error)
	UpdateSlotItemCount(ctx context.Context, id string, count int, updatedAt time.Time) error
	DeleteSlot(ctx context.Context, id string) error

	CreateItem(ctx context.Context, item domain.Item) error
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	// GetItemInSlot returns nil when the item is absent or owned by another slot.
	GetItemInSlot(ctx context.Context, slotID, itemID string) (*domain.Item, error)
	ListItems(ctx context.Context) ([]domain.Item, error)
	ListItemsBySlot(ctx context.Context, slotID string) ([]domain.Item, error)
	ListItemsInSlotByIDs(ctx context.Context, slotID string, ids []string) ([]domain.Item, error)
	UpdateItemQuantity(ctx context.Context, id string, quantity int, updatedAt time.Time) error
	UpdateItemPrice(ctx context.Context, id string, price int64, updatedAt time.Time) error
	DeleteItem(ctx context.Context, id string) error
	DeleteItemsBySlot(ctx context.Context, slotID string) error
}

// TxFunc runs against a repository bound to a single transaction.
type TxFunc func(ctx context.Context, repo DatabaseRepository) error

// Store is a transactional record store. RunInTx commits when fn returns nil and
// rolls back otherwise; fn may be invoked more than once when the store retries
// a transaction aborted by a lock conflict, so it must not leak state between runs.
type Store interface {
	DatabaseRepository
	RunInTx(ctx context.Context, fn TxFunc) error
	// RunReadOnly runs fn against a consistent snapshot.
	RunReadOnly(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
}

package domain

import "time"

type EventType string

const (
	EventSlotCreated      EventType = "slot.created"
	EventSlotDeleted      EventType = "slot.deleted"
	EventItemAdded        EventType = "item.added"
	EventItemsBulkAdded   EventType = "items.bulk_added"
	EventItemPriceUpdated EventType = "item.price_updated"
	EventItemRemoved      EventType = "item.removed"
	EventItemsBulkRemoved EventType = "items.bulk_removed"
)

// InventoryEvent describes a committed mutation. QuantityDelta is signed:
// positive when units entered the slot, negative when they left.
type InventoryEvent struct {
	Type          EventType `json:"type"`
	SlotID        string    `json:"slot_id"`
	ItemIDs       []string  `json:"item_ids,omitempty"`
	QuantityDelta int       `json:"quantity_delta"`
	SlotItemCount int       `json:"slot_item_count"`
	OccurredAt    time.Time `json:"occurred_at"`
}

package domain

import "time"

type Slot struct {
	ID               string
	Code             string
	Capacity         int
	CurrentItemCount int // cached sum of item quantities
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Remaining returns how many more units the slot can take under its own capacity.
func (s Slot) Remaining() int {
	return s.Capacity - s.CurrentItemCount
}

// SlotView is a read-only projection of a slot with its items embedded.
type SlotView struct {
	ID               string     `json:"id"`
	Code             string     `json:"code"`
	Capacity         int        `json:"capacity"`
	CurrentItemCount int        `json:"current_item_count"`
	Items            []ItemView `json:"items"`
}

type ItemView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

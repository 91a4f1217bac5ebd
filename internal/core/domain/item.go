package domain

import "time"

type Item struct {
	ID        string
	SlotID    string
	Name      string
	Price     int64 // minor currency units
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ItemEntry is one line of a bulk add request.
type ItemEntry struct {
	Name     string
	Price    int64
	Quantity int
}

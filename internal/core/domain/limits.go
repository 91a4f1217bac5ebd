package domain

import "fmt"

// Limits holds the global ceilings enforced by the slot registry and item ledger.
type Limits struct {
	MaxSlots        int
	MaxItemsPerSlot int
}

func (l Limits) Validate() error {
	if l.MaxSlots <= 0 {
		return fmt.Errorf("max slots must be positive, got %d", l.MaxSlots)
	}
	if l.MaxItemsPerSlot <= 0 {
		return fmt.Errorf("max items per slot must be positive, got %d", l.MaxItemsPerSlot)
	}
	return nil
}

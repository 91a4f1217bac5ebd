package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrSlotLimitReached   = errors.New("slot limit reached")
	ErrDuplicateCode      = errors.New("slot code already exists")
	ErrPartialSetNotFound = errors.New("items not found in slot")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// Entity names carried by NotFoundError.
const (
	EntitySlot = "slot"
	EntityItem = "item"
)

type NotFoundError struct {
	Entity string
	ID     string
}

func SlotNotFound(id string) *NotFoundError { return &NotFoundError{Entity: EntitySlot, ID: id} }

func ItemNotFound(id string) *NotFoundError { return &NotFoundError{Entity: EntityItem, ID: id} }

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// CapacityExceededError reports a projected slot count above Limit. Ceiling is
// true when the global per-slot ceiling was breached rather than the slot's own capacity.
type CapacityExceededError struct {
	SlotID    string
	Attempted int
	Limit     int
	Ceiling   bool
}

func (e *CapacityExceededError) Error() string {
	kind := "capacity"
	if e.Ceiling {
		kind = "per-slot ceiling"
	}
	return fmt.Sprintf("slot %s: %d items exceeds %s %d", e.SlotID, e.Attempted, kind, e.Limit)
}

func (e *CapacityExceededError) Is(target error) bool { return target == ErrCapacityExceeded }

type SlotLimitReachedError struct {
	Limit int
}

func (e *SlotLimitReachedError) Error() string {
	return fmt.Sprintf("slot limit of %d reached", e.Limit)
}

func (e *SlotLimitReachedError) Is(target error) bool { return target == ErrSlotLimitReached }

type DuplicateCodeError struct {
	Code string
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("slot code %q already exists", e.Code)
}

func (e *DuplicateCodeError) Is(target error) bool { return target == ErrDuplicateCode }

// PartialSetNotFoundError lists requested item ids that do not belong to the slot.
// It belongs to the NotFound class.
type PartialSetNotFoundError struct {
	SlotID  string
	Missing []string
}

func (e *PartialSetNotFoundError) Error() string {
	return fmt.Sprintf("items not found in slot %s: %s", e.SlotID, strings.Join(e.Missing, ", "))
}

func (e *PartialSetNotFoundError) Is(target error) bool {
	return target == ErrPartialSetNotFound || target == ErrNotFound
}

type InvalidArgumentError struct {
	Field  string
	Reason string
}

func NewInvalidArgument(field, reason string) *InvalidArgumentError {
	return &InvalidArgumentError{Field: field, Reason: reason}
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

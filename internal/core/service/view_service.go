package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rl1809/slot-inventory/internal/core/domain"
	"github.com/rl1809/slot-inventory/internal/port"
)

// ViewService builds the read-only full inventory snapshot.
type ViewService struct {
	store port.Store
}

func NewViewService(store port.Store) *ViewService {
	return &ViewService{store: store}
}

// GetFullView returns every slot with its items embedded. Slots and items are read
// from one snapshot, so the counter of each slot agrees with the items listed under it.
func (s *ViewService) GetFullView(ctx context.Context) (_ []domain.SlotView, err error) {
	ctx, span := startSpan(ctx, "ViewService.GetFullView")
	defer func() { endSpan(span, err) }()

	var (
		slots []domain.Slot
		items []domain.Item
	)
	err = s.store.RunReadOnly(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		var err error
		if slots, err = repo.ListSlots(ctx); err != nil {
			return fmt.Errorf("list slots: %w", err)
		}
		if items, err = repo.ListItems(ctx); err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	bySlot := make(map[string][]domain.ItemView, len(slots))
	for _, item := range items {
		bySlot[item.SlotID] = append(bySlot[item.SlotID], domain.ItemView{
			ID:       item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}

	views := make([]domain.SlotView, 0, len(slots))
	for _, slot := range slots {
		itemViews := bySlot[slot.ID]
		if itemViews == nil {
			itemViews = []domain.ItemView{}
		}
		views = append(views, domain.SlotView{
			ID:               slot.ID,
			Code:             slot.Code,
			Capacity:         slot.Capacity,
			CurrentItemCount: slot.CurrentItemCount,
			Items:            itemViews,
		})
	}
	span.SetAttributes(attribute.Int("view.slots", len(views)), attribute.Int("view.items", len(items)))
	return views, nil
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rl1809/slot-inventory/internal/core/domain"
	"github.com/rl1809/slot-inventory/internal/core/service"
	"github.com/rl1809/slot-inventory/internal/port"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HTTPHandler struct {
	slots  *service.SlotService
	items  *service.ItemService
	view   *service.ViewService
	store  pinger
	idem   port.IdempotencyStore
	logger *zap.Logger
}

type CreateSlotRequest struct {
	Code     string `json:"code"`
	Capacity int    `json:"capacity"`
}

type SlotResponse struct {
	ID               string    `json:"id"`
	Code             string    `json:"code"`
	Capacity         int       `json:"capacity"`
	CurrentItemCount int       `json:"current_item_count"`
	Remaining        int       `json:"remaining"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type AddItemRequest struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

type BulkAddRequest struct {
	Items []AddItemRequest `json:"items"`
}

// BulkRemoveRequest removes every item of the slot when ItemIDs is empty, null or absent.
type BulkRemoveRequest struct {
	ItemIDs []string `json:"item_ids"`
}

type UpdatePriceRequest struct {
	Price *int64 `json:"price"`
}

type ItemResponse struct {
	ID        string    `json:"id"`
	SlotID    string    `json:"slot_id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CountResponse struct {
	Added   *int `json:"added,omitempty"`
	Removed *int `json:"removed,omitempty"`
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
}

// NewHTTPHandler wires the services to HTTP. idem may be nil, which disables
// Idempotency-Key handling.
func NewHTTPHandler(
	slots *service.SlotService,
	items *service.ItemService,
	view *service.ViewService,
	store pinger,
	idem port.IdempotencyStore,
	logger *zap.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		slots:  slots,
		items:  items,
		view:   view,
		store:  store,
		idem:   idem,
		logger: logger,
	}
}

func (h *HTTPHandler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var req CreateSlotRequest
	if !h.decode(w, r, &req) {
		return
	}
	slot, err := h.slots.CreateSlot(r.Context(), req.Code, req.Capacity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSlotResponse(*slot))
}

func (h *HTTPHandler) GetSlotByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	slot, err := h.slots.GetSlotByCode(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if slot == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "slot with code " + code + " not found"})
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponse(*slot))
}

func (h *HTTPHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.slots.ListSlots(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		resp = append(resp, toSlotResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) GetSlot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "slotID")
	slot, err := h.slots.GetSlot(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if slot == nil {
		h.writeError(w, r, domain.SlotNotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponse(*slot))
}

func (h *HTTPHandler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	if err := h.slots.DeleteSlot(r.Context(), chi.URLParam(r, "slotID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) FullView(w http.ResponseWriter, r *http.Request) {
	views, err := h.view.GetFullView(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.items.AddItem(r.Context(), chi.URLParam(r, "slotID"), req.Name, req.Price, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemResponse(*item))
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.ListItemsBySlot(r.Context(), chi.URLParam(r, "slotID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]ItemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, toItemResponse(it))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) BulkAddItems(w http.ResponseWriter, r *http.Request) {
	var req BulkAddRequest
	if !h.decode(w, r, &req) {
		return
	}
	entries := make([]domain.ItemEntry, 0, len(req.Items))
	for _, it := range req.Items {
		entries = append(entries, domain.ItemEntry{Name: it.Name, Price: it.Price, Quantity: it.Quantity})
	}
	added, err := h.items.BulkAddItems(r.Context(), chi.URLParam(r, "slotID"), entries)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Added: &added})
}

func (h *HTTPHandler) BulkRemoveItems(w http.ResponseWriter, r *http.Request) {
	var req BulkRemoveRequest
	if !h.decode(w, r, &req) {
		return
	}
	removed, err := h.items.BulkRemoveItems(r.Context(), chi.URLParam(r, "slotID"), req.ItemIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Removed: &removed})
}

// RemoveItem removes ?quantity= units, or the whole item when the parameter is absent.
func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	var quantity *int
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		q, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "quantity must be an integer"})
			return
		}
		quantity = &q
	}
	removed, err := h.items.RemoveQuantity(r.Context(), chi.URLParam(r, "slotID"), chi.URLParam(r, "itemID"), quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Removed: &removed})
}

func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.items.GetItem(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(*item))
}

func (h *HTTPHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req UpdatePriceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Price == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "price is required"})
		return
	}
	if err := h.items.UpdatePrice(r.Context(), chi.URLParam(r, "itemID"), *req.Price); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: "internal error"}

	var partial *domain.PartialSetNotFoundError
	switch {
	case errors.As(err, &partial):
		status = http.StatusNotFound
		resp = ErrorResponse{Error: err.Error(), Missing: partial.Missing}
	case errors.Is(err, domain.ErrNotFound):
		status, resp.Error = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInvalidArgument):
		status, resp.Error = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrDuplicateCode):
		status, resp.Error = http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrCapacityExceeded), errors.Is(err, domain.ErrSlotLimitReached):
		status, resp.Error = http.StatusUnprocessableEntity, err.Error()
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, resp)
}

func toSlotResponse(s domain.Slot) SlotResponse {
	return SlotResponse{
		ID:               s.ID,
		Code:             s.Code,
		Capacity:         s.Capacity,
		CurrentItemCount: s.CurrentItemCount,
		Remaining:        s.Remaining(),
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func toItemResponse(it domain.Item) ItemResponse {
	return ItemResponse{
		ID:        it.ID,
		SlotID:    it.SlotID,
		Name:      it.Name,
		Price:     it.Price,
		Quantity:  it.Quantity,
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

func (h *HTTPHandler) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/slots", func(r chi.Router) {
			r.With(h.idempotent).Post("/", h.CreateSlot)
			r.Get("/", h.ListSlots)
			r.Get("/full-view", h.FullView)
			r.Get("/by-code/{code}", h.GetSlotByCode)

			r.Route("/{slotID}", func(r chi.Router) {
				r.Get("/", h.GetSlot)
				r.Delete("/", h.DeleteSlot)

				r.With(h.idempotent).Post("/items", h.AddItem)
				r.Get("/items", h.ListItems)
				r.With(h.idempotent).Post("/items/bulk", h.BulkAddItems)
				r.Post("/items/bulk-remove", h.BulkRemoveItems)
				r.Delete("/items/{itemID}", h.RemoveItem)
			})
		})

		r.Get("/items/{itemID}", h.GetItem)
		r.Patch("/items/{itemID}/price", h.UpdatePrice)
	})
	return r
}

// idempotent rejects a replayed Idempotency-Key with 409. The key is released
// when the request fails so the client can retry it.
func (h *HTTPHandler) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if key == "" || h.idem == nil {
			next.ServeHTTP(w, r)
			return
		}
		key = r.URL.Path + ":" + key

		ok, err := h.idem.SetIdempotency(r.Context(), key)
		if err != nil {
			h.logger.Error("idempotency check failed", zap.String("key", key), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
			return
		}
		if !ok {
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: "duplicate request"})
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if ww.Status() >= http.StatusBadRequest {
			if err := h.idem.ReleaseIdempotency(r.Context(), key); err != nil {
				h.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(err))
			}
		}
	})
}

func (h *HTTPHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

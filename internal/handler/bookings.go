package handler

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/bookable/internal/model"
	"github.com/Shivanand-hulikatti/bookable/internal/service"
)

// CreateBooking handles POST /bookings
// Performs a concurrency-safe reservation of the requested item.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req model.BookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.BookableItemID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "bookableItemId is required")
		return
	}

	booking, err := h.svc.Bookings.CreateBooking(r.Context(), PrincipalFrom(r.Context()), req.BookableItemID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, booking)
}

// MyBookings handles GET /bookings/me
func (h *Handler) MyBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.svc.Bookings.BookingsForUser(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if bookings == nil {
		bookings = []model.Booking{}
	}

	writeJSON(w, http.StatusOK, bookings)
}

// CancelBooking handles POST /bookings/{id}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	booking, err := h.svc.Bookings.CancelBooking(r.Context(), PrincipalFrom(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, booking)
}

// FailedOutbox handles GET /admin/outbox/failed
// Lists notifications that exhausted their retries.
func (h *Handler) FailedOutbox(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit: not an integer")
			return
		}
		limit = n
	}

	events, err := service.FailedEvents(r.Context(), h.svc.Store, PrincipalFrom(r.Context()), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if events == nil {
		events = []model.OutboxEvent{}
	}

	writeJSON(w, http.StatusOK, events)
}

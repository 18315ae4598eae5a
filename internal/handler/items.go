package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

// CreateItem handles POST /items
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req model.ItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	item, err := h.svc.Items.Create(r.Context(), PrincipalFrom(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

// ListItems handles GET /items
// Supports q, type, location, minPrice, maxPrice, startsAfter, endsBefore
// and limit query parameters.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	filter, err := parseItemFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.svc.Items.List(r.Context(), PrincipalFrom(r.Context()), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if items == nil {
		items = []model.ItemView{}
	}

	writeJSON(w, http.StatusOK, items)
}

// GetItem handles GET /items/{id}
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	item, err := h.svc.Items.Get(r.Context(), PrincipalFrom(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// UpdateItem handles PUT /items/{id}
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req model.ItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	item, err := h.svc.Items.Update(r.Context(), PrincipalFrom(r.Context()), id, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// DeleteItem handles DELETE /items/{id}
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Items.Delete(r.Context(), PrincipalFrom(r.Context()), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Availability handles GET /items/{id}/availability?start=&end=
// Both bounds are RFC 3339 timestamps.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	start, err := requiredTime(q, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := requiredTime(q, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slots, err := h.svc.Availability.AvailableSlots(r.Context(), PrincipalFrom(r.Context()), id, start, end)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, slots)
}

// ItemBookings handles GET /items/{id}/bookings
// Only the item's provider or an admin may list them.
func (h *Handler) ItemBookings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	bookings, err := h.svc.Bookings.BookingsForItem(r.Context(), PrincipalFrom(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if bookings == nil {
		bookings = []model.Booking{}
	}

	writeJSON(w, http.StatusOK, bookings)
}

// ─── Query parsing ────────────────────────────────────────────────────────────

type queryError struct{ param, reason string }

func (e *queryError) Error() string { return "invalid " + e.param + ": " + e.reason }

func parseItemFilter(q url.Values) (model.ItemFilter, error) {
	f := model.ItemFilter{
		Keywords: q.Get("q"),
		Type:     model.ItemType(q.Get("type")),
		Location: q.Get("location"),
	}

	var err error
	if f.MinPrice, err = optionalDecimal(q, "minPrice"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = optionalDecimal(q, "maxPrice"); err != nil {
		return f, err
	}
	if f.StartsAfter, err = optionalTime(q, "startsAfter"); err != nil {
		return f, err
	}
	if f.EndsBefore, err = optionalTime(q, "endsBefore"); err != nil {
		return f, err
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, &queryError{"limit", "not an integer"}
		}
	}
	return f, nil
}

func optionalDecimal(q url.Values, key string) (*decimal.Decimal, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, &queryError{key, "not a number"}
	}
	return &d, nil
}

func optionalTime(q url.Values, key string) (*time.Time, error) {
	if q.Get(key) == "" {
		return nil, nil
	}
	t, err := requiredTime(q, key)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func requiredTime(q url.Values, key string) (time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return time.Time{}, &queryError{key, "required"}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, &queryError{key, "expected RFC 3339 timestamp"}
	}
	return t, nil
}

// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/auth"
	"github.com/Shivanand-hulikatti/bookable/internal/logging"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
	"github.com/Shivanand-hulikatti/bookable/internal/service"
)

// Services bundles the service-layer collaborators the handlers call.
type Services struct {
	Items        *service.ItemService
	Bookings     *service.BookingEngine
	Availability *service.AvailabilityCalculator
	Users        *service.UserService
	Store        service.Store
}

// Handler holds all HTTP handlers for the booking API.
type Handler struct {
	svc    Services
	tokens *auth.Issuer
	logger *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(svc Services, tokens *auth.Issuer, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, tokens: tokens, logger: logger}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps the apperr taxonomy onto HTTP status codes.
// Anything outside it is logged and hidden behind a 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, apperr.Message(err))
	case errors.Is(err, apperr.ErrValidation):
		writeError(w, http.StatusBadRequest, apperr.Message(err))
	case errors.Is(err, apperr.ErrConflict):
		writeError(w, http.StatusConflict, apperr.Message(err))
	case errors.Is(err, apperr.ErrForbidden):
		if PrincipalFrom(r.Context()).IsAnonymous() {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		writeError(w, http.StatusForbidden, apperr.Message(err))
	default:
		logging.Error(r.Context(), h.logger, "request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

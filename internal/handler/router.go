package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Routes builds the full router. limiter may be nil to disable throttling.
func (h *Handler) Routes(limiter Limiter) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Trace)
	r.Use(Logger(h.logger)) // structured access log
	r.Use(CORS)

	// Health
	r.Get("/health", HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(h.Authenticate)
		if limiter != nil {
			r.Use(RateLimit(limiter, h.logger))
		}

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.CreateItem)
			r.Get("/{id}", h.GetItem)
			r.Put("/{id}", h.UpdateItem)
			r.Delete("/{id}", h.DeleteItem)
			r.Get("/{id}/availability", h.Availability)
			r.Get("/{id}/bookings", h.ItemBookings)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.CreateBooking)
			r.Get("/me", h.MyBookings)
			r.Post("/{id}/cancel", h.CancelBooking)
		})

		r.Get("/admin/outbox/failed", h.FailedOutbox)
	})

	return r
}

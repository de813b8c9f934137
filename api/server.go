/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RequestLogger: One logrus line per request
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for front-desk clients
  5. RequireTenant: /api routes only

ROUTE GROUPS:
  /api/folios/*      Folio aggregate, entries, activity
  /api/charges/*     Charge voids
  /api/payments/*    Payment voids
  /api/transfers     Charge transfers
  /api/scenarios/*   Demo data
  /healthz           Liveness + database ping

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
// allowedOrigins feeds the CORS policy; nil allows any origin.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", HeaderTenantID, HeaderActorID},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireTenant)

		r.Route("/folios", func(r chi.Router) {
			r.Get("/", h.ListFolios)
			r.Post("/", h.CreateFolio)
			r.Get("/{id}", h.GetFolio)
			r.Post("/{id}/close", h.CloseFolio)
			r.Post("/{id}/recompute", h.RecomputeFolio)
			r.Get("/{id}/activity", h.GetActivity)
			r.Get("/{id}/charges", h.ListCharges)
			r.Post("/{id}/charges", h.PostCharge)
			r.Get("/{id}/payments", h.ListPayments)
			r.Post("/{id}/payments", h.PostPayment)
		})

		r.Post("/charges/{id}/void", h.VoidCharge)
		r.Post("/payments/{id}/void", h.VoidPayment)
		r.Post("/transfers", h.Transfer)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

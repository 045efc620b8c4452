package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Events     *EventHandler
	Deliveries *DeliveryHandler
	Ops        *OpsHandler
	Intake     *IntakeHandler
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Post("/events", deps.Events.Create)

		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", deps.Deliveries.List)
			r.Get("/{id}", deps.Deliveries.Get)
		})

		r.Get("/vendors/health", deps.Ops.VendorHealth)
		r.Get("/metrics", deps.Ops.Metrics)
	})

	// Hit by the platform scheduler, not exposed through the public gateway.
	r.Post("/internal/drain", deps.Ops.Drain)

	// Inbound vendor webhooks (call status callbacks, transcript ready, ...).
	r.Post("/webhooks/vendor/{vendor}", deps.Intake.Receive)

	return r
}

package api

import (
	"net/http"

	"github.com/callscope/outbound-delivery/internal/breaker"
	"github.com/callscope/outbound-delivery/internal/queue"
	"github.com/callscope/outbound-delivery/internal/store"
)

// OpsHandler exposes the operational surface: breaker health, delivery
// aggregates, and the external drain trigger.
type OpsHandler struct {
	store    *store.PostgresStore
	registry *breaker.Registry
	drainer  *queue.Drainer
}

func NewOpsHandler(s *store.PostgresStore, registry *breaker.Registry, drainer *queue.Drainer) *OpsHandler {
	return &OpsHandler{store: s, registry: registry, drainer: drainer}
}

// VendorHealth returns the circuit breaker snapshot for every vendor.
func (h *OpsHandler) VendorHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.registry.HealthStatuses())
}

// Metrics returns aggregated delivery statistics.
func (h *OpsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetDeliveryMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}
	respondJSON(w, http.StatusOK, metrics)
}

// Drain runs one drain cycle on demand. This is the endpoint the platform's
// scheduler hits; the drainer's own ticker covers deployments without one.
func (h *OpsHandler) Drain(w http.ResponseWriter, r *http.Request) {
	stats, err := h.drainer.DrainOnce(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "drain cycle failed")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

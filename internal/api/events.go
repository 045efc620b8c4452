package api

import (
	"context"
	"encoding/json"
	"net/http"
)

// EventEnqueuer is the fire-and-forget enqueue contract consumed by the rest
// of the platform.
type EventEnqueuer interface {
	Enqueue(ctx context.Context, organizationID, eventType, eventID string, data map[string]any) int
}

// EventHandler accepts domain events from internal services and fans them out
// into delivery rows.
type EventHandler struct {
	enqueuer EventEnqueuer
}

func NewEventHandler(e EventEnqueuer) *EventHandler {
	return &EventHandler{enqueuer: e}
}

type enqueueEventRequest struct {
	OrganizationID string         `json:"organization_id"`
	EventType      string         `json:"event_type"`
	EventID        string         `json:"event_id"`
	Data           map[string]any `json:"data"`
}

type enqueueEventResponse struct {
	EventID          string `json:"event_id"`
	EventType        string `json:"event_type"`
	DeliveriesQueued int    `json:"deliveries_queued"`
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req enqueueEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.OrganizationID == "" {
		respondError(w, http.StatusBadRequest, "organization_id is required")
		return
	}
	if req.EventType == "" {
		respondError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if req.EventID == "" {
		respondError(w, http.StatusBadRequest, "event_id is required")
		return
	}

	// Enqueue never fails the caller: internal trouble is logged and the
	// triggering action proceeds.
	queued := h.enqueuer.Enqueue(r.Context(), req.OrganizationID, req.EventType, req.EventID, req.Data)

	respondJSON(w, http.StatusAccepted, enqueueEventResponse{
		EventID:          req.EventID,
		EventType:        req.EventType,
		DeliveriesQueued: queued,
	})
}

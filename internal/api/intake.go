package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/callscope/outbound-delivery/internal/signature"
	"github.com/go-chi/chi/v5"
)

// IntakeHandler verifies webhooks arriving from vendors (call status
// callbacks, transcript-ready notifications) before the platform's intake
// pipeline touches them. Verification reuses the same codec that signs our
// outgoing deliveries.
type IntakeHandler struct {
	codec   *signature.Codec
	secrets map[string]string // vendor name → shared secret
	logger  *slog.Logger
}

func NewIntakeHandler(secrets map[string]string, logger *slog.Logger) *IntakeHandler {
	return &IntakeHandler{
		codec:   signature.New(),
		secrets: secrets,
		logger:  logger,
	}
}

func (h *IntakeHandler) Receive(w http.ResponseWriter, r *http.Request) {
	vendor := chi.URLParam(r, "vendor")

	secret, ok := h.secrets[vendor]
	if !ok {
		respondStructuredError(w, http.StatusUnauthorized,
			"UNKNOWN_VENDOR", "no webhook secret configured for vendor", "warning")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondStructuredError(w, http.StatusBadRequest,
			"UNREADABLE_BODY", "failed to read request body", "warning")
		return
	}

	sig := r.Header.Get("X-Webhook-Signature")
	if err := h.codec.Verify(body, sig, secret, 0); err != nil {
		h.logger.Warn("rejected vendor webhook",
			"vendor", vendor,
			"error", err,
			"remote_addr", r.RemoteAddr,
		)
		respondStructuredError(w, http.StatusUnauthorized,
			"INVALID_SIGNATURE", "webhook signature verification failed", "warning")
		return
	}

	// Verified payloads are handed to the platform's intake pipeline, which
	// lives outside this service. Here we only acknowledge receipt.
	h.logger.Info("vendor webhook verified", "vendor", vendor, "bytes", len(body))
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

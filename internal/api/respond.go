package api

import (
	"encoding/json"
	"net/http"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// structuredError is the envelope used by the vendor webhook intake
// endpoints, matching what the rest of the platform returns to vendors.
type structuredError struct {
	Success bool         `json:"success"`
	Error   errorPayload `json:"error"`
}

type errorPayload struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func respondStructuredError(w http.ResponseWriter, status int, code, message, severity string) {
	respondJSON(w, status, structuredError{
		Success: false,
		Error:   errorPayload{Code: code, Message: message, Severity: severity},
	})
}

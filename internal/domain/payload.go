package domain

import (
	"encoding/json"
	"time"
)

// Payload is the wire entity POSTed to subscriber endpoints. The serialized
// form is snapshotted onto each delivery row at enqueue time and the exact
// byte string is what gets signed.
type Payload struct {
	Event          string         `json:"event"`
	EventID        string         `json:"event_id"`
	Timestamp      time.Time      `json:"timestamp"`
	OrganizationID string         `json:"organization_id"`
	Data           map[string]any `json:"data"`
}

// Marshal serializes the payload to its canonical wire form.
func (p Payload) Marshal() (json.RawMessage, error) {
	return json.Marshal(p)
}

package natsbus

import "time"

// Event is the envelope of everything published under events.>.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	RunID   string `json:"run_id,omitempty"`
	// Timestamp is RFC 3339 in UTC.
	Timestamp string `json:"timestamp"`
}

func NewEvent(eventType string, payload any) Event {
	return Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

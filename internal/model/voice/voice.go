package voice

import "time"

// Status is the listening state reported to the UI.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusListening Status = "listening"
)

// State describes the voice input of one conversation session.
type State struct {
	SessionID      string    `json:"sessionId"`
	Status         Status    `json:"status"`
	AutoSubmit     bool      `json:"autoSubmit"`
	LastTranscript string    `json:"lastTranscript,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

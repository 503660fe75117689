package chat

import "time"

// Snapshot is the observable state of a conversation session.
type Snapshot struct {
	ID         string    `json:"id"`
	ProfileID  string    `json:"profileId"`
	Messages   []Message `json:"messages"`
	Typing     bool      `json:"typing"`
	ShowAIInfo bool      `json:"showAiInfo"`
	Input      string    `json:"input"`
	CreatedAt  time.Time `json:"createdAt"`
}

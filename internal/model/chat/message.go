package chat

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one turn of a conversation. Once appended to a session it is never edited.
type Message struct {
	ID          int          `json:"id"`
	Text        string       `json:"text"`
	Sender      Sender       `json:"sender"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Clone returns a copy that does not share the attachment slice.
func (m Message) Clone() Message {
	m.Attachments = append([]Attachment{}, m.Attachments...)
	return m
}

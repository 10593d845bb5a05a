package fanout

import (
	"errors"
	"time"
)

// MessageEvent is the chat message record that triggers a fan-out. The
// JSON tags mirror the field names of the message-store document.
type MessageEvent struct {
	SenderID     string    `json:"senderId"`
	SenderName   string    `json:"senderName,omitempty"`
	Text         string    `json:"text"`
	ChatID       string    `json:"chatId,omitempty"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"createdAt,omitzero"`
}

var (
	ErrMissingSender  = errors.New("message event: senderId is missing")
	ErrNoParticipants = errors.New("message event: participants is empty")
	ErrEmptyText      = errors.New("message event: text is empty")
)

// Validate checks the fields the pipeline cannot proceed without.
// A missing CreatedAt is deliberately not a validation failure.
func (e *MessageEvent) Validate() error {
	if e.SenderID == "" {
		return ErrMissingSender
	}
	if len(e.Participants) == 0 {
		return ErrNoParticipants
	}
	if e.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// Recipients returns the participants minus the sender, deduplicated,
// in first-seen order. It may be empty when the sender was the only
// participant; that is not an error.
func (e *MessageEvent) Recipients() []string {
	seen := make(map[string]struct{}, len(e.Participants))
	recipients := make([]string, 0, len(e.Participants))
	for _, id := range e.Participants {
		if id == "" || id == e.SenderID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		recipients = append(recipients, id)
	}
	return recipients
}

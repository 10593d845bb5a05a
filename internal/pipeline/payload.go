package pipeline

import (
	"github.com/tinywideclouds/go-chat-dispatch-service/pkg/fanout"
)

const (
	// defaultTitle is used when the message record carries no senderName.
	defaultTitle = "New message"

	// Bodies longer than maxBodyChars are cut to truncatedBodyChars and
	// suffixed with an ellipsis.
	maxBodyChars       = 100
	truncatedBodyChars = 97
)

// BuildPayload derives the notification payload from a message event.
// It is pure: no I/O, and the result is never mutated after it is built.
func BuildPayload(event *fanout.MessageEvent) fanout.NotificationPayload {
	title := event.SenderName
	if title == "" {
		title = defaultTitle
	}

	body := event.Text
	if runes := []rune(body); len(runes) > maxBodyChars {
		body = string(runes[:truncatedBodyChars]) + "..."
	}

	return fanout.NotificationPayload{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"chatId":       event.ChatID,
			"senderId":     event.SenderID,
			"type":         "chat",
			"click_action": "FLUTTER_NOTIFICATION_CLICK",
		},
	}
}

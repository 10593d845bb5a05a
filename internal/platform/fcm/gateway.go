// Package fcm provides the push gateway backed by Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-chat-dispatch-service/pkg/fanout"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
// Note: *messaging.Client automatically satisfies it.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Gateway struct {
	client MessagingClient
	logger *slog.Logger
}

func NewGateway(client MessagingClient, logger *slog.Logger) *Gateway {
	return &Gateway{
		client: client,
		logger: logger.With("component", "FCMGateway"),
	}
}

// SendBatch issues exactly one multicast request covering all tokens. The
// returned results are positionally aligned with the input tokens; a
// non-nil error means the batch call itself failed at the transport or
// auth level and no per-token results exist.
func (g *Gateway) SendBatch(ctx context.Context, tokens []string, payload fanout.NotificationPayload) ([]fanout.DeliveryResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   payload.Data,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: payload.Title,
				Body:  payload.Body,
				Icon:  "/assets/icons/icon-192x192.png",
			},
		},
	}

	br, err := g.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("fcm transport failed: %w", err)
	}

	if br.FailureCount > 0 {
		g.logger.Info("FCM batch completed with failures",
			"success", br.SuccessCount,
			"failure", br.FailureCount,
		)
	}

	results := make([]fanout.DeliveryResult, 0, len(tokens))
	for idx, resp := range br.Responses {
		results = append(results, fanout.DeliveryResult{
			Token: tokens[idx],
			Kind:  classify(resp),
			Err:   resp.Error,
		})
	}
	return results, nil
}

// classify maps an FCM per-token response onto the pipeline's error kinds.
// Only the two registration-token errors count as permanent; everything
// else (quota, unavailable, internal) is transient.
func classify(resp *messaging.SendResponse) fanout.ErrorKind {
	switch {
	case resp.Success:
		return fanout.KindNone
	case messaging.IsInvalidArgument(resp.Error):
		return fanout.KindInvalidToken
	case messaging.IsRegistrationTokenNotRegistered(resp.Error):
		return fanout.KindNotRegistered
	default:
		return fanout.KindOther
	}
}

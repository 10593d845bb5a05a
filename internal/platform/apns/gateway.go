// Package apns provides the push gateway backed by the Apple Push
// Notification service.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-chat-dispatch-service/pkg/fanout"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

type Gateway struct {
	client APNSClient
	topic  string // the app bundle ID
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file.
	P8KeyContent string
}

// NewGateway creates a configured APNs gateway. It parses the P8 key
// immediately to fail fast on startup if credentials are bad.
func NewGateway(cfg Config, logger *slog.Logger) (*Gateway, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	return &Gateway{
		client: apns2.NewTokenClient(tokenSource),
		topic:  cfg.BundleID,
		logger: logger.With("component", "APNSGateway"),
	}, nil
}

// SendBatch delivers the payload to each token. The APNs HTTP/2 API is
// unary (one request per token), so the batch is one logical operation
// built from sequential pushes; results stay positionally aligned with the
// input tokens. Per-token transport errors are reported as transient
// results rather than failing the batch.
func (g *Gateway) SendBatch(ctx context.Context, tokens []string, content fanout.NotificationPayload) ([]fanout.DeliveryResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	builder := payload.NewPayload().
		AlertTitle(content.Title).
		AlertBody(content.Body)
	for k, v := range content.Data {
		builder.Custom(k, v)
	}

	results := make([]fanout.DeliveryResult, 0, len(tokens))
	for _, deviceToken := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("apns batch aborted: %w", err)
		}

		res, err := g.client.Push(&apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       g.topic,
			Payload:     builder,
		})
		if err != nil {
			g.logger.Error("APNs transport failed", "token", deviceToken, "err", err)
			results = append(results, fanout.DeliveryResult{Token: deviceToken, Kind: fanout.KindOther, Err: err})
			continue
		}

		results = append(results, fanout.DeliveryResult{
			Token: deviceToken,
			Kind:  classify(res),
			Err:   reasonError(res),
		})
	}
	return results, nil
}

// classify maps APNs rejection reasons onto the pipeline's error kinds.
// See Apple's "Handling notification responses from APNs" for the reasons
// that mean a token will never work again.
func classify(res *apns2.Response) fanout.ErrorKind {
	if res.Sent() {
		return fanout.KindNone
	}
	switch res.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonDeviceTokenNotForTopic:
		return fanout.KindInvalidToken
	case apns2.ReasonUnregistered:
		return fanout.KindNotRegistered
	default:
		return fanout.KindOther
	}
}

func reasonError(res *apns2.Response) error {
	if res.Sent() {
		return nil
	}
	return fmt.Errorf("apns rejected notification: %s (status %d)", res.Reason, res.StatusCode)
}

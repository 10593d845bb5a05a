// Package fanout contains the public domain models and collaborator
// contracts for the chat message fan-out pipeline.
package fanout

import (
	"context"
)

// ErrorKind classifies the per-token outcome of a batch send.
type ErrorKind int

const (
	// KindNone marks a successful delivery.
	KindNone ErrorKind = iota
	// KindInvalidToken means the gateway rejected the token value itself.
	KindInvalidToken
	// KindNotRegistered means the token was once valid but the device has
	// since unregistered.
	KindNotRegistered
	// KindOther covers everything transient (quota, unavailable, internal).
	KindOther
)

// Permanent reports whether the kind means the token will never succeed
// again and should be pruned from storage.
func (k ErrorKind) Permanent() bool {
	return k == KindInvalidToken || k == KindNotRegistered
}

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidToken:
		return "invalid-token"
	case KindNotRegistered:
		return "not-registered"
	default:
		return "other"
	}
}

// DeliveryResult is the per-token outcome of a batch send. A gateway must
// return one result per input token, in input order: result i corresponds
// to token i of the sent batch. The reconciler depends on that alignment.
type DeliveryResult struct {
	Token string
	Kind  ErrorKind
	Err   error
}

// NotificationPayload is the platform-neutral notification content built
// from a message event. It is immutable once built.
type NotificationPayload struct {
	Title string
	Body  string
	Data  map[string]string
}

// UserTokenRecord is a snapshot of one user's stored device tokens as read
// from the profile store.
type UserTokenRecord struct {
	UserID string `json:"userId"`
	// Tokens holds the string entries of the stored list, unfiltered.
	// Length validation is the aggregator's concern, and the reconciler
	// needs the raw list for its exact-membership prune scan.
	Tokens []string `json:"tokens"`
	// HasTokenList is false when the stored field is absent or not
	// list-shaped.
	HasTokenList bool `json:"hasTokenList"`
}

// ProfileStore is the read/prune surface of the user profile store, the
// only part of it the dispatch pipeline touches.
type ProfileStore interface {
	// Fetch returns the token record for a user, or (nil, nil) when no
	// profile exists.
	Fetch(ctx context.Context, userID string) (*UserTokenRecord, error)

	// RemoveTokens removes the exact token values from the user's stored
	// set. Removal is set-difference at the store, so it is safe to apply
	// concurrently with registrations by other writers.
	RemoveTokens(ctx context.Context, userID string, tokens []string) error
}

// TokenRegistry is the write surface used by the token registration API.
type TokenRegistry interface {
	// RegisterToken adds a device token to a user's stored set (upsert).
	RegisterToken(ctx context.Context, userID string, token string) error

	// UnregisterToken removes a single device token. Unregistering a
	// token that was never stored is not an error.
	UnregisterToken(ctx context.Context, userID string, token string) error
}

// PushGateway defines the contract for a component that can deliver a
// notification batch to a push platform (e.g. Google's FCM, Apple's APNs).
type PushGateway interface {
	// SendBatch delivers the payload to all tokens in one logical batch.
	// On success the returned slice is positionally aligned with tokens.
	// A non-nil error means the batch as a whole failed and no per-token
	// results exist.
	SendBatch(ctx context.Context, tokens []string, payload NotificationPayload) ([]DeliveryResult, error)
}

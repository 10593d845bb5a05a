// Package firestore implements the profile-store contracts on Google Cloud
// Firestore. User profiles live at users/{userId} with the device tokens
// held in an fcmTokens array field.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-chat-dispatch-service/pkg/fanout"
)

const (
	usersCollection = "users"
	tokensField     = "fcmTokens"
)

type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

// Fetch returns the raw token record for a user, or (nil, nil) when the
// profile document does not exist. Entries of the stored list that are not
// strings are dropped here; length filtering is the aggregator's concern,
// so undersized tokens pass through untouched.
func (s *Store) Fetch(ctx context.Context, userID string) (*fanout.UserTokenRecord, error) {
	doc, err := s.userRef(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("firestore get user %s: %w", userID, err)
	}

	record := &fanout.UserTokenRecord{UserID: userID}

	raw, err := doc.DataAt(tokensField)
	if err != nil {
		// Field absent. The aggregator logs and skips this user.
		return record, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		// Field present but not list-shaped. Same treatment.
		return record, nil
	}

	record.HasTokenList = true
	record.Tokens = make([]string, 0, len(list))
	for _, entry := range list {
		if token, ok := entry.(string); ok {
			record.Tokens = append(record.Tokens, token)
		}
	}
	return record, nil
}

// RemoveTokens removes the exact token values from the user's stored set.
// firestore.ArrayRemove is set-difference applied server-side, so tokens
// registered concurrently by other writers survive the update.
func (s *Store) RemoveTokens(ctx context.Context, userID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	values := make([]interface{}, len(tokens))
	for i, t := range tokens {
		values[i] = t
	}
	_, err := s.userRef(userID).Update(ctx, []firestore.Update{
		{Path: tokensField, Value: firestore.ArrayRemove(values...)},
	})
	if err != nil {
		return fmt.Errorf("firestore remove tokens for user %s: %w", userID, err)
	}
	return nil
}

// RegisterToken upserts a device token into the user's stored set. Set with
// merge keeps registration working before the profile document exists.
func (s *Store) RegisterToken(ctx context.Context, userID string, deviceToken string) error {
	_, err := s.userRef(userID).Set(ctx, map[string]interface{}{
		tokensField: firestore.ArrayUnion(deviceToken),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("firestore register token for user %s: %w", userID, err)
	}
	return nil
}

// UnregisterToken removes a single device token. A missing profile document
// means there is nothing to remove; unregister stays idempotent.
func (s *Store) UnregisterToken(ctx context.Context, userID string, deviceToken string) error {
	_, err := s.userRef(userID).Update(ctx, []firestore.Update{
		{Path: tokensField, Value: firestore.ArrayRemove(deviceToken)},
	})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("firestore unregister token for user %s: %w", userID, err)
	}
	return nil
}

func (s *Store) userRef(userID string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(userID)
}

package fcm_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-chat-dispatch-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-chat-dispatch-service/pkg/fanout"
)

// MockClient satisfies the MessagingClient interface
type MockClient struct {
	mock.Mock
}

func (m *MockClient) SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging.BatchResponse), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFCMGateway_SendBatch(t *testing.T) {
	logger := newTestLogger()
	ctx := context.Background()
	payload := fanout.NotificationPayload{
		Title: "Alice",
		Body:  "hello",
		Data:  map[string]string{"type": "chat"},
	}

	t.Run("Happy Path - All Success, Positionally Aligned", func(t *testing.T) {
		mockClient := new(MockClient)
		gateway := fcm.NewGateway(mockClient, logger)
		tokens := []string{"token-1", "token-2"}

		mockResponse := &messaging.BatchResponse{
			SuccessCount: 2,
			FailureCount: 0,
			Responses: []*messaging.SendResponse{
				{Success: true, MessageID: "msg-1"},
				{Success: true, MessageID: "msg-2"},
			},
		}
		mockClient.On("SendEachForMulticast", ctx, mock.Anything).Return(mockResponse, nil)

		results, err := gateway.SendBatch(ctx, tokens, payload)

		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "token-1", results[0].Token)
		assert.Equal(t, "token-2", results[1].Token)
		assert.Equal(t, fanout.KindNone, results[0].Kind)
		assert.Equal(t, fanout.KindNone, results[1].Kind)
		mockClient.AssertExpectations(t)
	})

	t.Run("One batched request carries notification and data", func(t *testing.T) {
		mockClient := new(MockClient)
		gateway := fcm.NewGateway(mockClient, logger)
		tokens := []string{"token-1"}

		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(msg *messaging.MulticastMessage) bool {
			return len(msg.Tokens) == 1 &&
				msg.Notification.Title == "Alice" &&
				msg.Notification.Body == "hello" &&
				msg.Data["type"] == "chat"
		})).Return(&messaging.BatchResponse{
			SuccessCount: 1,
			Responses:    []*messaging.SendResponse{{Success: true}},
		}, nil)

		_, err := gateway.SendBatch(ctx, tokens, payload)
		require.NoError(t, err)
		mockClient.AssertExpectations(t)
	})

	t.Run("Per-token failure maps to a transient kind by default", func(t *testing.T) {
		mockClient := new(MockClient)
		gateway := fcm.NewGateway(mockClient, logger)
		tokens := []string{"token-1", "token-2"}

		mockResponse := &messaging.BatchResponse{
			SuccessCount: 1,
			FailureCount: 1,
			Responses: []*messaging.SendResponse{
				{Success: true, MessageID: "msg-1"},
				{Success: false, Error: errors.New("internal error")},
			},
		}
		mockClient.On("SendEachForMulticast", ctx, mock.Anything).Return(mockResponse, nil)

		results, err := gateway.SendBatch(ctx, tokens, payload)

		require.NoError(t, err)
		assert.Equal(t, fanout.KindNone, results[0].Kind)
		assert.Equal(t, fanout.KindOther, results[1].Kind)
		assert.Error(t, results[1].Err)
	})

	t.Run("Transport Failure - No Per-Token Results", func(t *testing.T) {
		mockClient := new(MockClient)
		gateway := fcm.NewGateway(mockClient, logger)

		mockClient.On("SendEachForMulticast", ctx, mock.Anything).Return(nil, errors.New("network down"))

		results, err := gateway.SendBatch(ctx, []string{"token-1"}, payload)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "transport failed")
		assert.Nil(t, results)
	})

	t.Run("Empty token slice is a no-op", func(t *testing.T) {
		mockClient := new(MockClient)
		gateway := fcm.NewGateway(mockClient, logger)

		results, err := gateway.SendBatch(ctx, nil, payload)

		require.NoError(t, err)
		assert.Empty(t, results)
		mockClient.AssertNotCalled(t, "SendEachForMulticast")
	})

	// Note: We rely on the integration test to verify the specific mapping of
	// IsRegistrationTokenNotRegistered / IsInvalidArgument errors, as
	// constructing the internal error types of the Firebase SDK is brittle.
}

package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-chat-dispatch-service/pkg/fanout"
)

// Skip reasons recorded on a no-op Outcome.
const (
	SkipInvalidEvent  = "invalid_event"
	SkipNoRecipients  = "no_recipients"
	SkipNoTokens      = "no_tokens"
	SkipGatewayFailed = "gateway_failed"
)

// Outcome records what a single pipeline invocation did. It is diagnostic
// only: invocations never surface an error to the trigger, so the message
// store is never told its own write failed.
type Outcome struct {
	// Skipped is non-empty when the invocation short-circuited without a
	// send, or when the batch call itself failed.
	Skipped string
	Sent    int
	Failed  int
	Pruned  int
}

// Processor runs the fan-out dispatch for one message event: recipient
// resolution, token aggregation, payload construction, the batch send and
// token-prune reconciliation.
type Processor struct {
	store   fanout.ProfileStore
	gateway fanout.PushGateway
	logger  *slog.Logger
}

func NewProcessor(store fanout.ProfileStore, gateway fanout.PushGateway, logger *slog.Logger) *Processor {
	return &Processor{
		store:   store,
		gateway: gateway,
		logger:  logger.With("component", "DispatchProcessor"),
	}
}

// Process executes the pipeline for one event. Every failure path degrades
// to a logged no-op outcome; concurrent invocations for other events share
// no state with this one and coordinate only through the backing stores.
func (p *Processor) Process(ctx context.Context, event *fanout.MessageEvent) Outcome {
	procLogger := p.logger.With(
		"dispatch_id", uuid.NewString(),
		"chat_id", event.ChatID,
		"sender_id", event.SenderID,
	)

	if err := event.Validate(); err != nil {
		procLogger.Error("Rejecting malformed message event", "err", err)
		return Outcome{Skipped: SkipInvalidEvent}
	}
	if event.CreatedAt.IsZero() {
		procLogger.Warn("Message event has no createdAt timestamp")
	}

	recipients := event.Recipients()
	if len(recipients) == 0 {
		procLogger.Info("No recipients after excluding sender; nothing to do")
		return Outcome{Skipped: SkipNoRecipients}
	}

	// Payload construction is pure and independent of aggregation, so its
	// ordering relative to the profile fetches does not matter.
	payload := BuildPayload(event)

	agg := aggregateTokens(ctx, p.store, recipients, procLogger)
	if len(agg.uniqueTokens) == 0 {
		procLogger.Info("No valid tokens for any recipient; nothing to send")
		return Outcome{Skipped: SkipNoTokens}
	}

	procLogger.Info("Dispatching notification",
		"recipients", len(recipients),
		"unique_tokens", len(agg.uniqueTokens),
	)

	results, err := p.gateway.SendBatch(ctx, agg.uniqueTokens, payload)
	if err != nil {
		// A whole-batch failure is terminal for this invocation: no
		// per-token results exist, so reconciliation is impossible.
		procLogger.Error("Batch send failed", "err", err)
		return Outcome{Skipped: SkipGatewayFailed}
	}

	pruneSet := buildPruneSet(results, agg.snapshots, procLogger)
	flushPruneSet(ctx, p.store, pruneSet, procLogger)

	var outcome Outcome
	for _, res := range results {
		if res.Kind == fanout.KindNone {
			outcome.Sent++
		} else {
			outcome.Failed++
		}
	}
	for _, tokens := range pruneSet {
		outcome.Pruned += len(tokens)
	}

	procLogger.Info("Dispatch complete",
		"sent", outcome.Sent,
		"failed", outcome.Failed,
		"pruned", outcome.Pruned,
	)
	return outcome
}

// NewStreamProcessor adapts Process to the dataflow pipeline contract.
// It always acks: nothing the pipeline does is allowed to make the trigger
// treat the message creation itself as failed.
func NewStreamProcessor(p *Processor) messagepipeline.StreamProcessor[fanout.MessageEvent] {
	return func(ctx context.Context, original messagepipeline.Message, event *fanout.MessageEvent) error {
		outcome := p.Process(ctx, event)
		if outcome.Skipped != "" {
			p.logger.Debug("Invocation resolved to a no-op",
				"reason", outcome.Skipped,
				"pubsub_msg_id", original.ID,
			)
		}
		return nil
	}
}

// Package pipeline contains the core fan-out dispatch components for the
// service: event transformation, recipient resolution, token aggregation,
// payload construction, batch dispatch and token-prune reconciliation.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-chat-dispatch-service/pkg/fanout"
)

// MessageEventTransformer is a dataflow Transformer that safely unmarshals
// a raw trigger payload into a structured fanout.MessageEvent.
//
// Only unparseable JSON is treated as a poison message (skip=true with an
// error, so the consumer's dead-letter policy can capture it). Field-level
// validation is deliberately left to the processor, which degrades bad
// fields to a logged no-op instead of failing the trigger.
func MessageEventTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*fanout.MessageEvent, bool, error) {
	var event fanout.MessageEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal message event from message %s: %w", msg.ID, err)
	}
	return &event, false, nil
}

package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tinywideclouds/go-chat-dispatch-service/pkg/fanout"
)

// minTokenChars is the shortest token the push platforms accept. Anything
// at or below this length is stored junk and is filtered out before a send.
const minTokenChars = 10

// aggregation is the result of fanning in every recipient's stored tokens.
type aggregation struct {
	// uniqueTokens keeps first-seen order. The gateway and the reconciler
	// both rely on a stable slice for the positional result contract.
	uniqueTokens []string

	// owners maps each accepted token to the first user it was seen for.
	// Pruning does NOT trust this index: a token string can coincide
	// across users, so ownership is re-derived from snapshots instead.
	owners map[string]string

	// snapshots holds the fetched records untouched, for the
	// exact-membership scan during pruning.
	snapshots []*fanout.UserTokenRecord
}

// aggregateTokens fetches every recipient's token record concurrently and
// merges the valid tokens into one deduplicated batch. Missing profiles and
// malformed token lists are skipped, never fatal: the remaining recipients
// still get notified.
func aggregateTokens(ctx context.Context, store fanout.ProfileStore, recipients []string, logger *slog.Logger) *aggregation {
	type fetched struct {
		record *fanout.UserTokenRecord
		err    error
	}
	results := make([]fetched, len(recipients))

	var wg sync.WaitGroup
	for i, userID := range recipients {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			record, err := store.Fetch(ctx, userID)
			results[i] = fetched{record: record, err: err}
		}(i, userID)
	}
	wg.Wait()

	agg := &aggregation{owners: make(map[string]string)}
	for i, userID := range recipients {
		res := results[i]
		if res.err != nil {
			logger.Warn("Profile fetch failed; skipping recipient", "user_id", userID, "err", res.err)
			continue
		}
		if res.record == nil {
			logger.Warn("No profile found for recipient", "user_id", userID)
			continue
		}
		if !res.record.HasTokenList {
			logger.Info("Token list missing or malformed; skipping recipient", "user_id", userID)
			continue
		}

		agg.snapshots = append(agg.snapshots, res.record)

		accepted := 0
		for _, token := range res.record.Tokens {
			if len(token) <= minTokenChars {
				logger.Info("Discarding undersized token", "user_id", userID, "token_len", len(token))
				continue
			}
			accepted++
			if _, ok := agg.owners[token]; ok {
				continue
			}
			agg.owners[token] = userID
			agg.uniqueTokens = append(agg.uniqueTokens, token)
		}
		logger.Debug("Collected tokens for recipient", "user_id", userID, "accepted", accepted)
	}

	return agg
}

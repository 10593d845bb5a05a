package pipeline

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/tinywideclouds/go-chat-dispatch-service/pkg/fanout"
)

// buildPruneSet walks the positional delivery results, logs every failure,
// and collects permanently invalid tokens into a per-user prune set.
//
// Ownership is established by re-scanning each recipient's raw snapshot for
// literal membership, not by consulting the aggregation index. The same
// token string can legitimately be stored under more than one user, and a
// prune must hit every record that actually contains it while never
// touching one that does not.
func buildPruneSet(results []fanout.DeliveryResult, snapshots []*fanout.UserTokenRecord, logger *slog.Logger) map[string][]string {
	pruneSet := make(map[string][]string)

	for _, res := range results {
		if res.Kind == fanout.KindNone {
			continue
		}
		logger.Warn("Delivery failed for token", "token", res.Token, "kind", res.Kind.String(), "err", res.Err)

		if !res.Kind.Permanent() {
			// Transient failures are logged and dropped. There is no
			// retry scheduling here; at-least-once redelivery and the
			// next message cover eventual delivery well enough.
			continue
		}

		for _, snap := range snapshots {
			if slices.Contains(snap.Tokens, res.Token) {
				pruneSet[snap.UserID] = append(pruneSet[snap.UserID], res.Token)
			}
		}
	}

	return pruneSet
}

// flushPruneSet issues one RemoveTokens update per affected user. Flushes
// run concurrently and the call returns once all of them settle. A failed
// flush is logged and dropped; the invalid token is simply pruned again on
// the next dispatch that hits it.
func flushPruneSet(ctx context.Context, store fanout.ProfileStore, pruneSet map[string][]string, logger *slog.Logger) {
	var wg sync.WaitGroup
	for userID, tokens := range pruneSet {
		wg.Add(1)
		go func(userID string, tokens []string) {
			defer wg.Done()
			logger.Info("Pruning invalid tokens", "user_id", userID, "count", len(tokens))
			if err := store.RemoveTokens(ctx, userID, tokens); err != nil {
				logger.Error("Failed to prune tokens", "user_id", userID, "err", err)
			}
		}(userID, tokens)
	}
	wg.Wait()
}

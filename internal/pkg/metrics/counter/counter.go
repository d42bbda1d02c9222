package counter

import (
	"context"

	"github.com/launchpadhq/enrollhub/internal/pkg/cache"
)

const webhookCountersKey = "webhook:counters"

// Webhook outcome fields tracked in the counters hash.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// AddWebhookOutcome increments the counter for one webhook delivery outcome
// in Redis. Best-effort: callers ignore the error on the hot path.
func AddWebhookOutcome(outcome string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookCountersKey, outcome, 1).Err()
}

// WebhookCounters returns the current outcome counters.
func WebhookCounters() (map[string]string, error) {
	ctx := context.Background()
	return cache.GetClient().HGetAll(ctx, webhookCountersKey).Result()
}

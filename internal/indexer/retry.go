package indexer

import (
	"context"
	"errors"
	"time"

	"daoup/internal/campaign"
	"daoup/internal/chain"
)

// transient reports whether a chain read is worth retrying. Malformed contract
// state never heals on retry.
func transient(err error) bool {
	if errors.Is(err, campaign.ErrIncompleteState) || errors.Is(err, campaign.ErrUnrecognizedStatus) {
		return false
	}
	switch chain.CodeOf(err) {
	case chain.CodeNetwork, chain.CodeNodeFailure, chain.CodeInvalidJSONResponse, chain.CodeUnknown:
		return true
	default:
		return false
	}
}

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !transient(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}

package writer

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	appconfig "feedsync/config"
)

// RetryPolicy computes backoff delays for failed batch deliveries.
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier int
	Jitter            float64
}

func NewRetryPolicy(cfg appconfig.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       cfg.MaxAttempts,
		BaseDelay:         cfg.BaseDelay,
		MaxDelay:          cfg.MaxDelay,
		BackoffMultiplier: cfg.BackoffMultiplier,
		Jitter:            cfg.Jitter,
	}
}

// Retryable reports whether a failed delivery attempt may be retried.
// Transport errors and timeouts carry status 0. 429 and every 5xx are
// transient; any other 4xx is a permanent rejection of the payload.
func (p RetryPolicy) Retryable(status int, err error) bool {
	if err != nil {
		return true
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

// Delay returns the backoff before the given retry attempt (1-based).
// Exponential growth capped at MaxDelay, with a random jitter fraction so
// concurrent workers do not hammer the API in lockstep.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	multiplier := p.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(multiplier)
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.Jitter > 0 {
		spread := float64(delay) * p.Jitter
		delay += time.Duration((rand.Float64()*2 - 1) * spread)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

// Sleep waits for the attempt's backoff or until the context is cancelled.
func (p RetryPolicy) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Delay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

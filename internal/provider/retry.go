package provider

import (
	"context"
	"time"

	"github.com/azerion/cloudledger/internal/observability/metrics"
	"github.com/azerion/cloudledger/internal/partition"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	canonicaldomain "github.com/azerion/cloudledger/internal/canonical/domain"
)

// RetryPolicy bounds the in-run retry loop around one fetch.
type RetryPolicy struct {
	// InitialInterval seeds the exponential backoff; jitter is applied by the
	// backoff implementation.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsed caps total time spent polling one unit, including waits.
	MaxElapsed time.Duration
}

// DefaultRetryPolicy returns the baseline polling bounds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 2 * time.Second,
		MaxInterval:     1 * time.Minute,
		MaxElapsed:      15 * time.Minute,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	defaults := DefaultRetryPolicy()
	if p.InitialInterval <= 0 {
		p.InitialInterval = defaults.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = defaults.MaxInterval
	}
	if p.MaxElapsed <= 0 {
		p.MaxElapsed = defaults.MaxElapsed
	}
	return p
}

// FetchWithRetry runs one fetch under the retry policy: transient errors are
// retried with exponential backoff and jitter until MaxElapsed, permanent
// errors and context cancellation stop immediately.
func FetchWithRetry(ctx context.Context, adapter FetchAdapter, resourceKey string, window partition.Window, creds Credentials, policy RetryPolicy, log *zap.Logger) ([]canonicaldomain.RawRow, error) {
	policy = policy.withDefaults()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = policy.InitialInterval
	expo.MaxInterval = policy.MaxInterval
	expo.MaxElapsedTime = policy.MaxElapsed

	attempt := 0
	operation := func() ([]canonicaldomain.RawRow, error) {
		attempt++
		rows, err := adapter.Fetch(ctx, resourceKey, window, creds)
		if err == nil {
			return rows, nil
		}
		if !IsTransient(err) {
			return nil, backoff.Permanent(err)
		}

		metrics.Sync().IncFetchRetry(string(adapter.Provider()))
		log.Warn("transient fetch error, will retry",
			zap.String("provider", string(adapter.Provider())),
			zap.String("resource_key", resourceKey),
			zap.Time("window_start", window.Start),
			zap.Time("window_end", window.End),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return nil, err
	}

	return backoff.RetryWithData(operation, backoff.WithContext(expo, ctx))
}

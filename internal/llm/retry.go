package llm

import (
	"context"
	"time"

	"github.com/zero-day-ai/crucible/internal/types"
)

// RetryPolicy bounds how often a model call whose reply could not be used is
// repeated. Only parse failures trigger another attempt; transport errors
// are returned at once even when IsRetryable reports them as transient.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts" validate:"min=1"`

	// Backoff is the fixed wait before every attempt after the first.
	Backoff time.Duration `mapstructure:"backoff" yaml:"backoff" json:"backoff" validate:"min=0"`
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
	}
}

// Delay returns how long to wait before attempt n (1-based). The first
// attempt never waits.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 || p.Backoff <= 0 {
		return 0
	}
	return p.Backoff
}

// Do runs op until it succeeds, returns an error other than a parse
// failure, or the attempts run out. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if delay := p.Delay(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err = op(ctx, attempt); err == nil {
			return nil
		}
		if !IsParseFailure(err) {
			return err
		}
	}
	return err
}

// IsParseFailure reports whether err is a model reply that could not be
// decoded into the expected structure.
func IsParseFailure(err error) bool {
	return types.HasCode(err, ErrResponseParseFailed)
}

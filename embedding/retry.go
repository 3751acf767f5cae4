package embedding

import (
	"errors"
	"fmt"
	"time"
)

// RetryPolicy decides how a failed batch is retried.
type RetryPolicy struct {
	// Cooldown is the wait before each retry of the same batch.
	Cooldown time.Duration

	// MaxWait bounds the total cooldown spent on one batch. Zero means
	// the batch is retried until it succeeds or fails with a fatal error.
	MaxWait time.Duration

	// Retryable classifies errors. Defaults to quota exhaustion only.
	Retryable func(error) bool

	// OnRetry, if set, is called before every cooldown.
	OnRetry func(attempt int, wait time.Duration, err error)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Cooldown:  DefaultCooldown,
		Retryable: IsQuotaExhausted,
	}
}

func IsQuotaExhausted(err error) bool {
	return errors.Is(err, ErrQuotaExhausted)
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable == nil {
		return IsQuotaExhausted(err)
	}

	return p.Retryable(err)
}

// next returns the wait before the given retry attempt (1-based), or an
// error when the policy gives up after waiting for waited in total.
func (p RetryPolicy) next(attempt int, waited time.Duration, err error) (time.Duration, error) {
	if !p.retryable(err) {
		return 0, err
	}

	wait := p.Cooldown
	if p.MaxWait > 0 && waited+wait > p.MaxWait {
		if errors.Is(err, ErrQuotaExhausted) {
			return 0, fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		return 0, fmt.Errorf("gave up after %d attempts: %w: %w", attempt, ErrQuotaExhausted, err)
	}

	return wait, nil
}

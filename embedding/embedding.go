package embedding

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrQuotaExhausted marks a transient rate or usage limit reported by
	// the embedding provider. Batches failing with it are retried.
	ErrQuotaExhausted = errors.New("embedding quota exhausted")

	// ErrOrderingViolation is returned when a provider answers with a
	// different number of vectors than it was asked for, or with vectors of
	// inconsistent dimensionality.
	ErrOrderingViolation = errors.New("embedding ordering violation")

	ErrEmptyInput = errors.New("no texts to embed")
)

const (
	DefaultBatchSize = 32
	DefaultDelay     = time.Second
	DefaultCooldown  = 60 * time.Second
)

// Provider computes one embedding per input text, in input order.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type ProviderFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f ProviderFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

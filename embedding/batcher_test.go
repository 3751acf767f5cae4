package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lengthProvider embeds every text to a length-1 vector holding its length
// and records the batches it receives.
type lengthProvider struct {
	mu       sync.Mutex
	calls    [][]string
	failures map[int]error
}

func (p *lengthProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	call := len(p.calls)
	p.calls = append(p.calls, append([]string(nil), texts...))

	if err, ok := p.failures[call]; ok {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text))}
	}

	return vectors, nil
}

type fakeClock struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.waits = append(c.waits, d)
	return ctx.Err()
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strings.Repeat("x", i+1)
	}

	return out
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	assert := assert.New(t)

	provider := &lengthProvider{}
	clock := &fakeClock{}

	b := NewBatcher(provider,
		WithBatchSize(4),
		WithSleeper(clock.Sleep),
	)

	input := texts(11)
	vectors, err := b.EmbedBatch(context.Background(), input)
	require.NoError(t, err)

	if !assert.Len(vectors, len(input)) {
		return
	}

	for i, v := range vectors {
		assert.Equal([]float32{float32(len(input[i]))}, v)
	}
}

func TestEmbedBatchBoundaries(t *testing.T) {
	assert := assert.New(t)

	provider := &lengthProvider{}
	clock := &fakeClock{}

	b := NewBatcher(provider,
		WithBatchSize(2),
		WithSleeper(clock.Sleep),
	)

	input := texts(5)
	_, err := b.EmbedBatch(context.Background(), input)
	require.NoError(t, err)

	if !assert.Len(provider.calls, 3) {
		return
	}

	assert.Equal(input[0:2], provider.calls[0])
	assert.Equal(input[2:4], provider.calls[1])
	assert.Equal(input[4:5], provider.calls[2])

	assert.Equal([]time.Duration{DefaultDelay, DefaultDelay, DefaultDelay}, clock.waits)
}

func TestEmbedBatchRetriesQuota(t *testing.T) {
	assert := assert.New(t)

	quota := fmt.Errorf("429 from provider: %w", ErrQuotaExhausted)

	provider := &lengthProvider{
		failures: map[int]error{
			1: quota,
			2: quota,
		},
	}

	clock := &fakeClock{}

	var retries []int
	policy := DefaultRetryPolicy()
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		retries = append(retries, attempt)
	}

	b := NewBatcher(provider,
		WithBatchSize(2),
		WithRetryPolicy(policy),
		WithSleeper(clock.Sleep),
	)

	input := texts(4)
	vectors, err := b.EmbedBatch(context.Background(), input)
	require.NoError(t, err)

	// first batch once, second batch three times
	if !assert.Len(provider.calls, 4) {
		return
	}

	assert.Equal(input[0:2], provider.calls[0])
	for _, call := range provider.calls[1:] {
		assert.Equal(input[2:4], call)
	}

	assert.Equal([]int{1, 2}, retries)
	assert.Equal([]time.Duration{
		DefaultDelay,
		DefaultCooldown,
		DefaultCooldown,
		DefaultDelay,
	}, clock.waits)

	assert.Len(vectors, 4)
	for i, v := range vectors {
		assert.Equal([]float32{float32(len(input[i]))}, v)
	}
}

func TestEmbedBatchFatalError(t *testing.T) {
	assert := assert.New(t)

	boom := errors.New("invalid api key")

	provider := &lengthProvider{
		failures: map[int]error{1: boom},
	}

	b := NewBatcher(provider,
		WithBatchSize(1),
		WithSleeper((&fakeClock{}).Sleep),
	)

	_, err := b.EmbedBatch(context.Background(), texts(3))
	assert.ErrorIs(err, boom)
	assert.NotErrorIs(err, ErrQuotaExhausted)
	assert.Len(provider.calls, 2, "must not advance past a failed batch")
}

func TestEmbedBatchBoundedRetry(t *testing.T) {
	assert := assert.New(t)

	provider := ProviderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, ErrQuotaExhausted
	})

	clock := &fakeClock{}
	policy := RetryPolicy{
		Cooldown: 10 * time.Second,
		MaxWait:  25 * time.Second,
	}

	b := NewBatcher(provider,
		WithRetryPolicy(policy),
		WithSleeper(clock.Sleep),
	)

	_, err := b.EmbedBatch(context.Background(), texts(1))
	assert.ErrorIs(err, ErrQuotaExhausted)
	assert.Equal([]time.Duration{10 * time.Second, 10 * time.Second}, clock.waits)
}

func TestEmbedBatchOrderingViolation(t *testing.T) {
	provider := ProviderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	})

	b := NewBatcher(provider,
		WithBatchSize(3),
		WithSleeper((&fakeClock{}).Sleep),
	)

	_, err := b.EmbedBatch(context.Background(), texts(3))
	assert.ErrorIs(t, err, ErrOrderingViolation)
}

func TestEmbedBatchDimensionMismatch(t *testing.T) {
	provider := ProviderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = make([]float32, i+1)
		}

		return vectors, nil
	})

	b := NewBatcher(provider,
		WithSleeper((&fakeClock{}).Sleep),
	)

	_, err := b.EmbedBatch(context.Background(), texts(2))
	assert.ErrorIs(t, err, ErrOrderingViolation)
}

func TestEmbedBatchConcurrent(t *testing.T) {
	assert := assert.New(t)

	provider := &lengthProvider{}

	b := NewBatcher(provider,
		WithBatchSize(3),
		WithConcurrency(4),
		WithSleeper((&fakeClock{}).Sleep),
	)

	input := texts(20)
	vectors, err := b.EmbedBatch(context.Background(), input)
	require.NoError(t, err)

	assert.Len(provider.calls, 7)
	if !assert.Len(vectors, len(input)) {
		return
	}

	for i, v := range vectors {
		assert.Equal([]float32{float32(len(input[i]))}, v)
	}
}

func TestEmbedOne(t *testing.T) {
	assert := assert.New(t)

	provider := &lengthProvider{}

	b := NewBatcher(provider,
		WithSleeper((&fakeClock{}).Sleep),
	)

	vector, err := b.EmbedOne(context.Background(), "How did solar affect costs?")
	require.NoError(t, err)

	assert.Equal([]float32{27}, vector)
	assert.Len(provider.calls, 1)
}

func TestEmbedBatchEmpty(t *testing.T) {
	b := NewBatcher(&lengthProvider{})

	_, err := b.EmbedBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

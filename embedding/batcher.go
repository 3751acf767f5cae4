package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Batcher struct {
	provider    Provider
	batchSize   int
	delay       time.Duration
	policy      RetryPolicy
	concurrency int
	sleep       Sleeper
	log         *zap.Logger
}

type Option func(*Batcher)

func WithBatchSize(size int) Option {
	return func(b *Batcher) {
		if size > 0 {
			b.batchSize = size
		}
	}
}

// WithDelay sets the pause after every successful batch.
func WithDelay(delay time.Duration) Option {
	return func(b *Batcher) {
		b.delay = delay
	}
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(b *Batcher) {
		b.policy = policy
	}
}

// WithConcurrency allows up to n batches in flight at once.
func WithConcurrency(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func WithSleeper(sleep Sleeper) Option {
	return func(b *Batcher) {
		if sleep != nil {
			b.sleep = sleep
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(b *Batcher) {
		if log != nil {
			b.log = log
		}
	}
}

func NewBatcher(provider Provider, opts ...Option) *Batcher {
	b := &Batcher{
		provider:    provider,
		batchSize:   DefaultBatchSize,
		delay:       DefaultDelay,
		policy:      DefaultRetryPolicy(),
		concurrency: 1,
		sleep:       Sleep,
		log:         zap.L(),
	}

	for _, opt := range opts {
		opt(b)
	}

	b.log = b.log.With(
		zap.String("component", "embedding_batcher"),
	)

	return b
}

func (b *Batcher) BatchSize() int {
	return b.batchSize
}

// EmbedOne embeds a single text through the regular batching path.
func (b *Batcher) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := b.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

// EmbedBatch returns one vector per text, vector i belonging to texts[i].
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	batches := partition(texts, b.batchSize)
	results := make([][][]float32, len(batches))

	if b.concurrency <= 1 || len(batches) == 1 {
		for i, batch := range batches {
			vectors, err := b.embed(ctx, i, batch)
			if err != nil {
				return nil, err
			}

			results[i] = vectors
		}
	} else {
		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(b.concurrency)

		for i, batch := range batches {
			g.Go(func() error {
				vectors, err := b.embed(ctx, i, batch)
				if err != nil {
					return err
				}

				results[i] = vectors
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	vectors := make([][]float32, 0, len(texts))
	for _, batch := range results {
		vectors = append(vectors, batch...)
	}

	if err := validate(vectors, len(texts)); err != nil {
		return nil, err
	}

	return vectors, nil
}

// embed runs one batch until it succeeds, retrying only what the retry
// policy accepts.
func (b *Batcher) embed(ctx context.Context, index int, batch []string) ([][]float32, error) {
	log := b.log.With(
		zap.Int("batch", index),
		zap.Int("size", len(batch)),
	)

	var waited time.Duration
	for attempt := 1; ; attempt++ {
		vectors, err := b.provider.Embed(ctx, batch)
		if err == nil {
			if err := validate(vectors, len(batch)); err != nil {
				return nil, fmt.Errorf("batch %d: %w", index, err)
			}

			if err := b.sleep(ctx, b.delay); err != nil {
				return nil, err
			}

			return vectors, nil
		}

		wait, giveUp := b.policy.next(attempt, waited, err)
		if giveUp != nil {
			return nil, fmt.Errorf("batch %d: %w", index, giveUp)
		}

		log.Warn("batch failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		if b.policy.OnRetry != nil {
			b.policy.OnRetry(attempt, wait, err)
		}

		if err := b.sleep(ctx, wait); err != nil {
			return nil, err
		}

		waited += wait
	}
}

func partition(texts []string, size int) [][]string {
	batches := make([][]string, 0, (len(texts)+size-1)/size)
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		batches = append(batches, texts[start:end])
	}

	return batches
}

func validate(vectors [][]float32, expected int) error {
	if len(vectors) != expected {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrOrderingViolation, len(vectors), expected)
	}

	dim := -1
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector at %d", ErrOrderingViolation, i)
		}

		if dim < 0 {
			dim = len(v)
		}

		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrOrderingViolation, i, len(v), dim)
		}
	}

	return nil
}

package chat

import "context"

// Model answers a single free-text prompt. No conversation state is kept
// between calls.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type ModelFunc func(ctx context.Context, prompt string) (string, error)

func (f ModelFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

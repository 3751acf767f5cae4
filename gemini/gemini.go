package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/flarexio/reportrag/embedding"
)

const (
	DefaultEmbeddingModel = "gemini-embedding-exp-03-07"
	DefaultChatModel      = "gemini-2.0-flash"
)

var (
	ErrMissingAPIKey = errors.New("missing gemini api key")
	ErrNoCandidates  = errors.New("no candidates in response")
)

type Config struct {
	APIKey         string `yaml:"apiKey" env:"GEMINI_API_KEY"`
	EmbeddingModel string `yaml:"embeddingModel"`
	ChatModel      string `yaml:"chatModel"`

	// RequestsPerMinute caps chat requests; zero disables the limiter.
	RequestsPerMinute int `yaml:"requestsPerMinute"`
}

type Client struct {
	client  *genai.Client
	embed   *genai.EmbeddingModel
	chat    *genai.GenerativeModel
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}

	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("provider", "gemini"),
		zap.String("chat_model", cfg.ChatModel),
	)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini-chat",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &Client{
		client:  client,
		embed:   client.EmbeddingModel(cfg.EmbeddingModel),
		chat:    client.GenerativeModel(cfg.ChatModel),
		breaker: breaker,
		limiter: limiter,
		log:     log,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Embed requests one embedding per text in a single batch call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	batch := c.embed.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := c.embed.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, classify(err)
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil {
			continue
		}

		vectors[i] = e.Values
	}

	return vectors, nil
}

// Generate sends prompt as a single-turn request.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.chat.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return nil, err
		}

		return resp, nil
	})

	if err != nil {
		return "", err
	}

	resp, ok := result.(*genai.GenerateContentResponse)
	if !ok {
		return "", errors.New("invalid response type")
	}

	return ResponseText(resp)
}

// ResponseText joins the text parts of the first candidate.
func ResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrNoCandidates
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return "", ErrNoCandidates
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	return sb.String(), nil
}

// classify marks provider quota errors as transient so the batcher
// retries them.
func classify(err error) error {
	if IsQuotaExhausted(err) {
		return fmt.Errorf("%w: %w", embedding.ErrQuotaExhausted, err)
	}

	return err
}

func IsQuotaExhausted(err error) bool {
	if err == nil {
		return false
	}

	if status.Code(err) == codes.ResourceExhausted {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}

	return false
}

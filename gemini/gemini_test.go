package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/flarexio/reportrag/embedding"
)

func TestIsQuotaExhausted(t *testing.T) {
	assert := assert.New(t)

	assert.True(IsQuotaExhausted(status.Error(codes.ResourceExhausted, "quota exceeded")))
	assert.True(IsQuotaExhausted(fmt.Errorf("embed: %w", status.Error(codes.ResourceExhausted, "quota"))))
	assert.True(IsQuotaExhausted(&googleapi.Error{Code: http.StatusTooManyRequests}))

	assert.False(IsQuotaExhausted(nil))
	assert.False(IsQuotaExhausted(status.Error(codes.InvalidArgument, "bad request")))
	assert.False(IsQuotaExhausted(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(IsQuotaExhausted(errors.New("connection reset")))
}

func TestClassify(t *testing.T) {
	assert := assert.New(t)

	err := classify(status.Error(codes.ResourceExhausted, "quota"))
	assert.ErrorIs(err, embedding.ErrQuotaExhausted)

	err = classify(status.Error(codes.PermissionDenied, "api key invalid"))
	assert.NotErrorIs(err, embedding.ErrQuotaExhausted)
}

func TestResponseText(t *testing.T) {
	assert := assert.New(t)

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []genai.Part{
						genai.Text("Solar adoption cut "),
						genai.Text("operating costs by 10% (p.1)."),
					},
				},
			},
		},
	}

	text, err := ResponseText(resp)
	assert.NoError(err)
	assert.Equal("Solar adoption cut operating costs by 10% (p.1).", text)

	_, err = ResponseText(&genai.GenerateContentResponse{})
	assert.ErrorIs(err, ErrNoCandidates)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

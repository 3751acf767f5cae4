package reportrag

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/flarexio/reportrag/chat"
	"github.com/flarexio/reportrag/chunker"
	"github.com/flarexio/reportrag/embedding"
	"github.com/flarexio/reportrag/persistence/chromem"
	"github.com/flarexio/reportrag/persistence/yaml"
	"github.com/flarexio/reportrag/registry"
	"github.com/flarexio/reportrag/vector"
)

// letterEmbedding maps a text onto its letter frequencies plus a constant
// component, so no vector is ever zero.
func letterEmbedding(text string) []float32 {
	vec := make([]float32, 27)
	vec[26] = 1

	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}

	return vec
}

type reportRAGTestSuite struct {
	suite.Suite
	ctx      context.Context
	db       vector.VectorDB
	registry registry.Registry
	svc      Service

	embedCalls atomic.Int32
	answer     func(prompt string) (string, error)
}

func (suite *reportRAGTestSuite) newService(tokens int) Service {
	cfg := DefaultConfig()
	cfg.Vector.Persistent = false
	cfg.Embedding.Delay = 0

	tokenizer, err := chunker.NewTiktoken(chunker.DefaultEncoding)
	suite.Require().NoError(err)

	c, err := chunker.New(tokenizer, tokens)
	suite.Require().NoError(err)

	provider := embedding.ProviderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		suite.embedCalls.Add(1)

		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			vectors[i] = letterEmbedding(text)
		}

		return vectors, nil
	})

	batcher := embedding.NewBatcher(provider,
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithDelay(0),
	)

	model := chat.ModelFunc(func(ctx context.Context, prompt string) (string, error) {
		return suite.answer(prompt)
	})

	db, err := chromem.NewChromemVectorDB(cfg.Vector)
	suite.Require().NoError(err)

	svc, err := NewService(cfg, c, batcher, db, model, suite.registry)
	suite.Require().NoError(err)

	suite.db = db
	return svc
}

func (suite *reportRAGTestSuite) SetupTest() {
	reg, err := yaml.NewRegistry(suite.T().TempDir())
	suite.Require().NoError(err)

	suite.ctx = context.Background()
	suite.registry = reg
	suite.embedCalls.Store(0)
	suite.answer = func(prompt string) (string, error) {
		return "Costs fell by 10% (p.1).", nil
	}

	suite.svc = suite.newService(chunker.DefaultTokens)
}

func (suite *reportRAGTestSuite) count() int {
	coll, err := suite.db.Collection(DefaultCollection)
	suite.Require().NoError(err)

	return coll.Count()
}

func (suite *reportRAGTestSuite) TestIngestAndBuildPrompt() {
	doc := Document{
		Pages: []Page{
			{Number: 1, Text: "Solar energy reduced costs by 10%."},
		},
	}

	result, err := suite.svc.Ingest(suite.ctx, doc)
	suite.Require().NoError(err)

	suite.Equal(1, result.NumChunks)
	suite.Equal(1, result.NumPages)
	suite.Equal(0, result.NumTables)
	suite.Equal(DefaultCollection, result.CollectionName)
	suite.NotNil(result.Tables)

	prompt, err := suite.svc.BuildPrompt(suite.ctx, "How did solar energy affect costs?")
	suite.Require().NoError(err)

	suite.True(strings.HasPrefix(prompt, "You are an expert on the Annual Report.\n"))
	suite.Contains(prompt, `(p.1) "Solar energy reduced costs by 10%."`)
	suite.True(strings.HasSuffix(prompt, "Question: How did solar energy affect costs?\nAnswer:"))
}

func (suite *reportRAGTestSuite) TestBuildPromptRanksByDistance() {
	doc := Document{
		Pages: []Page{
			{Number: 1, Text: "zzzz zzzz zzzz"},
			{Number: 2, Text: "Solar energy reduced costs."},
			{Number: 3, Text: "qqqq qqqq"},
		},
	}

	_, err := suite.svc.Ingest(suite.ctx, doc)
	suite.Require().NoError(err)

	prompt, err := suite.svc.BuildPrompt(suite.ctx, "solar energy costs", 1)
	suite.Require().NoError(err)

	suite.Contains(prompt, `(p.2) "Solar energy reduced costs."`)
	suite.NotContains(prompt, "(p.1)")
	suite.NotContains(prompt, "(p.3)")

	prompt, err = suite.svc.BuildPrompt(suite.ctx, "solar energy costs", 10)
	suite.Require().NoError(err)
	suite.Equal(3, strings.Count(prompt, "(p."), "k beyond the collection size returns everything")
}

func (suite *reportRAGTestSuite) TestIngestEmptyPage() {
	doc := Document{
		Pages: []Page{
			{Number: 1, Text: ""},
		},
	}

	result, err := suite.svc.Ingest(suite.ctx, doc)
	suite.Require().NoError(err)

	suite.Equal(0, result.NumChunks)
	suite.Equal(1, result.NumPages)
	suite.Equal(int32(0), suite.embedCalls.Load())

	_, err = suite.svc.BuildPrompt(suite.ctx, "anything?")
	suite.ErrorIs(err, ErrEmptyIndex)

	_, err = suite.svc.Answer(suite.ctx, "anything?")
	suite.ErrorIs(err, ErrEmptyIndex)
}

func (suite *reportRAGTestSuite) TestIngestRejectsInvalidInput() {
	_, err := suite.svc.Ingest(suite.ctx, Document{})
	suite.ErrorIs(err, ErrNoPages)

	_, err = suite.svc.Ingest(suite.ctx, Document{
		Pages: []Page{{Number: 0, Text: "cover"}},
	})
	suite.ErrorIs(err, ErrInvalidPageNumber)
}

func (suite *reportRAGTestSuite) TestReingestReplacesEntries() {
	svc := suite.newService(4)

	long := Document{
		Pages: []Page{
			{Number: 1, Text: strings.Repeat("Revenue grew in every segment. ", 10)},
		},
	}

	first, err := svc.Ingest(suite.ctx, long)
	suite.Require().NoError(err)
	suite.Greater(first.NumChunks, 2)
	suite.Equal(first.NumChunks, suite.count())

	again, err := svc.Ingest(suite.ctx, long)
	suite.Require().NoError(err)
	suite.Equal(first.NumChunks, again.NumChunks)
	suite.Equal(first.NumChunks, suite.count(), "re-ingestion must not duplicate entries")

	short := Document{
		Pages: []Page{
			{Number: 1, Text: "Costs fell."},
		},
	}

	result, err := svc.Ingest(suite.ctx, short)
	suite.Require().NoError(err)
	suite.Equal(result.NumChunks, suite.count(), "stale entries are pruned")

	prompt, err := svc.BuildPrompt(suite.ctx, "revenue", 10)
	suite.Require().NoError(err)
	suite.NotContains(prompt, "Revenue")
}

func (suite *reportRAGTestSuite) TestRegistryCacheHit() {
	doc := Document{
		ID: registry.DocumentID([]byte("annual report 2024")),
		Pages: []Page{
			{Number: 1, Text: "Solar energy reduced costs by 10%."},
		},
		Tables: map[string]any{
			"table_1": []any{"Year", "Cost"},
		},
	}

	first, err := suite.svc.Ingest(suite.ctx, doc)
	suite.Require().NoError(err)
	suite.Equal(1, first.NumTables)
	suite.Equal(int32(1), suite.embedCalls.Load())

	second, err := suite.svc.Ingest(suite.ctx, doc)
	suite.Require().NoError(err)
	suite.Equal(first.NumChunks, second.NumChunks)
	suite.Equal(1, second.NumTables)
	suite.Equal(int32(1), suite.embedCalls.Load(), "cached ingestion must not embed")

	doc.Force = true
	_, err = suite.svc.Ingest(suite.ctx, doc)
	suite.Require().NoError(err)
	suite.Equal(int32(2), suite.embedCalls.Load())
}

func (suite *reportRAGTestSuite) TestRegistrySupersededDocument() {
	a := Document{
		ID:    registry.DocumentID([]byte("report a")),
		Pages: []Page{{Number: 1, Text: "Report A."}},
	}

	b := Document{
		ID:    registry.DocumentID([]byte("report b")),
		Pages: []Page{{Number: 1, Text: "Report B."}},
	}

	for _, doc := range []Document{a, b, a} {
		_, err := suite.svc.Ingest(suite.ctx, doc)
		suite.Require().NoError(err)
	}

	suite.Equal(int32(3), suite.embedCalls.Load(), "a superseded document is ingested again")

	prompt, err := suite.svc.BuildPrompt(suite.ctx, "report")
	suite.Require().NoError(err)
	suite.Contains(prompt, "Report A.")
	suite.NotContains(prompt, "Report B.")
}

func (suite *reportRAGTestSuite) TestInvalidate() {
	doc := Document{
		ID:    registry.DocumentID([]byte("annual report 2024")),
		Pages: []Page{{Number: 1, Text: "Solar energy reduced costs by 10%."}},
	}

	_, err := suite.svc.Ingest(suite.ctx, doc)
	suite.Require().NoError(err)

	err = suite.svc.Invalidate(suite.ctx, doc.ID)
	suite.Require().NoError(err)

	_, err = suite.svc.Ingest(suite.ctx, doc)
	suite.Require().NoError(err)
	suite.Equal(int32(2), suite.embedCalls.Load())

	err = suite.svc.Invalidate(suite.ctx, "unknown")
	suite.ErrorIs(err, registry.ErrDocumentNotFound)
}

func (suite *reportRAGTestSuite) TestInvalidateWithoutRegistry() {
	suite.registry = nil
	svc := suite.newService(chunker.DefaultTokens)

	err := svc.Invalidate(suite.ctx, "any")
	suite.ErrorIs(err, ErrRegistryNotSet)
}

func (suite *reportRAGTestSuite) TestAnswer() {
	var received string
	suite.answer = func(prompt string) (string, error) {
		received = prompt
		return "Costs fell by 10% (p.1).", nil
	}

	_, err := suite.svc.Ingest(suite.ctx, Document{
		Pages: []Page{{Number: 1, Text: "Solar energy reduced costs by 10%."}},
	})
	suite.Require().NoError(err)

	answer, err := suite.svc.Answer(suite.ctx, "How did solar energy affect costs?")
	suite.Require().NoError(err)

	suite.Equal("Costs fell by 10% (p.1).", answer)
	suite.Contains(received, `(p.1) "Solar energy reduced costs by 10%."`)
}

func (suite *reportRAGTestSuite) TestAnswerHonorsK() {
	var received string
	suite.answer = func(prompt string) (string, error) {
		received = prompt
		return "ok", nil
	}

	_, err := suite.svc.Ingest(suite.ctx, Document{
		Pages: []Page{
			{Number: 1, Text: "Solar energy reduced costs."},
			{Number: 2, Text: "Wind capacity doubled."},
			{Number: 3, Text: "Headcount was stable."},
		},
	})
	suite.Require().NoError(err)

	_, err = suite.svc.Answer(suite.ctx, "solar energy costs", 1)
	suite.Require().NoError(err)
	suite.Equal(1, strings.Count(received, "(p."))
	suite.Contains(received, "(p.1)")

	_, err = suite.svc.Answer(suite.ctx, "solar energy costs")
	suite.Require().NoError(err)
	suite.Equal(3, strings.Count(received, "(p."), "the default k covers the whole collection")
}

func (suite *reportRAGTestSuite) TestAnswerGenerationFailed() {
	upstream := errors.New("model overloaded")
	suite.answer = func(prompt string) (string, error) {
		return "", upstream
	}

	_, err := suite.svc.Ingest(suite.ctx, Document{
		Pages: []Page{{Number: 1, Text: "Solar energy reduced costs by 10%."}},
	})
	suite.Require().NoError(err)

	_, err = suite.svc.Answer(suite.ctx, "How did solar energy affect costs?")
	suite.ErrorIs(err, ErrGenerationFailed)
	suite.ErrorIs(err, upstream)
}

func (suite *reportRAGTestSuite) TestEmptyQuestion() {
	_, err := suite.svc.BuildPrompt(suite.ctx, "   ")
	suite.ErrorIs(err, ErrEmptyQuestion)
}

func TestReportRAGTestSuite(t *testing.T) {
	suite.Run(t, new(reportRAGTestSuite))
}

package chunker

import (
	"errors"
)

var ErrInvalidChunkSize = errors.New("chunk size must be positive")

const DefaultTokens = 800

// Page is the extracted text of one PDF page. Number starts at 1.
type Page struct {
	Number int    `json:"page" yaml:"page"`
	Text   string `json:"text" yaml:"text"`
}

// Chunk is a contiguous window of one page's token stream.
type Chunk struct {
	// ID is the global position of the chunk in a segmentation run,
	// independent of page boundaries.
	ID    int    `json:"id"`
	Page  int    `json:"page"`
	Index int    `json:"chunk_id"`
	Text  string `json:"text"`
}

type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type Chunker struct {
	tokenizer Tokenizer
	tokens    int
}

func New(tokenizer Tokenizer, tokens int) (*Chunker, error) {
	if tokens <= 0 {
		return nil, ErrInvalidChunkSize
	}

	return &Chunker{
		tokenizer: tokenizer,
		tokens:    tokens,
	}, nil
}

func (c *Chunker) Tokens() int {
	return c.tokens
}

// Segment splits every page into consecutive, non-overlapping windows of
// c.tokens tokens. Only the last window of a page may be shorter, and pages
// without tokens produce no chunks.
func (c *Chunker) Segment(pages []Page) []Chunk {
	chunks := make([]Chunk, 0, len(pages))

	id := 0
	for _, page := range pages {
		ids := c.tokenizer.Encode(page.Text)

		for start := 0; start < len(ids); start += c.tokens {
			end := min(start+c.tokens, len(ids))

			chunks = append(chunks, Chunk{
				ID:    id,
				Page:  page.Number,
				Index: start / c.tokens,
				Text:  c.tokenizer.Decode(ids[start:end]),
			})

			id++
		}
	}

	return chunks
}

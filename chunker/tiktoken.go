package chunker

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	loader "github.com/pkoukk/tiktoken-go-loader"
)

const DefaultEncoding = "cl100k_base"

var setLoader sync.Once

// NewTiktoken returns a BPE tokenizer for the named encoding. The
// vocabulary ships with the binary, so no network access is needed.
func NewTiktoken(encoding string) (Tokenizer, error) {
	setLoader.Do(func() {
		tiktoken.SetBpeLoader(loader.NewOfflineLoader())
	})

	if encoding == "" {
		encoding = DefaultEncoding
	}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}

	return &tiktokenTokenizer{enc}, nil
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

func (t *tiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode replaces bytes of characters split across a window boundary with
// U+FFFD, so every chunk is valid UTF-8.
func (t *tiktokenTokenizer) Decode(tokens []int) string {
	return strings.ToValidUTF8(t.enc.Decode(tokens), "\uFFFD")
}

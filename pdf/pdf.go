package pdf

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/flarexio/reportrag/chunker"
)

// Extract returns the plain text of every page, numbered from 1. Pages
// whose text cannot be read are returned empty.
func Extract(r io.ReaderAt, size int64) (pages []chunker.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("component", "pdf"),
	)

	n := reader.NumPage()
	pages = make([]chunker.Page, 0, n)
	for i := 1; i <= n; i++ {
		text, err := pageText(reader.Page(i))
		if err != nil {
			log.Warn("page text unavailable",
				zap.Int("page", i),
				zap.Error(err),
			)
		}

		pages = append(pages, chunker.Page{
			Number: i,
			Text:   text,
		})
	}

	return pages, nil
}

func ExtractBytes(bs []byte) ([]chunker.Page, error) {
	return Extract(bytes.NewReader(bs), int64(len(bs)))
}

// ReadFile returns the raw bytes of a PDF together with its page text.
func ReadFile(path string) ([]byte, []chunker.Page, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	pages, err := ExtractBytes(bs)
	if err != nil {
		return nil, nil, err
	}

	return bs, pages, nil
}

func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page text: %v", r)
		}
	}()

	if page.V.IsNull() {
		return "", nil
	}

	return page.GetPlainText(make(map[string]*pdf.Font))
}

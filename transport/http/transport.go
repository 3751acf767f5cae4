package http

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/kit/endpoint"

	"github.com/flarexio/reportrag"
	"github.com/flarexio/reportrag/pdf"
	"github.com/flarexio/reportrag/registry"
)

// maxUploadSize bounds the PDF read into memory.
var maxUploadSize = 64 << 20

var ErrUploadTooLarge = errors.New("upload too large")

func status(err error) int {
	switch {
	case errors.Is(err, reportrag.ErrEmptyIndex),
		errors.Is(err, registry.ErrDocumentNotFound):
		return http.StatusNotFound

	case errors.Is(err, reportrag.ErrEmptyQuestion),
		errors.Is(err, reportrag.ErrNoPages),
		errors.Is(err, reportrag.ErrInvalidPageNumber),
		errors.Is(err, registry.ErrInvalidDocumentID):
		return http.StatusBadRequest

	case errors.Is(err, reportrag.ErrGenerationFailed):
		return http.StatusBadGateway

	default:
		return http.StatusExpectationFailed
	}
}

func fail(c *gin.Context, code int, err error) {
	c.JSON(code, gin.H{"error": err.Error()})
	c.Error(err)
	c.Abort()
}

func ProcessPDFHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		header, err := c.FormFile("file")
		if err != nil {
			fail(c, http.StatusBadRequest, errors.New("no file part"))
			return
		}

		if header.Filename == "" {
			fail(c, http.StatusBadRequest, errors.New("no selected file"))
			return
		}

		if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
			fail(c, http.StatusBadRequest, errors.New("file must be a PDF"))
			return
		}

		f, err := header.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
		defer f.Close()

		bs, err := io.ReadAll(io.LimitReader(f, int64(maxUploadSize)+1))
		if err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}

		if len(bs) > maxUploadSize {
			fail(c, http.StatusRequestEntityTooLarge, ErrUploadTooLarge)
			return
		}

		pages, err := pdf.ExtractBytes(bs)
		if err != nil {
			fail(c, http.StatusUnprocessableEntity, err)
			return
		}

		doc := reportrag.Document{
			ID:    registry.DocumentID(bs),
			Pages: pages,
			Force: c.Query("force") == "true",
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, doc)
		if err != nil {
			fail(c, status(err), err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"data":        resp,
			"document_id": doc.ID,
		})
	}
}

func QueryPDFHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reportrag.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}

		if req.Query == "" {
			fail(c, http.StatusBadRequest, errors.New("missing query"))
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			fail(c, status(err), err)
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

func InvalidateHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID := c.Param("document_id")
		if documentID == "" {
			fail(c, http.StatusBadRequest, errors.New("document id is required"))
			return
		}

		ctx := c.Request.Context()
		_, err := endpoint(ctx, documentID)
		if err != nil {
			fail(c, status(err), err)
			return
		}

		c.String(http.StatusOK, "OK")
	}
}

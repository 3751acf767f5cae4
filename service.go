package reportrag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flarexio/reportrag/chat"
	"github.com/flarexio/reportrag/chunker"
	"github.com/flarexio/reportrag/embedding"
	"github.com/flarexio/reportrag/registry"
	"github.com/flarexio/reportrag/vector"
)

// Service defines the ingestion and question answering pipeline.
type Service interface {

	// Close releases the vector store.
	Close() error

	// Ingest chunks, embeds and indexes a document into the active
	// collection, replacing whatever it held before.
	Ingest(ctx context.Context, doc Document) (*IngestResult, error)

	// BuildPrompt retrieves the k excerpts closest to the question and
	// renders the grounded prompt.
	BuildPrompt(ctx context.Context, question string, k ...int) (string, error)

	// Answer asks the generative model the question, grounded on the
	// k retrieved excerpts.
	Answer(ctx context.Context, question string, k ...int) (string, error)

	// Invalidate forgets that a document has been indexed, so the next
	// ingestion of it runs in full.
	Invalidate(ctx context.Context, documentID string) error
}

type ServiceMiddleware func(Service) Service

// Embedder is satisfied by *embedding.Batcher.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// NewService opens the configured collection and wires the pipeline. The
// registry is optional.
func NewService(cfg Config, chunker *chunker.Chunker, embedder Embedder, db vector.VectorDB, model chat.Model, reg registry.Registry) (Service, error) {
	log := zap.L().With(
		zap.String("service", "reportrag"),
	)

	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = DefaultCollection
	}

	if cfg.Vector.Metric == "" {
		cfg.Vector.Metric = vector.MetricCosine
	}

	if cfg.Retrieval.K <= 0 {
		cfg.Retrieval.K = DefaultK
	}

	collection, err := db.OpenOrCreate(cfg.Vector.Collection, cfg.Vector.Metric)
	if err != nil {
		return nil, err
	}

	log.Info("collection opened",
		zap.String("collection", collection.Name()),
		zap.String("metric", string(collection.Metric())),
		zap.Int("count", collection.Count()),
	)

	return &service{
		chunker:    chunker,
		embedder:   embedder,
		db:         db,
		collection: collection,
		model:      model,
		registry:   reg,
		cfg:        cfg,
		log:        log,
	}, nil
}

type service struct {
	chunker  *chunker.Chunker
	embedder Embedder
	model    chat.Model
	registry registry.Registry

	// Vector collection (thread-safe by itself)
	db         vector.VectorDB
	collection vector.Collection

	// ingestion is the only writer of the collection
	ingestMutex sync.Mutex

	cfg Config
	log *zap.Logger
}

func (svc *service) Close() error {
	return svc.db.Close()
}

func (svc *service) Ingest(ctx context.Context, doc Document) (*IngestResult, error) {
	if len(doc.Pages) == 0 {
		return nil, ErrNoPages
	}

	for _, page := range doc.Pages {
		if page.Number < 1 {
			return nil, fmt.Errorf("%w: got %d", ErrInvalidPageNumber, page.Number)
		}
	}

	svc.ingestMutex.Lock()
	defer svc.ingestMutex.Unlock()

	log := svc.log.With(
		zap.String("action", "ingest"),
		zap.String("collection", svc.collection.Name()),
	)

	if doc.ID != "" {
		log = log.With(zap.String("document_id", doc.ID))
	}

	if svc.registry != nil && doc.ID != "" && !doc.Force {
		entry, err := svc.registry.Lookup(ctx, doc.ID)
		switch {
		case err == nil && entry.Collection == svc.collection.Name():
			log.Info("document already indexed")
			return resultFromEntry(entry), nil

		case err != nil && !errors.Is(err, registry.ErrDocumentNotFound):
			return nil, err
		}
	}

	// the collection is about to change, whatever document it held is gone
	if svc.registry != nil {
		if err := svc.registry.Evict(ctx, svc.collection.Name()); err != nil {
			return nil, err
		}
	}

	chunks := svc.chunker.Segment(doc.Pages)
	log.Info("document segmented",
		zap.Int("pages", len(doc.Pages)),
		zap.Int("chunks", len(chunks)),
	)

	previous := svc.collection.Count()

	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, chunk := range chunks {
			texts[i] = chunk.Text
		}

		vectors, err := svc.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("ingestion aborted: %w", err)
		}

		if len(vectors) != len(chunks) {
			return nil, fmt.Errorf("ingestion aborted: %w: %d vectors for %d chunks",
				embedding.ErrOrderingViolation, len(vectors), len(chunks))
		}

		entries := make([]vector.Entry, len(chunks))
		for i, chunk := range chunks {
			entries[i] = vector.Entry{
				ID:        strconv.Itoa(chunk.ID),
				Document:  chunk.Text,
				Embedding: vectors[i],
				Metadata: vector.Metadata{
					Page:    chunk.Page,
					ChunkID: chunk.Index,
				},
			}
		}

		if err := svc.collection.Upsert(ctx, entries); err != nil {
			return nil, fmt.Errorf("ingestion aborted: %w", err)
		}
	}

	// drop entries left over from a longer previous ingestion
	if previous > len(chunks) {
		stale := make([]string, 0, previous-len(chunks))
		for id := len(chunks); id < previous; id++ {
			stale = append(stale, strconv.Itoa(id))
		}

		if err := svc.collection.Delete(ctx, stale...); err != nil {
			return nil, fmt.Errorf("ingestion aborted: %w", err)
		}

		log.Info("stale entries pruned", zap.Int("count", len(stale)))
	}

	tables := doc.Tables
	if tables == nil {
		tables = make(map[string]any)
	}

	result := &IngestResult{
		NumChunks:      len(chunks),
		NumPages:       len(doc.Pages),
		NumTables:      len(tables),
		CollectionName: svc.collection.Name(),
		Tables:         tables,
	}

	if svc.registry != nil && doc.ID != "" {
		entry := registry.Entry{
			DocumentID: doc.ID,
			Collection: result.CollectionName,
			NumChunks:  result.NumChunks,
			NumPages:   result.NumPages,
			NumTables:  result.NumTables,
			Tables:     doc.Tables,
			IndexedAt:  time.Now(),
		}

		if err := svc.registry.Register(ctx, entry); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (svc *service) BuildPrompt(ctx context.Context, question string, k ...int) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}

	n := svc.cfg.Retrieval.K
	if len(k) > 0 && k[0] > 0 {
		n = k[0]
	}

	vec, err := svc.embedder.EmbedOne(ctx, question)
	if err != nil {
		return "", err
	}

	results, err := svc.collection.Query(ctx, vec, n)
	if err != nil {
		return "", err
	}

	if len(results) == 0 {
		return "", fmt.Errorf("%w: collection %s is empty", ErrEmptyIndex, svc.collection.Name())
	}

	return FormatPrompt(question, results), nil
}

func (svc *service) Answer(ctx context.Context, question string, k ...int) (string, error) {
	prompt, err := svc.BuildPrompt(ctx, question, k...)
	if err != nil {
		return "", err
	}

	answer, err := svc.model.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	return answer, nil
}

func (svc *service) Invalidate(ctx context.Context, documentID string) error {
	if svc.registry == nil {
		return ErrRegistryNotSet
	}

	return svc.registry.Invalidate(ctx, documentID)
}

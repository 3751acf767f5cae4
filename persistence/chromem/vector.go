package chromem

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/flarexio/reportrag/vector"
)

func NewChromemVectorDB(cfg vector.Config) (vector.VectorDB, error) {
	var (
		db      *chromem.DB
		metrics = make(map[string]vector.Metric)
	)

	if !cfg.Persistent {
		db = chromem.NewDB()
	} else {
		d, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, err
		}

		m, err := loadMetrics(cfg.Path)
		if err != nil {
			return nil, err
		}

		db = d
		metrics = m
	}

	return &chromemVectorDB{
		db:          db,
		cfg:         cfg,
		metrics:     metrics,
		collections: make(map[string]*collection),
	}, nil
}

type chromemVectorDB struct {
	db  *chromem.DB
	cfg vector.Config

	metrics     map[string]vector.Metric
	collections map[string]*collection
	sync.Mutex
}

// Embeddings always come from the caller; chromem must never compute one.
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, vector.ErrMissingEmbedding
}

func (v *chromemVectorDB) OpenOrCreate(name string, metric vector.Metric) (vector.Collection, error) {
	v.Lock()
	defer v.Unlock()

	stored, ok := v.metrics[name]
	if !ok && v.db.GetCollection(name, noEmbedding) != nil {
		// chromem only ranks by cosine similarity
		stored, ok = vector.MetricCosine, true
	}

	if ok && stored != metric {
		return nil, fmt.Errorf("%w: collection %q uses %s, requested %s",
			vector.ErrMetricMismatch, name, stored, metric)
	}

	if metric != vector.MetricCosine {
		return nil, fmt.Errorf("%w: %s", vector.ErrUnsupportedMetric, metric)
	}

	if c, ok := v.collections[name]; ok {
		return c, nil
	}

	metadata := map[string]string{
		"hnsw:space": string(metric),
	}

	c, err := v.db.GetOrCreateCollection(name, metadata, noEmbedding)
	if err != nil {
		return nil, err
	}

	if _, ok := v.metrics[name]; !ok {
		v.metrics[name] = metric

		if v.cfg.Persistent {
			if err := saveMetrics(v.cfg.Path, v.metrics); err != nil {
				return nil, err
			}
		}
	}

	coll := &collection{
		collection: c,
		metric:     metric,
	}

	v.collections[name] = coll

	return coll, nil
}

func (v *chromemVectorDB) Collection(name string) (vector.Collection, error) {
	v.Lock()
	defer v.Unlock()

	c, ok := v.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vector.ErrCollectionNotFound, name)
	}

	return c, nil
}

func (v *chromemVectorDB) Close() error {
	v.Lock()
	defer v.Unlock()

	v.collections = make(map[string]*collection)
	return nil
}

type collection struct {
	collection *chromem.Collection
	metric     vector.Metric
}

func (c *collection) Name() string {
	return c.collection.Name
}

func (c *collection) Metric() vector.Metric {
	return c.metric
}

func (c *collection) Count() int {
	return c.collection.Count()
}

// Upsert writes entries one at a time, in order, and stops at the first
// failure. Whatever a failed call leaves behind is a prefix of entries.
func (c *collection) Upsert(ctx context.Context, entries []vector.Entry) error {
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if entry.ID == "" {
			return vector.ErrInvalidEntryID
		}

		if len(entry.Embedding) == 0 {
			return fmt.Errorf("%w: %s", vector.ErrMissingEmbedding, entry.ID)
		}

		doc := chromem.Document{
			ID: entry.ID,
			Metadata: map[string]string{
				"page":     strconv.Itoa(entry.Metadata.Page),
				"chunk_id": strconv.Itoa(entry.Metadata.ChunkID),
			},
			Embedding: entry.Embedding,
			Content:   entry.Document,
		}

		if err := c.collection.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("entry %s: %w", entry.ID, err)
		}
	}

	return nil
}

func (c *collection) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	return c.collection.Delete(ctx, nil, nil, ids...)
}

func (c *collection) Query(ctx context.Context, embedding []float32, k int) ([]vector.Result, error) {
	if k <= 0 {
		return nil, vector.ErrInvalidK
	}

	n := c.collection.Count()
	if n == 0 {
		return []vector.Result{}, nil
	}

	// chromem does not order equal similarities, so rank the whole
	// collection and cut after sorting.
	results, err := c.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, err
	}

	docs := make([]vector.Result, len(results))
	for i, result := range results {
		docs[i] = vector.Result{
			ID:       result.ID,
			Document: result.Content,
			Metadata: parseMetadata(result.Metadata),
			Distance: 1 - result.Similarity,
		}
	}

	vector.SortResults(docs)

	if k < len(docs) {
		docs = docs[:k]
	}

	return docs, nil
}

func parseMetadata(m map[string]string) vector.Metadata {
	var md vector.Metadata
	md.Page, _ = strconv.Atoi(m["page"])
	md.ChunkID, _ = strconv.Atoi(m["chunk_id"])
	return md
}

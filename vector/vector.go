package vector

import (
	"context"
	"errors"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrMetricMismatch     = errors.New("collection metric mismatch")
	ErrUnsupportedMetric  = errors.New("unsupported similarity metric")
	ErrMissingEmbedding   = errors.New("entry has no embedding")
	ErrInvalidEntryID     = errors.New("invalid entry id")
	ErrInvalidK           = errors.New("k must be positive")
)

type Metric string

const (
	MetricCosine       Metric = "cosine"
	MetricL2           Metric = "l2"
	MetricInnerProduct Metric = "ip"
)

type Config struct {
	Persistent bool   `yaml:"persistent"`
	Compress   bool   `yaml:"compress"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	Metric     Metric `yaml:"metric"`
}

type VectorDB interface {
	// OpenOrCreate returns the named collection, creating it with the
	// given metric when absent. An existing collection must have been
	// created with the same metric.
	OpenOrCreate(name string, metric Metric) (Collection, error)

	// Collection returns a collection previously opened with OpenOrCreate
	// during the lifetime of this store.
	Collection(name string) (Collection, error)

	Close() error
}

type Collection interface {
	Name() string
	Metric() Metric
	Count() int

	// Upsert writes entries keyed by ID in order; an existing ID is
	// overwritten. On failure the entries before the failing one are
	// written and none after it.
	Upsert(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, ids ...string) error

	// Query returns at most k entries ordered by ascending distance to
	// vector, ties broken by lower ID.
	Query(ctx context.Context, vector []float32, k int) ([]Result, error)
}

type Metadata struct {
	Page    int `json:"page"`
	ChunkID int `json:"chunk_id"`
}

type Entry struct {
	ID        string    `json:"id"`
	Document  string    `json:"document"`
	Embedding []float32 `json:"embedding,omitempty"`
	Metadata  Metadata  `json:"metadata"`
}

type Result struct {
	ID       string   `json:"id"`
	Document string   `json:"document"`
	Metadata Metadata `json:"metadata"`
	Distance float32  `json:"distance"`
}

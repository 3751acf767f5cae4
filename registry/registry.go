package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	ErrDocumentNotFound  = errors.New("document not registered")
	ErrInvalidDocumentID = errors.New("invalid document id")
)

type Config struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	Redis  struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
}

// Registry maps a document identity to the collection holding its index.
// A collection indexes one document at a time, so registering a document
// releases whatever document was bound to the same collection before.
type Registry interface {
	Lookup(ctx context.Context, documentID string) (Entry, error)
	Register(ctx context.Context, entry Entry) error
	Invalidate(ctx context.Context, documentID string) error

	// Evict drops the binding of whichever document owns the collection.
	Evict(ctx context.Context, collection string) error
}

type Entry struct {
	DocumentID string         `json:"document_id" yaml:"documentID"`
	Collection string         `json:"collection" yaml:"collection"`
	NumChunks  int            `json:"num_chunks" yaml:"numChunks"`
	NumPages   int            `json:"num_pages" yaml:"numPages"`
	NumTables  int            `json:"num_tables" yaml:"numTables"`
	Tables     map[string]any `json:"tables,omitempty" yaml:"tables,omitempty"`
	IndexedAt  time.Time      `json:"indexed_at" yaml:"indexedAt"`
}

// DocumentID is the content address of a source document.
func DocumentID(source []byte) string {
	hash := sha256.Sum256(source)
	return hex.EncodeToString(hash[:])
}

package reportrag

import (
	"encoding/json"
	"errors"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flarexio/reportrag/chunker"
	"github.com/flarexio/reportrag/embedding"
	"github.com/flarexio/reportrag/gemini"
	"github.com/flarexio/reportrag/registry"
	"github.com/flarexio/reportrag/vector"
)

var (
	// ErrEmptyIndex means retrieval found nothing to ground an answer on.
	ErrEmptyIndex = errors.New("no grounding available")

	// ErrGenerationFailed wraps any failure of the generative model.
	ErrGenerationFailed = errors.New("upstream generation failed")

	ErrEmptyQuestion     = errors.New("question is empty")
	ErrNoPages           = errors.New("document has no pages")
	ErrInvalidPageNumber = errors.New("page numbers must start at 1")
	ErrRegistryNotSet    = errors.New("document registry not set")
)

const (
	DefaultCollection = "annual_report"
	DefaultK          = 5
)

type Page = chunker.Page

type Config struct {
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Vector    vector.Config   `yaml:"vector"`
	Registry  registry.Config `yaml:"registry"`
	Gemini    gemini.Config   `yaml:"gemini"`
}

type ChunkerConfig struct {
	Tokens   int    `yaml:"tokens"`
	Encoding string `yaml:"encoding"`
}

type EmbeddingConfig struct {
	BatchSize   int      `yaml:"batchSize"`
	Delay       Duration `yaml:"delay"`
	Cooldown    Duration `yaml:"cooldown"`
	MaxWait     Duration `yaml:"maxWait"`
	Concurrency int      `yaml:"concurrency"`
}

type RetrievalConfig struct {
	K int `yaml:"k"`
}

func DefaultConfig() Config {
	return Config{
		Chunker: ChunkerConfig{
			Tokens:   chunker.DefaultTokens,
			Encoding: chunker.DefaultEncoding,
		},
		Embedding: EmbeddingConfig{
			BatchSize:   embedding.DefaultBatchSize,
			Delay:       Duration(embedding.DefaultDelay),
			Cooldown:    Duration(embedding.DefaultCooldown),
			Concurrency: 1,
		},
		Retrieval: RetrievalConfig{
			K: DefaultK,
		},
		Vector: vector.Config{
			Persistent: true,
			Collection: DefaultCollection,
			Metric:     vector.MetricCosine,
		},
		Registry: registry.Config{
			Driver: "file",
		},
		Gemini: gemini.Config{
			EmbeddingModel: gemini.DefaultEmbeddingModel,
			ChatModel:      gemini.DefaultChatModel,
		},
	}
}

// RetryPolicy builds the quota retry policy described by the config.
func (cfg EmbeddingConfig) RetryPolicy() embedding.RetryPolicy {
	policy := embedding.DefaultRetryPolicy()
	policy.Cooldown = cfg.Cooldown.Duration()
	policy.MaxWait = cfg.MaxWait.Duration()
	return policy
}

type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	str := d.Duration().String()
	return json.Marshal(str)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	return d.UnmarshalText([]byte(str))
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration().String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	return d.UnmarshalText([]byte(str))
}

func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

// Document is one source document handed to ingestion.
type Document struct {
	// ID is the content address of the source, see registry.DocumentID.
	// Documents without an ID are always ingested.
	ID     string         `json:"document_id,omitempty"`
	Pages  []Page         `json:"pages"`
	Tables map[string]any `json:"tables,omitempty"`
	Force  bool           `json:"force,omitempty"`
}

type IngestResult struct {
	NumChunks      int            `json:"num_chunks"`
	NumPages       int            `json:"num_pages"`
	NumTables      int            `json:"num_tables"`
	CollectionName string         `json:"collection_name"`
	Tables         map[string]any `json:"tables"`
}

func resultFromEntry(entry registry.Entry) *IngestResult {
	tables := entry.Tables
	if tables == nil {
		tables = make(map[string]any)
	}

	return &IngestResult{
		NumChunks:      entry.NumChunks,
		NumPages:       entry.NumPages,
		NumTables:      entry.NumTables,
		CollectionName: entry.Collection,
		Tables:         tables,
	}
}

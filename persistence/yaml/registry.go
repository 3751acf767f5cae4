package yaml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/flarexio/reportrag/registry"
)

const registryFile = "registry.yaml"

// NewRegistry returns a registry stored as a YAML file in dir.
func NewRegistry(dir string) (registry.Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	r := &fileRegistry{
		path:    filepath.Join(dir, registryFile),
		entries: make(map[string]registry.Entry),
	}

	if err := r.load(); err != nil {
		return nil, err
	}

	return r, nil
}

type fileRegistry struct {
	path    string
	entries map[string]registry.Entry
	sync.RWMutex
}

type registryDocument struct {
	Documents map[string]registry.Entry `yaml:"documents"`
}

func (r *fileRegistry) load() error {
	bs, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return err
	}

	var doc registryDocument
	if err := yaml.Unmarshal(bs, &doc); err != nil {
		return fmt.Errorf("registry %s: %w", r.path, err)
	}

	for id, entry := range doc.Documents {
		r.entries[id] = entry
	}

	return nil
}

func (r *fileRegistry) save() error {
	bs, err := yaml.Marshal(&registryDocument{Documents: r.entries})
	if err != nil {
		return err
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, r.path)
}

func (r *fileRegistry) Lookup(ctx context.Context, documentID string) (registry.Entry, error) {
	r.RLock()
	defer r.RUnlock()

	entry, ok := r.entries[documentID]
	if !ok {
		return registry.Entry{}, registry.ErrDocumentNotFound
	}

	return entry, nil
}

func (r *fileRegistry) Register(ctx context.Context, entry registry.Entry) error {
	if entry.DocumentID == "" {
		return registry.ErrInvalidDocumentID
	}

	r.Lock()
	defer r.Unlock()

	for id, e := range r.entries {
		if e.Collection == entry.Collection {
			delete(r.entries, id)
		}
	}

	r.entries[entry.DocumentID] = entry

	return r.save()
}

func (r *fileRegistry) Invalidate(ctx context.Context, documentID string) error {
	r.Lock()
	defer r.Unlock()

	if _, ok := r.entries[documentID]; !ok {
		return registry.ErrDocumentNotFound
	}

	delete(r.entries, documentID)

	return r.save()
}

func (r *fileRegistry) Evict(ctx context.Context, collection string) error {
	r.Lock()
	defer r.Unlock()

	changed := false
	for id, e := range r.entries {
		if e.Collection == collection {
			delete(r.entries, id)
			changed = true
		}
	}

	if !changed {
		return nil
	}

	return r.save()
}

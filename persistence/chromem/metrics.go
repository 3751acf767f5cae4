package chromem

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flarexio/reportrag/vector"
)

const metricsFile = "collections.yaml"

type metricsDocument struct {
	Collections map[string]vector.Metric `yaml:"collections"`
}

func loadMetrics(dir string) (map[string]vector.Metric, error) {
	metrics := make(map[string]vector.Metric)

	f, err := os.Open(filepath.Join(dir, metricsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return metrics, nil
		}

		return nil, err
	}
	defer f.Close()

	var doc metricsDocument
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, err
	}

	for name, metric := range doc.Collections {
		metrics[name] = metric
	}

	return metrics, nil
}

func saveMetrics(dir string, metrics map[string]vector.Metric) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	bs, err := yaml.Marshal(&metricsDocument{Collections: metrics})
	if err != nil {
		return err
	}

	tmp := filepath.Join(dir, metricsFile+".tmp")
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, filepath.Join(dir, metricsFile))
}

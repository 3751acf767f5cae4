package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func TestApplicationCloseReverseOrder(t *testing.T) {
	assert := assert.New(t)

	var order []int
	app := &application{
		log: zap.NewNop(),
		closer: []func() error{
			func() error { order = append(order, 1); return nil },
			func() error { order = append(order, 2); return errors.New("already closed") },
			func() error { order = append(order, 3); return nil },
		},
	}

	app.Close()
	assert.Equal([]int{3, 2, 1}, order)
}

func TestNewApplicationClosesOnFailure(t *testing.T) {
	assert := assert.New(t)

	path := t.TempDir()
	config := []byte("registry:\n  driver: bogus\n")
	require.NoError(t, os.WriteFile(filepath.Join(path, "config.yaml"), config, 0o600))

	t.Setenv("GEMINI_API_KEY", "test-key")

	_, err := newApplication(context.Background(), path)
	assert.ErrorContains(err, "unknown registry driver")

	// the tracer provider installed during wiring has been shut down
	_, span := otel.Tracer("reportrag").Start(context.Background(), "after-failure")
	defer span.End()

	assert.False(span.IsRecording())
}

func TestLoadConfigDefaults(t *testing.T) {
	assert := assert.New(t)

	path := t.TempDir()
	t.Setenv("GEMINI_API_KEY", "from-env")

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal("from-env", cfg.Gemini.APIKey)
	assert.Equal(filepath.Join(path, "vectors"), cfg.Vector.Path)
	assert.Equal(filepath.Join(path, "registry"), cfg.Registry.Path)
	assert.Equal(800, cfg.Chunker.Tokens)
}

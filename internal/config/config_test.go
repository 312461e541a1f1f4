package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLocatePriority(t *testing.T) {
	dir := t.TempDir()
	_, err := locate("", dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	example := filepath.Join(dir, ExampleFile)
	writeFile(t, example, "retrieval: {}\n")
	got, err := locate("", dir)
	require.NoError(t, err)
	assert.Equal(t, example, got)

	local := filepath.Join(dir, LocalFile)
	writeFile(t, local, "retrieval: {}\n")
	got, err = locate("", dir)
	require.NoError(t, err)
	assert.Equal(t, local, got)

	explicit := filepath.Join(dir, "other.yaml")
	writeFile(t, explicit, "retrieval: {}\n")
	got, err = locate(explicit, dir)
	require.NoError(t, err)
	assert.Equal(t, explicit, got)
}

func TestLocateExplicitMissingIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, LocalFile), "retrieval: {}\n")
	_, err := locate(filepath.Join(dir, "nope.yaml"), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("retrieval:\n  chunk_size: 200\n"))
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Retrieval.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.Retrieval.Overlap())
	assert.Equal(t, DefaultEmbeddingModel, cfg.Retrieval.EmbeddingModel)
	assert.Equal(t, "hash", cfg.Retrieval.EmbeddingProvider)
	assert.Equal(t, filepath.Join("data", "index", "meta.jsonl"), cfg.Paths.Meta)
	assert.Equal(t, []string{"**/*.txt", "**/*.pdf"}, cfg.Ingest.Include)
	assert.Equal(t, "OPENAI_API_KEY", cfg.OpenAI.APIKeyEnv)
}

func TestParseExplicitZeroOverlap(t *testing.T) {
	cfg, err := Parse([]byte("retrieval:\n  chunk_size: 100\n  chunk_overlap: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Retrieval.Overlap())
}

func TestParseValidation(t *testing.T) {
	_, err := Parse([]byte("retrieval:\n  chunk_size: -5\n  chunk_overlap: -1\n  embedding_provider: faiss\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_size")
	assert.Contains(t, err.Error(), "chunk_overlap")
	assert.Contains(t, err.Error(), "faiss")
}

func TestParseOpenAIMinInterval(t *testing.T) {
	cfg, err := Parse([]byte("openai:\n  min_interval: 250ms\n"))
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.OpenAI.MinInterval)

	cfg, err = Parse([]byte("retrieval: {}\n"))
	require.NoError(t, err)
	assert.Zero(t, cfg.OpenAI.MinInterval)

	_, err = Parse([]byte("openai:\n  min_interval: -1s\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_interval")
}

func TestLoadFullDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	writeFile(t, path, `
retrieval:
  embedding_model: text-embedding-3-small
  embedding_provider: OpenAI
  chunk_size: 400
  chunk_overlap: 40
paths:
  raw_dir: corpus
openai:
  base_url: http://localhost:1234/v1
  api_key_env: MY_KEY
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Source)
	assert.Equal(t, "openai", cfg.Retrieval.EmbeddingProvider)
	assert.Equal(t, "text-embedding-3-small", cfg.Retrieval.EmbeddingModel)
	assert.Equal(t, 40, cfg.Retrieval.Overlap())
	assert.Equal(t, "corpus", cfg.Paths.RawDir)
	assert.Equal(t, "http://localhost:1234/v1", cfg.OpenAI.BaseURL)

	t.Setenv("MY_KEY", "secret")
	assert.Equal(t, "secret", cfg.APIKey())
}

func TestLoadBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	writeFile(t, path, "retrieval: [unterminated\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config yaml")
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citerag/internal/config"
	"citerag/internal/llm/hashemb"
	"citerag/internal/llm/openai"
)

var (
	_ Embedder = (*hashemb.Embedder)(nil)
	_ Embedder = (*openai.Client)(nil)
)

func TestFromConfig(t *testing.T) {
	cfg, err := config.Parse([]byte("retrieval:\n  embedding_dim: 32\n"))
	require.NoError(t, err)
	emb, err := FromConfig(cfg)
	require.NoError(t, err)
	require.IsType(t, &hashemb.Embedder{}, emb)
	vecs, err := emb.Embeddings(context.Background(), "", []string{"dimension check"})
	require.NoError(t, err)
	assert.Len(t, vecs[0], 32)

	cfg, err = config.Parse([]byte("retrieval:\n  embedding_provider: openai\n"))
	require.NoError(t, err)
	emb, err = FromConfig(cfg)
	require.NoError(t, err)
	assert.IsType(t, &openai.Client{}, emb)

	cfg.Retrieval.EmbeddingProvider = "nope"
	_, err = FromConfig(cfg)
	assert.Error(t, err)
}

func TestFromConfigOpenAIMinInterval(t *testing.T) {
	var (
		mu    sync.Mutex
		times []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "m",
			"data":   []any{map[string]any{"object": "embedding", "index": 0, "embedding": []float64{1, 0}}},
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	t.Setenv("CITERAG_TEST_OPENAI_KEY", "k")

	cfg, err := config.Parse([]byte("retrieval:\n  embedding_provider: openai\nopenai:\n  base_url: " + srv.URL +
		"\n  api_key_env: CITERAG_TEST_OPENAI_KEY\n  max_retries: 1\n  min_interval: 50ms\n"))
	require.NoError(t, err)
	emb, err := FromConfig(cfg)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := emb.Embeddings(context.Background(), "m", []string{"q"})
		require.NoError(t, err)
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, times, 2)
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), 45*time.Millisecond)
}

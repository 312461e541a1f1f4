package openai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client embeds text through an OpenAI-compatible /embeddings endpoint.
type Client struct {
	api    oai.Client
	minGap time.Duration

	mu      sync.Mutex
	lastReq time.Time
}

// New builds a client. Retries on 429/5xx are handled by the SDK.
func New(baseURL, apiKey string, maxRetries int) *Client {
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		option.WithMaxRetries(maxRetries),
		option.WithRequestTimeout(60 * time.Second),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &Client{api: oai.NewClient(opts...)}
}

// WithMinInterval spaces consecutive requests at least d apart.
func (c *Client) WithMinInterval(d time.Duration) *Client {
	c.minGap = d
	return c
}

// Embeddings implements llm.Embedder.
func (c *Client) Embeddings(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	if model == "" {
		return nil, errors.New("embeddings: model is required")
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.api.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Input:          oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Model:          oai.EmbeddingModel(model),
		EncodingFormat: oai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(inputs))
	}
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		v := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float32(x)
		}
		out[i] = v
	}
	return out, nil
}

// wait blocks until minGap has passed since the previous request.
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.minGap > 0 {
		if since := time.Since(c.lastReq); since < c.minGap {
			t := time.NewTimer(c.minGap - since)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	c.lastReq = time.Now()
	return nil
}

package embedpipe

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"citerag/internal/llm"
	"citerag/internal/log"
	"citerag/internal/vectorstore"
)

// Pipeline embeds text in batches and unit-normalizes every vector, so the
// same normalization applies to corpus chunks and to questions.
type Pipeline struct {
	emb   llm.Embedder
	model string
	batch int
	cache *lru.Cache[string, []float32]
	log   *log.Logger
}

func New(emb llm.Embedder, model string, batch, cacheSize int) *Pipeline {
	if emb == nil {
		return nil
	}
	if batch <= 0 {
		batch = 32
	}
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &Pipeline{emb: emb, model: model, batch: batch, cache: cache, log: log.Discard()}
}

func (p *Pipeline) WithLogger(l *log.Logger) *Pipeline {
	if l != nil {
		p.log = l
	}
	return p
}

func (p *Pipeline) Model() string { return p.model }

// EmbedAll returns one normalized vector per text, in order. All vectors
// must share a dimension.
func (p *Pipeline) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batch {
		end := min(len(texts), start+p.batch)
		vecs, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed rows %d-%d: %w", start, end-1, err)
		}
		out = append(out, vecs...)
		p.log.Debug("embedded batch", "from", start, "to", end, "total", len(texts))
	}
	if len(out) > 0 {
		dim := len(out[0])
		for i, v := range out {
			if len(v) != dim {
				return nil, fmt.Errorf("row %d has dimension %d, row 0 has %d: %w", i, len(v), dim, vectorstore.ErrDimMismatch)
			}
		}
	}
	return out, nil
}

// embedBatch calls the embedder once for the whole batch. When the call
// fails or returns the wrong number of vectors it retries item by item once.
func (p *Pipeline) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := p.emb.Embeddings(ctx, p.model, texts)
	if err == nil && len(vecs) == len(texts) {
		for _, v := range vecs {
			vectorstore.Normalize(v)
		}
		return vecs, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	p.log.Warn("batch embedding failed, retrying per item", "size", len(texts), "err", err)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, e := p.emb.Embeddings(ctx, p.model, []string{t})
		if e != nil {
			return nil, e
		}
		if len(v) != 1 {
			return nil, fmt.Errorf("embedder returned %d vectors for 1 input", len(v))
		}
		out[i] = vectorstore.Normalize(v[0])
	}
	return out, nil
}

// EmbedQuery embeds a single question, serving repeats from an LRU cache.
func (p *Pipeline) EmbedQuery(ctx context.Context, question string) ([]float32, error) {
	if v, ok := p.cache.Get(question); ok {
		return v, nil
	}
	vecs, err := p.embedBatch(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	p.cache.Add(question, vecs[0])
	return vecs[0], nil
}

// Package hashemb is a deterministic offline embedder: lower-cased word
// tokens are feature-hashed into a fixed number of buckets with a sign bit.
// It needs no model download and gives lexical-overlap similarity.
package hashemb

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

type Embedder struct {
	dim int
}

// New returns an embedder producing dim-dimensional vectors (256 if dim <= 0).
func New(dim int) *Embedder {
	if dim <= 0 {
		dim = 256
	}
	return &Embedder{dim: dim}
}

// Embeddings implements llm.Embedder. The model name is ignored.
func (e *Embedder) Embeddings(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(s)
	}
	return out, nil
}

func (e *Embedder) embed(s string) []float32 {
	v := make([]float32, e.dim)
	for _, tok := range tokenize(s) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		idx := sum % uint32(e.dim)
		if sum&(1<<31) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	return v
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

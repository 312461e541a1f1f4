package retriever

import (
	"context"
	"fmt"

	"citerag/internal/indexer"
	"citerag/internal/indexer/embedpipe"
	"citerag/internal/vectorstore"
)

// Hit is one retrieved chunk.
type Hit struct {
	Row      int     `json:"row"`
	Score    float32 `json:"score"`
	Citation string  `json:"citation"`
	Text     string  `json:"text"`
}

// Results holds hits in descending score order. Dropped counts index rows
// the search returned that had no metadata row (including NoMatch padding).
type Results struct {
	Hits    []Hit
	Dropped int
}

// Citations returns the hit citations in rank order.
func (r Results) Citations() []string {
	out := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		out[i] = h.Citation
	}
	return out
}

// Texts returns the hit texts in rank order.
func (r Results) Texts() []string {
	out := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		out[i] = h.Text
	}
	return out
}

// KNN answers questions by nearest-neighbour search over a loaded index.
type KNN struct {
	idx  *indexer.Index
	pipe *embedpipe.Pipeline
}

func NewKNN(idx *indexer.Index, pipe *embedpipe.Pipeline) *KNN {
	return &KNN{idx: idx, pipe: pipe}
}

// Search embeds question with the same normalization as the corpus and
// returns at most min(topK, corpus size) hits.
func (r *KNN) Search(ctx context.Context, question string, topK int) (Results, error) {
	if topK <= 0 {
		return Results{Hits: []Hit{}}, nil
	}
	q, err := r.pipe.EmbedQuery(ctx, question)
	if err != nil {
		return Results{}, fmt.Errorf("embed question: %w", err)
	}
	ids, scores, err := r.idx.Vectors.Search(q, topK)
	if err != nil {
		return Results{}, err
	}
	res := Results{Hits: make([]Hit, 0, len(ids))}
	for i, row := range ids {
		if row == vectorstore.NoMatch || row < 0 || row >= len(r.idx.Meta) {
			res.Dropped++
			continue
		}
		m := r.idx.Meta[row]
		res.Hits = append(res.Hits, Hit{Row: row, Score: scores[i], Citation: m.Citation(), Text: m.Text})
	}
	return res, nil
}

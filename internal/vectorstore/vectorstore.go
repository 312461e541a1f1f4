package vectorstore

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimMismatch is returned when a vector does not match the index dimension.
var ErrDimMismatch = errors.New("vector dimension mismatch")

// NoMatch is the row id padding search results when fewer than k rows exist.
const NoMatch = -1

// FlatIP is an exhaustive inner-product index. With unit-norm vectors the
// inner product equals cosine similarity.
type FlatIP struct {
	dim   int
	model string
	vecs  [][]float32
	keys  []string
}

// NewFlatIP creates an empty index for dim-dimensional vectors. model labels
// the embedding model the vectors came from.
func NewFlatIP(dim int, model string) *FlatIP {
	return &FlatIP{dim: dim, model: model}
}

func (x *FlatIP) Dim() int      { return x.dim }
func (x *FlatIP) Model() string { return x.model }
func (x *FlatIP) Len() int      { return len(x.vecs) }

// Key returns the citation stored for row, or "" when out of range.
func (x *FlatIP) Key(row int) string {
	if row < 0 || row >= len(x.keys) {
		return ""
	}
	return x.keys[row]
}

// Add appends vectors as the next rows. keys, when non-nil, must be parallel
// to vecs. Nothing is added if any vector has the wrong dimension.
func (x *FlatIP) Add(vecs [][]float32, keys []string) error {
	if keys != nil && len(keys) != len(vecs) {
		return fmt.Errorf("add: %d keys for %d vectors", len(keys), len(vecs))
	}
	for i, v := range vecs {
		if len(v) != x.dim {
			return fmt.Errorf("add row %d: got %d, want %d: %w", len(x.vecs)+i, len(v), x.dim, ErrDimMismatch)
		}
	}
	for i, v := range vecs {
		cp := make([]float32, len(v))
		copy(cp, v)
		x.vecs = append(x.vecs, cp)
		key := ""
		if keys != nil {
			key = keys[i]
		}
		x.keys = append(x.keys, key)
	}
	return nil
}

// Search returns exactly k row ids and scores ordered by descending inner
// product, ties broken by lower row. Slots past the index size hold NoMatch
// and a zero score.
func (x *FlatIP) Search(query []float32, k int) ([]int, []float32, error) {
	if k <= 0 {
		return []int{}, []float32{}, nil
	}
	if len(query) != x.dim {
		return nil, nil, fmt.Errorf("search: got %d, want %d: %w", len(query), x.dim, ErrDimMismatch)
	}
	rows := make([]int, len(x.vecs))
	scores := make([]float32, len(x.vecs))
	for i, v := range x.vecs {
		rows[i] = i
		scores[i] = dot(query, v)
	}
	sort.SliceStable(rows, func(a, b int) bool { return scores[rows[a]] > scores[rows[b]] })

	ids := make([]int, k)
	out := make([]float32, k)
	for i := 0; i < k; i++ {
		if i < len(rows) {
			ids[i] = rows[i]
			out[i] = scores[rows[i]]
			continue
		}
		ids[i] = NoMatch
	}
	return ids, out, nil
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// Normalize scales v to unit L2 norm in place and returns it. Zero vectors
// are left unchanged.
func Normalize(v []float32) []float32 {
	var ss float64
	for _, x := range v {
		ss += float64(x) * float64(x)
	}
	if ss == 0 {
		return v
	}
	inv := 1 / math.Sqrt(ss)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Package indexer turns the chunk file into a vector index plus the
// metadata file that maps index rows back to citations.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"citerag/internal/indexer/embedpipe"
	"citerag/internal/jsonl"
	"citerag/internal/log"
	"citerag/internal/models"
	"citerag/internal/storage/sqlite"
	"citerag/internal/vectorstore"
)

// ErrIndexMismatch means the index and metadata files disagree about rows.
var ErrIndexMismatch = errors.New("index and metadata do not match")

type Options struct {
	ChunksPath string
	IndexPath  string
	MetaPath   string
	Pipeline   *embedpipe.Pipeline
	Logger     *log.Logger
	// Reset rolls the existing index database back to an empty schema
	// before the rebuild is written.
	Reset bool
}

type Stats struct {
	Chunks    int
	Malformed int
	Dim       int
	Elapsed   time.Duration
}

// Build embeds every chunk and writes the index and metadata files. Row i
// of the index holds the vector of meta row i.
func Build(ctx context.Context, opt Options) (Stats, error) {
	if opt.Logger == nil {
		opt.Logger = log.Discard()
	}
	if opt.Pipeline == nil {
		return Stats{}, errors.New("build: embedding pipeline is required")
	}
	start := time.Now()
	chunks, bad, err := jsonl.ReadFile[models.Chunk](opt.ChunksPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Stats{}, fmt.Errorf("chunk file not found: %s: %w", opt.ChunksPath, models.ErrMissingInput)
		}
		return Stats{}, fmt.Errorf("read chunks: %w", err)
	}
	for _, e := range bad {
		opt.Logger.Warn("skipping malformed chunk line", "path", opt.ChunksPath, "line", e.Line, "err", e.Err)
	}
	if len(chunks) == 0 {
		return Stats{Malformed: len(bad)}, fmt.Errorf("chunk file has no records: %s: %w", opt.ChunksPath, models.ErrMissingInput)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := opt.Pipeline.EmbedAll(ctx, texts)
	if err != nil {
		return Stats{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return Stats{}, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	meta := make([]models.MetaRow, len(chunks))
	keys := make([]string, len(chunks))
	for i, c := range chunks {
		meta[i] = models.MetaRow{Row: i, SourceFile: c.SourceFile, ChunkID: c.ChunkID, Text: c.Text}
		keys[i] = meta[i].Citation()
	}
	idx := vectorstore.NewFlatIP(len(vecs[0]), opt.Pipeline.Model())
	if err := idx.Add(vecs, keys); err != nil {
		return Stats{}, err
	}
	if opt.Reset {
		if err := sqlite.Reset(ctx, opt.IndexPath); err != nil {
			return Stats{}, fmt.Errorf("reset index: %w", err)
		}
		opt.Logger.Info("index schema reset", "path", opt.IndexPath)
	}
	if err := idx.Save(ctx, opt.IndexPath); err != nil {
		return Stats{}, fmt.Errorf("save index: %w", err)
	}
	if err := jsonl.WriteFile(opt.MetaPath, meta); err != nil {
		return Stats{}, fmt.Errorf("write meta: %w", err)
	}
	st := Stats{Chunks: len(chunks), Malformed: len(bad), Dim: idx.Dim(), Elapsed: time.Since(start)}
	opt.Logger.Info("index built", "rows", st.Chunks, "dim", st.Dim, "model", idx.Model(), "elapsed", st.Elapsed.Round(time.Millisecond).String())
	return st, nil
}

// Index is a loaded index with its metadata. Meta[i].Row == i for every i.
type Index struct {
	Vectors *vectorstore.FlatIP
	Meta    []models.MetaRow
}

// CheckModel logs a warning when the index was built with a different
// embedding model than the one about to embed queries.
func (x *Index) CheckModel(model string, l *log.Logger) bool {
	if x.Vectors.Model() == "" || x.Vectors.Model() == model {
		return true
	}
	l.Warn("index was built with a different embedding model", "index_model", x.Vectors.Model(), "configured_model", model)
	return false
}

// Load opens the index and metadata files and cross-checks them. Any
// disagreement about row count, row keys or citations fails with
// ErrIndexMismatch.
func Load(ctx context.Context, indexPath, metaPath string) (*Index, error) {
	for _, p := range []string{indexPath, metaPath} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("index artifact not found: %s: %w", p, models.ErrMissingInput)
			}
			return nil, err
		}
	}
	vecs, err := vectorstore.Load(ctx, indexPath)
	if errors.Is(err, sqlite.ErrSchemaVersion) {
		return nil, fmt.Errorf("load index: %w; rebuild it with `citerag index --reset`", err)
	}
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	rows, bad, err := jsonl.ReadFile[models.MetaRow](metaPath)
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("meta line %d unreadable: %w", bad[0].Line, ErrIndexMismatch)
	}
	if len(rows) != vecs.Len() {
		return nil, fmt.Errorf("meta has %d rows, index has %d: %w", len(rows), vecs.Len(), ErrIndexMismatch)
	}
	meta := make([]models.MetaRow, len(rows))
	seen := make([]bool, len(rows))
	for _, r := range rows {
		if r.Row < 0 || r.Row >= len(rows) {
			return nil, fmt.Errorf("meta row %d out of range [0,%d): %w", r.Row, len(rows), ErrIndexMismatch)
		}
		if seen[r.Row] {
			return nil, fmt.Errorf("meta row %d appears twice: %w", r.Row, ErrIndexMismatch)
		}
		seen[r.Row] = true
		if key := vecs.Key(r.Row); key != "" && key != r.Citation() {
			return nil, fmt.Errorf("row %d is %q in the index but %q in meta: %w", r.Row, key, r.Citation(), ErrIndexMismatch)
		}
		meta[r.Row] = r
	}
	return &Index{Vectors: vecs, Meta: meta}, nil
}

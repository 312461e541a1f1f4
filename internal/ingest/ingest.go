package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ledongthuc/pdf"

	"citerag/internal/chunker"
	"citerag/internal/jsonl"
	"citerag/internal/log"
	"citerag/internal/models"
)

type Options struct {
	RawDir       string
	OutPath      string
	Include      []string // doublestar patterns relative to RawDir
	ChunkSize    int
	ChunkOverlap int
	MaxFileSize  int64 // bytes
	Logger       *log.Logger
}

type Stats struct {
	Files   int
	Chunks  int
	Skipped int
}

// FileDoc is one raw document read from disk.
type FileDoc struct {
	Path    string // relative to the raw dir, forward slashes
	Content string
}

// Run chunks every matching file under RawDir into OutPath.
func Run(ctx context.Context, opt Options) (Stats, error) {
	if opt.Logger == nil {
		opt.Logger = log.Discard()
	}
	if info, err := os.Stat(opt.RawDir); err != nil || !info.IsDir() {
		return Stats{}, fmt.Errorf("raw directory not found: %s: %w", opt.RawDir, models.ErrMissingInput)
	}
	docs, skipped, err := Collect(ctx, opt)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Skipped: skipped}
	prefixes := idPrefixes(docs)
	var records []models.Chunk
	for _, d := range docs {
		pieces := chunker.ChunkText(d.Content, opt.ChunkSize, opt.ChunkOverlap)
		if len(pieces) == 0 {
			opt.Logger.Warn("empty document", "path", d.Path)
			st.Skipped++
			continue
		}
		for i, p := range pieces {
			records = append(records, models.Chunk{
				SourceFile: d.Path,
				ChunkID:    chunker.JoinID(prefixes[d.Path], i),
				Text:       p,
			})
		}
		st.Files++
		opt.Logger.Debug("chunked", "path", d.Path, "chunks", len(pieces))
	}
	if err := jsonl.WriteFile(opt.OutPath, records); err != nil {
		return st, fmt.Errorf("write chunks: %w", err)
	}
	st.Chunks = len(records)
	return st, nil
}

// Collect lists files matching the include patterns, in path order, and reads
// their text. Unreadable, oversized and binary files are skipped and counted.
func Collect(ctx context.Context, opt Options) ([]FileDoc, int, error) {
	if opt.MaxFileSize <= 0 {
		opt.MaxFileSize = 32 << 20
	}
	patterns := opt.Include
	if len(patterns) == 0 {
		patterns = []string{"**/*.txt"}
	}
	fsys := os.DirFS(opt.RawDir)
	seen := make(map[string]struct{})
	var files []string
	for _, p := range patterns {
		matches, err := doublestar.Glob(fsys, p)
		if err != nil {
			return nil, 0, fmt.Errorf("include pattern %q: %w", p, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return readFiles(ctx, opt, files)
}

// readFiles reads the listed files relative to opt.RawDir. Missing,
// oversized, binary and unparsable files are skipped and counted.
func readFiles(ctx context.Context, opt Options, files []string) ([]FileDoc, int, error) {
	var docs []FileDoc
	skipped := 0
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, skipped, err
		}
		full := filepath.Join(opt.RawDir, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil {
			opt.Logger.Warn("cannot stat file, skipping", "path", rel, "err", err)
			skipped++
			continue
		}
		if info.IsDir() {
			continue
		}
		if info.Size() > opt.MaxFileSize {
			opt.Logger.Warn("file too large, skipping", "path", rel, "size", info.Size())
			skipped++
			continue
		}
		text, err := readText(full)
		if err != nil {
			opt.Logger.Warn("unreadable file, skipping", "path", rel, "err", err)
			skipped++
			continue
		}
		docs = append(docs, FileDoc{Path: rel, Content: text})
	}
	return docs, skipped, nil
}

// idPrefixes maps each document to its chunk id prefix. Documents whose
// extension-less paths collide ("notes.txt" and "notes.pdf") keep their
// full relative path so every chunk id stays unique in the corpus.
func idPrefixes(docs []FileDoc) map[string]string {
	count := make(map[string]int, len(docs))
	for _, d := range docs {
		count[chunker.IDPrefix(d.Path)]++
	}
	out := make(map[string]string, len(docs))
	for _, d := range docs {
		p := chunker.IDPrefix(d.Path)
		if count[p] > 1 {
			p = strings.TrimPrefix(d.Path, "./")
		}
		out[d.Path] = p
	}
	return out
}

func readText(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return readPDF(path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if looksBinary(b) {
		return "", fmt.Errorf("binary content")
	}
	return strings.ToValidUTF8(string(b), ""), nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("pdf text: %w", err)
	}
	return strings.ToValidUTF8(buf.String(), ""), nil
}

func looksBinary(b []byte) bool {
	// Heuristic: reject if contains NUL byte in first 8000 bytes
	n := min(len(b), 8000)
	return bytes.IndexByte(b[:n], 0) >= 0
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/dustin/go-humanize"

	"citerag/internal/config"
	"citerag/internal/eval"
	"citerag/internal/eval/diff"
	"citerag/internal/indexer"
	"citerag/internal/indexer/embedpipe"
	"citerag/internal/ingest"
	"citerag/internal/llm"
	"citerag/internal/log"
	"citerag/internal/models"
	"citerag/internal/rag/answer"
	"citerag/internal/rag/retriever"
)

type app struct {
	out io.Writer
	log *log.Logger
}

// hinted attaches remediation lines to a missing-input error.
type hinted struct {
	err  error
	hint []string
}

func (h hinted) Error() string { return h.err.Error() }
func (h hinted) Unwrap() error { return h.err }

func withHint(err error, hint ...string) error {
	if err == nil || !errors.Is(err, models.ErrMissingInput) {
		return err
	}
	return hinted{err: err, hint: hint}
}

// exitCode reports missing upstream artifacts as guidance with status 0.
// Everything else is a failure.
func (a *app) exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, models.ErrMissingInput):
		fmt.Fprintln(a.out, strings.TrimSuffix(err.Error(), ": "+models.ErrMissingInput.Error()))
		var h hinted
		if errors.As(err, &h) {
			for _, line := range h.hint {
				fmt.Fprintln(a.out, line)
			}
		}
		return 0
	default:
		a.log.Error("command failed", "err", err)
		return 1
	}
}

func (a *app) flags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	cfg := fs.String("config", "", "path to config YAML (default ./config.yaml, then ./config.example.yaml)")
	return fs, cfg
}

func (a *app) pipeline(cfg config.Config) (*embedpipe.Pipeline, error) {
	emb, err := llm.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	r := cfg.Retrieval
	return embedpipe.New(emb, r.EmbeddingModel, r.BatchSize, r.QueryCacheSize).WithLogger(a.log), nil
}

func (a *app) ingestCmd(ctx context.Context, args []string) error {
	fs, cfgPath := a.flags("ingest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Resolve(*cfgPath)
	if err != nil {
		return err
	}
	st, err := ingest.Run(ctx, ingest.Options{
		RawDir:       cfg.Paths.RawDir,
		OutPath:      cfg.Paths.Chunks,
		Include:      cfg.Ingest.Include,
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.Overlap(),
		Logger:       a.log.With(map[string]string{"cmd": "ingest"}),
	})
	if err != nil {
		return withHint(err, "Create it and add .txt or .pdf files, then run:", "  citerag ingest")
	}
	fmt.Fprintln(a.out, "Ingest complete.")
	fmt.Fprintf(a.out, "Config:  %s\n", cfg.Source)
	fmt.Fprintf(a.out, "Files:   %s (skipped %s)\n", humanize.Comma(int64(st.Files)), humanize.Comma(int64(st.Skipped)))
	fmt.Fprintf(a.out, "Chunks:  %s (size=%d overlap=%d)\n", humanize.Comma(int64(st.Chunks)), cfg.Retrieval.ChunkSize, cfg.Retrieval.Overlap())
	fmt.Fprintf(a.out, "Output:  %s\n", cfg.Paths.Chunks)
	return nil
}

func (a *app) indexCmd(ctx context.Context, args []string) error {
	fs, cfgPath := a.flags("index")
	reset := fs.Bool("reset", false, "roll back the index database schema before rebuilding")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Resolve(*cfgPath)
	if err != nil {
		return err
	}
	pipe, err := a.pipeline(cfg)
	if err != nil {
		return err
	}
	st, err := indexer.Build(ctx, indexer.Options{
		ChunksPath: cfg.Paths.Chunks,
		IndexPath:  cfg.Paths.Index,
		MetaPath:   cfg.Paths.Meta,
		Pipeline:   pipe,
		Logger:     a.log.With(map[string]string{"cmd": "index"}),
		Reset:      *reset,
	})
	if err != nil {
		return withHint(err, "Run:", "  citerag ingest")
	}
	size := "?"
	if info, err := os.Stat(cfg.Paths.Index); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	fmt.Fprintln(a.out, "Index build complete.")
	fmt.Fprintf(a.out, "Config:   %s\n", cfg.Source)
	fmt.Fprintf(a.out, "Model:    %s (dim=%d)\n", cfg.Retrieval.EmbeddingModel, st.Dim)
	fmt.Fprintf(a.out, "Chunks:   %s\n", humanize.Comma(int64(st.Chunks)))
	fmt.Fprintf(a.out, "Index:    %s (%s)\n", cfg.Paths.Index, size)
	fmt.Fprintf(a.out, "Metadata: %s\n", cfg.Paths.Meta)
	if st.Malformed > 0 {
		fmt.Fprintf(a.out, "Skipped malformed chunk lines: %d\n", st.Malformed)
	}
	return nil
}

var indexHint = []string{"Run:", "  citerag ingest", "  citerag index"}

// openRetriever loads the index artifacts named by cfg.
func (a *app) openRetriever(ctx context.Context, cfg config.Config) (*retriever.KNN, error) {
	idx, err := indexer.Load(ctx, cfg.Paths.Index, cfg.Paths.Meta)
	if err != nil {
		return nil, withHint(err, indexHint...)
	}
	idx.CheckModel(cfg.Retrieval.EmbeddingModel, a.log)
	pipe, err := a.pipeline(cfg)
	if err != nil {
		return nil, err
	}
	return retriever.NewKNN(idx, pipe), nil
}

type queryHit struct {
	Rank     int     `json:"rank"`
	Score    float32 `json:"score"`
	Citation string  `json:"citation"`
	Snippet  string  `json:"snippet"`
}

func (a *app) queryCmd(ctx context.Context, args []string) error {
	fs, cfgPath := a.flags("query")
	question := fs.String("question", "", "question to retrieve for")
	topK := fs.Int("top_k", 5, "number of chunks to retrieve")
	asJSON := fs.Bool("json", false, "print machine-readable JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*question) == "" {
		return errors.New("--question is required")
	}
	cfg, err := config.Resolve(*cfgPath)
	if err != nil {
		return err
	}
	r, err := a.openRetriever(ctx, cfg)
	if err != nil {
		return err
	}
	res, err := r.Search(ctx, *question, *topK)
	if err != nil {
		return err
	}
	hits := make([]queryHit, len(res.Hits))
	for i, h := range res.Hits {
		hits[i] = queryHit{Rank: i + 1, Score: h.Score, Citation: h.Citation, Snippet: answer.FormatQuote(h.Text, answer.SnippetChars)}
	}
	if *asJSON {
		return a.printJSON(map[string]any{"question": *question, "top_k": *topK, "results": hits, "dropped": res.Dropped})
	}

	fmt.Fprintf(a.out, "Config: %s\n", cfg.Source)
	fmt.Fprintf(a.out, "Embedding model: %s\n", cfg.Retrieval.EmbeddingModel)
	fmt.Fprintf(a.out, "Index: %s\n", cfg.Paths.Index)
	fmt.Fprintf(a.out, "Meta:  %s\n\n", cfg.Paths.Meta)
	fmt.Fprintln(a.out, "QUESTION")
	fmt.Fprintln(a.out, *question)
	fmt.Fprintln(a.out)
	fmt.Fprintf(a.out, "TOP %d EVIDENCE CHUNKS (with citations)\n", len(hits))
	fmt.Fprintln(a.out, strings.Repeat("-", 72))
	for _, h := range hits {
		fmt.Fprintf(a.out, "[%d] score=%.4f  citation: %s\n", h.Rank, h.Score, h.Citation)
		fmt.Fprintf(a.out, "     snippet: %s\n\n", h.Snippet)
	}
	return nil
}

func (a *app) answerCmd(ctx context.Context, args []string) error {
	fs, cfgPath := a.flags("answer")
	question := fs.String("question", "", "question to answer")
	topK := fs.Int("top_k", 5, "chunks to retrieve")
	maxQuotes := fs.Int("max_quotes", 2, "evidence quotes to include")
	asJSON := fs.Bool("json", false, "print machine-readable JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*question) == "" {
		return errors.New("--question is required")
	}
	cfg, err := config.Resolve(*cfgPath)
	if err != nil {
		return err
	}
	r, err := a.openRetriever(ctx, cfg)
	if err != nil {
		return err
	}
	res, err := r.Search(ctx, *question, *topK)
	if err != nil {
		return err
	}
	ans := answer.Build(*question, res.Hits, *maxQuotes)
	if *asJSON {
		return a.printJSON(ans)
	}
	fmt.Fprintf(a.out, "QUESTION: %s\n\n", ans.Question)
	fmt.Fprintf(a.out, "%s\n\n", ans.Answer)
	fmt.Fprintln(a.out, "CITATIONS")
	for _, c := range ans.Citations {
		fmt.Fprintf(a.out, "- %s (score=%.4f)\n", c.Citation, c.Score)
	}
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "EVIDENCE QUOTES")
	for _, q := range ans.Quotes {
		fmt.Fprintf(a.out, "- %s: %s\n", q.Citation, q.Quote)
	}
	return nil
}

func (a *app) evalCmd(ctx context.Context, args []string) error {
	fs, cfgPath := a.flags("eval")
	topK := fs.Int("top_k", 5, "k for hit@k, grounded@k and correct_citations@k")
	maxQuotes := fs.Int("max_quotes", 2, "answer citations per example for correct_citations@k")
	evalSet := fs.String("eval_set", "", "evaluation set JSONL (default paths.eval_set)")
	out := fs.String("out", "", "write the JSON report to this path")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Resolve(*cfgPath)
	if err != nil {
		return err
	}
	if *evalSet == "" {
		*evalSet = cfg.Paths.EvalSet
	}
	examples, malformed, err := eval.LoadExamples(*evalSet, a.log)
	if err != nil {
		return withHint(err, "Write one JSON object per line: {id, question, expected_citations, required_terms}")
	}
	r, err := a.openRetriever(ctx, cfg)
	if err != nil {
		return err
	}
	rep, err := eval.Evaluate(ctx, r, examples, eval.Options{
		TopK:           *topK,
		MaxQuotes:      *maxQuotes,
		EmbeddingModel: cfg.Retrieval.EmbeddingModel,
		EvalSetPath:    *evalSet,
		MalformedLines: malformed,
		Logger:         a.log.With(map[string]string{"cmd": "eval"}),
	})
	if err != nil {
		return err
	}
	if *out != "" {
		if err := eval.WriteReport(*out, rep); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		a.log.Info("report written", "path", *out, "run_id", rep.Summary.RunID)
	}
	if *asJSON {
		return a.printJSON(rep)
	}
	eval.Render(a.out, rep)
	if *out != "" {
		fmt.Fprintf(a.out, "Wrote: %s\n", *out)
	}
	return nil
}

func (a *app) diffCmd(args []string) error {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	fs.SetOutput(a.out)
	before := fs.String("before", "", "older evaluation report")
	after := fs.String("after", "", "newer evaluation report")
	asJSON := fs.Bool("json", false, "print machine-readable JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *before == "" || *after == "" {
		return errors.New("--before and --after are required")
	}
	docs := make([][]byte, 2)
	for i, p := range []string{*before, *after} {
		b, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return withHint(fmt.Errorf("missing eval report: %s: %w", p, models.ErrMissingInput),
					"Produce one with:", "  citerag eval --out "+p)
			}
			return err
		}
		docs[i] = b
	}
	res, err := diff.Diff(docs[0], docs[1])
	if err != nil {
		return err
	}
	res.BeforePath, res.AfterPath = *before, *after
	if *asJSON {
		return a.printJSON(res)
	}
	res.Render(a.out)
	return nil
}

func (a *app) printJSON(v any) error {
	b, err := sonic.ConfigDefault.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(b))
	return err
}

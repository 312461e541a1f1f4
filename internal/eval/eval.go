// Package eval scores retrieval against a labelled evaluation set and
// writes the run report that the diff tool compares.
package eval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"citerag/internal/chunker"
	"citerag/internal/jsonl"
	"citerag/internal/log"
	"citerag/internal/models"
	"citerag/internal/rag/retriever"
)

// Searcher is the retrieval capability the evaluator needs.
type Searcher interface {
	Search(ctx context.Context, question string, topK int) (retriever.Results, error)
}

type Options struct {
	TopK           int
	MaxQuotes      int
	EmbeddingModel string
	EvalSetPath    string
	MalformedLines int
	Logger         *log.Logger
}

// LoadExamples reads the evaluation set. Malformed lines are skipped and
// counted; a missing file wraps models.ErrMissingInput.
func LoadExamples(path string, l *log.Logger) ([]models.Example, int, error) {
	rows, bad, err := jsonl.ReadFile[models.Example](path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("eval set not found: %s: %w", path, models.ErrMissingInput)
		}
		return nil, 0, fmt.Errorf("read eval set: %w", err)
	}
	for _, e := range bad {
		l.Warn("skipping malformed eval line", "path", path, "line", e.Line, "err", e.Err)
	}
	return rows, len(bad), nil
}

type counter struct{ hits, scored, skipped int }

func (c *counter) add(v *bool) {
	switch {
	case v == nil:
		c.skipped++
	case *v:
		c.hits++
		c.scored++
	default:
		c.scored++
	}
}

func (c counter) metric() models.Metric {
	m := models.Metric{Hits: c.hits, ScoredTotal: c.scored, Skipped: c.skipped}
	if c.scored > 0 {
		m.Value = float64(c.hits) / float64(c.scored)
	}
	return m
}

// Evaluate runs every example with a non-blank question through s and
// aggregates hit@k, grounded@k and correct_citations@k.
func Evaluate(ctx context.Context, s Searcher, examples []models.Example, opt Options) (models.Report, error) {
	if opt.Logger == nil {
		opt.Logger = log.Discard()
	}
	opt.MaxQuotes = max(0, opt.MaxQuotes)
	sum := models.Summary{
		SchemaVersion:  models.ReportSchemaVersion,
		RunID:          uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		TopK:           opt.TopK,
		MaxQuotes:      opt.MaxQuotes,
		EmbeddingModel: opt.EmbeddingModel,
		EvalSetPath:    opt.EvalSetPath,
		MalformedLines: opt.MalformedLines,
	}
	var hit, grounded, correct counter
	results := make([]models.ExampleResult, 0, len(examples))
	for _, ex := range examples {
		if err := ctx.Err(); err != nil {
			return models.Report{}, err
		}
		q := strings.TrimSpace(ex.Question)
		if q == "" {
			sum.SkippedEmptyQuestion++
			continue
		}
		sum.Total++
		res, err := s.Search(ctx, q, opt.TopK)
		if err != nil {
			return models.Report{}, fmt.Errorf("example %q: %w", ex.ID, err)
		}
		sum.DroppedRows += res.Dropped

		retrieved := res.Citations()
		answerCites := retrieved[:min(opt.MaxQuotes, len(retrieved))]
		r := models.ExampleResult{
			ID:                  ex.ID,
			Question:            q,
			ExpectedCitations:   nonNil(ex.ExpectedCitations),
			RequiredTerms:       nonNil(ex.RequiredTerms),
			RetrievedCitations:  retrieved,
			AnswerCitations:     answerCites,
			HitAtK:              HitAtK(retrieved, ex.ExpectedCitations),
			GroundedAtK:         GroundedAtK(res.Texts(), ex.RequiredTerms),
			CorrectCitationsAtK: HitAtK(answerCites, ex.ExpectedCitations),
		}
		hit.add(r.HitAtK)
		grounded.add(r.GroundedAtK)
		correct.add(r.CorrectCitationsAtK)
		opt.Logger.Debug("evaluated", "id", ex.ID, "hit", status(r.HitAtK), "grounded", status(r.GroundedAtK), "correct_citations", status(r.CorrectCitationsAtK))
		results = append(results, r)
	}
	sum.HitAtK = hit.metric()
	sum.GroundedAtK = grounded.metric()
	sum.CorrectCitationsAtK = correct.metric()
	return models.Report{Summary: sum, Examples: results}, nil
}

// HitAtK reports whether any retrieved citation is expected. It returns nil
// when nothing is expected.
func HitAtK(retrieved, expected []string) *bool {
	if len(expected) == 0 {
		return nil
	}
	want := toSet(expected)
	for _, c := range retrieved {
		if _, ok := want[c]; ok {
			return models.Bool(true)
		}
	}
	return models.Bool(false)
}

// GroundedAtK reports whether one retrieved text contains every required
// term, compared case-insensitively after whitespace normalization. It
// returns nil when no terms are required.
func GroundedAtK(texts, terms []string) *bool {
	if len(terms) == 0 {
		return nil
	}
	for _, t := range texts {
		if containsAll(strings.ToLower(chunker.NormalizeWhitespace(t)), terms) {
			return models.Bool(true)
		}
	}
	return models.Bool(false)
}

func containsAll(text string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(text, strings.ToLower(term)) {
			return false
		}
	}
	return true
}

func toSet(xs []string) map[string]struct{} {
	m := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		m[x] = struct{}{}
	}
	return m
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

func status(v *bool) string {
	if v == nil {
		return "skip"
	}
	if *v {
		return "yes"
	}
	return "no"
}

// WriteReport writes r as indented JSON, creating parent directories.
func WriteReport(path string, r models.Report) error {
	b, err := sonic.ConfigDefault.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// LoadReport reads a report written by WriteReport.
func LoadReport(path string) (models.Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return models.Report{}, err
	}
	var r models.Report
	if err := sonic.Unmarshal(b, &r); err != nil {
		return models.Report{}, fmt.Errorf("decode report %s: %w", path, err)
	}
	return r, nil
}

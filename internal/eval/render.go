package eval

import (
	"fmt"
	"io"
	"strings"

	"citerag/internal/models"
)

const rule = "------------------------------------------------------------------------"

// Render prints a human-readable run summary with one block per example.
func Render(w io.Writer, r models.Report) {
	s := r.Summary
	fmt.Fprintf(w, "Embedding model: %s\n", s.EmbeddingModel)
	fmt.Fprintf(w, "Eval set: %s\n", s.EvalSetPath)
	fmt.Fprintf(w, "top_k: %d  max_quotes: %d\n", s.TopK, s.MaxQuotes)
	fmt.Fprintln(w, rule)
	for _, ex := range r.Examples {
		fmt.Fprintf(w, "[%s | %s | %s] Q: %s\n",
			label(ex.HitAtK, "HIT", "MISS"),
			label(ex.GroundedAtK, "GROUNDED", "UNGROUNDED"),
			label(ex.CorrectCitationsAtK, "CITED", "MISCITED"),
			ex.Question)
		if len(ex.ExpectedCitations) > 0 {
			fmt.Fprintf(w, "  expected_citations: %s\n", list(ex.ExpectedCitations))
		}
		if len(ex.RequiredTerms) > 0 {
			fmt.Fprintf(w, "  required_terms: %s\n", list(ex.RequiredTerms))
		}
		fmt.Fprintf(w, "  retrieved_citations: %s\n", list(ex.RetrievedCitations[:min(5, len(ex.RetrievedCitations))]))
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Examples total: %d", s.Total)
	if s.SkippedEmptyQuestion > 0 {
		fmt.Fprintf(w, "  [skipped_empty_question=%d]", s.SkippedEmptyQuestion)
	}
	fmt.Fprintln(w)
	metric(w, "hit", s.TopK, s.HitAtK, "skipped_missing_expected")
	metric(w, "grounded", s.TopK, s.GroundedAtK, "skipped_missing_required_terms")
	metric(w, "correct_citations", s.TopK, s.CorrectCitationsAtK, "skipped_missing_expected")
	if s.MalformedLines > 0 || s.DroppedRows > 0 {
		fmt.Fprintf(w, "malformed_lines=%d dropped_rows=%d\n", s.MalformedLines, s.DroppedRows)
	}
}

func metric(w io.Writer, name string, k int, m models.Metric, skipLabel string) {
	fmt.Fprintf(w, "%s@%d: %.3f (%d/%d)  [%s=%d]\n", name, k, m.Value, m.Hits, m.ScoredTotal, skipLabel, m.Skipped)
}

func label(v *bool, yes, no string) string {
	switch {
	case v == nil:
		return "SKIP"
	case *v:
		return yes
	default:
		return no
	}
}

func list(xs []string) string {
	return "[" + strings.Join(xs, ", ") + "]"
}

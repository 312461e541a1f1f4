package diff

import (
	"fmt"
	"io"
	"strings"
)

const rule = "------------------------------------------------------------------------"

// Render prints the comparison in a human-readable layout.
func (r Result) Render(w io.Writer) {
	fmt.Fprintln(w, "EVAL SUMMARY DIFF")
	fmt.Fprintf(w, "before: %s\n", r.BeforePath)
	fmt.Fprintf(w, "after : %s\n", r.AfterPath)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "hit@k             %.3f  ->  %.3f   (delta=%.3f)\n", r.Before.Hit, r.After.Hit, r.Delta.Hit)
	fmt.Fprintf(w, "grounded@k        %.3f  ->  %.3f   (delta=%.3f)\n", r.Before.Grounded, r.After.Grounded, r.Delta.Grounded)
	fmt.Fprintf(w, "correct_citations %.3f  ->  %.3f   (delta=%.3f)\n", r.Before.CorrectCitations, r.After.CorrectCitations, r.Delta.CorrectCitations)
	fmt.Fprintln(w, rule)

	if len(r.Changes) == 0 {
		fmt.Fprintln(w, "No per-example status changes detected.")
		return
	}
	fmt.Fprintln(w, "PER-EXAMPLE CHANGES")
	for _, c := range r.Changes {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "%s: %s\n", c.Kind, c.ID)
		switch c.Kind {
		case Added:
			fmt.Fprintf(w, "question: %s\n", c.After.Question)
			fmt.Fprintf(w, "after : %s\n", c.After.Status)
		case Removed:
			fmt.Fprintf(w, "question: %s\n", c.Before.Question)
			fmt.Fprintf(w, "before: %s\n", c.Before.Status)
		case Changed:
			fmt.Fprintf(w, "question: %s\n", c.After.Question)
			fmt.Fprintf(w, "before: %s\n", c.Before.Status)
			fmt.Fprintf(w, "after : %s\n", c.After.Status)
			fmt.Fprintf(w, "expected_citations: %s\n", list(c.After.ExpectedCitations))
			fmt.Fprintf(w, "retrieved_citations(before): %s\n", list(c.Before.RetrievedCitations))
			fmt.Fprintf(w, "retrieved_citations(after) : %s\n", list(c.After.RetrievedCitations))
			fmt.Fprintf(w, "answer_citations(before)   : %s\n", list(c.Before.AnswerCitations))
			fmt.Fprintf(w, "answer_citations(after)    : %s\n", list(c.After.AnswerCitations))
		}
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Total changes: %d\n", len(r.Changes))
}

func list(xs []string) string { return "[" + strings.Join(xs, ", ") + "]" }

// Package answer assembles an evidence digest from retrieved chunks. It
// quotes evidence and never generates text.
package answer

import (
	"citerag/internal/chunker"
	"citerag/internal/rag/retriever"
)

const (
	// QuoteChars bounds an evidence quote in an answer.
	QuoteChars = 320
	// SnippetChars bounds a snippet in query output.
	SnippetChars = 240
)

// Preamble is the fixed answer text.
const Preamble = "Evidence-first response (baseline):\n" +
	"The passages below are the highest-scoring retrieved chunks. " +
	"A later step will add a grounded generated answer, but this baseline is fully auditable."

type Citation struct {
	Citation string  `json:"citation"`
	Score    float32 `json:"score"`
}

type Quote struct {
	Citation string `json:"citation"`
	Quote    string `json:"quote"`
}

type Answer struct {
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Quotes    []Quote    `json:"quotes"`
}

// Build quotes the first maxQuotes hits, which are already score ordered.
func Build(question string, hits []retriever.Hit, maxQuotes int) Answer {
	n := max(0, min(maxQuotes, len(hits)))
	a := Answer{
		Question:  question,
		Answer:    Preamble,
		Citations: make([]Citation, 0, n),
		Quotes:    make([]Quote, 0, n),
	}
	for _, h := range hits[:n] {
		a.Citations = append(a.Citations, Citation{Citation: h.Citation, Score: h.Score})
		a.Quotes = append(a.Quotes, Quote{Citation: h.Citation, Quote: FormatQuote(h.Text, QuoteChars)})
	}
	return a
}

// FormatQuote collapses whitespace and, when the result is longer than
// maxChars runes, keeps the first maxChars-3 runes followed by "...".
// The result never exceeds maxChars runes; below 4 there is no room for the
// ellipsis and the text is cut to maxChars (0 or less yields "").
func FormatQuote(text string, maxChars int) string {
	t := chunker.NormalizeWhitespace(text)
	r := []rune(t)
	if len(r) <= maxChars {
		return t
	}
	if maxChars <= 3 {
		return string(r[:max(0, maxChars)])
	}
	return string(r[:maxChars-3]) + "..."
}

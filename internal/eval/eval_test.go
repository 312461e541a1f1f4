package eval

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citerag/internal/jsonl"
	"citerag/internal/log"
	"citerag/internal/models"
	"citerag/internal/rag/retriever"
)

// fakeSearcher answers from a fixed question -> hits table.
type fakeSearcher struct {
	hits  map[string][]retriever.Hit
	calls []string
}

func (f *fakeSearcher) Search(ctx context.Context, question string, topK int) (retriever.Results, error) {
	f.calls = append(f.calls, question)
	if question == "boom" {
		return retriever.Results{}, errors.New("index exploded")
	}
	h := f.hits[question]
	if len(h) > topK {
		h = h[:topK]
	}
	return retriever.Results{Hits: h, Dropped: topK - len(h)}, nil
}

func searcher() *fakeSearcher {
	return &fakeSearcher{hits: map[string][]retriever.Hit{
		"refunds?": {
			{Citation: "policy.txt#policy_1", Text: "Shipping is   FREE"},
			{Citation: "policy.txt#policy_0", Text: "Refunds within 30 days"},
		},
		"shipping?": {
			{Citation: "policy.txt#policy_1", Text: "Shipping is free"},
		},
		"other?": {},
	}}
}

func TestEvaluateMetrics(t *testing.T) {
	s := searcher()
	examples := []models.Example{
		{ID: "q1", Question: "refunds?", ExpectedCitations: []string{"policy.txt#policy_0"}, RequiredTerms: []string{"refunds", "30 DAYS"}},
		{ID: "q2", Question: "shipping?", ExpectedCitations: []string{"faq.txt#faq_0"}, RequiredTerms: []string{"shipping is free"}},
		{ID: "q3", Question: "other?"},
		{ID: "q4", Question: "   "},
	}
	rep, err := Evaluate(context.Background(), s, examples, Options{TopK: 2, MaxQuotes: 1, EmbeddingModel: "hash", EvalSetPath: "eval.jsonl", MalformedLines: 2})
	require.NoError(t, err)

	sum := rep.Summary
	assert.Equal(t, models.ReportSchemaVersion, sum.SchemaVersion)
	assert.Len(t, sum.RunID, 36)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.SkippedEmptyQuestion)
	assert.Equal(t, 2, sum.MalformedLines)
	assert.Equal(t, 3, sum.DroppedRows) // 0 + 1 + 2
	assert.Equal(t, []string{"refunds?", "shipping?", "other?"}, s.calls)

	assert.Equal(t, models.Metric{Value: 0.5, Hits: 1, ScoredTotal: 2, Skipped: 1}, sum.HitAtK)
	assert.Equal(t, models.Metric{Value: 1, Hits: 2, ScoredTotal: 2, Skipped: 1}, sum.GroundedAtK)
	// q1's only answer citation is policy_1, which is not expected
	assert.Equal(t, models.Metric{Value: 0, Hits: 0, ScoredTotal: 2, Skipped: 1}, sum.CorrectCitationsAtK)

	require.Len(t, rep.Examples, 3)
	q1 := rep.Examples[0]
	assert.Equal(t, "q1", q1.ID)
	assert.Equal(t, []string{"policy.txt#policy_1", "policy.txt#policy_0"}, q1.RetrievedCitations)
	assert.Equal(t, []string{"policy.txt#policy_1"}, q1.AnswerCitations)
	assert.True(t, *q1.HitAtK)
	assert.True(t, *q1.GroundedAtK)
	assert.False(t, *q1.CorrectCitationsAtK)

	q3 := rep.Examples[2]
	assert.Nil(t, q3.HitAtK)
	assert.Nil(t, q3.GroundedAtK)
	assert.Nil(t, q3.CorrectCitationsAtK)
	assert.NotNil(t, q3.ExpectedCitations)
	assert.NotNil(t, q3.RetrievedCitations)
}

func TestEvaluateEmptyScoresZero(t *testing.T) {
	rep, err := Evaluate(context.Background(), searcher(), nil, Options{TopK: 5})
	require.NoError(t, err)
	assert.Zero(t, rep.Summary.Total)
	assert.Equal(t, 0.0, rep.Summary.HitAtK.Value)
	assert.Equal(t, 0.0, rep.Summary.GroundedAtK.Value)
	assert.NotNil(t, rep.Examples)
}

func TestEvaluateSearchError(t *testing.T) {
	_, err := Evaluate(context.Background(), searcher(), []models.Example{{ID: "x", Question: "boom"}}, Options{TopK: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"x"`)
}

func TestEvaluateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Evaluate(ctx, searcher(), []models.Example{{ID: "q", Question: "refunds?"}}, Options{TopK: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHitAndGrounded(t *testing.T) {
	assert.Nil(t, HitAtK([]string{"a"}, nil))
	assert.False(t, *HitAtK(nil, []string{"a"}))
	assert.True(t, *HitAtK([]string{"b", "a"}, []string{"a", "z"}))

	assert.Nil(t, GroundedAtK([]string{"x"}, []string{}))
	// all terms must be in the same chunk
	assert.False(t, *GroundedAtK([]string{"alpha", "beta"}, []string{"alpha", "beta"}))
	assert.True(t, *GroundedAtK([]string{"Alpha\n\n  Beta"}, []string{"alpha beta"}))
}

func TestReportRoundTrip(t *testing.T) {
	rep, err := Evaluate(context.Background(), searcher(), []models.Example{
		{ID: "q1", Question: "refunds?", ExpectedCitations: []string{"policy.txt#policy_0"}},
	}, Options{TopK: 2, MaxQuotes: 2, EmbeddingModel: "hash"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "runs", "eval_run.json")
	require.NoError(t, WriteReport(path, rep))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "\n  \"summary\"")
	assert.Contains(t, string(b), `"grounded_at_k": null`)

	got, err := LoadReport(path)
	require.NoError(t, err)
	assert.Equal(t, rep.Summary.RunID, got.Summary.RunID)
	assert.True(t, rep.Summary.CreatedAt.Equal(got.Summary.CreatedAt))
	assert.Equal(t, rep.Summary.HitAtK, got.Summary.HitAtK)
	assert.Equal(t, rep.Examples, got.Examples)
}

func TestLoadExamples(t *testing.T) {
	dir := t.TempDir()
	_, _, err := LoadExamples(filepath.Join(dir, "missing.jsonl"), log.Discard())
	assert.ErrorIs(t, err, models.ErrMissingInput)

	path := filepath.Join(dir, "eval.jsonl")
	require.NoError(t, jsonl.WriteFile(path, []models.Example{{ID: "q1", Question: "a"}, {ID: "q2", Question: "b"}}))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rows, bad, err := LoadExamples(path, log.Discard())
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 1, bad)
}

func TestRender(t *testing.T) {
	rep, err := Evaluate(context.Background(), searcher(), []models.Example{
		{ID: "q1", Question: "refunds?", ExpectedCitations: []string{"policy.txt#policy_0"}, RequiredTerms: []string{"refunds"}},
	}, Options{TopK: 2, MaxQuotes: 2, EmbeddingModel: "hash"})
	require.NoError(t, err)
	var buf bytes.Buffer
	Render(&buf, rep)
	out := buf.String()
	assert.Contains(t, out, "[HIT | GROUNDED | CITED] Q: refunds?")
	assert.Contains(t, out, "hit@2: 1.000 (1/1)")
	assert.Contains(t, out, "Examples total: 1\n")
}

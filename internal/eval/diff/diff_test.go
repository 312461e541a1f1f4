package diff

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const before = `{
  "summary": {
    "hit_at_k": {"value": 0.5, "hits": 1, "scored_total": 2, "skipped": 0},
    "grounded_at_k": {"value": 1.0},
    "correct_citations_at_k": {"value": 0.25}
  },
  "examples": [
    {"id": "q1", "question": "one", "hit_at_k": true, "grounded_at_k": true, "correct_citations_at_k": null},
    {"id": "q3", "question": "three", "hit_at_k": false, "grounded_at_k": true, "correct_citations_at_k": false,
     "retrieved_citations": ["a.txt#a_0"]}
  ]
}`

const after = `{
  "summary": {
    "hit_at_k": {"value": 1.0, "hits": 2, "scored_total": 2, "skipped": 0},
    "grounded_at_k": {"value": 1.0},
    "correct_citations_at_k": {"value": 0.25}
  },
  "examples": [
    {"id": "q1", "question": "one", "hit_at_k": true, "grounded_at_k": true, "correct_citations_at_k": null,
     "retrieved_citations": ["different.txt#d_0"]},
    {"id": "q3", "question": "three", "hit_at_k": true, "grounded_at_k": true, "correct_citations_at_k": false,
     "retrieved_citations": ["b.txt#b_2"]}
  ]
}`

func TestSingleFlipIsOneChange(t *testing.T) {
	res, err := Diff([]byte(before), []byte(after))
	require.NoError(t, err)
	require.Len(t, res.Changes, 1)
	c := res.Changes[0]
	assert.Equal(t, "q3", c.ID)
	assert.Equal(t, Changed, c.Kind)
	assert.False(t, *c.Before.Status.Hit)
	assert.True(t, *c.After.Status.Hit)
	assert.Equal(t, []string{"b.txt#b_2"}, c.After.RetrievedCitations)

	assert.Greater(t, res.Delta.Hit, 0.0)
	assert.Equal(t, 0.5, res.Delta.Hit)
	assert.Zero(t, res.Delta.Grounded)
	assert.Zero(t, res.Delta.CorrectCitations)
}

func TestAddedRemoved(t *testing.T) {
	b := `{"examples":[{"id":"gone","hit_at_k":true},{"id":"same","hit_at_k":null},{"question":"no id"}]}`
	a := `{"examples":[{"id":"new","hit_at_k":false},{"id":"same"},{"id":""}]}`
	res, err := Diff([]byte(b), []byte(a))
	require.NoError(t, err)
	require.Len(t, res.Changes, 2)
	assert.Equal(t, Change{ID: "gone", Kind: Removed, Before: res.Changes[0].Before}, res.Changes[0])
	assert.Nil(t, res.Changes[0].After)
	assert.Equal(t, "new", res.Changes[1].ID)
	assert.Equal(t, Added, res.Changes[1].Kind)
	assert.Nil(t, res.Changes[1].Before)
}

func TestNullVersusFalseIsAChange(t *testing.T) {
	b := `{"examples":[{"id":"q","grounded_at_k":null}]}`
	a := `{"examples":[{"id":"q","grounded_at_k":false}]}`
	res, err := Diff([]byte(b), []byte(a))
	require.NoError(t, err)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, Changed, res.Changes[0].Kind)
}

func TestDuplicateIDLastWins(t *testing.T) {
	b := `{"examples":[{"id":"q","hit_at_k":false},{"id":"q","hit_at_k":true}]}`
	a := `{"examples":[{"id":"q","hit_at_k":true}]}`
	res, err := Diff([]byte(b), []byte(a))
	require.NoError(t, err)
	assert.Empty(t, res.Changes)
}

func TestChangesSortedByID(t *testing.T) {
	a := `{"examples":[{"id":"q9"},{"id":"q10"},{"id":"a1"}]}`
	res, err := Diff([]byte(`{}`), []byte(a))
	require.NoError(t, err)
	var ids []string
	for _, c := range res.Changes {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"a1", "q10", "q9"}, ids)
}

func TestDeltaRounding(t *testing.T) {
	b := `{"summary":{"hit_at_k":{"value":0.3333333}}}`
	a := `{"summary":{"hit_at_k":{"value":0.6666666}}}`
	res, err := Diff([]byte(b), []byte(a))
	require.NoError(t, err)
	assert.Equal(t, 0.333, res.Delta.Hit)
	assert.NotNil(t, res.Changes)
}

func TestInvalidJSON(t *testing.T) {
	_, err := Diff([]byte("{"), []byte("{}"))
	assert.Error(t, err)
	_, err = Diff([]byte("{}"), []byte("nope"))
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	res, err := Diff([]byte(before), []byte(after))
	require.NoError(t, err)
	res.BeforePath, res.AfterPath = "runs/a.json", "runs/b.json"
	var buf bytes.Buffer
	res.Render(&buf)
	out := buf.String()
	assert.Contains(t, out, "hit@k             0.500  ->  1.000   (delta=0.500)")
	assert.Contains(t, out, "CHANGED: q3\n")
	assert.Contains(t, out, "before: hit=false grounded=true correct_citations=false")
	assert.Contains(t, out, "retrieved_citations(after) : [b.txt#b_2]")
	assert.Contains(t, out, "Total changes: 1")

	buf.Reset()
	same, err := Diff([]byte(before), []byte(before))
	require.NoError(t, err)
	same.Render(&buf)
	assert.Contains(t, buf.String(), "No per-example status changes detected.")
}

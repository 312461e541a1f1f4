// Package diff compares two evaluation reports. Reports are read field by
// field so older or partial reports still compare; absent fields read as
// zero or null.
package diff

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tidwall/gjson"
)

type Kind string

const (
	Added   Kind = "ADDED"
	Removed Kind = "REMOVED"
	Changed Kind = "CHANGED"
)

// Status is the comparable part of one example: each metric is true, false
// or nil.
type Status struct {
	Hit              *bool `json:"hit_at_k"`
	Grounded         *bool `json:"grounded_at_k"`
	CorrectCitations *bool `json:"correct_citations_at_k"`
}

func (s Status) Equal(o Status) bool {
	return eq(s.Hit, o.Hit) && eq(s.Grounded, o.Grounded) && eq(s.CorrectCitations, o.CorrectCitations)
}

func (s Status) String() string {
	return fmt.Sprintf("hit=%s grounded=%s correct_citations=%s", show(s.Hit), show(s.Grounded), show(s.CorrectCitations))
}

// Example is what the diff keeps of a per-example record.
type Example struct {
	ID                 string   `json:"id"`
	Question           string   `json:"question"`
	ExpectedCitations  []string `json:"expected_citations"`
	RetrievedCitations []string `json:"retrieved_citations"`
	AnswerCitations    []string `json:"answer_citations"`
	Status             Status   `json:"status"`
}

type Change struct {
	ID     string   `json:"id"`
	Kind   Kind     `json:"kind"`
	Before *Example `json:"before,omitempty"`
	After  *Example `json:"after,omitempty"`
}

// Rates are the run-level metric values of one report.
type Rates struct {
	Hit              float64 `json:"hit"`
	Grounded         float64 `json:"grounded"`
	CorrectCitations float64 `json:"correct_citations"`
}

type Result struct {
	BeforePath string   `json:"before_path,omitempty"`
	AfterPath  string   `json:"after_path,omitempty"`
	Before     Rates    `json:"before"`
	After      Rates    `json:"after"`
	Delta      Rates    `json:"delta"`
	Changes    []Change `json:"changes"`
}

// Diff compares two report documents. Examples without an id are left out
// of the per-example comparison; when an id repeats, the last record wins.
func Diff(before, after []byte) (Result, error) {
	if !gjson.ValidBytes(before) {
		return Result{}, errors.New("before: not a JSON document")
	}
	if !gjson.ValidBytes(after) {
		return Result{}, errors.New("after: not a JSON document")
	}
	b, a := gjson.ParseBytes(before), gjson.ParseBytes(after)
	res := Result{Before: rates(b), After: rates(a), Changes: []Change{}}
	res.Delta = Rates{
		Hit:              round3(res.After.Hit - res.Before.Hit),
		Grounded:         round3(res.After.Grounded - res.Before.Grounded),
		CorrectCitations: round3(res.After.CorrectCitations - res.Before.CorrectCitations),
	}

	bx, ax := indexByID(b), indexByID(a)
	ids := make([]string, 0, len(bx)+len(ax))
	for id := range bx {
		ids = append(ids, id)
	}
	for id := range ax {
		if _, ok := bx[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		be, inBefore := bx[id]
		ae, inAfter := ax[id]
		switch {
		case !inBefore:
			res.Changes = append(res.Changes, Change{ID: id, Kind: Added, After: ae})
		case !inAfter:
			res.Changes = append(res.Changes, Change{ID: id, Kind: Removed, Before: be})
		case !be.Status.Equal(ae.Status):
			res.Changes = append(res.Changes, Change{ID: id, Kind: Changed, Before: be, After: ae})
		}
	}
	return res, nil
}

func rates(doc gjson.Result) Rates {
	s := doc.Get("summary")
	return Rates{
		Hit:              s.Get("hit_at_k.value").Float(),
		Grounded:         s.Get("grounded_at_k.value").Float(),
		CorrectCitations: s.Get("correct_citations_at_k.value").Float(),
	}
}

func indexByID(doc gjson.Result) map[string]*Example {
	out := make(map[string]*Example)
	doc.Get("examples").ForEach(func(_, v gjson.Result) bool {
		id := v.Get("id").String()
		if id == "" {
			return true
		}
		out[id] = &Example{
			ID:                 id,
			Question:           v.Get("question").String(),
			ExpectedCitations:  stringList(v.Get("expected_citations")),
			RetrievedCitations: stringList(v.Get("retrieved_citations")),
			AnswerCitations:    stringList(v.Get("answer_citations")),
			Status: Status{
				Hit:              optBool(v.Get("hit_at_k")),
				Grounded:         optBool(v.Get("grounded_at_k")),
				CorrectCitations: optBool(v.Get("correct_citations_at_k")),
			},
		}
		return true
	})
	return out
}

// optBool maps JSON true/false to a pointer and anything else to nil.
func optBool(v gjson.Result) *bool {
	switch v.Type {
	case gjson.True:
		t := true
		return &t
	case gjson.False:
		f := false
		return &f
	}
	return nil
}

func stringList(v gjson.Result) []string {
	arr := v.Array()
	out := make([]string, 0, len(arr))
	for _, x := range arr {
		out = append(out, x.String())
	}
	return out
}

func eq(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func show(v *bool) string {
	if v == nil {
		return "null"
	}
	if *v {
		return "true"
	}
	return "false"
}

func round3(x float64) float64 { return math.Round(x*1000) / 1000 }

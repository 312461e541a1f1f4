package models

import (
	"fmt"
	"time"
)

// ReportSchemaVersion is bumped when the evaluation report layout changes.
const ReportSchemaVersion = 1

// Chunk is one line of the chunk file.
type Chunk struct {
	SourceFile string `json:"source_file"`
	ChunkID    string `json:"chunk_id"`
	Text       string `json:"text"`
}

// MetaRow is one line of the metadata file. Row is the index row holding the
// chunk's vector.
type MetaRow struct {
	Row        int    `json:"row"`
	SourceFile string `json:"source_file"`
	ChunkID    string `json:"chunk_id"`
	Text       string `json:"text"`
}

// Citation returns the row's attribution string.
func (m MetaRow) Citation() string { return Citation(m.SourceFile, m.ChunkID, m.Row) }

// Citation formats source_file#chunk_id. Every stage builds citations through
// this function so the string is identical at index and query time.
func Citation(sourceFile, chunkID string, row int) string {
	if sourceFile == "" {
		sourceFile = "unknown"
	}
	if chunkID == "" {
		chunkID = fmt.Sprintf("row_%d", row)
	}
	return sourceFile + "#" + chunkID
}

// Example is one line of the evaluation set.
type Example struct {
	ID                string   `json:"id"`
	Question          string   `json:"question"`
	ExpectedCitations []string `json:"expected_citations"`
	RequiredTerms     []string `json:"required_terms"`
}

// ExampleResult is the per-example record of an evaluation run. Metric fields
// are nil when the example carried nothing to score against.
type ExampleResult struct {
	ID                  string   `json:"id"`
	Question            string   `json:"question"`
	ExpectedCitations   []string `json:"expected_citations"`
	RequiredTerms       []string `json:"required_terms"`
	RetrievedCitations  []string `json:"retrieved_citations"`
	AnswerCitations     []string `json:"answer_citations"`
	HitAtK              *bool    `json:"hit_at_k"`
	GroundedAtK         *bool    `json:"grounded_at_k"`
	CorrectCitationsAtK *bool    `json:"correct_citations_at_k"`
}

// Metric aggregates one boolean metric over a run.
type Metric struct {
	Value       float64 `json:"value"`
	Hits        int     `json:"hits"`
	ScoredTotal int     `json:"scored_total"`
	Skipped     int     `json:"skipped"`
}

type Summary struct {
	SchemaVersion        int       `json:"schema_version"`
	RunID                string    `json:"run_id"`
	CreatedAt            time.Time `json:"created_at"`
	TopK                 int       `json:"top_k"`
	MaxQuotes            int       `json:"max_quotes"`
	EmbeddingModel       string    `json:"embedding_model"`
	EvalSetPath          string    `json:"eval_set_path"`
	Total                int       `json:"total"`
	SkippedEmptyQuestion int       `json:"skipped_empty_question"`
	MalformedLines       int       `json:"malformed_lines"`
	DroppedRows          int       `json:"dropped_rows"`
	HitAtK               Metric    `json:"hit_at_k"`
	GroundedAtK          Metric    `json:"grounded_at_k"`
	CorrectCitationsAtK  Metric    `json:"correct_citations_at_k"`
}

// Report is the persisted result of one evaluation run.
type Report struct {
	Summary  Summary         `json:"summary"`
	Examples []ExampleResult `json:"examples"`
}

// Bool returns a pointer to b for optional metric fields.
func Bool(b bool) *bool { return &b }

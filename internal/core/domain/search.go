package domain

// Filter is a conjunctive predicate applied to both search legs.
type Filter struct {
	Tribunais       []string `json:"tribunais,omitempty"`
	Tipos           []string `json:"tipos,omitempty"`
	Ramos           []string `json:"ramos,omitempty"`
	Orgaos          []string `json:"orgaos,omitempty"`
	RelatorContains string   `json:"relator_contains,omitempty"`
	DateFrom        string   `json:"date_from,omitempty"`
	DateTo          string   `json:"date_to,omitempty"`
	SourceIDs       []string `json:"source_ids,omitempty"`
}

// SearchRequest is the caller-facing input of the ranking pipeline.
type SearchRequest struct {
	Query             string         `json:"query"`
	Filter            Filter         `json:"filter"`
	Sources           []string       `json:"sources,omitempty"`
	PreferRecent      bool           `json:"prefer_recent"`
	PreferUserSources bool           `json:"prefer_user_sources"`
	RerankBackend     string         `json:"rerank_backend,omitempty"`
	Overrides         map[string]any `json:"overrides,omitempty"`

	// OnStage receives progress events at stage boundaries. It is optional
	// and must never affect pipeline control flow.
	OnStage func(StageEvent) `json:"-"`
}

// StageEvent reports progress at a pipeline stage boundary with cumulative
// per-stage timings in seconds.
type StageEvent struct {
	QueryID      string             `json:"query_id"`
	Stage        string             `json:"stage"`
	Timings      map[string]float64 `json:"timings,omitempty"`
	Candidates   int                `json:"candidates,omitempty"`
	ReturnedDocs int                `json:"returned_docs,omitempty"`
}

// Pipeline stage names carried by StageEvent.
const (
	StageEmbeddingStart  = "embedding_start"
	StageEmbeddingDone   = "embedding_done"
	StageRetrievalStart  = "retrieval_start"
	StageRetrievalDone   = "retrieval_done"
	StageRerankStart     = "rerank_start"
	StageRerankDone      = "rerank_done"
	StageGenerationStart = "generation_start"
	StageGenerationDone  = "generation_done"
	StageValidationStart = "validation_start"
	StageValidationDone  = "validation_done"
	StageDone            = "done"
)

// SearchMeta carries the audit trail of one query execution.
type SearchMeta struct {
	QueryID        string   `json:"query_id"`
	Candidates     int      `json:"candidates"`
	ReturnedDocs   int      `json:"returned_docs"`
	RerankBackend  string   `json:"rerank_backend,omitempty"`
	DegradedTables []string `json:"degraded_tables,omitempty"`
	// Sources counts the returned documents per source label, so callers can
	// see at a glance which corpus the ranking drew from.
	Sources      map[string]int     `json:"sources,omitempty"`
	Timings      map[string]float64 `json:"timings"`
	Weights      Tuning             `json:"weights"`
	PreferRecent bool               `json:"prefer_recent"`
}

// SearchResult is the ranked, deduplicated output of SearchAndRank. An empty
// Documents slice means no relevant documents were found; it is not an error.
type SearchResult struct {
	Documents []Candidate `json:"documents"`
	Meta      SearchMeta  `json:"meta"`
}

// AnswerResult is the grounded, citation-validated answer over a SearchResult.
type AnswerResult struct {
	Text      string      `json:"text"`
	Documents []Candidate `json:"documents"`
	Meta      SearchMeta  `json:"meta"`
}

package model

import "time"

// RunStatus represents the lifecycle state of a classification run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one execution of the classification pipeline for an account.
type Run struct {
	ID        string     `json:"id"`
	Account   string     `json:"account"`
	StartDate string     `json:"start_date"`
	EndDate   string     `json:"end_date"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult summarizes a completed run.
type RunResult struct {
	RawSearchRows   int `json:"raw_search_rows"`
	RawPMaxRows     int `json:"raw_pmax_rows"`
	AggregatedTerms int `json:"aggregated_terms"`
	CombinedTerms   int `json:"combined_terms"`

	// Classification outcome counts, keyed by method.
	CacheHits    int `json:"cache_hits"`
	RuleMatches  int `json:"rule_matches"`
	LLMResults   int `json:"llm_results"`
	Unclassified int `json:"unclassified"`

	LLMCostUSD float64       `json:"llm_cost_usd"`
	Artifacts  []string      `json:"artifacts,omitempty"`
	Stages     []StageTiming `json:"stages,omitempty"`
	DurationMS int64         `json:"duration_ms"`
}

// StageTiming records one pipeline stage's outcome inside a run result.
type StageTiming struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
}

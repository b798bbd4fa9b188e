package store

import (
	"context"

	"github.com/sells-group/searchterm-cli/internal/model"
)

// CachedClass is one persisted classification decision for a normalized term.
type CachedClass struct {
	Category   string
	Confidence float64
}

// CacheStats summarizes the classification cache for one account.
type CacheStats struct {
	Account    string
	Entries    int
	Categories int
	OldestAt   string
	NewestAt   string
}

// CategoryCount is one row of the cache category distribution.
type CategoryCount struct {
	Category string
	Count    int
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Account string
	Status  model.RunStatus
	Limit   int
}

// Store persists the classification cache and the run log. Cache keys are
// (account, normalized term); values keep the confidence recorded at write
// time so replays reproduce the original decision.
type Store interface {
	// Classification cache
	GetClassifications(ctx context.Context, account string, terms []string) (map[string]CachedClass, error)
	PutClassifications(ctx context.Context, account string, entries map[string]CachedClass) error
	CacheStats(ctx context.Context, account string) (*CacheStats, error)
	CacheDistribution(ctx context.Context, account string) ([]CategoryCount, error)
	ClearCache(ctx context.Context, account string) (int, error)

	// Runs
	CreateRun(ctx context.Context, account string, startDate, endDate string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/searchterm-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteClassificationsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := map[string]CachedClass{
		"acme boots":    {Category: model.CategoryBrand, Confidence: 0.95},
		"hiking gloves": {Category: model.CategoryGeneric, Confidence: 0.85},
	}
	require.NoError(t, s.PutClassifications(ctx, "acme", entries))

	got, err := s.GetClassifications(ctx, "acme", []string{"acme boots", "hiking gloves", "missing term"})
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestSQLiteClassificationsUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutClassifications(ctx, "acme", map[string]CachedClass{
		"acme boots": {Category: model.CategoryGeneric, Confidence: 0.85},
	}))
	require.NoError(t, s.PutClassifications(ctx, "acme", map[string]CachedClass{
		"acme boots": {Category: model.CategoryBrand, Confidence: 0.95},
	}))

	got, err := s.GetClassifications(ctx, "acme", []string{"acme boots"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.CategoryBrand, got["acme boots"].Category)
	assert.InDelta(t, 0.95, got["acme boots"].Confidence, 1e-9)
}

func TestSQLiteClassificationsScopedByAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutClassifications(ctx, "acme", map[string]CachedClass{
		"shared term": {Category: model.CategoryBrand, Confidence: 0.95},
	}))

	got, err := s.GetClassifications(ctx, "other", []string{"shared term"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteClassificationsManyTerms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// More terms than one IN-clause chunk.
	entries := make(map[string]CachedClass, sqliteChunkSize+50)
	keys := make([]string, 0, sqliteChunkSize+50)
	for i := 0; i < sqliteChunkSize+50; i++ {
		term := fmt.Sprintf("term %d", i)
		entries[term] = CachedClass{Category: model.CategoryGeneric, Confidence: 0.85}
		keys = append(keys, term)
	}
	require.NoError(t, s.PutClassifications(ctx, "acme", entries))

	got, err := s.GetClassifications(ctx, "acme", keys)
	require.NoError(t, err)
	assert.Len(t, got, len(entries))
}

func TestSQLiteCacheStatsAndDistribution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutClassifications(ctx, "acme", map[string]CachedClass{
		"a": {Category: model.CategoryBrand, Confidence: 0.95},
		"b": {Category: model.CategoryGeneric, Confidence: 0.85},
		"c": {Category: model.CategoryGeneric, Confidence: 0.85},
	}))

	stats, err := s.CacheStats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Entries)
	assert.Equal(t, 2, stats.Categories)
	assert.NotEmpty(t, stats.OldestAt)

	dist, err := s.CacheDistribution(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, dist, 2)
	assert.Equal(t, model.CategoryGeneric, dist[0].Category)
	assert.Equal(t, 2, dist[0].Count)
}

func TestSQLiteClearCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutClassifications(ctx, "acme", map[string]CachedClass{
		"a": {Category: model.CategoryBrand, Confidence: 0.95},
	}))
	require.NoError(t, s.PutClassifications(ctx, "other", map[string]CachedClass{
		"b": {Category: model.CategoryBrand, Confidence: 0.95},
	}))

	n, err := s.ClearCache(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Other accounts are untouched.
	got, err := s.GetClassifications(ctx, "other", []string{"b"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "acme", "2026-08-01", "2026-08-30")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	result := &model.RunResult{
		CombinedTerms: 42,
		RuleMatches:   10,
		Stages: []model.StageTiming{
			{Name: "fetch", Status: "complete", DurationMS: 120},
		},
	}
	require.NoError(t, s.CompleteRun(ctx, run.ID, result))

	runs, err := s.ListRuns(ctx, RunFilter{Account: "acme"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	require.NotNil(t, runs[0].Result)
	assert.Equal(t, 42, runs[0].Result.CombinedTerms)
	require.Len(t, runs[0].Result.Stages, 1)
	assert.Equal(t, "fetch", runs[0].Result.Stages[0].Name)
}

func TestSQLiteFailRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "acme", "2026-08-01", "2026-08-30")
	require.NoError(t, err)
	require.NoError(t, s.FailRun(ctx, run.ID))

	runs, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestSQLiteRunNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.CompleteRun(ctx, "nope", &model.RunResult{}))
	assert.Error(t, s.FailRun(ctx, "nope"))
}

func TestSQLiteListRunsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.CreateRun(ctx, "acme", "2026-08-01", "2026-08-30")
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx, RunFilter{Account: "acme", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sells-group/searchterm-cli/internal/model"
	"github.com/sells-group/searchterm-cli/internal/store"
	"github.com/sells-group/searchterm-cli/pkg/anthropic"
	"github.com/sells-group/searchterm-cli/pkg/googleads"
)

// fakeAdsClient returns canned rows keyed by a substring of the GAQL query.
type fakeAdsClient struct {
	mu      sync.Mutex
	rowsFor map[string][]googleads.Row
	errFor  map[string]error
	queries []string
}

func (f *fakeAdsClient) Search(_ context.Context, req googleads.SearchRequest) ([]googleads.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, req.Query)
	for needle, err := range f.errFor {
		if strings.Contains(req.Query, needle) {
			return nil, err
		}
	}
	for needle, rows := range f.rowsFor {
		if strings.Contains(req.Query, needle) {
			return rows, nil
		}
	}
	return nil, nil
}

// fakeStore is an in-memory store.Store.
type fakeStore struct {
	mu           sync.Mutex
	cache        map[string]map[string]store.CachedClass // account to term to class
	runs         []model.Run
	getErr       error
	putErr       error
	createRunErr error
	putting      int // number of PutClassifications calls
}

func newFakeStore() *fakeStore {
	return &fakeStore{cache: make(map[string]map[string]store.CachedClass)}
}

func (f *fakeStore) seed(account, term string, cc store.CachedClass) {
	if f.cache[account] == nil {
		f.cache[account] = make(map[string]store.CachedClass)
	}
	f.cache[account][term] = cc
}

func (f *fakeStore) GetClassifications(_ context.Context, account string, terms []string) (map[string]store.CachedClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make(map[string]store.CachedClass)
	for _, term := range terms {
		if cc, ok := f.cache[account][term]; ok {
			out[term] = cc
		}
	}
	return out, nil
}

func (f *fakeStore) PutClassifications(_ context.Context, account string, entries map[string]store.CachedClass) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putting++
	if f.putErr != nil {
		return f.putErr
	}
	for term, cc := range entries {
		if f.cache[account] == nil {
			f.cache[account] = make(map[string]store.CachedClass)
		}
		f.cache[account][term] = cc
	}
	return nil
}

func (f *fakeStore) CacheStats(_ context.Context, account string) (*store.CacheStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &store.CacheStats{Account: account, Entries: len(f.cache[account])}, nil
}

func (f *fakeStore) CacheDistribution(_ context.Context, account string) ([]store.CategoryCount, error) {
	return nil, nil
}

func (f *fakeStore) ClearCache(_ context.Context, account string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.cache[account])
	delete(f.cache, account)
	return n, nil
}

func (f *fakeStore) CreateRun(_ context.Context, account, startDate, endDate string) (*model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createRunErr != nil {
		return nil, f.createRunErr
	}
	run := model.Run{
		ID:        fmt.Sprintf("run-%d", len(f.runs)+1),
		Account:   account,
		StartDate: startDate,
		EndDate:   endDate,
		Status:    model.RunStatusRunning,
	}
	f.runs = append(f.runs, run)
	return &run, nil
}

func (f *fakeStore) CompleteRun(_ context.Context, runID string, result *model.RunResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.runs {
		if f.runs[i].ID == runID {
			f.runs[i].Status = model.RunStatusComplete
			f.runs[i].Result = result
			return nil
		}
	}
	return fmt.Errorf("run not found: %s", runID)
}

func (f *fakeStore) FailRun(_ context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.runs {
		if f.runs[i].ID == runID {
			f.runs[i].Status = model.RunStatusFailed
			return nil
		}
	}
	return fmt.Errorf("run not found: %s", runID)
}

func (f *fakeStore) ListRuns(_ context.Context, _ store.RunFilter) ([]model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Run{}, f.runs...), nil
}

func (f *fakeStore) Migrate(_ context.Context) error { return nil }
func (f *fakeStore) Close() error                    { return nil }

// fakeAIClient answers every message with a fixed category, or errors.
type fakeAIClient struct {
	mu       sync.Mutex
	category func(prompt string) string
	err      error
	calls    int
	pending  []anthropic.BatchRequestItem
}

func (f *fakeAIClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[0].Content
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{
			{Type: "text", Text: fmt.Sprintf(`{"category": %q}`, f.category(prompt))},
		},
		Usage: anthropic.TokenUsage{InputTokens: 15, OutputTokens: 5},
	}, nil
}

func (f *fakeAIClient) CreateBatch(ctx context.Context, req anthropic.BatchRequest) (*anthropic.BatchResponse, error) {
	f.mu.Lock()
	if f.err != nil {
		defer f.mu.Unlock()
		return nil, f.err
	}
	f.pending = req.Requests
	f.mu.Unlock()
	return &anthropic.BatchResponse{ID: "batch-1", ProcessingStatus: "in_progress"}, nil
}

func (f *fakeAIClient) GetBatch(_ context.Context, batchID string) (*anthropic.BatchResponse, error) {
	return &anthropic.BatchResponse{ID: batchID, ProcessingStatus: "ended"}, nil
}

func (f *fakeAIClient) GetBatchResults(_ context.Context, _ string) (anthropic.BatchResultIterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]anthropic.BatchResultItem, len(f.pending))
	for i, req := range f.pending {
		prompt := ""
		if len(req.Params.Messages) > 0 {
			prompt = req.Params.Messages[0].Content
		}
		items[i] = anthropic.BatchResultItem{
			CustomID: req.CustomID,
			Type:     "succeeded",
			Message: &anthropic.MessageResponse{
				Content: []anthropic.ContentBlock{
					{Type: "text", Text: fmt.Sprintf(`{"category": %q}`, f.category(prompt))},
				},
				Usage: anthropic.TokenUsage{InputTokens: 15, OutputTokens: 5},
			},
		}
	}
	return &sliceIterator{items: items}, nil
}

type sliceIterator struct {
	items []anthropic.BatchResultItem
	pos   int
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Item() anthropic.BatchResultItem { return it.items[it.pos-1] }
func (it *sliceIterator) Err() error                      { return nil }
func (it *sliceIterator) Close() error                    { return nil }

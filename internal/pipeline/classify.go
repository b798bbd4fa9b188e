package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/searchterm-cli/internal/account"
	"github.com/sells-group/searchterm-cli/internal/config"
	"github.com/sells-group/searchterm-cli/internal/model"
	"github.com/sells-group/searchterm-cli/internal/store"
	"github.com/sells-group/searchterm-cli/pkg/anthropic"
)

const classifySystemPrompt = `You classify e-commerce search terms into exactly one category from a fixed taxonomy. Respond with a valid JSON object: {"category": "<category>"}. Use "generic" when no other category fits.`

const classifyUserPrompt = `Account: %s
Categories: %s

Search term: %s`

// StrategyTerm is one still-unresolved term handed to a strategy. Index is
// the term's position in the run's combined sequence.
type StrategyTerm struct {
	Index int
	Term  string // normalized
}

// Strategy is one layer of the classification chain. It receives the terms
// no earlier layer resolved and returns classifications keyed by index.
// Strategies run in list order; the first match for a term wins, so
// inserting or reordering a layer is a list change, not a control-flow
// change.
type Strategy interface {
	Name() string
	Classify(ctx context.Context, terms []StrategyTerm) (map[int]model.Classification, error)
}

// ClassifyOptions controls the optional LLM stage for one run.
type ClassifyOptions struct {
	RunLLM   bool
	LLMLimit int // max terms sent to the LLM; 0 means no cap
}

// ClassifyStats tallies how each term was resolved.
type ClassifyStats struct {
	CacheHits    int
	RuleMatches  int
	LLMResults   int
	Unclassified int
	LLMSkipped   int // unresolved terms the LLM never saw (stage off or capped)
	Usage        anthropic.TokenUsage
}

// Classifier resolves categories with an ordered strategy chain: persistent
// cache, substring rules, frequency-based sold-brand detection, then an
// opt-in LLM fallback. The cache is read in bulk up front and flushed once
// at the end; cache trouble is logged and never fails a run.
type Classifier struct {
	store    store.Store
	aiClient anthropic.Client
	cfg      config.ClassifyConfig
	aiCfg    config.AnthropicConfig
}

// NewClassifier creates a Classifier. aiClient may be nil when the LLM stage
// is disabled.
func NewClassifier(st store.Store, aiClient anthropic.Client, cfg config.ClassifyConfig, aiCfg config.AnthropicConfig) *Classifier {
	return &Classifier{store: st, aiClient: aiClient, cfg: cfg, aiCfg: aiCfg}
}

// Classify assigns a category to every combined term. Chain order is fixed:
// cache beats own-brand beats competitor beats sold-brand beats LLM. Terms
// no strategy resolves stay unclassified.
func (c *Classifier) Classify(ctx context.Context, acc account.Account, terms []model.CombinedTerm, opts ClassifyOptions) ([]model.ClassifiedTerm, *ClassifyStats, error) {
	stats := &ClassifyStats{}
	out := make([]model.ClassifiedTerm, len(terms))
	for i, t := range terms {
		out[i] = model.ClassifiedTerm{CombinedTerm: t}
	}

	pending := make(map[string]store.CachedClass)

	chain := c.buildChain(ctx, acc, terms, opts, stats)

	remaining := make([]StrategyTerm, len(out))
	for i := range out {
		remaining[i] = StrategyTerm{Index: i, Term: model.NormalizeTerm(out[i].Term)}
	}

	for _, strategy := range chain {
		if len(remaining) == 0 {
			break
		}

		matches, err := strategy.Classify(ctx, remaining)
		if err != nil {
			// A failing layer degrades its terms to the next layer, or to
			// unclassified when it is the last one.
			zap.L().Warn("classify: strategy failed",
				zap.String("strategy", strategy.Name()),
				zap.Int("terms", len(remaining)),
				zap.Error(err),
			)
			continue
		}

		var next []StrategyTerm
		for _, st := range remaining {
			class, ok := matches[st.Index]
			if !ok {
				next = append(next, st)
				continue
			}
			out[st.Index].Class = &class
			switch class.Method {
			case model.MethodCache:
				stats.CacheHits++
			case model.MethodRule:
				stats.RuleMatches++
			case model.MethodLLM:
				stats.LLMResults++
			}
			// Decisions made this run go back to the cache. Cache hits are
			// already there.
			if class.Method != model.MethodCache {
				pending[st.Term] = store.CachedClass{
					Category:   class.Category,
					Confidence: class.Confidence,
				}
			}
		}
		remaining = next
	}

	stats.Unclassified = len(remaining)
	if !opts.RunLLM || c.aiClient == nil {
		stats.LLMSkipped = stats.Unclassified
	}

	c.flushCache(ctx, acc, pending)

	zap.L().Info("classify: complete",
		zap.Int("terms", len(out)),
		zap.Int("cache_hits", stats.CacheHits),
		zap.Int("rule_matches", stats.RuleMatches),
		zap.Int("llm_results", stats.LLMResults),
		zap.Int("unclassified", stats.Unclassified),
	)
	return out, stats, nil
}

// buildChain assembles the ordered strategy list for one run.
func (c *Classifier) buildChain(ctx context.Context, acc account.Account, terms []model.CombinedTerm, opts ClassifyOptions, stats *ClassifyStats) []Strategy {
	brands := lowerAll(acc.BrandTerms)
	competitors := lowerAll(acc.CompetitorTerms)
	soldBrands := c.soldBrandList(acc, terms)

	chain := []Strategy{
		&cacheStrategy{cached: c.loadCache(ctx, acc, terms)},
		&ruleStrategy{
			name:       "brand",
			category:   model.CategoryBrand,
			confidence: c.cfg.BrandConfidence,
			needles:    brands,
		},
		&ruleStrategy{
			name:       "competitor",
			category:   model.CategoryCompetitor,
			confidence: c.cfg.CompetitorConfidence,
			needles:    competitors,
		},
		&ruleStrategy{
			name:       "sold_brand",
			category:   model.CategorySoldBrand,
			confidence: c.cfg.SoldBrandConfidence,
			needles:    soldBrands,
		},
		&similarityStrategy{
			min: similarityMin(c.cfg.SimilarityMin),
			groups: []similarityGroup{
				{category: model.CategoryBrand, needles: brands},
				{category: model.CategoryCompetitor, needles: competitors},
				{category: model.CategorySoldBrand, needles: soldBrands},
			},
		},
	}

	if opts.RunLLM && c.aiClient != nil {
		chain = append(chain, &llmStrategy{
			classifier: c,
			account:    acc,
			limit:      opts.LLMLimit,
			stats:      stats,
		})
	}
	return chain
}

// cacheStrategy resolves terms already decided in a previous run.
type cacheStrategy struct {
	cached map[string]store.CachedClass
}

func (s *cacheStrategy) Name() string { return "cache" }

func (s *cacheStrategy) Classify(_ context.Context, terms []StrategyTerm) (map[int]model.Classification, error) {
	matches := make(map[int]model.Classification)
	for _, st := range terms {
		if cc, ok := s.cached[st.Term]; ok {
			matches[st.Index] = model.Classification{
				Category:   cc.Category,
				Confidence: cc.Confidence,
				Method:     model.MethodCache,
			}
		}
	}
	return matches, nil
}

// ruleStrategy assigns a fixed category when the term contains any of its
// substrings.
type ruleStrategy struct {
	name       string
	category   string
	confidence float64
	needles    []string
}

func (s *ruleStrategy) Name() string { return s.name }

func (s *ruleStrategy) Classify(_ context.Context, terms []StrategyTerm) (map[int]model.Classification, error) {
	matches := make(map[int]model.Classification)
	if len(s.needles) == 0 {
		return matches, nil
	}
	for _, st := range terms {
		if firstContained(st.Term, s.needles) == "" {
			continue
		}
		matches[st.Index] = model.Classification{
			Category:   s.category,
			Confidence: s.confidence,
			Method:     model.MethodRule,
		}
	}
	return matches, nil
}

// llmStrategy sends the leftovers to the model, capped by the run budget.
type llmStrategy struct {
	classifier *Classifier
	account    account.Account
	limit      int
	stats      *ClassifyStats
}

func (s *llmStrategy) Name() string { return "llm" }

func (s *llmStrategy) Classify(ctx context.Context, terms []StrategyTerm) (map[int]model.Classification, error) {
	if s.limit > 0 && len(terms) > s.limit {
		s.stats.LLMSkipped = len(terms) - s.limit
		terms = terms[:s.limit]
	}
	return s.classifier.classifyLLM(ctx, s.account, terms, s.stats)
}

// soldBrandList merges configured sold brands with freshly detected ones.
func (c *Classifier) soldBrandList(acc account.Account, terms []model.CombinedTerm) []string {
	corpus := make([]string, len(terms))
	for i, t := range terms {
		corpus[i] = t.Term
	}

	detected := DetectSoldBrands(corpus, acc.BrandTerms, acc.CompetitorTerms, NgramConfig{
		MinFrequency: c.cfg.NgramMinFrequency,
		MaxGeneric:   c.cfg.NgramMaxGeneric,
		TopN:         c.cfg.NgramTopN,
	})

	seen := make(map[string]struct{})
	var merged []string
	for _, b := range append(lowerAll(acc.SoldBrands), detected...) {
		if b == "" {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		merged = append(merged, b)
	}
	return merged
}

func (c *Classifier) loadCache(ctx context.Context, acc account.Account, terms []model.CombinedTerm) map[string]store.CachedClass {
	keys := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		n := model.NormalizeTerm(t.Term)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		keys = append(keys, n)
	}

	cached, err := c.store.GetClassifications(ctx, acc.Key, keys)
	if err != nil {
		zap.L().Warn("classify: cache read failed, classifying from scratch",
			zap.String("account", acc.Key),
			zap.Error(err),
		)
		return map[string]store.CachedClass{}
	}
	zap.L().Info("classify: cache loaded",
		zap.String("account", acc.Key),
		zap.Int("entries", len(cached)),
	)
	return cached
}

func (c *Classifier) flushCache(ctx context.Context, acc account.Account, pending map[string]store.CachedClass) {
	if len(pending) == 0 {
		return
	}
	if err := c.store.PutClassifications(ctx, acc.Key, pending); err != nil {
		zap.L().Warn("classify: cache flush failed",
			zap.String("account", acc.Key),
			zap.Int("entries", len(pending)),
			zap.Error(err),
		)
		return
	}
	zap.L().Info("classify: cache flushed",
		zap.String("account", acc.Key),
		zap.Int("entries", len(pending)),
	)
}

// similarityMin floors an unset threshold at the default. A zero threshold
// would let any single word match something.
func similarityMin(v float64) float64 {
	if v <= 0 {
		return 0.80
	}
	return v
}

// Taxonomy lists the categories valid for an account: the rule categories
// plus the account's own labels.
func Taxonomy(acc account.Account) []string {
	base := []string{
		model.CategoryBrand,
		model.CategoryCompetitor,
		model.CategorySoldBrand,
		model.CategoryGeneric,
	}
	seen := make(map[string]struct{}, len(base))
	for _, cat := range base {
		seen[cat] = struct{}{}
	}
	for _, cat := range acc.Categories {
		cat = strings.ToLower(strings.TrimSpace(cat))
		if cat == "" {
			continue
		}
		if _, ok := seen[cat]; ok {
			continue
		}
		seen[cat] = struct{}{}
		base = append(base, cat)
	}
	return base
}

func (c *Classifier) classifyLLM(ctx context.Context, acc account.Account, terms []StrategyTerm, stats *ClassifyStats) (map[int]model.Classification, error) {
	taxonomy := Taxonomy(acc)
	taxonomyList := strings.Join(taxonomy, ", ")
	systemBlocks := anthropic.BuildCachedSystemBlocks(classifySystemPrompt)

	items := make([]anthropic.BatchRequestItem, len(terms))
	for n, st := range terms {
		prompt := fmt.Sprintf(classifyUserPrompt, acc.Name, taxonomyList, st.Term)
		items[n] = anthropic.BatchRequestItem{
			CustomID: fmt.Sprintf("term-%d", st.Index),
			Params: anthropic.MessageRequest{
				Model:     c.aiCfg.Model,
				MaxTokens: 64,
				System:    systemBlocks,
				Messages: []anthropic.Message{
					{Role: "user", Content: prompt},
				},
			},
		}
	}

	threshold := c.aiCfg.SmallBatchThreshold
	if threshold <= 0 {
		threshold = 3
	}

	var results map[string]*anthropic.MessageResponse
	var err error
	if c.aiCfg.NoBatch || len(items) <= threshold {
		results, err = c.classifyDirect(ctx, items, stats)
	} else {
		results, err = c.classifyBatch(ctx, items, stats)
	}
	if err != nil {
		return nil, err
	}

	matches := make(map[int]model.Classification)
	for _, st := range terms {
		resp, ok := results[fmt.Sprintf("term-%d", st.Index)]
		if !ok || resp == nil {
			continue
		}
		category, ok := parseCategory(anthropic.ExtractText(resp), taxonomy)
		if !ok {
			continue
		}
		matches[st.Index] = model.Classification{
			Category:   category,
			Confidence: c.cfg.LLMConfidence,
			Method:     model.MethodLLM,
		}
	}
	return matches, nil
}

func (c *Classifier) classifyDirect(ctx context.Context, items []anthropic.BatchRequestItem, stats *ClassifyStats) (map[string]*anthropic.MessageResponse, error) {
	concurrency := c.aiCfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	results := make(map[string]*anthropic.MessageResponse, len(items))

	for _, item := range items {
		g.Go(func() error {
			resp, err := c.aiClient.CreateMessage(gCtx, item.Params)
			if err != nil {
				zap.L().Warn("classify: direct message failed",
					zap.String("custom_id", item.CustomID),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			results[item.CustomID] = resp
			stats.Usage.Add(resp.Usage)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return results, nil
}

func (c *Classifier) classifyBatch(ctx context.Context, items []anthropic.BatchRequestItem, stats *ClassifyStats) (map[string]*anthropic.MessageResponse, error) {
	maxSize := c.aiCfg.MaxBatchSize
	if maxSize <= 0 {
		maxSize = 100
	}

	results := make(map[string]*anthropic.MessageResponse, len(items))
	for start := 0; start < len(items); start += maxSize {
		end := start + maxSize
		if end > len(items) {
			end = len(items)
		}
		chunk, err := c.submitBatch(ctx, items[start:end], stats)
		if err != nil {
			return nil, err
		}
		for id, resp := range chunk {
			results[id] = resp
		}
	}
	return results, nil
}

func (c *Classifier) submitBatch(ctx context.Context, items []anthropic.BatchRequestItem, stats *ClassifyStats) (map[string]*anthropic.MessageResponse, error) {
	batch, err := c.aiClient.CreateBatch(ctx, anthropic.BatchRequest{Requests: items})
	if err != nil {
		return nil, eris.Wrap(err, "classify: create batch")
	}

	batch, err = anthropic.PollBatch(ctx, c.aiClient, batch.ID)
	if err != nil {
		return nil, eris.Wrap(err, "classify: poll batch")
	}

	iter, err := c.aiClient.GetBatchResults(ctx, batch.ID)
	if err != nil {
		return nil, eris.Wrap(err, "classify: get batch results")
	}

	collected, err := anthropic.CollectBatchResults(iter)
	if err != nil {
		return nil, eris.Wrap(err, "classify: collect batch results")
	}

	for _, resp := range collected.Succeeded {
		stats.Usage.Add(resp.Usage)
	}
	return collected.Succeeded, nil
}

// parseCategory extracts a taxonomy category from a model response. Accepts
// either the JSON object format or a bare category word.
func parseCategory(text string, taxonomy []string) (string, bool) {
	text = cleanJSON(text)

	var result struct {
		Category string `json:"category"`
	}
	candidate := text
	if err := json.Unmarshal([]byte(text), &result); err == nil && result.Category != "" {
		candidate = result.Category
	}

	candidate = strings.ToLower(strings.TrimSpace(candidate))
	for _, cat := range taxonomy {
		if candidate == cat {
			return cat, true
		}
	}
	return "", false
}

// cleanJSON strips markdown code fences the model sometimes wraps around
// JSON output.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func lowerAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstContained(term string, needles []string) string {
	for _, n := range needles {
		if strings.Contains(term, n) {
			return n
		}
	}
	return ""
}

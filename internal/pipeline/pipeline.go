package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/searchterm-cli/internal/account"
	"github.com/sells-group/searchterm-cli/internal/config"
	"github.com/sells-group/searchterm-cli/internal/cost"
	"github.com/sells-group/searchterm-cli/internal/model"
	"github.com/sells-group/searchterm-cli/internal/store"
	"github.com/sells-group/searchterm-cli/pkg/anthropic"
	"github.com/sells-group/searchterm-cli/pkg/googleads"
)

// RunOptions controls one pipeline execution.
type RunOptions struct {
	Days     int
	RunLLM   bool
	LLMLimit int
	SkipOpen bool
	// DryRun fetches and aggregates without writing artifacts, classifying
	// or recording the run. Used to preview row counts and LLM cost.
	DryRun bool
}

// Pipeline runs the five stages in order: fetch, aggregate, combine,
// classify, report. Each stage boundary is a CSV file so a partial run
// leaves inspectable artifacts.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	ads        googleads.Client
	classifier *Classifier
	costCalc   *cost.Calculator
}

// New creates a Pipeline. aiClient may be nil when LLM classification is
// not configured.
func New(cfg *config.Config, st store.Store, adsClient googleads.Client, aiClient anthropic.Client) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		store:      st,
		ads:        adsClient,
		classifier: NewClassifier(st, aiClient, cfg.Classify, cfg.Anthropic),
		costCalc:   cost.NewCalculator(cost.RatesFromConfig(cfg.Pricing.Anthropic)),
	}
}

// Run executes the pipeline for one account.
func (p *Pipeline) Run(ctx context.Context, acc account.Account, opts RunOptions) (*model.RunResult, error) {
	log := zap.L().With(zap.String("account", acc.Key))

	days := opts.Days
	if days <= 0 {
		days = 30
	}
	window := acc.Window(days, time.Now())

	log.Info("pipeline: starting run",
		zap.String("start", window.StartDate()),
		zap.String("end", window.EndDate()),
		zap.Bool("llm", opts.RunLLM),
		zap.Bool("dry_run", opts.DryRun),
	)

	result := &model.RunResult{}
	start := time.Now()

	var run *model.Run
	if !opts.DryRun {
		var err error
		run, err = p.store.CreateRun(ctx, acc.Key, window.StartDate(), window.EndDate())
		if err != nil {
			// The run log is bookkeeping, not a gate.
			log.Warn("pipeline: could not record run", zap.Error(err))
		}
	}

	trackStage := func(name string, fn func() error) error {
		stageStart := time.Now()
		err := fn()
		timing := model.StageTiming{
			Name:       name,
			Status:     "complete",
			DurationMS: time.Since(stageStart).Milliseconds(),
		}
		if err != nil {
			timing.Status = "failed"
		}
		result.Stages = append(result.Stages, timing)
		if err != nil {
			log.Error("pipeline: stage failed", zap.String("stage", name), zap.Error(err))
		} else {
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", timing.DurationMS),
			)
		}
		return err
	}

	fail := func(err error) (*model.RunResult, error) {
		if run != nil {
			if failErr := p.store.FailRun(ctx, run.ID); failErr != nil {
				log.Warn("pipeline: could not mark run failed", zap.Error(failErr))
			}
		}
		return nil, err
	}

	paths := p.artifactPaths(acc)

	// Stage 1: fetch both raw datasets.
	var fetched *FetchResult
	if err := trackStage("fetch", func() error {
		var err error
		fetched, err = Fetch(ctx, p.ads, acc, window)
		return err
	}); err != nil {
		return fail(err)
	}
	result.RawSearchRows = len(fetched.Terms)
	result.RawPMaxRows = len(fetched.Categories)

	// Stage 2: aggregate per (term, channel) and per category label.
	var aggregated []model.AggregatedTerm
	var categories []model.CategoryRecord
	_ = trackStage("aggregate", func() error {
		aggregated = Aggregate(fetched.Terms)
		categories = AggregateCategories(fetched.Categories)
		return nil
	})
	result.AggregatedTerms = len(aggregated)

	// Stage 3: combine under provenance tags.
	var combined []model.CombinedTerm
	_ = trackStage("combine", func() error {
		combined = Combine(aggregated, categories)
		return nil
	})
	result.CombinedTerms = len(combined)

	if opts.DryRun {
		estimate := p.costCalc.EstimateClassification(p.cfg.Anthropic.Model, len(combined))
		log.Info("pipeline: dry run complete",
			zap.Int("combined_terms", len(combined)),
			zap.Float64("llm_cost_estimate_usd", estimate),
		)
		result.DurationMS = time.Since(start).Milliseconds()
		return result, nil
	}

	if err := trackStage("write_raw", func() error {
		if err := writeCSV(paths.raw, fetched.Terms); err != nil {
			return err
		}
		if err := writeCSV(paths.aggregated, aggregated); err != nil {
			return err
		}
		return writeCSV(paths.pmax, categories)
	}); err != nil {
		return fail(err)
	}
	if err := writeCSV(paths.combined, combined); err != nil {
		return fail(err)
	}

	// Stage 4: classify.
	var classified []model.ClassifiedTerm
	var stats *ClassifyStats
	if err := trackStage("classify", func() error {
		var err error
		classified, stats, err = p.classifier.Classify(ctx, acc, combined, ClassifyOptions{
			RunLLM:   opts.RunLLM,
			LLMLimit: opts.LLMLimit,
		})
		return err
	}); err != nil {
		return fail(err)
	}
	result.CacheHits = stats.CacheHits
	result.RuleMatches = stats.RuleMatches
	result.LLMResults = stats.LLMResults
	result.Unclassified = stats.Unclassified
	result.LLMCostUSD = p.costCalc.Claude(p.cfg.Anthropic.Model, !p.cfg.Anthropic.NoBatch,
		int(stats.Usage.InputTokens), int(stats.Usage.OutputTokens),
		int(stats.Usage.CacheCreationInputTokens), int(stats.Usage.CacheReadInputTokens),
	)

	if stats.LLMSkipped > 0 {
		estimate := p.costCalc.EstimateClassification(p.cfg.Anthropic.Model, stats.LLMSkipped)
		log.Info("pipeline: unclassified terms remain",
			zap.Int("terms", stats.LLMSkipped),
			zap.Float64("llm_cost_estimate_usd", estimate),
			zap.String("hint", "re-run with --run-llm to classify them"),
		)
	}

	rows := make([]model.ClassifiedCSVRow, len(classified))
	for i, t := range classified {
		rows[i] = t.ToRow()
	}
	if err := writeCSV(paths.classified, rows); err != nil {
		return fail(err)
	}

	// Stage 5: report.
	if err := trackStage("report", func() error {
		return WriteReport(paths.report, classified, ReportMeta{
			Account:     acc,
			Window:      window,
			GeneratedAt: time.Now(),
		})
	}); err != nil {
		return fail(err)
	}

	result.Artifacts = []string{paths.raw, paths.aggregated, paths.pmax, paths.combined, paths.classified, paths.report}
	result.DurationMS = time.Since(start).Milliseconds()

	if run != nil {
		if err := p.store.CompleteRun(ctx, run.ID, result); err != nil {
			log.Warn("pipeline: could not record run result", zap.Error(err))
		}
	}

	log.Info("pipeline: run complete",
		zap.Int("combined_terms", result.CombinedTerms),
		zap.Int("unclassified", result.Unclassified),
		zap.Int64("duration_ms", result.DurationMS),
		zap.String("report", paths.report),
	)

	if !opts.SkipOpen {
		if err := openFile(paths.report); err != nil {
			log.Warn("pipeline: could not open report", zap.Error(err))
		}
	}
	return result, nil
}

type artifactPaths struct {
	raw        string
	aggregated string
	pmax       string
	combined   string
	classified string
	report     string
}

// artifactPaths names the run's six files: {yyyymmdd}-{slug}-{stage} under
// a per-account directory. The date stamp is today in the account timezone,
// so a re-run the same day overwrites the earlier artifacts.
func (p *Pipeline) artifactPaths(acc account.Account) artifactPaths {
	today := time.Now().In(acc.Location()).Format("20060102")
	dir := filepath.Join(p.cfg.Output.Dir, acc.Slug())
	name := func(stage, ext string) string {
		return filepath.Join(dir, fmt.Sprintf("%s-%s-%s.%s", today, acc.Slug(), stage, ext))
	}
	return artifactPaths{
		raw:        name("raw", "csv"),
		aggregated: name("aggregated", "csv"),
		pmax:       name("pmax", "csv"),
		combined:   name("combined", "csv"),
		classified: name("classified", "csv"),
		report:     name("report", "html"),
	}
}

// openFile opens a file with the platform's default handler.
func openFile(path string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", path).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", path).Start()
	default:
		return exec.Command("xdg-open", path).Start()
	}
}

package pipeline

import (
	_ "embed"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/searchterm-cli/internal/account"
	"github.com/sells-group/searchterm-cli/internal/model"
)

//go:embed report.html.tmpl
var reportTemplate string

// ReportMeta carries run metadata into the rendered report.
type ReportMeta struct {
	Account     account.Account
	Window      account.DateRange
	GeneratedAt time.Time
}

type reportTotal struct {
	Label            string
	Rows             int
	Impressions      int64
	Clicks           int64
	Cost             float64
	Conversions      float64
	ConversionsValue float64
}

type reportRow struct {
	Term       string
	Source     model.Provenance
	Category   string
	Confidence string
	Method     string
	Metrics    model.Metrics
}

type reportData struct {
	AccountName    string
	StartDate      string
	EndDate        string
	Days           int
	GeneratedAt    string
	Sources        []model.Provenance
	CategoryTotals []reportTotal
	SourceTotals   []reportTotal
	Rows           []reportRow
}

// WriteReport renders the classified dataset to a self-contained HTML file:
// totals per category, totals per provenance, and the full term table with
// client-side provenance toggles. Rendering is deterministic apart from the
// generated-at timestamp.
func WriteReport(path string, terms []model.ClassifiedTerm, meta ReportMeta) error {
	printer := message.NewPrinter(language.English)
	funcs := template.FuncMap{
		"comma": func(n int64) string {
			return printer.Sprintf("%d", n)
		},
		"money": func(f float64) string {
			return printer.Sprintf("$%.2f", f)
		},
		"float": func(f float64) string {
			return printer.Sprintf("%.1f", f)
		},
	}

	tmpl, err := template.New("report").Funcs(funcs).Parse(reportTemplate)
	if err != nil {
		return eris.Wrap(err, "report: parse template")
	}

	data := buildReportData(terms, meta)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "report: mkdir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := tmpl.Execute(f, data); err != nil {
		return eris.Wrap(err, "report: render")
	}
	return nil
}

func buildReportData(terms []model.ClassifiedTerm, meta ReportMeta) reportData {
	data := reportData{
		AccountName: meta.Account.Name,
		StartDate:   meta.Window.StartDate(),
		EndDate:     meta.Window.EndDate(),
		Days:        meta.Window.Days(),
		GeneratedAt: meta.GeneratedAt.UTC().Format("2006-01-02 15:04:05 MST"),
		Sources: []model.Provenance{
			model.ProvenanceSearch,
			model.ProvenanceShopping,
			model.ProvenancePMax,
		},
	}

	byCategory := make(map[string]*reportTotal)
	bySource := make(map[string]*reportTotal)

	for _, t := range terms {
		row := t.ToRow()

		rr := reportRow{
			Term:     t.Term,
			Source:   t.Source,
			Category: row.Category,
			Method:   row.Method,
			Metrics:  t.Metrics,
		}
		if row.Confidence != nil {
			rr.Confidence = message.NewPrinter(language.English).Sprintf("%.2f", *row.Confidence)
		}
		data.Rows = append(data.Rows, rr)

		addTotal(byCategory, row.Category, t.Metrics)
		addTotal(bySource, string(t.Source), t.Metrics)
	}

	data.CategoryTotals = sortedTotals(byCategory)
	data.SourceTotals = sortedTotals(bySource)
	return data
}

func addTotal(m map[string]*reportTotal, label string, metrics model.Metrics) {
	t, ok := m[label]
	if !ok {
		t = &reportTotal{Label: label}
		m[label] = t
	}
	t.Rows++
	t.Impressions += metrics.Impressions
	t.Clicks += metrics.Clicks
	t.Cost += metrics.Cost()
	t.Conversions += metrics.Conversions
	t.ConversionsValue += metrics.ConversionsValue
}

func sortedTotals(m map[string]*reportTotal) []reportTotal {
	out := make([]reportTotal, 0, len(m))
	for _, t := range m {
		out = append(out, *t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Impressions != out[j].Impressions {
			return out[i].Impressions > out[j].Impressions
		}
		return out[i].Label < out[j].Label
	})
	return out
}

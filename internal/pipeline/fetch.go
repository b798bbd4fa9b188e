package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/searchterm-cli/internal/account"
	"github.com/sells-group/searchterm-cli/internal/model"
	"github.com/sells-group/searchterm-cli/pkg/googleads"
)

const searchTermQuery = `
SELECT
    search_term_view.search_term,
    campaign.advertising_channel_type,
    metrics.impressions,
    metrics.clicks,
    metrics.cost_micros,
    metrics.conversions,
    metrics.conversions_value
FROM search_term_view
WHERE segments.date BETWEEN '%s' AND '%s'
    AND campaign.advertising_channel_type IN ('SEARCH', 'SHOPPING')
    AND metrics.impressions > 0
ORDER BY metrics.impressions DESC`

const pmaxCampaignQuery = `
SELECT
    campaign.id,
    campaign.name
FROM campaign
WHERE campaign.advertising_channel_type = 'PERFORMANCE_MAX'
    AND campaign.status != 'REMOVED'`

// campaign_search_term_insight exposes impressions, clicks, conversions and
// conversions_value only; cost_micros is not queryable for this resource.
const pmaxCategoryQuery = `
SELECT
    campaign_search_term_insight.category_label,
    metrics.impressions,
    metrics.clicks,
    metrics.conversions,
    metrics.conversions_value
FROM campaign_search_term_insight
WHERE campaign.id = %s
    AND segments.date BETWEEN '%s' AND '%s'
ORDER BY metrics.impressions DESC`

// FetchResult holds both raw datasets from the fetch stage.
type FetchResult struct {
	Terms      []model.RawTermRecord
	Categories []model.CategoryRecord
}

// Fetch pulls the two raw datasets for the account concurrently. The search
// term dataset is mandatory and its failure aborts the run. The automated
// campaign dataset is optional: accounts without Performance Max campaigns,
// or API errors on that side, degrade to an empty category set.
func Fetch(ctx context.Context, client googleads.Client, acc account.Account, window account.DateRange) (*FetchResult, error) {
	result := &FetchResult{}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		terms, err := fetchSearchTerms(gCtx, client, acc, window)
		if err != nil {
			return err
		}
		result.Terms = terms
		return nil
	})

	g.Go(func() error {
		categories, err := fetchPMaxCategories(gCtx, client, acc, window)
		if err != nil {
			zap.L().Warn("fetch: pmax categories unavailable, continuing without",
				zap.String("account", acc.Key),
				zap.Error(err),
			)
			return nil
		}
		result.Categories = categories
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	zap.L().Info("fetch: complete",
		zap.String("account", acc.Key),
		zap.Int("term_rows", len(result.Terms)),
		zap.Int("category_rows", len(result.Categories)),
	)
	return result, nil
}

func fetchSearchTerms(ctx context.Context, client googleads.Client, acc account.Account, window account.DateRange) ([]model.RawTermRecord, error) {
	rows, err := client.Search(ctx, googleads.SearchRequest{
		CustomerID:      acc.ID,
		LoginCustomerID: acc.Login(),
		Query:           fmt.Sprintf(searchTermQuery, window.StartDate(), window.EndDate()),
	})
	if err != nil {
		return nil, err
	}

	records := make([]model.RawTermRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, model.RawTermRecord{
			Term:    row.Get("searchTermView.searchTerm"),
			Channel: model.ParseChannel(row.Get("campaign.advertisingChannelType")),
			Metrics: metricsFromRow(row, true),
		})
	}
	return records, nil
}

func fetchPMaxCategories(ctx context.Context, client googleads.Client, acc account.Account, window account.DateRange) ([]model.CategoryRecord, error) {
	campaignRows, err := client.Search(ctx, googleads.SearchRequest{
		CustomerID:      acc.ID,
		LoginCustomerID: acc.Login(),
		Query:           pmaxCampaignQuery,
	})
	if err != nil {
		return nil, err
	}
	if len(campaignRows) == 0 {
		zap.L().Info("fetch: no pmax campaigns", zap.String("account", acc.Key))
		return nil, nil
	}

	var records []model.CategoryRecord
	for _, campaign := range campaignRows {
		id := campaign.Get("campaign.id")
		name := campaign.Get("campaign.name")

		rows, err := client.Search(ctx, googleads.SearchRequest{
			CustomerID:      acc.ID,
			LoginCustomerID: acc.Login(),
			Query:           fmt.Sprintf(pmaxCategoryQuery, id, window.StartDate(), window.EndDate()),
		})
		if err != nil {
			// A single campaign failing does not sink the rest.
			zap.L().Warn("fetch: pmax categories failed for campaign",
				zap.String("campaign", name),
				zap.Error(err),
			)
			continue
		}

		for _, row := range rows {
			category := row.Get("campaignSearchTermInsight.categoryLabel")
			if category == "" {
				// Google withholds some insight data entirely.
				category = "Uncategorized"
			}
			records = append(records, model.CategoryRecord{
				Category: category,
				Campaign: name,
				Metrics:  metricsFromRow(row, false),
			})
		}
	}
	return records, nil
}

func metricsFromRow(row googleads.Row, withCost bool) model.Metrics {
	m := model.Metrics{
		Impressions:      row.GetInt("metrics.impressions"),
		Clicks:           row.GetInt("metrics.clicks"),
		Conversions:      row.GetFloat("metrics.conversions"),
		ConversionsValue: row.GetFloat("metrics.conversionsValue"),
	}
	if withCost {
		m.CostMicros = row.GetInt("metrics.costMicros")
	}
	return m
}

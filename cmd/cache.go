package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/searchterm-cli/internal/model"
	"github.com/sells-group/searchterm-cli/internal/pipeline"
	"github.com/sells-group/searchterm-cli/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the classification cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and age for an account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		alias, _ := cmd.Flags().GetString("account")
		acc, err := lookupAccount(alias)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		stats, err := st.CacheStats(ctx, acc.Key)
		if err != nil {
			return eris.Wrap(err, "cache stats")
		}

		fmt.Fprintf(os.Stdout, "Account:    %s\n", stats.Account)
		fmt.Fprintf(os.Stdout, "Entries:    %d\n", stats.Entries)
		fmt.Fprintf(os.Stdout, "Categories: %d\n", stats.Categories)
		if stats.Entries > 0 {
			fmt.Fprintf(os.Stdout, "Oldest:     %s\n", stats.OldestAt)
			fmt.Fprintf(os.Stdout, "Newest:     %s\n", stats.NewestAt)
		}
		return nil
	},
}

var cacheDistributionCmd = &cobra.Command{
	Use:   "distribution",
	Short: "Show cached classifications per category",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		alias, _ := cmd.Flags().GetString("account")
		acc, err := lookupAccount(alias)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		dist, err := st.CacheDistribution(ctx, acc.Key)
		if err != nil {
			return eris.Wrap(err, "cache distribution")
		}
		if len(dist) == 0 {
			fmt.Fprintln(os.Stderr, "Cache is empty.")
			return nil
		}

		total := 0
		for _, d := range dist {
			total += d.Count
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Category", "Terms", "Share"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, d := range dist {
			share := fmt.Sprintf("%.1f%%", 100*float64(d.Count)/float64(total))
			table.Append([]string{d.Category, strconv.Itoa(d.Count), share})
		}
		table.Render()
		return nil
	},
}

var cacheSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Override the cached category for one term",
	Long:  "Writes a manual classification into the cache so the next run reuses it instead of the rule or LLM result.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		alias, _ := cmd.Flags().GetString("account")
		term, _ := cmd.Flags().GetString("term")
		category, _ := cmd.Flags().GetString("category")
		confidence, _ := cmd.Flags().GetFloat64("confidence")

		acc, err := lookupAccount(alias)
		if err != nil {
			return err
		}

		category = strings.ToLower(strings.TrimSpace(category))
		taxonomy := pipeline.Taxonomy(acc)
		valid := false
		for _, cat := range taxonomy {
			if category == cat {
				valid = true
				break
			}
		}
		if !valid {
			return eris.Errorf("invalid category %q, valid: %s", category, strings.Join(taxonomy, ", "))
		}

		normalized := model.NormalizeTerm(term)
		if normalized == "" {
			return eris.New("term must not be empty")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		err = st.PutClassifications(ctx, acc.Key, map[string]store.CachedClass{
			normalized: {Category: category, Confidence: confidence},
		})
		if err != nil {
			return eris.Wrap(err, "cache set")
		}
		fmt.Fprintf(os.Stdout, "Set %q to category %s for %s.\n", normalized, category, acc.Key)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached classifications for an account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		alias, _ := cmd.Flags().GetString("account")
		acc, err := lookupAccount(alias)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		n, err := st.ClearCache(ctx, acc.Key)
		if err != nil {
			return eris.Wrap(err, "cache clear")
		}
		fmt.Fprintf(os.Stdout, "Deleted %d cached classifications for %s.\n", n, acc.Key)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{cacheStatsCmd, cacheDistributionCmd, cacheSetCmd, cacheClearCmd} {
		c.Flags().String("account", "", "account key or alias (required)")
		_ = c.MarkFlagRequired("account")
		cacheCmd.AddCommand(c)
	}
	cacheSetCmd.Flags().String("term", "", "search term to override (required)")
	cacheSetCmd.Flags().String("category", "", "category to assign (required)")
	cacheSetCmd.Flags().Float64("confidence", 1.0, "confidence stored with the override")
	_ = cacheSetCmd.MarkFlagRequired("term")
	_ = cacheSetCmd.MarkFlagRequired("category")
	rootCmd.AddCommand(cacheCmd)
}

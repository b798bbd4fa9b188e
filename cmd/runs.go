package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/searchterm-cli/internal/model"
	"github.com/sells-group/searchterm-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		alias, _ := cmd.Flags().GetString("account")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
		}
		if alias != "" {
			acc, err := lookupAccount(alias)
			if err != nil {
				return err
			}
			filter.Account = acc.Key
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list runs")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CREATED\tACCOUNT\tWINDOW\tSTATUS\tTERMS\tUNCLASSIFIED\tLLM COST")
		for _, r := range runs {
			terms, unclassified, cost := "-", "-", "-"
			if r.Result != nil {
				terms = fmt.Sprintf("%d", r.Result.CombinedTerms)
				unclassified = fmt.Sprintf("%d", r.Result.Unclassified)
				cost = fmt.Sprintf("$%.4f", r.Result.LLMCostUSD)
			}
			fmt.Fprintf(w, "%s\t%s\t%s..%s\t%s\t%s\t%s\t%s\n",
				r.CreatedAt.Local().Format("2006-01-02 15:04"),
				r.Account, r.StartDate, r.EndDate, r.Status,
				terms, unclassified, cost,
			)
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.Flags().String("account", "", "filter by account key or alias")
	runsCmd.Flags().String("status", "", "filter by status (running|complete|failed)")
	runsCmd.Flags().Int("limit", 20, "max runs to list")

	rootCmd.AddCommand(runsCmd)
}

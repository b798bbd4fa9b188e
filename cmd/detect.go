package main

import (
	"fmt"
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/searchterm-cli/internal/model"
	"github.com/sells-group/searchterm-cli/internal/pipeline"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect sold-brand candidates in a combined CSV",
	Long:  "Runs the n-gram frequency heuristic over a combined or aggregated CSV file and prints the sold-brand candidates, without touching the API or the cache.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		input, _ := cmd.Flags().GetString("input")
		brands, _ := cmd.Flags().GetStringSlice("brand")
		competitors, _ := cmd.Flags().GetStringSlice("competitor")
		minFreq, _ := cmd.Flags().GetInt("min-frequency")
		topN, _ := cmd.Flags().GetInt("top")

		data, err := os.ReadFile(input)
		if err != nil {
			return eris.Wrapf(err, "read %s", input)
		}
		var rows []model.CombinedTerm
		if err := csvutil.Unmarshal(data, &rows); err != nil {
			return eris.Wrapf(err, "parse %s", input)
		}

		terms := make([]string, len(rows))
		for i, r := range rows {
			terms[i] = r.Term
		}

		cfg := pipeline.DefaultNgramConfig()
		if minFreq > 0 {
			cfg.MinFrequency = minFreq
		}
		if topN > 0 {
			cfg.TopN = topN
		}

		candidates := pipeline.DetectSoldBrands(terms, brands, competitors, cfg)
		if len(candidates) == 0 {
			fmt.Fprintln(os.Stderr, "No sold-brand candidates found.")
			return nil
		}
		for _, c := range candidates {
			fmt.Fprintln(os.Stdout, c)
		}
		return nil
	},
}

func init() {
	detectCmd.Flags().String("input", "", "combined or aggregated CSV file (required)")
	detectCmd.Flags().StringSlice("brand", nil, "own-brand terms to exclude")
	detectCmd.Flags().StringSlice("competitor", nil, "competitor terms to exclude")
	detectCmd.Flags().Int("min-frequency", 0, "minimum term occurrences for a candidate")
	detectCmd.Flags().Int("top", 0, "number of candidates to print")
	_ = detectCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(detectCmd)
}

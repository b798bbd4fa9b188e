package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/searchterm-cli/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full classification pipeline for an account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		alias, _ := cmd.Flags().GetString("account")
		days, _ := cmd.Flags().GetInt("days")
		runLLM, _ := cmd.Flags().GetBool("run-llm")
		llmLimit, _ := cmd.Flags().GetInt("llm-limit")
		skipOpen, _ := cmd.Flags().GetBool("skip-open")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

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

		adsClient, err := initAdsClient()
		if err != nil {
			return err
		}

		aiClient := initAnthropic()
		if runLLM && aiClient == nil {
			return eris.New("--run-llm requires an Anthropic API key (SEARCHTERM_ANTHROPIC_KEY)")
		}

		p := pipeline.New(cfg, st, adsClient, aiClient)
		result, err := p.Run(ctx, acc, pipeline.RunOptions{
			Days:     days,
			RunLLM:   runLLM,
			LLMLimit: llmLimit,
			SkipOpen: skipOpen,
			DryRun:   dryRun,
		})
		if err != nil {
			zap.L().Error("run failed", zap.Error(err))
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal result")
		}
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	},
}

func init() {
	runCmd.Flags().String("account", "", "account key or alias (required)")
	runCmd.Flags().Int("days", 30, "reporting window in days, ending yesterday")
	runCmd.Flags().Bool("run-llm", false, "classify leftover terms with the LLM")
	runCmd.Flags().Int("llm-limit", 0, "max terms to send to the LLM (0 = no cap)")
	runCmd.Flags().Bool("skip-open", false, "do not open the HTML report when done")
	runCmd.Flags().Bool("dry-run", false, "fetch and aggregate only; print counts and LLM cost estimate")
	_ = runCmd.MarkFlagRequired("account")

	rootCmd.AddCommand(runCmd)
}

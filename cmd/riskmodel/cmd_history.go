package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/riskstack/riskmodel/internal/config"
	"github.com/riskstack/riskmodel/internal/history"
	"github.com/riskstack/riskmodel/internal/utils"
)

func newHistoryCommand(configPath *string) *cobra.Command {
	var (
		task  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded model selection decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return historyE(cmd.Context(), cmd.OutOrStdout(), *configPath, task, limit)
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "Only list decisions for this task")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to list (0 for all)")
	return cmd
}

func newSummaryCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Write the cross-task benchmark summary from recorded decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return summaryE(cmd.Context(), cmd.OutOrStdout(), *configPath)
		},
	}
}

func openLedger(configPath string) (*config.Config, *history.Ledger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.History.Enabled {
		return nil, nil, utils.InvalidInput("history", "history ledger is disabled")
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON, nil)
	ledger, err := history.Open(cfg.History.Path, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, ledger, nil
}

func historyE(ctx context.Context, out io.Writer, configPath, task string, limit int) error {
	_, ledger, err := openLedger(configPath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	entries, err := ledger.List(ctx, task, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tTASK\tMODEL\tMETRIC\tSCORE\tCOMMIT\tRUN")
	for _, e := range entries {
		commit := e.GitCommit
		if len(commit) > 8 {
			commit = commit[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.6f\t%s\t%s\n",
			utils.FormatISO(e.RecordedAt), e.Task, e.Summary.SelectedModel,
			e.Summary.MetricName, e.Summary.MetricScore, commit, e.RunID)
	}
	return tw.Flush()
}

func summaryE(ctx context.Context, out io.Writer, configPath string) error {
	cfg, ledger, err := openLedger(configPath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	summary, err := history.Benchmark(ctx, ledger, cfg.TaskNames(), nil)
	if err != nil {
		return err
	}
	path := filepath.Join(cfg.Output.Dir, history.BenchmarkFile)
	if err := history.WriteBenchmark(path, summary); err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

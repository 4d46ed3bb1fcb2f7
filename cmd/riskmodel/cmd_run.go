package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/riskstack/riskmodel/internal/config"
	"github.com/riskstack/riskmodel/internal/decision"
	"github.com/riskstack/riskmodel/internal/engine"
	"github.com/riskstack/riskmodel/internal/history"
	"github.com/riskstack/riskmodel/internal/lock"
	"github.com/riskstack/riskmodel/internal/metrics"
	"github.com/riskstack/riskmodel/internal/telemetry"
	"github.com/riskstack/riskmodel/internal/utils"
)

func newRunCommand(configPath *string) *cobra.Command {
	var tasks []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Train the catalogue and write decision summaries",
		Long: `Run loads the configured policy extract, trains every available algorithm
for each task, selects the best model on the hold-out split and writes
<output.dir>/<task>_decision_summary.json plus a cross-task benchmark summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runE(ctx, cmd.OutOrStdout(), *configPath, tasks)
		},
	}
	cmd.Flags().StringSliceVar(&tasks, "task", nil, "Only run the named tasks (repeatable)")
	return cmd
}

func runE(ctx context.Context, out io.Writer, configPath string, only []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	for _, name := range only {
		if !slices.Contains(cfg.TaskNames(), name) {
			return utils.InvalidInput("run", "unknown task %q, configured %v", name, cfg.TaskNames())
		}
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)
	logger.Info("starting riskmodel", slog.String("version", version), slog.String("config", cfg.String()))

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName, version, cfg.Telemetry.Insecure)
	if err != nil {
		logger.Warn("tracing disabled", slog.Any("error", err))
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("trace flush failed", slog.Any("error", err))
			}
		}()
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Lock.Addr != "" {
		valkey, err := lock.NewValkeyLocker(lock.ValkeyConfig{
			Addr:         cfg.Lock.Addr,
			Username:     cfg.Lock.Username,
			Password:     cfg.Lock.Password,
			DB:           cfg.Lock.DB,
			DialTimeout:  cfg.Lock.DialTimeout,
			ReadTimeout:  cfg.Lock.ReadTimeout,
			WriteTimeout: cfg.Lock.WriteTimeout,
			MaxRetries:   cfg.Lock.MaxRetries,
			TLS:          cfg.Lock.TLS,
			TTL:          cfg.Lock.TTL,
		})
		if err != nil {
			logger.Warn("valkey lock unavailable, locking in-process", slog.Any("error", err))
		} else {
			locker = valkey
		}
	}
	defer locker.Close()

	rules, err := decision.LoadRules(cfg.Rules.Path, logger)
	if err != nil {
		return err
	}

	tracker := utils.NewFitTracker(0)
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithLocker(locker),
		engine.WithRules(rules),
		engine.WithFitTracker(tracker),
		engine.WithTracer(telemetry.Tracer()),
		engine.WithGitCommit(utils.GitCommit(".")),
		engine.WithTasks(only...),
	}
	if cfg.History.Enabled {
		ledger, err := history.Open(cfg.History.Path, logger)
		if err != nil {
			return err
		}
		defer ledger.Close()
		opts = append(opts, engine.WithLedger(ledger))
	}

	pipeline, err := engine.NewPipeline(*cfg, opts...)
	if err != nil {
		return err
	}

	start := time.Now()
	report, runErr := pipeline.Run(ctx)

	if cfg.Metrics.TextfilePath != "" {
		if err := metrics.WriteTextfile(reg, cfg.Metrics.TextfilePath); err != nil {
			logger.Warn("metrics textfile not written", slog.Any("error", err))
		}
	}
	for _, model := range tracker.Models() {
		logger.Debug("fit duration",
			slog.String("model", model),
			slog.Int("fits", tracker.Count(model)),
			slog.Duration("p50", tracker.Percentile(model, 50)),
			slog.Duration("p95", tracker.Percentile(model, 95)),
		)
	}
	if runErr != nil {
		return runErr
	}

	printReport(out, report)
	logger.Info("riskmodel finished", slog.Duration("elapsed", time.Since(start)))
	return nil
}

func printReport(out io.Writer, report engine.RunReport) {
	for _, o := range report.Outcomes {
		fmt.Fprintf(out, "%-20s %-22s %s=%.6f  %s\n",
			o.Task, o.Summary.SelectedModel, o.Summary.MetricName, o.Summary.MetricScore, o.ArtifactPath)
		for _, w := range o.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
	}
	if report.BenchmarkPath != "" {
		fmt.Fprintf(out, "benchmark summary: %s\n", report.BenchmarkPath)
	}
}

func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.Logging.File != "" {
		fw, closer, err := utils.OpenLogFile(cfg.Logging.File)
		if err != nil {
			return nil, nil, err
		}
		w = fw
		closeFn = func() { closer.Close() }
	}
	return utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON, w), closeFn, nil
}

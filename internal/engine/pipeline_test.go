package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/riskstack/riskmodel/internal/config"
	"github.com/riskstack/riskmodel/internal/dataset"
	"github.com/riskstack/riskmodel/internal/decision"
	"github.com/riskstack/riskmodel/internal/history"
	"github.com/riskstack/riskmodel/internal/learn"
	"github.com/riskstack/riskmodel/internal/lock"
	"github.com/riskstack/riskmodel/internal/models"
	"github.com/riskstack/riskmodel/internal/utils"
)

var fixedTime = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSample(t *testing.T, rows int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := dataset.Generate(&buf, rows, 42); err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "policies.txt")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func testConfig(t *testing.T, dataPath string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Data.Path = dataPath
	cfg.Output.Dir = filepath.Join(t.TempDir(), "reports")
	cfg.Algorithms = map[string]config.AlgorithmConfig{
		learn.KeyRandomForest:     {Params: learn.Params{NEstimators: 15, MaxDepth: 5}},
		learn.KeyGradientBoosting: {Params: learn.Params{NEstimators: 20}},
		learn.KeyXGBoost:          {Params: learn.Params{NEstimators: 20, MaxDepth: 4}},
	}
	return cfg
}

func newPipeline(t *testing.T, cfg config.Config, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return fixedTime }),
	}, opts...)
	p, err := NewPipeline(cfg, opts...)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestRunWritesArtifactsForEveryTask(t *testing.T) {
	cfg := testConfig(t, writeSample(t, 300))
	cfg.Output.SaveModels = true

	ledger, err := history.Open(filepath.Join(t.TempDir(), "history.sqlite"), quietLogger())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer ledger.Close()

	tracker := utils.NewFitTracker(0)
	p := newPipeline(t, cfg, WithLedger(ledger), WithFitTracker(tracker), WithGitCommit("deadbeef"))
	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(report.Outcomes))
	}

	for _, out := range report.Outcomes {
		saved, err := decision.Load(out.ArtifactPath)
		if err != nil {
			t.Fatalf("load %s: %v", out.ArtifactPath, err)
		}
		if saved.SelectedModel != out.Summary.SelectedModel {
			t.Fatalf("%s: artifact names %s, outcome %s", out.Task, saved.SelectedModel, out.Summary.SelectedModel)
		}
		first := saved.ModelRankings[0]
		if first.Rank != 1 || first.ModelName != saved.SelectedModel || first.Score != saved.MetricScore {
			t.Fatalf("%s: rank-1 entry %+v disagrees with selection", out.Task, first)
		}
		if saved.Timestamp != "2026-02-03T04:05:06.000000+00:00" {
			t.Fatalf("unexpected timestamp %s", saved.Timestamp)
		}
		if out.RunID == "" {
			t.Fatalf("%s: expected ledger run id", out.Task)
		}
		if _, err := learn.LoadModel(out.ModelPath); err != nil {
			t.Fatalf("%s: load model: %v", out.Task, err)
		}
	}

	claim := report.Outcomes[2]
	if claim.Summary.TaskType != models.TaskClassification || claim.Summary.MetricName != models.MetricF1 {
		t.Fatalf("claim probability should rank by f1: %+v", claim.Summary)
	}
	if len(claim.Summary.ModelRankings) != 5 {
		t.Fatalf("expected 5 classifiers ranked, got %d", len(claim.Summary.ModelRankings))
	}

	entries, err := ledger.List(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(entries))
	}
	for _, e := range entries {
		content, err := os.ReadFile(e.ArtifactPath)
		if err != nil {
			t.Fatalf("read artifact: %v", err)
		}
		if history.HashContent(content) != e.ContentHash {
			t.Fatalf("%s: ledger hash does not match artifact", e.Task)
		}
		if e.GitCommit != "deadbeef" {
			t.Fatalf("unexpected commit %s", e.GitCommit)
		}
	}

	data, err := os.ReadFile(report.BenchmarkPath)
	if err != nil {
		t.Fatalf("read benchmark: %v", err)
	}
	var bench map[string]string
	if err := json.Unmarshal(data, &bench); err != nil {
		t.Fatalf("decode benchmark: %v", err)
	}
	for _, key := range []string{"severity_model", "premium_model", "claim_probability_model"} {
		if bench[key] == "" {
			t.Fatalf("benchmark missing %s: %v", key, bench)
		}
	}
	if len(tracker.Models()) == 0 {
		t.Fatalf("expected fit durations to be tracked")
	}
}

func TestRunIsReproducible(t *testing.T) {
	dataPath := writeSample(t, 200)
	cfgA := testConfig(t, dataPath)
	cfgB := testConfig(t, dataPath)

	if _, err := newPipeline(t, cfgA).Run(context.Background()); err != nil {
		t.Fatalf("run A: %v", err)
	}
	if _, err := newPipeline(t, cfgB).Run(context.Background()); err != nil {
		t.Fatalf("run B: %v", err)
	}
	for _, task := range cfgA.TaskNames() {
		a, err := os.ReadFile(ArtifactPath(cfgA.Output.Dir, task))
		if err != nil {
			t.Fatalf("read A: %v", err)
		}
		b, err := os.ReadFile(ArtifactPath(cfgB.Output.Dir, task))
		if err != nil {
			t.Fatalf("read B: %v", err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("%s: artifacts differ between identical runs", task)
		}
	}
}

func TestRunToleratesDisabledAlgorithms(t *testing.T) {
	cfg := testConfig(t, writeSample(t, 200))
	off := false
	cfg.Algorithms[learn.KeyXGBoost] = config.AlgorithmConfig{Enabled: &off}
	cfg.Tasks = []dataset.TaskSpec{{Name: "premium", Target: dataset.ColTotalPremium, Type: models.TaskRegression}}

	report, err := newPipeline(t, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	out := report.Outcomes[0]
	if len(out.Summary.ModelRankings) != 4 {
		t.Fatalf("expected 4 ranked regressors, got %d", len(out.Summary.ModelRankings))
	}
	if len(out.Warnings) != 1 || !errors.Is(out.Warnings[0].Err, utils.ErrAlgorithmUnavailable) {
		t.Fatalf("expected one unavailable warning, got %v", out.Warnings)
	}
}

func TestRunFailsWhenNothingTrains(t *testing.T) {
	cfg := testConfig(t, writeSample(t, 100))
	off := false
	cfg.Algorithms = map[string]config.AlgorithmConfig{}
	for _, e := range learn.Registry() {
		cfg.Algorithms[e.Key] = config.AlgorithmConfig{Enabled: &off}
	}
	cfg.Tasks = cfg.Tasks[:1]

	_, err := newPipeline(t, cfg).Run(context.Background())
	if !errors.Is(err, utils.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if _, statErr := os.Stat(ArtifactPath(cfg.Output.Dir, cfg.Tasks[0].Name)); !os.IsNotExist(statErr) {
		t.Fatalf("no artifact should be written when nothing trains")
	}
}

func TestRunMissingData(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "absent.txt"))
	_, err := newPipeline(t, cfg).Run(context.Background())
	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type blockingLocker struct{}

func (blockingLocker) Acquire(ctx context.Context, _ string) (lock.Release, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingLocker) Close() error { return nil }

func TestPersistHonoursLockTimeout(t *testing.T) {
	cfg := testConfig(t, writeSample(t, 100))
	cfg.Lock.Timeout = 20 * time.Millisecond
	cfg.Tasks = cfg.Tasks[1:2]

	_, err := newPipeline(t, cfg, WithLocker(blockingLocker{})).Run(context.Background())
	if !errors.Is(err, utils.ErrIO) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected lock timeout, got %v", err)
	}
}

func readBenchmark(t *testing.T, path string) map[string]string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read benchmark: %v", err)
	}
	var bench map[string]string
	if err := json.Unmarshal(data, &bench); err != nil {
		t.Fatalf("decode benchmark: %v", err)
	}
	return bench
}

func TestFilteredRunKeepsFullBenchmark(t *testing.T) {
	withLedger := func(t *testing.T) []Option {
		ledger, err := history.Open(filepath.Join(t.TempDir(), "history.sqlite"), quietLogger())
		if err != nil {
			t.Fatalf("open ledger: %v", err)
		}
		t.Cleanup(func() { ledger.Close() })
		return []Option{WithLedger(ledger)}
	}
	withoutLedger := func(*testing.T) []Option { return nil }

	for name, opts := range map[string]func(*testing.T) []Option{"ledger": withLedger, "artifacts": withoutLedger} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t, writeSample(t, 300))
			base := opts(t)

			if _, err := newPipeline(t, cfg, base...).Run(context.Background()); err != nil {
				t.Fatalf("full run: %v", err)
			}
			report, err := newPipeline(t, cfg, append(base, WithTasks("severity"))...).Run(context.Background())
			if err != nil {
				t.Fatalf("filtered run: %v", err)
			}
			if len(report.Outcomes) != 1 || report.Outcomes[0].Task != "severity" {
				t.Fatalf("expected only severity to run, got %+v", report.Outcomes)
			}

			bench := readBenchmark(t, report.BenchmarkPath)
			for _, key := range []string{"severity_model", "premium_model", "claim_probability_model"} {
				if bench[key] == "" {
					t.Fatalf("filtered run dropped %s: %v", key, bench)
				}
			}
		})
	}
}

func TestWithTasksRejectsUnknownTask(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "absent.txt"))
	_, err := NewPipeline(cfg, WithTasks("premium", "reserving"))
	if !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRunLogsCategoricalEncoding(t *testing.T) {
	cfg := testConfig(t, writeSample(t, 100))
	cfg.Tasks = cfg.Tasks[1:2]

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if _, err := newPipeline(t, cfg, WithLogger(logger)).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(logs.String(), "categorical encoding") {
		t.Fatalf("expected encoded levels in debug log")
	}
	if !strings.Contains(logs.String(), "encoded_columns=") {
		t.Fatalf("expected encoded column count in dataset log")
	}
}

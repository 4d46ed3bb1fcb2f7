// Package engine runs the end-to-end model selection flow for each
// configured task.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/riskstack/riskmodel/internal/config"
	"github.com/riskstack/riskmodel/internal/dataset"
	"github.com/riskstack/riskmodel/internal/decision"
	"github.com/riskstack/riskmodel/internal/history"
	"github.com/riskstack/riskmodel/internal/learn"
	"github.com/riskstack/riskmodel/internal/lock"
	"github.com/riskstack/riskmodel/internal/metrics"
	"github.com/riskstack/riskmodel/internal/models"
	"github.com/riskstack/riskmodel/internal/selection"
	"github.com/riskstack/riskmodel/internal/training"
	"github.com/riskstack/riskmodel/internal/utils"
)

// Ledger records saved decision artifacts.
type Ledger interface {
	Record(ctx context.Context, task, artifactPath, gitCommit string, summary models.DecisionSummary, content []byte) (history.Entry, error)
}

// Pipeline orchestrates loading, training, selection and persistence.
type Pipeline struct {
	cfg       config.Config
	logger    *slog.Logger
	locker    lock.Locker
	ledger    Ledger
	rules     *decision.RuleSet
	tracker   *utils.FitTracker
	tracer    trace.Tracer
	clock     decision.Clock
	gitCommit string
	only      []string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLocker replaces the in-process artifact lock.
func WithLocker(locker lock.Locker) Option {
	return func(p *Pipeline) {
		if locker != nil {
			p.locker = locker
		}
	}
}

// WithLedger records every saved artifact.
func WithLedger(ledger Ledger) Option {
	return func(p *Pipeline) { p.ledger = ledger }
}

// WithRules appends rule-pack sentences to business impact text.
func WithRules(rules *decision.RuleSet) Option {
	return func(p *Pipeline) { p.rules = rules }
}

// WithFitTracker collects fit durations across tasks.
func WithFitTracker(tracker *utils.FitTracker) Option {
	return func(p *Pipeline) { p.tracker = tracker }
}

// WithTracer emits task and fit spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithClock fixes decision timestamps.
func WithClock(clock decision.Clock) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithGitCommit stamps ledger entries with a source revision.
func WithGitCommit(commit string) Option {
	return func(p *Pipeline) { p.gitCommit = commit }
}

// WithTasks restricts Run to the named tasks. The benchmark summary still
// covers every configured task.
func WithTasks(names ...string) Option {
	return func(p *Pipeline) { p.only = append(p.only, names...) }
}

// NewPipeline constructs a pipeline over a validated configuration.
func NewPipeline(cfg config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Tasks) == 0 {
		return nil, utils.InvalidInput("engine.NewPipeline", "no tasks configured")
	}
	p := &Pipeline{
		cfg:       cfg,
		logger:    slog.Default(),
		locker:    lock.NewLocalLocker(),
		tracer:    noop.NewTracerProvider().Tracer(""),
		gitCommit: utils.UnknownCommit,
	}
	for _, opt := range opts {
		opt(p)
	}
	configured := cfg.TaskNames()
	for _, name := range p.only {
		if !slices.Contains(configured, name) {
			return nil, utils.InvalidInput("engine.NewPipeline", "unknown task %q, configured %v", name, configured)
		}
	}
	return p, nil
}

// Tasks returns the task specs Run executes, in configuration order.
func (p *Pipeline) Tasks() []dataset.TaskSpec {
	if len(p.only) == 0 {
		return slices.Clone(p.cfg.Tasks)
	}
	var out []dataset.TaskSpec
	for _, spec := range p.cfg.Tasks {
		if slices.Contains(p.only, spec.Name) {
			out = append(out, spec)
		}
	}
	return out
}

// TaskOutcome is the result of one task.
type TaskOutcome struct {
	Task         string
	Summary      models.DecisionSummary
	ArtifactPath string
	ModelPath    string
	RunID        string
	Warnings     []training.Warning
}

// RunReport collects task outcomes in configuration order.
type RunReport struct {
	Outcomes      []TaskOutcome
	BenchmarkPath string
}

// ArtifactPath is where a task's decision summary is written.
func ArtifactPath(dir, task string) string {
	return filepath.Join(dir, task+"_decision_summary.json")
}

// ModelPath is where a task's selected model is written when enabled.
func ModelPath(dir, task string) string {
	return filepath.Join(dir, task+"_model.msgpack")
}

// Run executes the selected tasks concurrently over one loaded dataset.
// The first task error is returned after all tasks finish.
func (p *Pipeline) Run(ctx context.Context) (report RunReport, err error) {
	ctx, span := p.tracer.Start(ctx, "engine.run")
	defer func() {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeError
			span.RecordError(err)
			span.SetStatus(codes.Error, "run failed")
		}
		metrics.ObserveRun(outcome)
		span.End()
	}()

	sep, err := p.cfg.SeparatorRune()
	if err != nil {
		return RunReport{}, err
	}
	frame, err := dataset.Load(p.cfg.Data.Path, sep)
	if err != nil {
		return RunReport{}, err
	}
	prepared, encoding := dataset.Preprocess(frame)
	p.logger.Info("dataset prepared",
		slog.String("path", p.cfg.Data.Path),
		slog.Int("rows", prepared.Rows()),
		slog.Int("columns", len(prepared.Columns())),
		slog.Int("encoded_columns", len(encoding)),
	)
	for _, column := range slices.Sorted(maps.Keys(encoding)) {
		p.logger.Debug("categorical encoding",
			slog.String("column", column),
			slog.Int("levels", len(encoding[column])),
			slog.Any("codes", encoding[column]),
		)
	}

	if err := os.MkdirAll(p.cfg.Output.Dir, 0o755); err != nil {
		return RunReport{}, utils.NewAppError("engine.Run", utils.ErrIO, "create output directory", err)
	}

	tasks := p.Tasks()
	outcomes := make([]TaskOutcome, len(tasks))
	var g errgroup.Group
	for i, spec := range tasks {
		g.Go(func() error {
			out, err := p.RunTask(ctx, prepared, spec)
			if err != nil {
				return fmt.Errorf("task %s: %w", spec.Name, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RunReport{Outcomes: outcomes}, err
	}

	report = RunReport{Outcomes: outcomes}
	report.BenchmarkPath, err = p.writeBenchmark(ctx, outcomes)
	return report, err
}

// RunTask trains, selects and persists one task over a preprocessed frame.
func (p *Pipeline) RunTask(ctx context.Context, frame *dataset.Frame, spec dataset.TaskSpec) (TaskOutcome, error) {
	ctx, span := p.tracer.Start(ctx, "engine.task", trace.WithAttributes(
		attribute.String("riskmodel.task", spec.Name),
		attribute.String("riskmodel.task_type", string(spec.Type)),
	))
	defer span.End()

	out, err := p.runTask(ctx, frame, spec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "task failed")
		p.logger.Error("task failed", slog.String("task", spec.Name), slog.Any("error", err))
	}
	return out, err
}

func (p *Pipeline) runTask(ctx context.Context, frame *dataset.Frame, spec dataset.TaskSpec) (TaskOutcome, error) {
	feat, err := dataset.FeaturesTarget(frame, spec.Target, spec.FilterPositive)
	if err != nil {
		return TaskOutcome{}, err
	}
	part, err := dataset.Split(feat, p.cfg.Split.TestSize, p.cfg.Split.Seed)
	if err != nil {
		return TaskOutcome{}, err
	}
	if p.cfg.Split.Scale {
		if part, _, err = dataset.Scale(part); err != nil {
			return TaskOutcome{}, err
		}
	}

	candidates, unavailable, err := learn.Catalogue(spec.Type, p.cfg.CatalogueOptions())
	if err != nil {
		return TaskOutcome{}, err
	}
	trainer, err := training.NewTrainer(spec.Type, candidates,
		training.WithLogger(p.logger),
		training.WithTaskName(spec.Name),
		training.WithFitTracker(p.tracker),
		training.WithTracer(p.tracer),
		training.WithUnavailable(unavailable),
	)
	if err != nil {
		return TaskOutcome{}, err
	}
	report, err := trainer.Train(ctx, training.Split{
		XTrain: part.XTrain,
		YTrain: part.YTrain,
		XTest:  part.XTest,
		YTest:  part.YTest,
	})
	if err != nil {
		return TaskOutcome{}, err
	}

	sel, err := selection.Select(report.Results)
	if err != nil {
		return TaskOutcome{}, err
	}
	score, _ := sel.Best.TestScore(sel.MetricName)
	metrics.ObserveSelection(spec.Name, sel.MetricName, score)

	builderOpts := []decision.Option{decision.WithRules(p.rules), decision.WithTaskName(spec.Name)}
	if p.clock != nil {
		builderOpts = append(builderOpts, decision.WithClock(p.clock))
	}
	summary, err := decision.NewBuilder(builderOpts...).Build(sel.Best, spec.Type, sel.Ranking)
	if err != nil {
		return TaskOutcome{}, err
	}

	out := TaskOutcome{
		Task:         spec.Name,
		Summary:      summary,
		ArtifactPath: ArtifactPath(p.cfg.Output.Dir, spec.Name),
		Warnings:     report.Warnings,
	}
	content, err := p.persist(ctx, out.ArtifactPath, summary)
	if err != nil {
		return TaskOutcome{}, err
	}
	p.logger.Info("model selected",
		slog.String("task", spec.Name),
		slog.String("model", summary.SelectedModel),
		slog.String("metric", summary.MetricName),
		slog.Float64("score", summary.MetricScore),
		slog.Int("skipped", len(report.Warnings)),
		slog.String("artifact", out.ArtifactPath),
	)

	if p.cfg.Output.SaveModels {
		if trainable, ok := sel.Best.Model.(learn.Trainable); ok {
			path := ModelPath(p.cfg.Output.Dir, spec.Name)
			if err := learn.SaveModel(path, trainable); err != nil {
				return TaskOutcome{}, err
			}
			out.ModelPath = path
		}
	}

	if p.ledger != nil {
		entry, err := p.ledger.Record(ctx, spec.Name, out.ArtifactPath, p.gitCommit, summary, content)
		if err != nil {
			p.logger.Warn("history record failed", slog.String("task", spec.Name), slog.Any("error", err))
		} else {
			out.RunID = entry.RunID
		}
	}
	return out, nil
}

// persist writes the artifact under the path lock and returns the bytes written.
func (p *Pipeline) persist(ctx context.Context, path string, summary models.DecisionSummary) ([]byte, error) {
	content, err := decision.Marshal(summary)
	if err != nil {
		return nil, err
	}
	key, err := filepath.Abs(path)
	if err != nil {
		key = path
	}

	lockCtx := ctx
	if p.cfg.Lock.Timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, p.cfg.Lock.Timeout)
		defer cancel()
	}
	release, err := p.locker.Acquire(lockCtx, key)
	if err != nil {
		return nil, utils.NewAppError("engine.persist", utils.ErrIO, "lock "+path, err)
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			p.logger.Warn("lock release failed", slog.String("path", path), slog.Any("error", err))
		}
	}()

	if err := decision.Save(summary, path); err != nil {
		return nil, err
	}
	return content, nil
}

// writeBenchmark summarises every configured task, not only those run. The
// ledger supplies the latest decisions when present; otherwise tasks outside
// this run fall back to the artifact already on disk.
func (p *Pipeline) writeBenchmark(ctx context.Context, outcomes []TaskOutcome) (string, error) {
	src, ok := p.ledger.(history.Source)
	if !ok {
		byTask := make(map[string]history.Entry, len(outcomes))
		for _, o := range outcomes {
			byTask[o.Task] = history.Entry{Task: o.Task, Summary: o.Summary}
		}
		src = history.SourceFunc(func(_ context.Context, task string) (history.Entry, error) {
			if e, ok := byTask[task]; ok {
				return e, nil
			}
			path := ArtifactPath(p.cfg.Output.Dir, task)
			summary, err := decision.Load(path)
			if err != nil {
				return history.Entry{}, err
			}
			return history.Entry{Task: task, ArtifactPath: path, Summary: summary}, nil
		})
	}
	summary, err := history.Benchmark(ctx, src, p.cfg.TaskNames(), p.logger)
	if err != nil {
		return "", err
	}
	path := filepath.Join(p.cfg.Output.Dir, history.BenchmarkFile)
	if err := history.WriteBenchmark(path, summary); err != nil {
		return "", err
	}
	return path, nil
}


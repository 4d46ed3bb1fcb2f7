// Package training runs the algorithm catalogue for one task against a
// prepared train/test split.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/riskstack/riskmodel/internal/evaluation"
	"github.com/riskstack/riskmodel/internal/learn"
	"github.com/riskstack/riskmodel/internal/metrics"
	"github.com/riskstack/riskmodel/internal/models"
	"github.com/riskstack/riskmodel/internal/utils"
)

// Split is a train/test partition of a feature matrix and target vector.
type Split struct {
	XTrain [][]float64
	YTrain []float64
	XTest  [][]float64
	YTest  []float64
}

// Trainer fits every catalogue candidate for one task type.
type Trainer struct {
	logger      *slog.Logger
	task        models.TaskType
	taskName    string
	candidates  []learn.Candidate
	unavailable []error
	tracker     *utils.FitTracker
	tracer      trace.Tracer
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trainer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithTaskName labels logs, spans and metrics with a pipeline task name.
func WithTaskName(name string) Option {
	return func(t *Trainer) { t.taskName = name }
}

// WithFitTracker records fit durations per model.
func WithFitTracker(tracker *utils.FitTracker) Option {
	return func(t *Trainer) { t.tracker = tracker }
}

// WithTracer emits one span per fit.
func WithTracer(tracer trace.Tracer) Option {
	return func(t *Trainer) {
		if tracer != nil {
			t.tracer = tracer
		}
	}
}

// WithUnavailable records catalogue entries that were filtered out so they
// are reported alongside fit failures.
func WithUnavailable(errs []error) Option {
	return func(t *Trainer) { t.unavailable = append(t.unavailable, errs...) }
}

// NewTrainer constructs a trainer over an already filtered catalogue.
func NewTrainer(task models.TaskType, candidates []learn.Candidate, opts ...Option) (*Trainer, error) {
	if !task.Valid() {
		return nil, utils.InvalidInput("training.NewTrainer", "unsupported task type %q", task)
	}
	t := &Trainer{
		logger:     slog.Default(),
		task:       task,
		taskName:   string(task),
		candidates: candidates,
		tracer:     noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Warning records a catalogue entry that produced no result.
type Warning struct {
	Model string
	Err   error
}

func (w Warning) String() string {
	if w.Model == "" {
		return w.Err.Error()
	}
	return fmt.Sprintf("%s skipped: %v", w.Model, w.Err)
}

// Report is the outcome of one catalogue run. Results follow catalogue order.
type Report struct {
	Results  []models.TrainingResult
	Warnings []Warning
}

// Train fits each candidate on the training split, evaluates it on both
// splits and returns one TrainingResult per candidate that succeeded. A
// failing candidate is logged and skipped. Structural input problems fail
// before any fit.
func (t *Trainer) Train(ctx context.Context, split Split) (Report, error) {
	if err := t.validate(split); err != nil {
		return Report{}, err
	}

	var report Report
	for _, err := range t.unavailable {
		t.logger.Warn("algorithm unavailable", slog.String("task", t.taskName), slog.Any("error", err))
		report.Warnings = append(report.Warnings, Warning{Err: err})
	}

	for _, cand := range t.candidates {
		result, err := t.fitOne(ctx, cand, split)
		if err != nil {
			t.logger.Warn("algorithm skipped",
				slog.String("task", t.taskName),
				slog.String("model", cand.Name),
				slog.Any("error", err),
			)
			report.Warnings = append(report.Warnings, Warning{Model: cand.Name, Err: err})
			continue
		}
		t.logger.Info("algorithm trained",
			slog.String("task", t.taskName),
			slog.String("model", cand.Name),
			slog.Duration("duration", result.FitDuration),
			slog.Any("test_metrics", result.TestMetrics),
		)
		report.Results = append(report.Results, result)
	}
	return report, nil
}

func (t *Trainer) fitOne(ctx context.Context, cand learn.Candidate, split Split) (models.TrainingResult, error) {
	_, span := t.tracer.Start(ctx, "training.fit", trace.WithAttributes(
		attribute.String("riskmodel.task", t.taskName),
		attribute.String("riskmodel.model", cand.Name),
	))
	defer span.End()

	start := time.Now()
	result, err := t.evaluate(cand, split)
	elapsed := time.Since(start)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, "fit failed")
	}
	metrics.ObserveFit(t.taskName, cand.Name, elapsed, outcome)
	if t.tracker != nil {
		t.tracker.Observe(cand.Name, elapsed)
	}
	result.FitDuration = elapsed
	return result, err
}

func (t *Trainer) evaluate(cand learn.Candidate, split Split) (result models.TrainingResult, err error) {
	op := "training.Train." + cand.Name
	defer func() {
		if r := recover(); r != nil {
			result = models.TrainingResult{}
			err = asFitError(op, "panic", fmt.Errorf("%v", r))
		}
	}()
	model := cand.New()
	if err := model.Fit(split.XTrain, split.YTrain); err != nil {
		return models.TrainingResult{}, asFitError(op, "fit", err)
	}
	trainPred, err := model.Predict(split.XTrain)
	if err != nil {
		return models.TrainingResult{}, asFitError(op, "predict train", err)
	}
	testPred, err := model.Predict(split.XTest)
	if err != nil {
		return models.TrainingResult{}, asFitError(op, "predict test", err)
	}
	trainMetrics, err := evaluation.Metrics(t.task, split.YTrain, trainPred)
	if err != nil {
		return models.TrainingResult{}, asFitError(op, "train metrics", err)
	}
	testMetrics, err := evaluation.Metrics(t.task, split.YTest, testPred)
	if err != nil {
		return models.TrainingResult{}, asFitError(op, "test metrics", err)
	}
	return models.TrainingResult{
		ModelName:    cand.Name,
		TaskType:     t.task,
		Model:        model,
		TrainMetrics: trainMetrics,
		TestMetrics:  testMetrics,
	}, nil
}

func asFitError(op, msg string, err error) error {
	return utils.NewAppError(op, utils.ErrAlgorithmFit, msg, err)
}

func (t *Trainer) validate(split Split) error {
	const op = "training.Train"
	if len(split.XTrain) == 0 || len(split.XTest) == 0 {
		return utils.InvalidInput(op, "empty split: %d train rows, %d test rows", len(split.XTrain), len(split.XTest))
	}
	if len(split.XTrain) != len(split.YTrain) {
		return utils.InvalidInput(op, "train split has %d rows but %d targets", len(split.XTrain), len(split.YTrain))
	}
	if len(split.XTest) != len(split.YTest) {
		return utils.InvalidInput(op, "test split has %d rows but %d targets", len(split.XTest), len(split.YTest))
	}
	width := len(split.XTrain[0])
	if width == 0 {
		return utils.InvalidInput(op, "no feature columns")
	}
	parts := []struct {
		name string
		X    [][]float64
		y    []float64
	}{
		{"train", split.XTrain, split.YTrain},
		{"test", split.XTest, split.YTest},
	}
	for _, part := range parts {
		for i, row := range part.X {
			if len(row) != width {
				return utils.InvalidInput(op, "%s row %d has %d features, expected %d", part.name, i, len(row), width)
			}
		}
		if t.task != models.TaskClassification {
			continue
		}
		for i, v := range part.y {
			if v != 0 && v != 1 {
				return utils.InvalidInput(op, "%s label %v at row %d is not 0/1", part.name, v, i)
			}
		}
	}
	return nil
}

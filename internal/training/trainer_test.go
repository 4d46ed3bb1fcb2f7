package training

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskstack/riskmodel/internal/learn"
	"github.com/riskstack/riskmodel/internal/models"
	"github.com/riskstack/riskmodel/internal/utils"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func regressionSplit() Split {
	var s Split
	for i := 0; i < 40; i++ {
		x := []float64{float64(i), float64(i % 5)}
		y := 3*float64(i) + float64(i%5)
		if i%4 == 0 {
			s.XTest = append(s.XTest, x)
			s.YTest = append(s.YTest, y)
		} else {
			s.XTrain = append(s.XTrain, x)
			s.YTrain = append(s.YTrain, y)
		}
	}
	return s
}

func classificationSplit() Split {
	var s Split
	for i := 0; i < 40; i++ {
		x := []float64{float64(i), float64(i % 3)}
		y := 0.0
		if i >= 20 {
			y = 1
		}
		if i%4 == 0 {
			s.XTest = append(s.XTest, x)
			s.YTest = append(s.YTest, y)
		} else {
			s.XTrain = append(s.XTrain, x)
			s.YTrain = append(s.YTrain, y)
		}
	}
	return s
}

func newTrainer(t *testing.T, task models.TaskType, opts learn.Options) *Trainer {
	t.Helper()
	cands, unavailable, err := learn.Catalogue(task, opts)
	require.NoError(t, err)
	tr, err := NewTrainer(task, cands, WithLogger(quietLogger()), WithUnavailable(unavailable), WithFitTracker(utils.NewFitTracker(16)))
	require.NoError(t, err)
	return tr
}

func smallParams() map[string]learn.Params {
	small := learn.Params{NEstimators: 10}
	return map[string]learn.Params{
		learn.KeyRandomForest:     small,
		learn.KeyGradientBoosting: small,
		learn.KeyXGBoost:          small,
	}
}

func TestTrainRegressionCatalogue(t *testing.T) {
	tr := newTrainer(t, models.TaskRegression, learn.Options{Seed: 42, Overrides: smallParams()})
	report, err := tr.Train(context.Background(), regressionSplit())
	require.NoError(t, err)
	require.Len(t, report.Results, 5)
	assert.Empty(t, report.Warnings)

	names := make([]string, 0, len(report.Results))
	for _, r := range report.Results {
		names = append(names, r.ModelName)
		assert.Equal(t, models.TaskRegression, r.TaskType)
		assert.ElementsMatch(t, models.MetricNames(models.TaskRegression), keys(r.TestMetrics))
		assert.ElementsMatch(t, models.MetricNames(models.TaskRegression), keys(r.TrainMetrics))
		assert.GreaterOrEqual(t, r.TestMetrics[models.MetricRMSE], 0.0)
		assert.NotNil(t, r.Model)
	}
	assert.Equal(t, []string{"LinearRegression", "DecisionTree", "RandomForest", "GradientBoosting", "XGBoost"}, names)

	linear := report.Results[0]
	assert.InDelta(t, 1.0, linear.TestMetrics[models.MetricR2], 1e-9)
}

func TestTrainSkipsFailingAlgorithms(t *testing.T) {
	split := classificationSplit()
	for i := range split.YTrain {
		split.YTrain[i] = 0
	}

	tr := newTrainer(t, models.TaskClassification, learn.Options{Seed: 42, Overrides: smallParams()})
	report, err := tr.Train(context.Background(), split)
	require.NoError(t, err)

	var names []string
	for _, r := range report.Results {
		names = append(names, r.ModelName)
	}
	assert.Equal(t, []string{"DecisionTree", "RandomForest"}, names)
	require.Len(t, report.Warnings, 3)
	for _, w := range report.Warnings {
		assert.ErrorIs(t, w.Err, utils.ErrAlgorithmFit)
		assert.Contains(t, w.String(), w.Model)
	}
}

func TestTrainReportsUnavailableAlgorithms(t *testing.T) {
	tr := newTrainer(t, models.TaskClassification, learn.Options{
		Seed:      42,
		Disabled:  map[string]bool{learn.KeyXGBoost: true},
		Overrides: smallParams(),
	})
	report, err := tr.Train(context.Background(), classificationSplit())
	require.NoError(t, err)
	assert.Len(t, report.Results, 4)
	require.Len(t, report.Warnings, 1)
	assert.ErrorIs(t, report.Warnings[0].Err, utils.ErrAlgorithmUnavailable)
}

func TestTrainIsReproducible(t *testing.T) {
	run := func() []map[string]float64 {
		tr := newTrainer(t, models.TaskClassification, learn.Options{Seed: 7, Overrides: smallParams()})
		report, err := tr.Train(context.Background(), classificationSplit())
		require.NoError(t, err)
		var out []map[string]float64
		for _, r := range report.Results {
			out = append(out, r.TestMetrics)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestTrainRejectsStructuralProblems(t *testing.T) {
	tr := newTrainer(t, models.TaskClassification, learn.Options{})

	_, err := tr.Train(context.Background(), Split{})
	assert.ErrorIs(t, err, utils.ErrInvalidInput)

	split := classificationSplit()
	split.YTrain = split.YTrain[1:]
	_, err = tr.Train(context.Background(), split)
	assert.ErrorIs(t, err, utils.ErrInvalidInput)

	split = classificationSplit()
	split.XTest[0] = []float64{1}
	_, err = tr.Train(context.Background(), split)
	assert.ErrorIs(t, err, utils.ErrInvalidInput)

	split = classificationSplit()
	split.YTrain[0] = 3
	_, err = tr.Train(context.Background(), split)
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
}

func TestNewTrainerRejectsUnknownTask(t *testing.T) {
	_, err := NewTrainer(models.TaskType("clustering"), nil)
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
}

func TestTrainRecordsFitDurations(t *testing.T) {
	tracker := utils.NewFitTracker(8)
	cands, _, err := learn.Catalogue(models.TaskRegression, learn.Options{Disabled: map[string]bool{
		learn.KeyRandomForest: true, learn.KeyGradientBoosting: true, learn.KeyXGBoost: true,
	}})
	require.NoError(t, err)
	tr, err := NewTrainer(models.TaskRegression, cands, WithLogger(quietLogger()), WithFitTracker(tracker), WithTaskName("premium"))
	require.NoError(t, err)

	_, err = tr.Train(context.Background(), regressionSplit())
	require.NoError(t, err)
	assert.Equal(t, []string{"DecisionTree", "LinearRegression"}, tracker.Models())
	assert.Equal(t, 1, tracker.Count("LinearRegression"))
}

func keys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

type panickingModel struct{}

func (panickingModel) Name() string { return "Exploding" }

func (panickingModel) Fit([][]float64, []float64) error { panic("index out of range") }

func (panickingModel) Predict([][]float64) ([]float64, error) { return nil, nil }

func TestTrainRecoversFromPanickingAlgorithm(t *testing.T) {
	cands, _, err := learn.Catalogue(models.TaskRegression, learn.Options{Seed: 42, Overrides: smallParams()})
	require.NoError(t, err)
	exploding := learn.Candidate{
		Key:     "exploding",
		Name:    "Exploding",
		Task:    models.TaskRegression,
		Factory: func(models.TaskType, learn.Params) learn.Trainable { return panickingModel{} },
	}
	cands = append([]learn.Candidate{exploding}, cands...)

	tr, err := NewTrainer(models.TaskRegression, cands, WithLogger(quietLogger()))
	require.NoError(t, err)
	report, err := tr.Train(context.Background(), regressionSplit())
	require.NoError(t, err)
	assert.Len(t, report.Results, 5)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "Exploding", report.Warnings[0].Model)
	assert.ErrorIs(t, report.Warnings[0].Err, utils.ErrAlgorithmFit)
	assert.Contains(t, report.Warnings[0].String(), "index out of range")
}

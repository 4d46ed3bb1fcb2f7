package evaluation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskstack/riskmodel/internal/models"
	"github.com/riskstack/riskmodel/internal/utils"
)

func TestRegressionPerfectPredictions(t *testing.T) {
	y := []float64{1, 2, 3}
	m, err := RegressionMetrics(y, y)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m[models.MetricRMSE])
	assert.Equal(t, 1.0, m[models.MetricR2])
}

func TestRegressionKnownValues(t *testing.T) {
	m, err := RegressionMetrics([]float64{1, 2, 3}, []float64{1.5, 2.5, 3.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, m[models.MetricRMSE], 1e-12)
	// ss_res = 0.75, ss_tot = 2
	assert.InDelta(t, 1-0.75/2, m[models.MetricR2], 1e-12)
}

func TestRegressionRMSENonNegative(t *testing.T) {
	cases := [][2][]float64{
		{{-4, 8, 0.5}, {3, -2, 0.5}},
		{{100}, {-100}},
		{{0, 0, 0, 0}, {1e-9, -1e-9, 0, 0}},
	}
	for _, c := range cases {
		m, err := RegressionMetrics(c[0], c[1])
		require.NoError(t, err)
		assert.GreaterOrEqual(t, m[models.MetricRMSE], 0.0)
	}
}

func TestRegressionZeroVarianceTarget(t *testing.T) {
	m, err := RegressionMetrics([]float64{5, 5, 5}, []float64{5, 5, 5})
	require.NoError(t, err)
	assert.Equal(t, 1.0, m[models.MetricR2])

	m, err = RegressionMetrics([]float64{5, 5, 5}, []float64{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, 0.0, m[models.MetricR2])
	assert.False(t, math.IsNaN(m[models.MetricR2]))
}

func TestRegressionInvalidInput(t *testing.T) {
	_, err := RegressionMetrics([]float64{1, 2}, []float64{1})
	assert.ErrorIs(t, err, utils.ErrInvalidInput)

	_, err = RegressionMetrics(nil, nil)
	assert.ErrorIs(t, err, utils.ErrInvalidInput)

	_, err = RegressionMetrics([]float64{1}, []float64{math.NaN()})
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
}

func TestClassificationPerfect(t *testing.T) {
	y := []float64{0, 1, 1, 0}
	m, err := ClassificationMetrics(y, y)
	require.NoError(t, err)
	for _, name := range models.MetricNames(models.TaskClassification) {
		assert.Equal(t, 1.0, m[name], name)
	}
}

func TestClassificationZeroDivision(t *testing.T) {
	y := []float64{0, 0, 0, 0}
	m, err := ClassificationMetrics(y, y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m[models.MetricAccuracy])
	assert.Equal(t, 0.0, m[models.MetricPrecision])
	assert.Equal(t, 0.0, m[models.MetricRecall])
	assert.Equal(t, 0.0, m[models.MetricF1])
}

func TestClassificationNoPredictedPositives(t *testing.T) {
	m, err := ClassificationMetrics([]float64{1, 1, 0}, []float64{0, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3, m[models.MetricAccuracy], 1e-12)
	assert.Equal(t, 0.0, m[models.MetricPrecision])
	assert.Equal(t, 0.0, m[models.MetricRecall])
	assert.Equal(t, 0.0, m[models.MetricF1])
}

func TestClassificationKnownValues(t *testing.T) {
	// tp=2, fp=1, fn=1, tn=1
	m, err := ClassificationMetrics([]float64{1, 1, 1, 0, 0}, []float64{1, 1, 0, 1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, m[models.MetricAccuracy], 1e-12)
	assert.InDelta(t, 2.0/3, m[models.MetricPrecision], 1e-12)
	assert.InDelta(t, 2.0/3, m[models.MetricRecall], 1e-12)
	assert.InDelta(t, 2.0/3, m[models.MetricF1], 1e-12)
}

func TestClassificationLengthMismatch(t *testing.T) {
	_, err := ClassificationMetrics([]float64{1, 0}, []float64{1, 0, 1})
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
}

func TestMetricsDispatch(t *testing.T) {
	m, err := Metrics(models.TaskRegression, []float64{1, 2}, []float64{1, 2})
	require.NoError(t, err)
	assert.Len(t, m, 2)

	_, err = Metrics(models.TaskType("ranking"), []float64{1}, []float64{1})
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
}

func TestLossRatio(t *testing.T) {
	assert.Equal(t, 0.5, LossRatio(100, 200))
	assert.Equal(t, 0.0, LossRatio(0, 300))
	for _, claims := range []float64{0, 1, 1e9, -3} {
		assert.Equal(t, 0.0, LossRatio(claims, 0))
		assert.Equal(t, 0.0, LossRatio(claims, -5))
	}
	assert.Equal(t, 0.0, LossRatio(math.NaN(), 10))
	assert.Equal(t, 0.0, LossRatio(1, math.NaN()))
}

func TestLossRatios(t *testing.T) {
	got, err := LossRatios([]float64{100, 0, 50}, []float64{200, 300, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0, 0}, got)

	_, err = LossRatios([]float64{1}, nil)
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
}

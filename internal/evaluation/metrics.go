// Package evaluation computes model evaluation metrics from paired true and
// predicted values. All functions are pure and deterministic.
package evaluation

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/riskstack/riskmodel/internal/models"
	"github.com/riskstack/riskmodel/internal/utils"
)

// PositiveLabel is the label counted as a positive outcome (a claim).
const PositiveLabel = 1.0

// RegressionMetrics returns rmse and r2 for the paired sequences.
//
// When every true value is identical the coefficient of determination is
// undefined; it is reported as 1.0 for an exact fit and 0.0 otherwise.
func RegressionMetrics(yTrue, yPred []float64) (map[string]float64, error) {
	if err := checkPaired("evaluation.RegressionMetrics", yTrue, yPred); err != nil {
		return nil, err
	}

	ssRes := 0.0
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		ssRes += d * d
	}
	mean := stat.Mean(yTrue, nil)
	ssTot := 0.0
	for _, v := range yTrue {
		d := v - mean
		ssTot += d * d
	}

	return map[string]float64{
		models.MetricRMSE: math.Sqrt(ssRes / float64(len(yTrue))),
		models.MetricR2:   rSquared(ssRes, ssTot),
	}, nil
}

func rSquared(ssRes, ssTot float64) float64 {
	if ssTot == 0 {
		if ssRes == 0 {
			return 1.0
		}
		return 0.0
	}
	return 1 - ssRes/ssTot
}

// ClassificationMetrics returns accuracy, precision, recall and f1 for binary
// labels with PositiveLabel as the positive class. Ratios with a zero
// denominator are reported as 0.0.
func ClassificationMetrics(yTrue, yPred []float64) (map[string]float64, error) {
	if err := checkPaired("evaluation.ClassificationMetrics", yTrue, yPred); err != nil {
		return nil, err
	}

	var tp, fp, fn, correct int
	for i := range yTrue {
		truePos := yTrue[i] == PositiveLabel
		predPos := yPred[i] == PositiveLabel
		if yTrue[i] == yPred[i] {
			correct++
		}
		switch {
		case truePos && predPos:
			tp++
		case !truePos && predPos:
			fp++
		case truePos && !predPos:
			fn++
		}
	}

	return map[string]float64{
		models.MetricAccuracy:  float64(correct) / float64(len(yTrue)),
		models.MetricPrecision: safeRatio(float64(tp), float64(tp+fp)),
		models.MetricRecall:    safeRatio(float64(tp), float64(tp+fn)),
		models.MetricF1:        safeRatio(float64(2*tp), float64(2*tp+fp+fn)),
	}, nil
}

// Metrics dispatches to the metric set of the task type.
func Metrics(task models.TaskType, yTrue, yPred []float64) (map[string]float64, error) {
	switch task {
	case models.TaskRegression:
		return RegressionMetrics(yTrue, yPred)
	case models.TaskClassification:
		return ClassificationMetrics(yTrue, yPred)
	default:
		return nil, utils.InvalidInput("evaluation.Metrics", "unsupported task type %q", task)
	}
}

// LossRatio returns totalClaims / totalPremium, or 0.0 when the premium is not
// positive or the ratio is not finite.
func LossRatio(totalClaims, totalPremium float64) float64 {
	if !(totalPremium > 0) {
		return 0.0
	}
	ratio := totalClaims / totalPremium
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0.0
	}
	return ratio
}

// LossRatios applies LossRatio element-wise.
func LossRatios(claims, premiums []float64) ([]float64, error) {
	if len(claims) != len(premiums) {
		return nil, utils.InvalidInput("evaluation.LossRatios", "length mismatch: %d claims, %d premiums", len(claims), len(premiums))
	}
	out := make([]float64, len(claims))
	for i := range claims {
		out[i] = LossRatio(claims[i], premiums[i])
	}
	return out, nil
}

func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 0.0
	}
	return num / den
}

func checkPaired(op string, yTrue, yPred []float64) error {
	if len(yTrue) == 0 {
		return utils.InvalidInput(op, "empty sequences")
	}
	if len(yTrue) != len(yPred) {
		return utils.InvalidInput(op, "length mismatch: %d true, %d predicted", len(yTrue), len(yPred))
	}
	for i := range yTrue {
		if !finite(yTrue[i]) || !finite(yPred[i]) {
			return utils.InvalidInput(op, "non-finite value at index %d", i)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Package learn implements the fixed catalogue of regression and
// classification algorithms behind a common Trainable capability.
package learn

import (
	"errors"
	"math"
	"math/rand/v2"

	"github.com/riskstack/riskmodel/internal/models"
	"github.com/riskstack/riskmodel/internal/utils"
)

// DefaultLearningRate is the shrinkage applied by the boosted ensembles when
// none is configured.
const DefaultLearningRate = 0.1

// ErrNotFitted is returned by Predict on a model that has not been fitted.
var ErrNotFitted = errors.New("model not fitted")

// Trainable is a fit/predict estimator. Classification models predict 0/1 labels.
type Trainable interface {
	Name() string
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
}

// Params carries the hyperparameters shared by the catalogue. Zero values
// fall back to the per-algorithm defaults applied by the catalogue.
type Params struct {
	Seed            uint64  `yaml:"-"`
	MaxDepth        int     `yaml:"max_depth"`
	NEstimators     int     `yaml:"n_estimators"`
	LearningRate    float64 `yaml:"learning_rate"`
	MinSamplesSplit int     `yaml:"min_samples_split"`
	MaxFeatures     float64 `yaml:"max_features"`
	Lambda          float64 `yaml:"lambda"`
	Gamma           float64 `yaml:"gamma"`
	Subsample       float64 `yaml:"subsample"`
	MaxIter         int     `yaml:"max_iter"`
	L2              float64 `yaml:"l2"`
}

// Merge returns p with every non-zero field of override applied.
func (p Params) Merge(override Params) Params {
	if override.MaxDepth != 0 {
		p.MaxDepth = override.MaxDepth
	}
	if override.NEstimators != 0 {
		p.NEstimators = override.NEstimators
	}
	if override.LearningRate != 0 {
		p.LearningRate = override.LearningRate
	}
	if override.MinSamplesSplit != 0 {
		p.MinSamplesSplit = override.MinSamplesSplit
	}
	if override.MaxFeatures != 0 {
		p.MaxFeatures = override.MaxFeatures
	}
	if override.Lambda != 0 {
		p.Lambda = override.Lambda
	}
	if override.Gamma != 0 {
		p.Gamma = override.Gamma
	}
	if override.Subsample != 0 {
		p.Subsample = override.Subsample
	}
	if override.MaxIter != 0 {
		p.MaxIter = override.MaxIter
	}
	if override.L2 != 0 {
		p.L2 = override.L2
	}
	return p
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// checkXY validates a design matrix and target vector.
func checkXY(op string, X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, utils.InvalidInput(op, "no rows")
	}
	if len(X) != len(y) {
		return 0, utils.InvalidInput(op, "%d rows but %d targets", len(X), len(y))
	}
	p, err := checkX(op, X, -1)
	if err != nil {
		return 0, err
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, utils.InvalidInput(op, "non-finite target at row %d", i)
		}
	}
	return p, nil
}

// checkX validates row widths; want < 0 accepts the width of the first row.
func checkX(op string, X [][]float64, want int) (int, error) {
	if len(X) == 0 {
		return 0, utils.InvalidInput(op, "no rows")
	}
	if want < 0 {
		want = len(X[0])
	}
	if want == 0 {
		return 0, utils.InvalidInput(op, "no features")
	}
	for i, row := range X {
		if len(row) != want {
			return 0, utils.InvalidInput(op, "row %d has %d features, expected %d", i, len(row), want)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, utils.InvalidInput(op, "non-finite feature at row %d", i)
			}
		}
	}
	return want, nil
}

// checkBinary ensures labels are 0/1 and, when both is set, that both classes occur.
func checkBinary(op string, y []float64, both bool) error {
	var pos, neg int
	for i, v := range y {
		switch v {
		case 0:
			neg++
		case 1:
			pos++
		default:
			return utils.InvalidInput(op, "label %v at row %d is not 0/1", v, i)
		}
	}
	if both && (pos == 0 || neg == 0) {
		return utils.NewAppError(op, utils.ErrAlgorithmFit, "target has a single class", nil)
	}
	return nil
}

func fitError(op, msg string, err error) error {
	return utils.NewAppError(op, utils.ErrAlgorithmFit, msg, err)
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func mean(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func label(score, threshold float64) float64 {
	if score > threshold {
		return 1
	}
	return 0
}

func isClassification(task models.TaskType) bool {
	return task == models.TaskClassification
}

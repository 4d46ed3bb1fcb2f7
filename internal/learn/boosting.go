package learn

import (
	"math"

	"github.com/riskstack/riskmodel/internal/models"
)

// GradientBoosting fits shallow regression trees to the residuals of the
// running ensemble. Classification uses the binomial deviance with Newton
// leaf values on the log-odds scale.
type GradientBoosting struct {
	Task            models.TaskType `msgpack:"task"`
	NEstimators     int             `msgpack:"n_estimators"`
	LearningRate    float64         `msgpack:"learning_rate"`
	MaxDepth        int             `msgpack:"max_depth"`
	MinSamplesSplit int             `msgpack:"min_samples_split"`
	Subsample       float64         `msgpack:"subsample"`
	Seed            uint64          `msgpack:"seed"`
	Init            float64         `msgpack:"init"`
	Trees           []Tree          `msgpack:"trees"`
	Features        int             `msgpack:"features"`
}

// NewGradientBoosting returns an unfitted ensemble for task.
func NewGradientBoosting(task models.TaskType, p Params) *GradientBoosting {
	m := &GradientBoosting{
		Task:            task,
		NEstimators:     p.NEstimators,
		LearningRate:    p.LearningRate,
		MaxDepth:        p.MaxDepth,
		MinSamplesSplit: p.MinSamplesSplit,
		Subsample:       p.Subsample,
		Seed:            p.Seed,
	}
	if m.NEstimators <= 0 {
		m.NEstimators = 100
	}
	if m.LearningRate <= 0 {
		m.LearningRate = DefaultLearningRate
	}
	if m.MaxDepth <= 0 {
		m.MaxDepth = 3
	}
	return m
}

// Name implements Trainable.
func (m *GradientBoosting) Name() string { return "GradientBoosting" }

// Fit adds NEstimators shrunken trees, each fitted to the current residuals.
func (m *GradientBoosting) Fit(X [][]float64, y []float64) error {
	const op = "learn.GradientBoosting.Fit"
	p, err := checkXY(op, X, y)
	if err != nil {
		return err
	}
	classify := isClassification(m.Task)
	n := len(y)
	if classify {
		if err := checkBinary(op, y, true); err != nil {
			return err
		}
		prior := mean(y)
		m.Init = math.Log(prior / (1 - prior))
	} else {
		m.Init = mean(y)
	}

	rng := newRand(m.Seed)
	F := make([]float64, n)
	for i := range F {
		F[i] = m.Init
	}
	resid := make([]float64, n)
	prob := make([]float64, n)
	hess := ones(n)
	cfg := treeConfig{maxDepth: m.MaxDepth, minSamplesSplit: m.MinSamplesSplit, minChildWeight: 1}

	m.Trees = make([]Tree, 0, m.NEstimators)
	for t := 0; t < m.NEstimators; t++ {
		for i := range resid {
			if classify {
				prob[i] = sigmoid(F[i])
				resid[i] = y[i] - prob[i]
			} else {
				resid[i] = y[i] - F[i]
			}
		}

		var leaf func(rows []int) float64
		if classify {
			leaf = func(rows []int) float64 {
				var num, den float64
				for _, r := range rows {
					num += resid[r]
					den += prob[r] * (1 - prob[r])
				}
				if math.Abs(den) < 1e-150 {
					return 0
				}
				return num / den
			}
		}

		rows := sampleRows(rng, n, m.Subsample)
		tree := growTree(cfg, X, negate(resid), hess, rows, rng, leaf)
		for i, row := range X {
			F[i] += m.LearningRate * tree.predictRow(row)
		}
		m.Trees = append(m.Trees, tree)
	}
	m.Features = p
	return nil
}

// DecisionFunction returns the raw ensemble output (log-odds for classification).
func (m *GradientBoosting) DecisionFunction(X [][]float64) ([]float64, error) {
	if m.Trees == nil {
		return nil, ErrNotFitted
	}
	if _, err := checkX("learn.GradientBoosting.Predict", X, m.Features); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		f := m.Init
		for t := range m.Trees {
			f += m.LearningRate * m.Trees[t].predictRow(row)
		}
		out[i] = f
	}
	return out, nil
}

// Predict returns the ensemble output, or the sign of the log-odds as a 0/1
// label for classification.
func (m *GradientBoosting) Predict(X [][]float64) ([]float64, error) {
	out, err := m.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	if isClassification(m.Task) {
		for i, v := range out {
			out[i] = label(v, 0)
		}
	}
	return out, nil
}

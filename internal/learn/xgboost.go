package learn

import (
	"math"

	"github.com/riskstack/riskmodel/internal/models"
)

// XGBoost is second-order gradient boosting with L2 leaf regularisation
// (Lambda) and a minimum split gain (Gamma). Regression uses squared error,
// classification the logistic loss.
type XGBoost struct {
	Task         models.TaskType `msgpack:"task"`
	NEstimators  int             `msgpack:"n_estimators"`
	LearningRate float64         `msgpack:"learning_rate"`
	MaxDepth     int             `msgpack:"max_depth"`
	Lambda       float64         `msgpack:"lambda"`
	Gamma        float64         `msgpack:"gamma"`
	Subsample    float64         `msgpack:"subsample"`
	Seed         uint64          `msgpack:"seed"`
	BaseScore    float64         `msgpack:"base_score"`
	Trees        []Tree          `msgpack:"trees"`
	Features     int             `msgpack:"features"`
}

// NewXGBoost returns an unfitted ensemble for task.
func NewXGBoost(task models.TaskType, p Params) *XGBoost {
	m := &XGBoost{
		Task:         task,
		NEstimators:  p.NEstimators,
		LearningRate: p.LearningRate,
		MaxDepth:     p.MaxDepth,
		Lambda:       p.Lambda,
		Gamma:        p.Gamma,
		Subsample:    p.Subsample,
		Seed:         p.Seed,
	}
	if m.NEstimators <= 0 {
		m.NEstimators = 100
	}
	if m.LearningRate <= 0 {
		m.LearningRate = DefaultLearningRate
	}
	if m.MaxDepth <= 0 {
		m.MaxDepth = 6
	}
	if m.Lambda <= 0 {
		m.Lambda = 1
	}
	return m
}

// Name implements Trainable.
func (m *XGBoost) Name() string { return "XGBoost" }

// Fit adds NEstimators trees grown on gradients and hessians of the loss.
func (m *XGBoost) Fit(X [][]float64, y []float64) error {
	const op = "learn.XGBoost.Fit"
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
		m.BaseScore = math.Log(prior / (1 - prior))
	} else {
		m.BaseScore = mean(y)
	}

	rng := newRand(m.Seed)
	F := make([]float64, n)
	for i := range F {
		F[i] = m.BaseScore
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	cfg := treeConfig{maxDepth: m.MaxDepth, minSamplesSplit: 2, minChildWeight: 1, lambda: m.Lambda, gamma: m.Gamma}
	if classify {
		// logistic hessians are at most 0.25 per row
		cfg.minChildWeight = 1e-3
	}

	m.Trees = make([]Tree, 0, m.NEstimators)
	for t := 0; t < m.NEstimators; t++ {
		for i := range grad {
			if classify {
				pr := sigmoid(F[i])
				grad[i] = pr - y[i]
				hess[i] = math.Max(pr*(1-pr), 1e-16)
			} else {
				grad[i] = F[i] - y[i]
				hess[i] = 1
			}
		}
		rows := sampleRows(rng, n, m.Subsample)
		tree := growTree(cfg, X, grad, hess, rows, rng, nil)
		for i, row := range X {
			F[i] += m.LearningRate * tree.predictRow(row)
		}
		m.Trees = append(m.Trees, tree)
	}
	m.Features = p
	return nil
}

// Margin returns the raw boosted output (log-odds for classification).
func (m *XGBoost) Margin(X [][]float64) ([]float64, error) {
	if m.Trees == nil {
		return nil, ErrNotFitted
	}
	if _, err := checkX("learn.XGBoost.Predict", X, m.Features); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		f := m.BaseScore
		for t := range m.Trees {
			f += m.LearningRate * m.Trees[t].predictRow(row)
		}
		out[i] = f
	}
	return out, nil
}

// Predict returns the margin, or a 0/1 label for classification.
func (m *XGBoost) Predict(X [][]float64) ([]float64, error) {
	out, err := m.Margin(X)
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

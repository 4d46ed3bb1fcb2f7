package learn

import (
	"math"

	"github.com/riskstack/riskmodel/internal/models"
)

// RandomForest averages bootstrap-trained trees. Regression trees consider
// every feature at each split; classification trees consider sqrt(features)
// unless MaxFeatures sets a fraction.
type RandomForest struct {
	Task            models.TaskType `msgpack:"task"`
	NEstimators     int             `msgpack:"n_estimators"`
	MaxDepth        int             `msgpack:"max_depth"`
	MinSamplesSplit int             `msgpack:"min_samples_split"`
	MaxFeatures     float64         `msgpack:"max_features"`
	Seed            uint64          `msgpack:"seed"`
	Trees           []Tree          `msgpack:"trees"`
	Features        int             `msgpack:"features"`
}

// NewRandomForest returns an unfitted forest for task.
func NewRandomForest(task models.TaskType, p Params) *RandomForest {
	m := &RandomForest{
		Task:            task,
		NEstimators:     p.NEstimators,
		MaxDepth:        p.MaxDepth,
		MinSamplesSplit: p.MinSamplesSplit,
		MaxFeatures:     p.MaxFeatures,
		Seed:            p.Seed,
	}
	if m.NEstimators <= 0 {
		m.NEstimators = 100
	}
	return m
}

// Name implements Trainable.
func (m *RandomForest) Name() string { return "RandomForest" }

func (m *RandomForest) featuresPerSplit(p int) int {
	switch {
	case m.MaxFeatures > 0 && m.MaxFeatures <= 1:
		return max(1, int(m.MaxFeatures*float64(p)))
	case isClassification(m.Task):
		return max(1, int(math.Sqrt(float64(p))))
	default:
		return p
	}
}

// Fit grows NEstimators trees on seeded bootstrap samples.
func (m *RandomForest) Fit(X [][]float64, y []float64) error {
	const op = "learn.RandomForest.Fit"
	p, err := checkXY(op, X, y)
	if err != nil {
		return err
	}
	if isClassification(m.Task) {
		if err := checkBinary(op, y, false); err != nil {
			return err
		}
	}

	rng := newRand(m.Seed)
	n := len(y)
	grad, hess := negate(y), ones(n)
	cfg := treeConfig{
		maxDepth:        m.MaxDepth,
		minSamplesSplit: m.MinSamplesSplit,
		minChildWeight:  1,
		maxFeatures:     m.featuresPerSplit(p),
	}

	m.Trees = make([]Tree, 0, m.NEstimators)
	rows := make([]int, n)
	for t := 0; t < m.NEstimators; t++ {
		for i := range rows {
			rows[i] = rng.IntN(n)
		}
		m.Trees = append(m.Trees, growTree(cfg, X, grad, hess, rows, rng, nil))
	}
	m.Features = p
	return nil
}

// PredictScore returns the mean tree output per row; for classification this
// is the averaged positive-class fraction.
func (m *RandomForest) PredictScore(X [][]float64) ([]float64, error) {
	if len(m.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if _, err := checkX("learn.RandomForest.Predict", X, m.Features); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		s := 0.0
		for t := range m.Trees {
			s += m.Trees[t].predictRow(row)
		}
		out[i] = s / float64(len(m.Trees))
	}
	return out, nil
}

// Predict averages the trees; classification takes the majority vote.
func (m *RandomForest) Predict(X [][]float64) ([]float64, error) {
	out, err := m.PredictScore(X)
	if err != nil {
		return nil, err
	}
	if isClassification(m.Task) {
		for i, v := range out {
			out[i] = label(v, 0.5)
		}
	}
	return out, nil
}

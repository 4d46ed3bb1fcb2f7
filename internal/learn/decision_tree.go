package learn

import (
	"github.com/riskstack/riskmodel/internal/models"
)

// DecisionTree is a single CART tree. For classification the leaves hold the
// positive-class fraction, which gives the same splits as Gini impurity on 0/1
// labels.
type DecisionTree struct {
	Task            models.TaskType `msgpack:"task"`
	MaxDepth        int             `msgpack:"max_depth"`
	MinSamplesSplit int             `msgpack:"min_samples_split"`
	Tree            Tree            `msgpack:"tree"`
	Features        int             `msgpack:"features"`
}

// NewDecisionTree returns an unfitted tree for task.
func NewDecisionTree(task models.TaskType, p Params) *DecisionTree {
	return &DecisionTree{Task: task, MaxDepth: p.MaxDepth, MinSamplesSplit: p.MinSamplesSplit}
}

// Name implements Trainable.
func (m *DecisionTree) Name() string { return "DecisionTree" }

// Fit grows the tree on every row and feature.
func (m *DecisionTree) Fit(X [][]float64, y []float64) error {
	const op = "learn.DecisionTree.Fit"
	p, err := checkXY(op, X, y)
	if err != nil {
		return err
	}
	if isClassification(m.Task) {
		if err := checkBinary(op, y, false); err != nil {
			return err
		}
	}
	cfg := treeConfig{maxDepth: m.MaxDepth, minSamplesSplit: m.MinSamplesSplit, minChildWeight: 1}
	m.Tree = growTree(cfg, X, negate(y), ones(len(y)), allRows(len(y)), nil, nil)
	m.Features = p
	return nil
}

// Predict returns leaf means, thresholded at 0.5 for classification.
func (m *DecisionTree) Predict(X [][]float64) ([]float64, error) {
	if len(m.Tree.Nodes) == 0 {
		return nil, ErrNotFitted
	}
	if _, err := checkX("learn.DecisionTree.Predict", X, m.Features); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		v := m.Tree.predictRow(row)
		if isClassification(m.Task) {
			v = label(v, 0.5)
		}
		out[i] = v
	}
	return out, nil
}

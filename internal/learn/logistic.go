package learn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// LogisticRegression is L2-regularised binary logistic regression fitted by
// iteratively reweighted least squares. The intercept is not penalised.
type LogisticRegression struct {
	Intercept float64   `msgpack:"intercept"`
	Coef      []float64 `msgpack:"coef"`
	L2        float64   `msgpack:"l2"`
	MaxIter   int       `msgpack:"max_iter"`
	Iters     int       `msgpack:"iters"`
}

// NewLogisticRegression returns an unfitted model using p.MaxIter and p.L2.
func NewLogisticRegression(p Params) *LogisticRegression {
	m := &LogisticRegression{L2: p.L2, MaxIter: p.MaxIter}
	if m.MaxIter <= 0 {
		m.MaxIter = 100
	}
	return m
}

// Name implements Trainable.
func (m *LogisticRegression) Name() string { return "LogisticRegression" }

// Fit runs IRLS until the coefficients converge or MaxIter is reached. y
// must hold both classes.
func (m *LogisticRegression) Fit(X [][]float64, y []float64) error {
	const op = "learn.LogisticRegression.Fit"
	p, err := checkXY(op, X, y)
	if err != nil {
		return err
	}
	if err := checkBinary(op, y, true); err != nil {
		return err
	}

	d := p + 1
	w := make([]float64, d)
	grad := mat.NewVecDense(d, nil)
	hess := mat.NewSymDense(d, nil)
	var step mat.VecDense
	row := make([]float64, d)
	row[0] = 1

	for iter := 1; iter <= m.MaxIter; iter++ {
		hess.Zero()
		for j := 0; j < d; j++ {
			grad.SetVec(j, 0)
		}
		for i, x := range X {
			copy(row[1:], x)
			z := 0.0
			for j, v := range row {
				z += w[j] * v
			}
			pr := sigmoid(z)
			r := pr - y[i]
			wt := pr * (1 - pr)
			for j := 0; j < d; j++ {
				grad.SetVec(j, grad.AtVec(j)+r*row[j])
				for k := j; k < d; k++ {
					hess.SetSym(j, k, hess.At(j, k)+wt*row[j]*row[k])
				}
			}
		}
		for j := 1; j < d; j++ {
			grad.SetVec(j, grad.AtVec(j)+m.L2*w[j])
			hess.SetSym(j, j, hess.At(j, j)+m.L2)
		}

		if err := step.SolveVec(hess, grad); err != nil {
			return fitError(op, "newton step failed", err)
		}
		maxStep := 0.0
		for j := 0; j < d; j++ {
			s := step.AtVec(j)
			if math.IsNaN(s) || math.IsInf(s, 0) {
				return fitError(op, "newton step is not finite", nil)
			}
			w[j] -= s
			maxStep = math.Max(maxStep, math.Abs(s))
		}
		m.Iters = iter
		if maxStep < 1e-8 {
			break
		}
	}

	m.Intercept = w[0]
	m.Coef = append([]float64(nil), w[1:]...)
	return nil
}

// PredictProba returns the probability of the positive class per row.
func (m *LogisticRegression) PredictProba(X [][]float64) ([]float64, error) {
	if m.Coef == nil {
		return nil, ErrNotFitted
	}
	if _, err := checkX("learn.LogisticRegression.Predict", X, len(m.Coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		z := m.Intercept
		for j, v := range row {
			z += m.Coef[j] * v
		}
		out[i] = sigmoid(z)
	}
	return out, nil
}

// Predict labels a row 1 when its positive-class probability exceeds 0.5.
func (m *LogisticRegression) Predict(X [][]float64) ([]float64, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	for i, v := range proba {
		proba[i] = label(v, 0.5)
	}
	return proba, nil
}

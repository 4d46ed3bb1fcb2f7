package learn

import (
	"gonum.org/v1/gonum/mat"
)

// LinearRegression is ordinary least squares with an intercept, solved by SVD
// so rank-deficient designs still yield the minimum-norm solution.
type LinearRegression struct {
	Intercept float64   `msgpack:"intercept"`
	Coef      []float64 `msgpack:"coef"`
}

// NewLinearRegression returns an unfitted least-squares model.
func NewLinearRegression() *LinearRegression { return &LinearRegression{} }

// Name implements Trainable.
func (m *LinearRegression) Name() string { return "LinearRegression" }

// Fit solves for the coefficients and intercept.
func (m *LinearRegression) Fit(X [][]float64, y []float64) error {
	const op = "learn.LinearRegression.Fit"
	p, err := checkXY(op, X, y)
	if err != nil {
		return err
	}
	n := len(X)

	A := mat.NewDense(n, p+1, nil)
	for i, row := range X {
		A.Set(i, 0, 1)
		for j, v := range row {
			A.Set(i, j+1, v)
		}
	}
	b := mat.NewVecDense(n, append([]float64(nil), y...))

	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDThin); !ok {
		return fitError(op, "svd factorization failed", nil)
	}
	rank := svd.Rank(1e-12)
	if rank == 0 {
		return fitError(op, "design matrix has rank zero", nil)
	}
	var beta mat.VecDense
	svd.SolveVecTo(&beta, b, rank)

	m.Intercept = beta.AtVec(0)
	m.Coef = make([]float64, p)
	for j := range m.Coef {
		m.Coef[j] = beta.AtVec(j + 1)
	}
	return nil
}

// Predict returns the fitted linear response per row.
func (m *LinearRegression) Predict(X [][]float64) ([]float64, error) {
	if m.Coef == nil {
		return nil, ErrNotFitted
	}
	if _, err := checkX("learn.LinearRegression.Predict", X, len(m.Coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = m.decision(row)
	}
	return out, nil
}

func (m *LinearRegression) decision(row []float64) float64 {
	z := m.Intercept
	for j, v := range row {
		z += m.Coef[j] * v
	}
	return z
}

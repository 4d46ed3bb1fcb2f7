package dataset

import (
	"gonum.org/v1/gonum/stat"

	"github.com/riskstack/riskmodel/internal/utils"
)

// StandardScaler centres each feature on its training mean and divides by
// the population standard deviation. Constant features keep a unit scale.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler estimates column statistics from X.
func FitScaler(X [][]float64) (*StandardScaler, error) {
	if len(X) == 0 || len(X[0]) == 0 {
		return nil, utils.InvalidInput("dataset.FitScaler", "empty matrix")
	}
	p := len(X[0])
	s := &StandardScaler{Mean: make([]float64, p), Scale: make([]float64, p)}
	col := make([]float64, len(X))
	for j := 0; j < p; j++ {
		for i, row := range X {
			if len(row) != p {
				return nil, utils.InvalidInput("dataset.FitScaler", "row %d has %d features, expected %d", i, len(row), p)
			}
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[j], s.Scale[j] = mean, std
	}
	return s, nil
}

// Transform returns a scaled copy of X.
func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(s.Mean) {
			return nil, utils.InvalidInput("dataset.StandardScaler.Transform", "row %d has %d features, expected %d", i, len(row), len(s.Mean))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// Scale fits a scaler on the training side of p and applies it to both sides.
func Scale(p Partition) (Partition, *StandardScaler, error) {
	s, err := FitScaler(p.XTrain)
	if err != nil {
		return Partition{}, nil, err
	}
	if p.XTrain, err = s.Transform(p.XTrain); err != nil {
		return Partition{}, nil, err
	}
	if p.XTest, err = s.Transform(p.XTest); err != nil {
		return Partition{}, nil, err
	}
	return p, s, nil
}

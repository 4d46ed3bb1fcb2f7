package dataset

import (
	"math"
	"math/rand/v2"

	"github.com/riskstack/riskmodel/internal/utils"
)

// DefaultTestSize is the held-out fraction when none is configured.
const DefaultTestSize = 0.3

// DefaultSeed seeds splitting and every stochastic algorithm.
const DefaultSeed uint64 = 42

// Partition is a shuffled train/test split of a Features set.
type Partition struct {
	XTrain, XTest [][]float64
	YTrain, YTest []float64
	TrainIndex    []int
	TestIndex     []int
}

// Split shuffles rows with seed and holds out ceil(testSize*n) of them.
// Both sides must be non-empty.
func Split(feat Features, testSize float64, seed uint64) (Partition, error) {
	const op = "dataset.Split"
	n := len(feat.X)
	if n != len(feat.Y) {
		return Partition{}, utils.InvalidInput(op, "%d rows but %d targets", n, len(feat.Y))
	}
	if !(testSize > 0 && testSize < 1) {
		return Partition{}, utils.InvalidInput(op, "test size %v must be in (0, 1)", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return Partition{}, utils.InvalidInput(op, "%d rows cannot be split with test size %v", n, testSize)
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)

	p := Partition{TestIndex: perm[:nTest], TrainIndex: perm[nTest:]}
	for _, i := range p.TrainIndex {
		p.XTrain = append(p.XTrain, feat.X[i])
		p.YTrain = append(p.YTrain, feat.Y[i])
	}
	for _, i := range p.TestIndex {
		p.XTest = append(p.XTest, feat.X[i])
		p.YTest = append(p.YTest, feat.Y[i])
	}
	return p, nil
}

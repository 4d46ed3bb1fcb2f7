package learn

import (
	"math"
	"math/rand/v2"
	"sort"
)

// treeNode is a split (Left >= 0) or a leaf (Left == -1).
type treeNode struct {
	Feature   int     `msgpack:"f"`
	Threshold float64 `msgpack:"t"`
	Left      int     `msgpack:"l"`
	Right     int     `msgpack:"r"`
	Value     float64 `msgpack:"v"`
}

// Tree is a binary regression tree stored as a flat node array.
type Tree struct {
	Nodes []treeNode `msgpack:"nodes"`
}

func (t *Tree) predictRow(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Leaves returns the number of leaf nodes.
func (t *Tree) Leaves() int {
	count := 0
	for _, n := range t.Nodes {
		if n.Left < 0 {
			count++
		}
	}
	return count
}

type treeConfig struct {
	maxDepth        int
	minSamplesSplit int
	minChildWeight  float64
	lambda          float64
	gamma           float64
	// maxFeatures is the number of candidate features per split; <= 0 means all.
	maxFeatures int
}

// treeGrower builds trees from first and second order gradients. With
// hess == 1 and lambda == 0 the split gain is the variance reduction of
// -grad and the default leaf value is its mean, which covers CART regression
// and (on 0/1 targets) Gini classification.
type treeGrower struct {
	cfg       treeConfig
	X         [][]float64
	grad      []float64
	hess      []float64
	rng       *rand.Rand
	leafValue func(rows []int) float64
	nodes     []treeNode
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

func growTree(cfg treeConfig, X [][]float64, grad, hess []float64, rows []int, rng *rand.Rand, leafValue func(rows []int) float64) Tree {
	if cfg.minSamplesSplit < 2 {
		cfg.minSamplesSplit = 2
	}
	g := &treeGrower{cfg: cfg, X: X, grad: grad, hess: hess, rng: rng, leafValue: leafValue}
	g.build(rows, 0)
	return Tree{Nodes: g.nodes}
}

func (g *treeGrower) build(rows []int, depth int) int {
	idx := len(g.nodes)
	g.nodes = append(g.nodes, treeNode{Left: -1, Right: -1})

	G, H := g.sums(rows)
	if (g.cfg.maxDepth > 0 && depth >= g.cfg.maxDepth) || len(rows) < g.cfg.minSamplesSplit {
		g.nodes[idx].Value = g.leaf(rows, G, H)
		return idx
	}

	best, ok := g.bestSplit(rows, G, H)
	if !ok {
		g.nodes[idx].Value = g.leaf(rows, G, H)
		return idx
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, r := range rows {
		if g.X[r][best.feature] <= best.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := g.build(left, depth+1)
	r := g.build(right, depth+1)
	g.nodes[idx] = treeNode{Feature: best.feature, Threshold: best.threshold, Left: l, Right: r}
	return idx
}

func (g *treeGrower) sums(rows []int) (float64, float64) {
	var G, H float64
	for _, r := range rows {
		G += g.grad[r]
		H += g.hess[r]
	}
	return G, H
}

func (g *treeGrower) leaf(rows []int, G, H float64) float64 {
	if g.leafValue != nil {
		return g.leafValue(rows)
	}
	if H+g.cfg.lambda == 0 {
		return 0
	}
	return -G / (H + g.cfg.lambda)
}

func (g *treeGrower) candidateFeatures() []int {
	p := len(g.X[0])
	k := g.cfg.maxFeatures
	if k <= 0 || k >= p || g.rng == nil {
		features := make([]int, p)
		for i := range features {
			features[i] = i
		}
		return features
	}
	return g.rng.Perm(p)[:k]
}

func (g *treeGrower) bestSplit(rows []int, G, H float64) (split, bool) {
	lambda := g.cfg.lambda
	parent := G * G / (H + lambda)
	eps := 1e-10 * math.Max(1, math.Abs(parent))
	best := split{gain: math.Inf(-1)}
	found := false

	sorted := make([]int, len(rows))
	for _, f := range g.candidateFeatures() {
		copy(sorted, rows)
		sort.SliceStable(sorted, func(i, j int) bool { return g.X[sorted[i]][f] < g.X[sorted[j]][f] })

		var GL, HL float64
		for i := 0; i < len(sorted)-1; i++ {
			r := sorted[i]
			GL += g.grad[r]
			HL += g.hess[r]
			a, b := g.X[r][f], g.X[sorted[i+1]][f]
			if a == b {
				continue
			}
			GR, HR := G-GL, H-HL
			if HL < g.cfg.minChildWeight || HR < g.cfg.minChildWeight {
				continue
			}
			gain := 0.5*(GL*GL/(HL+lambda)+GR*GR/(HR+lambda)-parent) - g.cfg.gamma
			if gain > eps && gain > best.gain {
				threshold := a + (b-a)/2
				if threshold >= b {
					threshold = a
				}
				best = split{feature: f, threshold: threshold, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func negate(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = -x
	}
	return out
}

// sampleRows draws round(frac*n) distinct rows without replacement, sorted.
func sampleRows(rng *rand.Rand, n int, frac float64) []int {
	if frac <= 0 || frac >= 1 || rng == nil {
		return allRows(n)
	}
	k := int(math.Round(frac * float64(n)))
	if k < 1 {
		k = 1
	}
	rows := rng.Perm(n)[:k]
	sort.Ints(rows)
	return rows
}

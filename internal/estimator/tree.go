package estimator

import (
	"cmp"
	"math"
	"slices"
)

// treeConfig controls growth of a second-order regression tree.
type treeConfig struct {
	maxDepth       int // 0 means unlimited
	lambda         float64
	minChildWeight float64
}

type treeNode struct {
	feature     int
	threshold   float64
	left, right int
	value       float64
}

// regressionTree is grown on per-sample gradient and hessian statistics.
// Leaves hold -G/(H+lambda). With grad = -y, hess = 1 and lambda = 0 that is
// the sample mean and split gain is the squared-error reduction, which is how
// the random forest reuses it.
type regressionTree struct {
	nodes []treeNode
}

func (t *regressionTree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.nodes[i]
		if n.left < 0 {
			return n.value
		}
		if row[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

type treeBuilder struct {
	x     [][]float64
	grad  []float64
	hess  []float64
	cfg   treeConfig
	dims  int
	nodes []treeNode
}

// growTree fits a tree over the given sample rows. rows may contain
// duplicates, as bootstrap samples do.
func growTree(x [][]float64, grad, hess []float64, rows []int, dims int, cfg treeConfig) *regressionTree {
	b := &treeBuilder{x: x, grad: grad, hess: hess, cfg: cfg, dims: dims}
	b.build(rows, 0)
	return &regressionTree{nodes: b.nodes}
}

func (b *treeBuilder) build(rows []int, depth int) int {
	g, h := 0.0, 0.0
	for _, r := range rows {
		g += b.grad[r]
		h += b.hess[r]
	}

	idx := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{left: -1, right: -1, value: -g / (h + b.cfg.lambda)})

	if len(rows) < 2 || (b.cfg.maxDepth > 0 && depth >= b.cfg.maxDepth) {
		return idx
	}

	feature, threshold, ok := b.bestSplit(rows, g, h)
	if !ok {
		return idx
	}

	var left, right []int
	for _, r := range rows {
		if b.x[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := b.build(left, depth+1)
	rt := b.build(right, depth+1)
	b.nodes[idx].feature = feature
	b.nodes[idx].threshold = threshold
	b.nodes[idx].left = l
	b.nodes[idx].right = rt
	return idx
}

// bestSplit runs the exact greedy search over every feature.
func (b *treeBuilder) bestSplit(rows []int, g, h float64) (int, float64, bool) {
	lambda := b.cfg.lambda
	parent := g * g / (h + lambda)
	minGain := 1e-10 * (math.Abs(parent) + 1)

	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0

	sorted := make([]int, len(rows))
	for j := 0; j < b.dims; j++ {
		copy(sorted, rows)
		slices.SortFunc(sorted, func(a, c int) int {
			return cmp.Compare(b.x[a][j], b.x[c][j])
		})

		gl, hl := 0.0, 0.0
		for k := 0; k < len(sorted)-1; k++ {
			r := sorted[k]
			gl += b.grad[r]
			hl += b.hess[r]

			cur, next := b.x[r][j], b.x[sorted[k+1]][j]
			if cur == next {
				continue
			}
			gr, hr := g-gl, h-hl
			if hl < b.cfg.minChildWeight || hr < b.cfg.minChildWeight {
				continue
			}

			gain := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent
			if gain > bestGain && gain > minGain {
				bestGain = gain
				bestFeature = j
				bestThreshold = cur + (next-cur)/2
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

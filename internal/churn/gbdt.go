package churn

import (
	"math"
	"math/rand"
	"sort"
)

// Fixed modeling constants for the boosted ensemble. These mirror the
// hyperparameters the production model was tuned with and are not
// exposed as configuration.
const (
	numRounds      = 100
	maxDepth       = 6
	learningRate   = 0.1
	rowSubsample   = 0.8
	colSubsample   = 0.8
	regLambda      = 1.0
	minChildWeight = 1.0
)

// treeNode is one node of a regression tree. Feature is -1 for leaves.
// Expected is the cover-weighted expected value of the subtree, used for
// per-instance attribution.
type treeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Leaf      float64 `json:"leaf"`
	Cover     float64 `json:"cover"`
	Expected  float64 `json:"expected"`
}

// regTree is a single regression tree over the logit residuals. Leaf
// values are already scaled by the learning rate.
type regTree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *regTree) predict(x []float64) float64 {
	i := 0
	for t.Nodes[i].Feature >= 0 {
		if x[t.Nodes[i].Feature] < t.Nodes[i].Threshold {
			i = t.Nodes[i].Left
		} else {
			i = t.Nodes[i].Right
		}
	}
	return t.Nodes[i].Leaf
}

// ensemble is a gradient-boosted logistic tree ensemble.
type ensemble struct {
	NumFeatures int       `json:"num_features"`
	BaseMargin  float64   `json:"base_margin"`
	Trees       []regTree `json:"trees"`
	Gains       []float64 `json:"gains"`
}

func (e *ensemble) margin(x []float64) float64 {
	m := e.BaseMargin
	for i := range e.Trees {
		m += e.Trees[i].predict(x)
	}
	return m
}

func (e *ensemble) probability(x []float64) float64 {
	return sigmoid(e.margin(x))
}

func sigmoid(m float64) float64 {
	return 1.0 / (1.0 + math.Exp(-m))
}

// trainEnsemble fits the boosted ensemble on X -> y with logistic loss,
// using second-order gradient statistics. The seed drives row and column
// subsampling, making training deterministic for a given input.
func trainEnsemble(X [][]float64, y []int, seed int64) *ensemble {
	n := len(X)
	d := len(X[0])
	rng := rand.New(rand.NewSource(seed))

	e := &ensemble{
		NumFeatures: d,
		BaseMargin:  0, // base score 0.5 in probability space
		Gains:       make([]float64, d),
	}

	margins := make([]float64, n)
	grad := make([]float64, n)
	hess := make([]float64, n)

	nSample := int(rowSubsample * float64(n))
	if nSample < 1 {
		nSample = 1
	}
	kFeats := int(math.Ceil(colSubsample * float64(d)))
	if kFeats < 1 {
		kFeats = 1
	}

	for round := 0; round < numRounds; round++ {
		for i := 0; i < n; i++ {
			p := sigmoid(margins[i])
			grad[i] = p - float64(y[i])
			hess[i] = p * (1 - p)
		}

		rows := rng.Perm(n)[:nSample]
		feats := rng.Perm(d)[:kFeats]
		sort.Ints(feats)

		b := &treeBuilder{X: X, grad: grad, hess: hess, feats: feats, gains: e.Gains}
		root := b.build(rows, 0)
		computeExpected(b.nodes, root)
		tree := regTree{Nodes: b.nodes}
		e.Trees = append(e.Trees, tree)

		for i := 0; i < n; i++ {
			margins[i] += tree.predict(X[i])
		}
	}

	return e
}

// treeBuilder grows one regression tree by exact greedy split search.
type treeBuilder struct {
	X     [][]float64
	grad  []float64
	hess  []float64
	feats []int
	gains []float64
	nodes []treeNode
}

func (b *treeBuilder) build(rows []int, depth int) int {
	var G, H float64
	for _, i := range rows {
		G += b.grad[i]
		H += b.hess[i]
	}

	if depth >= maxDepth || len(rows) < 2 {
		return b.leaf(G, H)
	}

	feat, threshold, gain := b.bestSplit(rows, G, H)
	if gain <= 0 {
		return b.leaf(G, H)
	}

	var left, right []int
	for _, i := range rows {
		if b.X[i][feat] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return b.leaf(G, H)
	}

	b.gains[feat] += gain

	idx := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Feature: feat, Threshold: threshold, Cover: H})
	b.nodes[idx].Left = b.build(left, depth+1)
	b.nodes[idx].Right = b.build(right, depth+1)
	return idx
}

func (b *treeBuilder) leaf(G, H float64) int {
	idx := len(b.nodes)
	w := -G / (H + regLambda)
	b.nodes = append(b.nodes, treeNode{Feature: -1, Leaf: learningRate * w, Cover: H})
	return idx
}

// bestSplit scans every candidate feature for the split maximizing the
// regularized gain. Returns gain <= 0 when no usable split exists.
func (b *treeBuilder) bestSplit(rows []int, G, H float64) (feat int, threshold, gain float64) {
	parentScore := G * G / (H + regLambda)
	gain = 0

	sorted := make([]int, len(rows))
	for _, f := range b.feats {
		copy(sorted, rows)
		sort.Slice(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		var GL, HL float64
		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			GL += b.grad[i]
			HL += b.hess[i]

			cur, next := b.X[i][f], b.X[sorted[k+1]][f]
			if cur == next {
				continue
			}

			GR := G - GL
			HR := H - HL
			if HL < minChildWeight || HR < minChildWeight {
				continue
			}

			g := 0.5 * (GL*GL/(HL+regLambda) + GR*GR/(HR+regLambda) - parentScore)
			if g > gain {
				gain = g
				feat = f
				threshold = (cur + next) / 2
			}
		}
	}

	return feat, threshold, gain
}

// computeExpected fills Expected bottom-up: a leaf's expected value is
// its leaf weight, an internal node's is the cover-weighted mean of its
// children. Attribution walks rely on these values.
func computeExpected(nodes []treeNode, idx int) float64 {
	n := &nodes[idx]
	if n.Feature < 0 {
		n.Expected = n.Leaf
		return n.Expected
	}
	le := computeExpected(nodes, n.Left)
	re := computeExpected(nodes, n.Right)
	lc := nodes[n.Left].Cover
	rc := nodes[n.Right].Cover
	if lc+rc > 0 {
		n.Expected = (lc*le + rc*re) / (lc + rc)
	} else {
		n.Expected = (le + re) / 2
	}
	return n.Expected
}

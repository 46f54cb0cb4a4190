package churn

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/bricodata/retail-cli/internal/model"
)

// Explain attributes a single prediction to its input features. Each
// attribution is the per-feature sum of expected-value deltas along the
// decision path of every tree, rescaled into probability space so that
// baseline plus the attributions reproduces the predicted probability
// exactly.
func (p *Predictor) Explain(x []float64) (*model.Explanation, error) {
	if p.ens == nil {
		return nil, eris.Wrap(model.ErrState, "churn: explain")
	}
	if len(x) != len(p.featureNames) {
		return nil, eris.Wrapf(model.ErrInference, "churn: explain expects %d features, got %d", len(p.featureNames), len(x))
	}

	baseMargin := p.ens.BaseMargin
	contrib := make([]float64, len(p.featureNames))
	for ti := range p.ens.Trees {
		tree := &p.ens.Trees[ti]
		baseMargin += tree.Nodes[0].Expected
		pathContributions(tree, x, contrib)
	}

	margin := p.ens.margin(x)
	prob := sigmoid(margin)
	baseline := sigmoid(baseMargin)

	// Rescale margin-space contributions so they are additive in
	// probability space: the deltas telescope to margin-baseMargin, and
	// the same ratio maps them onto prob-baseline.
	scale := 0.0
	if diff := margin - baseMargin; math.Abs(diff) > 1e-12 {
		scale = (prob - baseline) / diff
	}

	attrs := make([]model.FeatureWeight, len(p.featureNames))
	for i, name := range p.featureNames {
		attrs[i] = model.FeatureWeight{Feature: name, Weight: contrib[i] * scale}
	}
	sort.SliceStable(attrs, func(i, j int) bool {
		return math.Abs(attrs[i].Weight) > math.Abs(attrs[j].Weight)
	})

	return &model.Explanation{
		Baseline:     baseline,
		Probability:  prob,
		Attributions: attrs,
	}, nil
}

// pathContributions walks x down one tree, charging each split's change
// in expected value to the feature that decided the branch.
func pathContributions(t *regTree, x []float64, contrib []float64) {
	i := 0
	for t.Nodes[i].Feature >= 0 {
		n := &t.Nodes[i]
		next := n.Right
		if x[n.Feature] < n.Threshold {
			next = n.Left
		}
		contrib[n.Feature] += t.Nodes[next].Expected - n.Expected
		i = next
	}
}

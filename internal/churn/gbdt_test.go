package churn

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticData builds a separable two-class problem: class 1 sits in a
// low-frequency, low-spend region and class 0 in a high one.
func syntheticData(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			freq := 1 + rng.Float64()*3
			monetary := 20 + rng.Float64()*80
			X[i] = []float64{freq, monetary, monetary / freq}
			y[i] = 1
		} else {
			freq := 10 + rng.Float64()*20
			monetary := 500 + rng.Float64()*1500
			X[i] = []float64{freq, monetary, monetary / freq}
		}
	}
	return X, y
}

func TestTrainEnsembleSeparatesClasses(t *testing.T) {
	X, y := syntheticData(200, 3)
	e := trainEnsemble(X, y, 42)

	require.Len(t, e.Trees, numRounds)
	correct := 0
	for i, x := range X {
		p := e.probability(x)
		assert.Greater(t, p, 0.0)
		assert.Less(t, p, 1.0)
		if (p > 0.5) == (y[i] == 1) {
			correct++
		}
	}
	assert.Greater(t, float64(correct)/float64(len(X)), 0.95)
}

func TestTrainEnsembleDeterministicForSeed(t *testing.T) {
	X, y := syntheticData(100, 1)
	a := trainEnsemble(X, y, 42)
	b := trainEnsemble(X, y, 42)

	for i, x := range X {
		assert.Equal(t, a.probability(x), b.probability(x), "row %d", i)
	}
}

func TestEnsembleSurvivesJSONRoundTrip(t *testing.T) {
	X, y := syntheticData(80, 9)
	e := trainEnsemble(X, y, 42)

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var back ensemble
	require.NoError(t, json.Unmarshal(raw, &back))

	for _, x := range X {
		assert.InDelta(t, e.probability(x), back.probability(x), 1e-12)
	}
}

func TestExpectedValuesAreCoverWeighted(t *testing.T) {
	X, y := syntheticData(120, 5)
	e := trainEnsemble(X, y, 42)

	for _, tree := range e.Trees {
		for _, n := range tree.Nodes {
			if n.Feature < 0 {
				assert.Equal(t, n.Leaf, n.Expected)
				continue
			}
			l, r := tree.Nodes[n.Left], tree.Nodes[n.Right]
			if l.Cover+r.Cover > 0 {
				want := (l.Cover*l.Expected + r.Cover*r.Expected) / (l.Cover + r.Cover)
				assert.InDelta(t, want, n.Expected, 1e-9)
			}
		}
	}
}

func TestConstantLabelsYieldExtremeProbability(t *testing.T) {
	X := make([][]float64, 40)
	y := make([]int, 40)
	rng := rand.New(rand.NewSource(2))
	for i := range X {
		X[i] = []float64{rng.Float64(), rng.Float64(), rng.Float64()}
		y[i] = 1
	}

	e := trainEnsemble(X, y, 42)
	for _, x := range X {
		assert.Greater(t, e.probability(x), 0.95)
	}
}

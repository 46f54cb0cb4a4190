// Package forecast trains and serves the daily sales forecaster: an
// additive time-series model combining a piecewise-linear trend with
// yearly and weekly Fourier seasonality.
package forecast

import (
	"math"
	"time"
)

// Fixed modeling constants. These mirror the hyperparameters the
// production forecaster was tuned with and are not exposed as
// configuration.
const (
	yearlyOrder      = 10
	weeklyOrder      = 3
	yearPeriod       = 365.25
	weekPeriod       = 7.0
	numChangepoints  = 25
	changepointRange = 0.8 // changepoints only in the first 80% of history
	numSimulations   = 1000
	lowerQuantile    = 0.025
	upperQuantile    = 0.975

	// Ridge penalties per coefficient block. The level and slope are
	// effectively unpenalized so a flat series fits exactly; trend
	// changes are penalized hard to keep the trend smooth.
	basePenalty        = 1e-8
	changepointPenalty = 10.0
	seasonalPenalty    = 1.0
)

// MinTrainDays is the minimum number of distinct sales days required to
// fit the forecaster.
const MinTrainDays = 30

// additiveModel is a fitted decomposable model over t = days since
// TrainStart. Coef is ordered [level, slope, changepoint deltas...,
// yearly sin/cos pairs..., weekly sin/cos pairs...].
type additiveModel struct {
	TrainStart   time.Time `json:"train_start"`
	TrainEnd     time.Time `json:"train_end"`
	TrainDays    int       `json:"train_days"`
	Changepoints []float64 `json:"changepoints"`
	Coef         []float64 `json:"coef"`
	Sigma        float64   `json:"sigma"`
	DailyMean    float64   `json:"daily_mean"`
}

// designRow expands a time offset into the model's regression basis.
func designRow(t float64, changepoints []float64) []float64 {
	row := make([]float64, 0, 2+len(changepoints)+2*yearlyOrder+2*weeklyOrder)
	row = append(row, 1, t)
	for _, cp := range changepoints {
		if t > cp {
			row = append(row, t-cp)
		} else {
			row = append(row, 0)
		}
	}
	for k := 1; k <= yearlyOrder; k++ {
		arg := 2 * math.Pi * float64(k) * t / yearPeriod
		row = append(row, math.Sin(arg), math.Cos(arg))
	}
	for k := 1; k <= weeklyOrder; k++ {
		arg := 2 * math.Pi * float64(k) * t / weekPeriod
		row = append(row, math.Sin(arg), math.Cos(arg))
	}
	return row
}

// penaltyVector returns the per-coefficient ridge penalty matching the
// designRow layout.
func penaltyVector(nChangepoints int) []float64 {
	pen := make([]float64, 0, 2+nChangepoints+2*yearlyOrder+2*weeklyOrder)
	pen = append(pen, basePenalty, basePenalty)
	for i := 0; i < nChangepoints; i++ {
		pen = append(pen, changepointPenalty)
	}
	for i := 0; i < 2*yearlyOrder+2*weeklyOrder; i++ {
		pen = append(pen, seasonalPenalty)
	}
	return pen
}

// placeChangepoints spreads candidate trend changepoints evenly over the
// observed offsets within the changepoint range.
func placeChangepoints(ts []float64) []float64 {
	n := len(ts)
	limit := int(changepointRange * float64(n))
	if limit < 2 {
		return nil
	}
	k := numChangepoints
	if k > limit-1 {
		k = limit - 1
	}
	cps := make([]float64, 0, k)
	for i := 1; i <= k; i++ {
		idx := i * limit / (k + 1)
		cps = append(cps, ts[idx])
	}
	return cps
}

// fitAdditive solves the ridge regression y ~ designRow(t) via the
// normal equations and a Cholesky factorization, then estimates the
// residual scale.
func fitAdditive(ts, ys []float64) (cps, coef []float64, sigma float64) {
	cps = placeChangepoints(ts)
	pen := penaltyVector(len(cps))
	d := len(pen)

	// A = X'X + diag(pen), b = X'y
	A := make([][]float64, d)
	for i := range A {
		A[i] = make([]float64, d)
		A[i][i] = pen[i]
	}
	b := make([]float64, d)
	for r, t := range ts {
		row := designRow(t, cps)
		for i := 0; i < d; i++ {
			b[i] += row[i] * ys[r]
			for j := i; j < d; j++ {
				A[i][j] += row[i] * row[j]
			}
		}
	}
	for i := 1; i < d; i++ {
		for j := 0; j < i; j++ {
			A[i][j] = A[j][i]
		}
	}

	coef = choleskySolve(A, b)

	var ssr float64
	for r, t := range ts {
		resid := ys[r] - dot(designRow(t, cps), coef)
		ssr += resid * resid
	}
	sigma = math.Sqrt(ssr / float64(len(ts)))
	return cps, coef, sigma
}

// choleskySolve solves Ax = b for symmetric positive-definite A.
func choleskySolve(A [][]float64, b []float64) []float64 {
	n := len(b)
	L := make([][]float64, n)
	for i := range L {
		L[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := A[i][j]
			for k := 0; k < j; k++ {
				sum -= L[i][k] * L[j][k]
			}
			if i == j {
				if sum <= 0 {
					sum = 1e-12
				}
				L[i][j] = math.Sqrt(sum)
			} else {
				L[i][j] = sum / L[j][j]
			}
		}
	}

	// Forward then back substitution.
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := b[i]
		for k := 0; k < i; k++ {
			sum -= L[i][k] * y[k]
		}
		y[i] = sum / L[i][i]
	}
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := y[i]
		for k := i + 1; k < n; k++ {
			sum -= L[k][i] * x[k]
		}
		x[i] = sum / L[i][i]
	}
	return x
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// predict evaluates the fitted model at offset t.
func (m *additiveModel) predict(t float64) float64 {
	return dot(designRow(t, m.Changepoints), m.Coef)
}

// deltaScale is the Laplace scale used when simulating future trend
// changes, taken from the magnitude of the fitted changepoint deltas.
func (m *additiveModel) deltaScale() float64 {
	if len(m.Changepoints) == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < len(m.Changepoints); i++ {
		sum += math.Abs(m.Coef[2+i])
	}
	return sum / float64(len(m.Changepoints))
}

package forecast

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bricodata/retail-cli/internal/artifact"
	"github.com/bricodata/retail-cli/internal/model"
)

// Forecaster is the daily sales forecaster with an Untrained ->
// Trained|Loaded lifecycle mirroring the churn predictor.
type Forecaster struct {
	modelPath string
	m         *additiveModel
	metrics   *model.ForecastMetrics
}

// NewForecaster creates an untrained Forecaster that persists to
// modelPath.
func NewForecaster(modelPath string) *Forecaster {
	return &Forecaster{modelPath: modelPath}
}

type forecastArtifact struct {
	Version int            `json:"version"`
	Model   *additiveModel `json:"model"`
}

// Train aggregates the transaction log into daily sales totals, fits the
// additive model, and persists it. Training requires at least
// MinTrainDays distinct sales days.
func (f *Forecaster) Train(transactions []model.Transaction) (*model.ForecastMetrics, error) {
	dates, totals := dailyTotals(transactions)
	if len(dates) < MinTrainDays {
		return nil, eris.Wrapf(model.ErrData, "forecast: need at least %d distinct sales days, got %d", MinTrainDays, len(dates))
	}

	log := zap.L().With(zap.String("component", "forecast"))
	start := dates[0]
	end := dates[len(dates)-1]

	ts := make([]float64, len(dates))
	mean := 0.0
	for i, d := range dates {
		ts[i] = dayOffset(start, d)
		mean += totals[i]
	}
	mean /= float64(len(totals))

	cps, coef, sigma := fitAdditive(ts, totals)
	f.m = &additiveModel{
		TrainStart:   start,
		TrainEnd:     end,
		TrainDays:    len(dates),
		Changepoints: cps,
		Coef:         coef,
		Sigma:        sigma,
		DailyMean:    mean,
	}
	f.metrics = &model.ForecastMetrics{
		Days:       len(dates),
		TrainStart: start,
		TrainEnd:   end,
		DailyMean:  mean,
		Sigma:      sigma,
	}

	if err := artifact.Save(f.modelPath, forecastArtifact{Version: 1, Model: f.m}); err != nil {
		return nil, eris.Wrap(err, "forecast: persist model")
	}

	log.Info("forecast model trained",
		zap.Int("days", len(dates)),
		zap.Time("train_start", start),
		zap.Time("train_end", end),
		zap.Float64("daily_mean", mean),
		zap.String("artifact", f.modelPath),
	)
	return f.metrics, nil
}

// Load restores a persisted forecaster.
func (f *Forecaster) Load() error {
	var a forecastArtifact
	if err := artifact.Load(f.modelPath, &a); err != nil {
		return eris.Wrap(err, "forecast: load model")
	}
	if a.Model == nil {
		return eris.Wrapf(model.ErrData, "forecast: artifact %s has no model", f.modelPath)
	}
	f.m = a.Model
	f.metrics = &model.ForecastMetrics{
		Days:       a.Model.TrainDays,
		TrainStart: a.Model.TrainStart,
		TrainEnd:   a.Model.TrainEnd,
		DailyMean:  a.Model.DailyMean,
		Sigma:      a.Model.Sigma,
	}

	zap.L().Info("forecast model loaded", zap.String("artifact", f.modelPath))
	return nil
}

// Ready reports whether the forecaster is in a usable state.
func (f *Forecaster) Ready() bool {
	return f.m != nil
}

// Metrics returns the training summary, or nil when untrained.
func (f *Forecaster) Metrics() *model.ForecastMetrics {
	return f.metrics
}

// PredictNextDays forecasts the n calendar days strictly after the last
// training day, ascending, each with a 95% uncertainty interval.
func (f *Forecaster) PredictNextDays(n int) ([]model.ForecastPoint, error) {
	if f.m == nil {
		return nil, eris.Wrap(model.ErrState, "forecast: predict")
	}
	if n <= 0 {
		return nil, eris.Wrapf(model.ErrData, "forecast: horizon must be positive, got %d", n)
	}

	lastT := dayOffset(f.m.TrainStart, f.m.TrainEnd)
	points := make([]model.ForecastPoint, n)
	// Seeded so repeated calls on the same model produce identical
	// intervals.
	rng := rand.New(rand.NewSource(42))
	sim := newTrendSimulator(f.m, lastT, n, rng)

	for h := 1; h <= n; h++ {
		t := lastT + float64(h)
		yhat := f.m.predict(t)
		lo, hi := sim.interval(yhat, h)
		points[h-1] = model.ForecastPoint{
			Date:  f.m.TrainEnd.AddDate(0, 0, h),
			Value: yhat,
			Lower: lo,
			Upper: hi,
		}
	}
	return points, nil
}

// TomorrowPrediction forecasts the single day after the last training
// day.
func (f *Forecaster) TomorrowPrediction() (*model.ForecastPoint, error) {
	points, err := f.PredictNextDays(1)
	if err != nil {
		return nil, err
	}
	return &points[0], nil
}

// trendSimulator draws Monte-Carlo trajectories of future trend changes.
// Future changepoints arrive at the historical rate; each one shifts the
// slope by a Laplace-distributed delta, and observation noise is layered
// on top.
type trendSimulator struct {
	sigma float64
	// slopeShift[s][h-1] is the accumulated trend deviation of
	// simulation s at horizon step h.
	slopeShift [][]float64
	rng        *rand.Rand
}

func newTrendSimulator(m *additiveModel, lastT float64, horizon int, rng *rand.Rand) *trendSimulator {
	rate := 0.0
	if lastT > 0 {
		rate = float64(len(m.Changepoints)) / lastT
	}
	scale := m.deltaScale()

	shifts := make([][]float64, numSimulations)
	for s := range shifts {
		shifts[s] = make([]float64, horizon)
		slopeDelta := 0.0
		deviation := 0.0
		for h := 0; h < horizon; h++ {
			if rng.Float64() < rate {
				slopeDelta += laplace(rng, scale)
			}
			deviation += slopeDelta
			shifts[s][h] = deviation
		}
	}
	return &trendSimulator{sigma: m.Sigma, slopeShift: shifts, rng: rng}
}

// interval returns the 2.5% and 97.5% quantiles of the simulated
// outcomes around yhat at horizon step h.
func (ts *trendSimulator) interval(yhat float64, h int) (lo, hi float64) {
	draws := make([]float64, numSimulations)
	for s := 0; s < numSimulations; s++ {
		draws[s] = yhat + ts.slopeShift[s][h-1] + ts.rng.NormFloat64()*ts.sigma
	}
	sort.Float64s(draws)
	lo = quantile(draws, lowerQuantile)
	hi = quantile(draws, upperQuantile)
	return lo, hi
}

func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	i := int(pos)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(i)
	return sorted[i]*(1-frac) + sorted[i+1]*frac
}

func laplace(rng *rand.Rand, scale float64) float64 {
	u := rng.Float64() - 0.5
	sign := 1.0
	if u < 0 {
		sign = -1.0
		u = -u
	}
	return -scale * sign * math.Log(1-2*u)
}

// dailyTotals collapses transactions into per-day sales sums, sorted by
// day. Dates are truncated to UTC midnight.
func dailyTotals(transactions []model.Transaction) ([]time.Time, []float64) {
	byDay := map[time.Time]float64{}
	for _, tx := range transactions {
		day := time.Date(tx.Date.Year(), tx.Date.Month(), tx.Date.Day(), 0, 0, 0, 0, time.UTC)
		byDay[day] += tx.TotalAmount
	}

	dates := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	totals := make([]float64, len(dates))
	for i, d := range dates {
		totals[i] = byDay[d]
	}
	return dates, totals
}

func dayOffset(start, d time.Time) float64 {
	return d.Sub(start).Hours() / 24
}

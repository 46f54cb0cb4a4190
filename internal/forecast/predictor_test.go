package forecast

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bricodata/retail-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func dayTx(start time.Time, day int, amount float64) model.Transaction {
	return model.Transaction{
		Date:        start.AddDate(0, 0, day),
		CustomerID:  1,
		ProductID:   1,
		Quantity:    1,
		TotalAmount: amount,
	}
}

func constantSeries(days int, perDay float64) []model.Transaction {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	txs := make([]model.Transaction, 0, days*2)
	for d := 0; d < days; d++ {
		// Two transactions per day summing to perDay.
		txs = append(txs,
			dayTx(start, d, perDay*0.4),
			dayTx(start, d, perDay*0.6),
		)
	}
	return txs
}

func seasonalSeries(days int, seed int64) []model.Transaction {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(seed))
	txs := make([]model.Transaction, 0, days)
	for d := 0; d < days; d++ {
		base := 1000 + 2*float64(d)
		weekly := 150 * math.Sin(2*math.Pi*float64(d)/7)
		noise := rng.NormFloat64() * 30
		txs = append(txs, dayTx(start, d, base+weekly+noise))
	}
	return txs
}

func TestTrainOnConstantSeries(t *testing.T) {
	f := NewForecaster(filepath.Join(t.TempDir(), "sales_model.json"))
	metrics, err := f.Train(constantSeries(35, 500))
	require.NoError(t, err)

	assert.Equal(t, 35, metrics.Days)
	assert.InDelta(t, 500, metrics.DailyMean, 1e-6)

	point, err := f.TomorrowPrediction()
	require.NoError(t, err)
	assert.InDelta(t, 500, point.Value, 5)
	// The residual sigma on a constant series is tiny but nonzero, so the
	// simulated bounds sit within floating-point noise of the point value.
	assert.LessOrEqual(t, point.Lower, point.Value+1e-3)
	assert.GreaterOrEqual(t, point.Upper, point.Value-1e-3)
	assert.LessOrEqual(t, point.Lower, point.Upper)
	assert.Equal(t, metrics.TrainEnd.AddDate(0, 0, 1), point.Date)
}

func TestTrainRequiresMinimumHistory(t *testing.T) {
	f := NewForecaster(filepath.Join(t.TempDir(), "m.json"))
	_, err := f.Train(constantSeries(MinTrainDays-1, 100))
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrData))

	// Many transactions on few distinct days still fails.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var txs []model.Transaction
	for i := 0; i < 500; i++ {
		txs = append(txs, dayTx(start, i%10, 50))
	}
	_, err = f.Train(txs)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrData))
}

func TestPredictNextDaysShape(t *testing.T) {
	f := NewForecaster(filepath.Join(t.TempDir(), "m.json"))
	metrics, err := f.Train(seasonalSeries(180, 1))
	require.NoError(t, err)

	points, err := f.PredictNextDays(14)
	require.NoError(t, err)
	require.Len(t, points, 14)

	for i, pt := range points {
		assert.True(t, pt.Date.After(metrics.TrainEnd), "forecast dates start after training data")
		assert.Equal(t, metrics.TrainEnd.AddDate(0, 0, i+1), pt.Date)
		assert.LessOrEqual(t, pt.Lower, pt.Value)
		assert.GreaterOrEqual(t, pt.Upper, pt.Value)
		assert.Greater(t, pt.Upper, pt.Lower)
	}
}

func TestForecastTracksTrendAndSeasonality(t *testing.T) {
	f := NewForecaster(filepath.Join(t.TempDir(), "m.json"))
	_, err := f.Train(seasonalSeries(365, 2))
	require.NoError(t, err)

	points, err := f.PredictNextDays(7)
	require.NoError(t, err)

	// The underlying level at the end of training is about 1000+2*364.
	for _, pt := range points {
		assert.InDelta(t, 1730, pt.Value, 250)
	}
}

func TestIntervalsDeterministicAcrossCalls(t *testing.T) {
	f := NewForecaster(filepath.Join(t.TempDir(), "m.json"))
	_, err := f.Train(seasonalSeries(120, 3))
	require.NoError(t, err)

	a, err := f.PredictNextDays(7)
	require.NoError(t, err)
	b, err := f.PredictNextDays(7)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLoadReproducesForecasts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales_model.json")

	trained := NewForecaster(path)
	_, err := trained.Train(seasonalSeries(90, 4))
	require.NoError(t, err)

	loaded := NewForecaster(path)
	require.NoError(t, loaded.Load())
	require.NotNil(t, loaded.Metrics())

	want, err := trained.PredictNextDays(10)
	require.NoError(t, err)
	got, err := loaded.PredictNextDays(10)
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Date, got[i].Date)
		assert.InDelta(t, want[i].Value, got[i].Value, 1e-9)
		assert.InDelta(t, want[i].Lower, got[i].Lower, 1e-9)
		assert.InDelta(t, want[i].Upper, got[i].Upper, 1e-9)
	}
}

func TestPredictBeforeTrainIsStateError(t *testing.T) {
	f := NewForecaster(filepath.Join(t.TempDir(), "m.json"))

	_, err := f.PredictNextDays(7)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrState))

	_, err = f.TomorrowPrediction()
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrState))
}

func TestPredictRejectsNonPositiveHorizon(t *testing.T) {
	f := NewForecaster(filepath.Join(t.TempDir(), "m.json"))
	_, err := f.Train(constantSeries(40, 200))
	require.NoError(t, err)

	for _, n := range []int{0, -3} {
		_, err := f.PredictNextDays(n)
		require.Error(t, err)
		assert.True(t, eris.Is(err, model.ErrData))
	}
}

func TestLoadMissingArtifact(t *testing.T) {
	f := NewForecaster(filepath.Join(t.TempDir(), "nope.json"))
	err := f.Load()
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrNotFound))
}

func TestDailyTotalsAggregation(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	txs := []model.Transaction{
		dayTx(start, 1, 10),
		dayTx(start, 0, 5),
		dayTx(start, 1, 20),
		// Different clock time on an existing day collapses together.
		{Date: start.Add(15 * time.Hour), CustomerID: 2, ProductID: 1, Quantity: 1, TotalAmount: 7},
	}

	dates, totals := dailyTotals(txs)
	require.Len(t, dates, 2)
	assert.Equal(t, start, dates[0])
	assert.InDelta(t, 12.0, totals[0], 1e-9)
	assert.InDelta(t, 30.0, totals[1], 1e-9)
}

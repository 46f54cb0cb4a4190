package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bricodata/retail-cli/internal/config"
	"github.com/bricodata/retail-cli/internal/dataset"
	"github.com/bricodata/retail-cli/internal/features"
	"github.com/bricodata/retail-cli/internal/model"
	"github.com/bricodata/retail-cli/internal/service"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// servedService trains both models on synthetic data and returns a
// ready-to-serve Service.
func servedService(t *testing.T) *service.Service {
	t.Helper()
	dir := t.TempDir()
	c := &config.Config{
		Data: config.DataConfig{
			RawDir:       filepath.Join(dir, "raw"),
			ProcessedDir: filepath.Join(dir, "processed"),
		},
		Models: config.ModelsConfig{Dir: filepath.Join(dir, "models")},
		Churn:  config.ChurnConfig{Seed: 42, TestFraction: 0.2},
	}

	// Few transactions per customer so a healthy share of them goes
	// quiet for more than 90 days.
	opts := dataset.GenerateOptions{
		Products: 50, Customers: 300, Transactions: 1500, Seed: 42,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, dataset.GenerateRaw(c.Data.RawDir, opts))

	svc := service.New(c, nil)

	products, customers, txs, err := dataset.LoadAll(context.Background(), c.Data.RawDir)
	require.NoError(t, err)

	_, feats, err := features.Run(customers, products, txs)
	require.NoError(t, err)
	svc.SetFeatures(feats)

	_, err = svc.TrainChurn(context.Background())
	require.NoError(t, err)
	_, err = svc.TrainForecast(context.Background())
	require.NoError(t, err)
	return svc
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeHealth(t *testing.T) {
	router := newRouter(servedService(t))

	rec := get(t, router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServeAtRisk(t *testing.T) {
	router := newRouter(servedService(t))

	rec := get(t, router, "/at-risk?threshold=0.5")
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []model.RiskRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	for _, r := range rows {
		assert.Greater(t, r.Probability, 0.5)
	}
}

func TestServeAtRiskThresholdOne(t *testing.T) {
	router := newRouter(servedService(t))

	rec := get(t, router, "/at-risk?threshold=1.0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestServeAtRiskBadThreshold(t *testing.T) {
	router := newRouter(servedService(t))

	for _, q := range []string{"threshold=2", "threshold=abc"} {
		rec := get(t, router, "/at-risk?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestServeExplain(t *testing.T) {
	svc := servedService(t)
	router := newRouter(svc)

	id := svc.Features()[0].CustomerID
	rec := get(t, router, "/explain/"+strconv.FormatInt(id, 10))
	require.Equal(t, http.StatusOK, rec.Code)

	var exp model.Explanation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exp))
	assert.Equal(t, id, exp.CustomerID)

	sum := exp.Baseline
	for _, a := range exp.Attributions {
		sum += a.Weight
	}
	assert.InDelta(t, exp.Probability, sum, 1e-6)
}

func TestServeExplainNotFound(t *testing.T) {
	router := newRouter(servedService(t))

	rec := get(t, router, "/explain/99999999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeForecastAndTomorrow(t *testing.T) {
	router := newRouter(servedService(t))

	rec := get(t, router, "/forecast?days=5")
	require.Equal(t, http.StatusOK, rec.Code)

	var points []model.ForecastPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	require.Len(t, points, 5)
	for _, p := range points {
		assert.GreaterOrEqual(t, p.Value, 0.0, "display values are clamped")
		assert.GreaterOrEqual(t, p.Upper, p.Lower)
	}

	rec = get(t, router, "/tomorrow")
	require.Equal(t, http.StatusOK, rec.Code)
	var tomorrow model.ForecastPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tomorrow))
	assert.Equal(t, points[0].Date, tomorrow.Date)
}

func TestServeForecastBadDays(t *testing.T) {
	router := newRouter(servedService(t))

	rec := get(t, router, "/forecast?days=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeImportance(t *testing.T) {
	router := newRouter(servedService(t))

	rec := get(t, router, "/importance")
	require.Equal(t, http.StatusOK, rec.Code)

	var weights []model.FeatureWeight
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &weights))
	require.Len(t, weights, 3)

	sum := 0.0
	for _, w := range weights {
		sum += w.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestServeUntrainedIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	c := &config.Config{
		Data:   config.DataConfig{RawDir: filepath.Join(dir, "raw"), ProcessedDir: filepath.Join(dir, "processed")},
		Models: config.ModelsConfig{Dir: filepath.Join(dir, "models")},
	}
	router := newRouter(service.New(c, nil))

	rec := get(t, router, "/importance")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// Package service is the serving layer: it owns the loaded models and
// the customer feature table and answers prediction queries.
package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bricodata/retail-cli/internal/churn"
	"github.com/bricodata/retail-cli/internal/config"
	"github.com/bricodata/retail-cli/internal/dataset"
	"github.com/bricodata/retail-cli/internal/forecast"
	"github.com/bricodata/retail-cli/internal/model"
	"github.com/bricodata/retail-cli/internal/store"
)

// Risk tier boundaries used for reporting. Fixed business constants.
const (
	HighRiskThreshold   = 0.7
	MediumRiskThreshold = 0.4
)

// RiskTier labels a churn probability for reports.
func RiskTier(p float64) string {
	switch {
	case p >= HighRiskThreshold:
		return "high"
	case p >= MediumRiskThreshold:
		return "medium"
	default:
		return "low"
	}
}

// Service holds the loaded models and feature table. It is constructed
// once per process and passed by reference; there are no package-level
// singletons. The run-history store is optional: a nil store disables
// run recording without affecting predictions.
type Service struct {
	cfg        *config.Config
	runs       store.Store
	churn      *churn.Predictor
	forecaster *forecast.Forecaster
	feats      []model.CustomerFeature
	featsByID  map[int64]int
	log        *zap.Logger
}

// New creates a Service bound to the configured artifact and data paths.
func New(cfg *config.Config, runs store.Store) *Service {
	return &Service{
		cfg:        cfg,
		runs:       runs,
		churn:      churn.New(cfg.ChurnModelPath()),
		forecaster: forecast.NewForecaster(cfg.ForecastModelPath()),
		log:        zap.L().With(zap.String("component", "service")),
	}
}

// EnsureFeatures loads the processed customer feature table if it is not
// already in memory.
func (s *Service) EnsureFeatures() error {
	if s.feats != nil {
		return nil
	}
	feats, err := dataset.LoadCustomerFeatures(s.cfg.CustomerFeaturesPath())
	if err != nil {
		return eris.Wrap(err, "service: load customer features")
	}
	s.setFeatures(feats)
	return nil
}

// SetFeatures replaces the in-memory feature table, bypassing the
// processed CSV. Used after running the pipeline in-process.
func (s *Service) SetFeatures(feats []model.CustomerFeature) {
	s.setFeatures(feats)
}

func (s *Service) setFeatures(feats []model.CustomerFeature) {
	s.feats = feats
	s.featsByID = make(map[int64]int, len(feats))
	for i, f := range feats {
		s.featsByID[f.CustomerID] = i
	}
}

// Features returns the loaded feature table.
func (s *Service) Features() []model.CustomerFeature {
	return s.feats
}

// TrainChurn trains the churn model on the loaded feature table and
// records the run.
func (s *Service) TrainChurn(ctx context.Context) (*model.ChurnMetrics, error) {
	if err := s.EnsureFeatures(); err != nil {
		return nil, err
	}

	runID := s.beginRun(ctx, model.RunKindChurn)
	metrics, err := s.churn.Train(s.feats, churn.TrainOptions{
		TestFraction: s.cfg.Churn.TestFraction,
		Seed:         s.cfg.Churn.Seed,
	})
	if err != nil {
		s.failRun(ctx, runID, err)
		return nil, err
	}
	s.completeRun(ctx, runID, metrics, s.cfg.ChurnModelPath())
	return metrics, nil
}

// LoadChurn loads the persisted churn model.
func (s *Service) LoadChurn() error {
	return s.churn.Load()
}

// PredictChurn returns churn probabilities for an inference frame.
func (s *Service) PredictChurn(frame model.Frame) ([]float64, error) {
	return s.churn.PredictProbability(frame)
}

// ChurnFeatureImportance returns the normalized global importance
// ranking of the churn model.
func (s *Service) ChurnFeatureImportance() ([]model.FeatureWeight, error) {
	return s.churn.FeatureImportance()
}

// TrainForecast trains the sales forecaster on the raw transaction log
// and records the run.
func (s *Service) TrainForecast(ctx context.Context) (*model.ForecastMetrics, error) {
	txs, err := dataset.LoadTransactions(filepath.Join(s.cfg.Data.RawDir, dataset.TransactionsFile))
	if err != nil {
		return nil, eris.Wrap(err, "service: load transactions")
	}

	runID := s.beginRun(ctx, model.RunKindForecast)
	metrics, err := s.forecaster.Train(txs)
	if err != nil {
		s.failRun(ctx, runID, err)
		return nil, err
	}
	s.completeRun(ctx, runID, metrics, s.cfg.ForecastModelPath())
	return metrics, nil
}

// LoadForecast loads the persisted forecaster.
func (s *Service) LoadForecast() error {
	return s.forecaster.Load()
}

// Forecast predicts the next days of daily sales.
func (s *Service) Forecast(days int) ([]model.ForecastPoint, error) {
	return s.forecaster.PredictNextDays(days)
}

// TomorrowForecast predicts the single next day.
func (s *Service) TomorrowForecast() (*model.ForecastPoint, error) {
	return s.forecaster.TomorrowPrediction()
}

// FilterAtRisk returns every customer whose churn probability strictly
// exceeds the threshold, sorted by probability descending. Ties keep
// feature-table order. A threshold of 1.0 therefore always yields an
// empty result.
func (s *Service) FilterAtRisk(threshold float64) ([]model.RiskRow, error) {
	if threshold < 0 || threshold > 1 {
		return nil, eris.Wrapf(model.ErrData, "service: threshold must be in [0,1], got %g", threshold)
	}
	if err := s.EnsureFeatures(); err != nil {
		return nil, err
	}
	if len(s.feats) == 0 {
		return nil, nil
	}

	probs, err := s.churn.PredictProbability(churn.FrameFromFeatures(s.feats))
	if err != nil {
		return nil, err
	}

	var rows []model.RiskRow
	for i, f := range s.feats {
		if probs[i] > threshold {
			rows = append(rows, model.RiskRow{
				CustomerID:  f.CustomerID,
				Recency:     f.Recency,
				Monetary:    f.Monetary,
				Probability: probs[i],
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Probability > rows[j].Probability })
	return rows, nil
}

// ExplainCustomer returns the additive attribution for one customer's
// churn prediction.
func (s *Service) ExplainCustomer(customerID int64) (*model.Explanation, error) {
	if err := s.EnsureFeatures(); err != nil {
		return nil, err
	}
	idx, ok := s.featsByID[customerID]
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "service: customer %d", customerID)
	}

	frame := churn.FrameFromFeatures(s.feats[idx : idx+1])
	exp, err := s.churn.Explain(frame.Rows[0])
	if err != nil {
		return nil, err
	}
	exp.CustomerID = customerID
	return exp, nil
}

// run recording; tolerant to a nil store and to store failures.

func (s *Service) beginRun(ctx context.Context, kind model.RunKind) string {
	if s.runs == nil {
		return ""
	}
	run, err := s.runs.CreateRun(ctx, kind)
	if err != nil {
		s.log.Warn("record training run", zap.Error(err))
		return ""
	}
	return run.ID
}

func (s *Service) completeRun(ctx context.Context, runID string, metrics any, artifactPath string) {
	if s.runs == nil || runID == "" {
		return
	}
	raw, err := json.Marshal(metrics)
	if err != nil {
		s.log.Warn("marshal run metrics", zap.Error(err))
		raw = nil
	}
	if err := s.runs.CompleteRun(ctx, runID, raw, artifactPath); err != nil {
		s.log.Warn("complete training run", zap.String("run_id", runID), zap.Error(err))
	}
}

func (s *Service) failRun(ctx context.Context, runID string, cause error) {
	if s.runs == nil || runID == "" {
		return
	}
	if err := s.runs.FailRun(ctx, runID, cause.Error()); err != nil {
		s.log.Warn("fail training run", zap.String("run_id", runID), zap.Error(err))
	}
}

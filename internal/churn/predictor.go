// Package churn trains and serves the customer churn classifier: a
// gradient-boosted tree ensemble over the RFM-derived features.
package churn

import (
	"math/rand"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bricodata/retail-cli/internal/artifact"
	"github.com/bricodata/retail-cli/internal/dataset"
	"github.com/bricodata/retail-cli/internal/model"
)

// ChurnRecencyDays defines the supervised target: a customer whose
// recency exceeds this many days is labeled churned. This is a fixed
// business constant, not a tunable.
const ChurnRecencyDays = 90

// CanonicalFeatures is the ordered feature set the classifier is trained
// on. Recency is deliberately excluded: the label is derived from it and
// including it would leak the target.
var CanonicalFeatures = []string{"frequency", "monetary", "avg_ticket"}

// TrainOptions configures a training run.
type TrainOptions struct {
	TestFraction float64 // held-out fraction, default 0.2
	Seed         int64   // drives the split and the ensemble subsampling
}

// Predictor is the churn model with an Untrained -> Trained|Loaded
// lifecycle. Retraining semantics are create-a-new-instance; there is no
// way back to Untrained.
type Predictor struct {
	modelPath    string
	ens          *ensemble
	featureNames []string
	metrics      *model.ChurnMetrics
}

// New creates an untrained Predictor that persists to modelPath.
func New(modelPath string) *Predictor {
	return &Predictor{modelPath: modelPath}
}

// churnArtifact is the persisted form of a trained model.
type churnArtifact struct {
	Version      int       `json:"version"`
	FeatureNames []string  `json:"feature_names"`
	Ensemble     *ensemble `json:"ensemble"`
}

// Train derives the label and features, fits the ensemble on a seeded
// stratified split, computes evaluation metrics on the held-out split,
// and persists the fitted model.
func (p *Predictor) Train(feats []model.CustomerFeature, opts TrainOptions) (*model.ChurnMetrics, error) {
	if opts.TestFraction == 0 {
		opts.TestFraction = 0.2
	}
	if opts.TestFraction < 0 || opts.TestFraction >= 1 {
		return nil, eris.Wrapf(model.ErrData, "churn: test fraction must be in (0,1), got %g", opts.TestFraction)
	}
	if len(feats) == 0 {
		return nil, eris.Wrap(model.ErrData, "churn: empty feature table")
	}

	log := zap.L().With(zap.String("component", "churn"))

	X := make([][]float64, len(feats))
	y := make([]int, len(feats))
	churned := 0
	for i, f := range feats {
		X[i] = featureVector(f)
		if f.Recency > ChurnRecencyDays {
			y[i] = 1
			churned++
		}
	}

	log.Info("training churn model",
		zap.Int("customers", len(feats)),
		zap.Int("churned", churned),
		zap.Int("active", len(feats)-churned),
	)

	trainIdx, testIdx, err := stratifiedSplit(y, opts.TestFraction, opts.Seed)
	if err != nil {
		return nil, err
	}

	Xtr, ytr := gather(X, y, trainIdx)
	Xte, yte := gather(X, y, testIdx)

	p.ens = trainEnsemble(Xtr, ytr, opts.Seed)
	p.featureNames = append([]string(nil), CanonicalFeatures...)
	p.metrics = p.evaluate(Xtr, ytr, Xte, yte)

	if err := artifact.Save(p.modelPath, churnArtifact{
		Version:      1,
		FeatureNames: p.featureNames,
		Ensemble:     p.ens,
	}); err != nil {
		return nil, eris.Wrap(err, "churn: persist model")
	}

	log.Info("churn model trained",
		zap.Float64("test_accuracy", p.metrics.TestAccuracy),
		zap.Float64("test_auc", p.metrics.AUC),
		zap.String("artifact", p.modelPath),
	)
	return p.metrics, nil
}

// Load restores a previously persisted model, leaving the predictor in
// the same usable state Train produces (metrics are not persisted).
func (p *Predictor) Load() error {
	var a churnArtifact
	if err := artifact.Load(p.modelPath, &a); err != nil {
		return eris.Wrap(err, "churn: load model")
	}
	if a.Ensemble == nil {
		return eris.Wrapf(model.ErrData, "churn: artifact %s has no ensemble", p.modelPath)
	}

	p.ens = a.Ensemble
	p.featureNames = a.FeatureNames
	if len(p.featureNames) == 0 {
		// Older artifacts did not embed the feature list.
		p.featureNames = append([]string(nil), CanonicalFeatures...)
	}

	zap.L().Info("churn model loaded", zap.String("artifact", p.modelPath))
	return nil
}

// Ready reports whether the predictor is in a usable state.
func (p *Predictor) Ready() bool {
	return p.ens != nil
}

// Metrics returns the metrics retained from the last Train call, or nil
// after a Load.
func (p *Predictor) Metrics() *model.ChurnMetrics {
	return p.metrics
}

// FeatureNames returns the ordered feature list the model was fit on.
func (p *Predictor) FeatureNames() []string {
	return append([]string(nil), p.featureNames...)
}

// PredictProbability returns the churn probability for every row of f.
func (p *Predictor) PredictProbability(f model.Frame) ([]float64, error) {
	rows, err := p.checkFrame(f)
	if err != nil {
		return nil, err
	}
	probs := make([]float64, len(rows))
	for i, x := range rows {
		probs[i] = p.ens.probability(x)
	}
	return probs, nil
}

// Predict returns the binary churn label (probability > 0.5) for every
// row of f.
func (p *Predictor) Predict(f model.Frame) ([]int, error) {
	probs, err := p.PredictProbability(f)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(probs))
	for i, prob := range probs {
		if prob > 0.5 {
			labels[i] = 1
		}
	}
	return labels, nil
}

// FeatureImportance returns the features ranked by normalized split gain,
// descending. The weights are non-negative and sum to 1.
func (p *Predictor) FeatureImportance() ([]model.FeatureWeight, error) {
	if p.ens == nil {
		return nil, eris.Wrap(model.ErrState, "churn: feature importance")
	}

	total := 0.0
	for _, g := range p.ens.Gains {
		total += g
	}

	weights := make([]model.FeatureWeight, len(p.featureNames))
	for i, name := range p.featureNames {
		w := 0.0
		if total > 0 {
			w = p.ens.Gains[i] / total
		}
		weights[i] = model.FeatureWeight{Feature: name, Weight: w}
	}
	sort.SliceStable(weights, func(i, j int) bool { return weights[i].Weight > weights[j].Weight })
	return weights, nil
}

// checkFrame validates state and input shape, returning the raw rows.
func (p *Predictor) checkFrame(f model.Frame) ([][]float64, error) {
	if p.ens == nil {
		return nil, eris.Wrap(model.ErrState, "churn: predict")
	}
	if len(f.Columns) != len(p.featureNames) {
		return nil, eris.Wrapf(model.ErrInference, "churn: expected columns %v, got %v", p.featureNames, f.Columns)
	}
	for i, c := range f.Columns {
		if c != p.featureNames[i] {
			return nil, eris.Wrapf(model.ErrInference, "churn: expected columns %v, got %v", p.featureNames, f.Columns)
		}
	}
	if len(f.Rows) == 0 {
		return nil, eris.Wrap(model.ErrInference, "churn: frame has no rows")
	}
	for i, row := range f.Rows {
		if len(row) != len(p.featureNames) {
			return nil, eris.Wrapf(model.ErrInference, "churn: row %d has %d values, want %d", i, len(row), len(p.featureNames))
		}
	}
	return f.Rows, nil
}

// featureVector maps a CustomerFeature to the canonical feature order.
// avg_ticket is re-derived so training and serving share one guard.
func featureVector(f model.CustomerFeature) []float64 {
	return []float64{
		float64(f.Frequency),
		f.Monetary,
		dataset.AvgTicket(f.Monetary, f.Frequency),
	}
}

// FrameFromFeatures builds an inference frame in canonical column order.
func FrameFromFeatures(feats []model.CustomerFeature) model.Frame {
	rows := make([][]float64, len(feats))
	for i, f := range feats {
		rows[i] = featureVector(f)
	}
	return model.Frame{Columns: append([]string(nil), CanonicalFeatures...), Rows: rows}
}

// stratifiedSplit splits indices per class with a seeded shuffle so both
// splits preserve the label proportions. Every class must contribute at
// least one row to each side.
func stratifiedSplit(y []int, testFraction float64, seed int64) (train, test []int, err error) {
	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	if len(byClass) < 2 {
		return nil, nil, eris.Wrap(model.ErrData, "churn: training needs both churned and active customers")
	}

	rng := rand.New(rand.NewSource(seed))
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	for _, c := range classes {
		idx := byClass[c]
		if len(idx) < 2 {
			return nil, nil, eris.Wrapf(model.ErrData, "churn: class %d has %d rows, need at least 2 for a stratified split", c, len(idx))
		}
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nTest := int(testFraction*float64(len(idx)) + 0.5)
		if nTest < 1 {
			nTest = 1
		}
		if nTest >= len(idx) {
			nTest = len(idx) - 1
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}

	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

func gather(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	gx := make([][]float64, len(idx))
	gy := make([]int, len(idx))
	for k, i := range idx {
		gx[k] = X[i]
		gy[k] = y[i]
	}
	return gx, gy
}

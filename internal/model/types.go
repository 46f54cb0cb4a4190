// Package model defines the domain types shared across the prediction pipeline.
package model

import (
	"encoding/json"
	"time"
)

// Category is a fixed product category.
type Category string

// Product categories carried by the raw catalog.
const (
	CategoryHogar        Category = "Hogar"
	CategoryJardin       Category = "Jardín"
	CategoryConstruccion Category = "Construcción"
	CategoryHerramientas Category = "Herramientas"
	CategoryDecoracion   Category = "Decoración"
)

// Categories lists every known product category.
var Categories = []Category{
	CategoryHogar,
	CategoryJardin,
	CategoryConstruccion,
	CategoryHerramientas,
	CategoryDecoracion,
}

// Segment is a customer segment.
type Segment string

// Customer segments carried by the raw customer table.
const (
	SegmentParticular  Segment = "Particular"
	SegmentProfesional Segment = "Profesional"
	SegmentEmpresa     Segment = "Empresa"
)

// Product is one row of the raw product catalog.
type Product struct {
	ID       int64    `json:"id"`
	Category Category `json:"category"`
	Price    float64  `json:"price"`
	Cost     float64  `json:"cost"`
}

// Customer is one row of the raw customer table. ChurnRiskPrior is an
// informational synthetic field and is never consumed by the models.
type Customer struct {
	ID             int64   `json:"customer_id"`
	Segment        Segment `json:"segment"`
	ChurnRiskPrior float64 `json:"churn_risk"`
}

// Transaction is one immutable row of the raw transaction log. It is the
// source of truth for every derived aggregate.
type Transaction struct {
	Date        time.Time `json:"date"`
	CustomerID  int64     `json:"customer_id"`
	ProductID   int64     `json:"product_id"`
	Quantity    int       `json:"quantity"`
	TotalAmount float64   `json:"total_amount"`
}

// EnrichedTransaction is a transaction joined against the product catalog
// with derived margin and temporal parts. Product fields are nil when the
// referenced product is absent from the catalog.
type EnrichedTransaction struct {
	Transaction
	Category *Category `json:"category,omitempty"`
	Price    *float64  `json:"price,omitempty"`
	Cost     *float64  `json:"cost,omitempty"`
	Margin   *float64  `json:"margin,omitempty"`
	Year     int       `json:"year"`
	Month    int       `json:"month"`
	Weekday  int       `json:"weekday"`
}

// CustomerFeature is the per-customer RFM row produced by the feature
// pipeline. Recency is measured against the dataset-wide maximum
// transaction date, not wall-clock time. Segment is nil for customers
// absent from the customer table.
type CustomerFeature struct {
	CustomerID int64    `json:"customer_id"`
	Recency    int      `json:"recency"`
	Frequency  int      `json:"frequency"`
	Monetary   float64  `json:"monetary"`
	AvgTicket  float64  `json:"avg_ticket"`
	Segment    *Segment `json:"segment,omitempty"`
}

// Frame is a small columnar table handed to a trained model for inference.
type Frame struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

// ConfusionMatrix is the 2x2 confusion matrix on the held-out test split.
type ConfusionMatrix struct {
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TP int `json:"tp"`
}

// ChurnMetrics holds the performance metrics retained after training the
// churn classifier.
type ChurnMetrics struct {
	TrainAccuracy float64         `json:"train_accuracy" yaml:"train_accuracy"`
	TestAccuracy  float64         `json:"test_accuracy" yaml:"test_accuracy"`
	Precision     float64         `json:"test_precision" yaml:"test_precision"`
	Recall        float64         `json:"test_recall" yaml:"test_recall"`
	F1            float64         `json:"test_f1" yaml:"test_f1"`
	AUC           float64         `json:"test_auc" yaml:"test_auc"`
	Confusion     ConfusionMatrix `json:"confusion_matrix" yaml:"confusion_matrix"`
	TrainRows     int             `json:"train_rows" yaml:"train_rows"`
	TestRows      int             `json:"test_rows" yaml:"test_rows"`
}

// FeatureWeight pairs a feature name with a weight. Used for both global
// importance rankings and per-customer attributions.
type FeatureWeight struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// ForecastPoint is one forecast row: point prediction plus the bounds of
// the 95% uncertainty interval, one per calendar day.
type ForecastPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Lower float64   `json:"lower"`
	Upper float64   `json:"upper"`
}

// ForecastMetrics holds the summary retained after training the forecaster.
type ForecastMetrics struct {
	Days       int       `json:"days" yaml:"days"`
	TrainStart time.Time `json:"train_start" yaml:"train_start"`
	TrainEnd   time.Time `json:"train_end" yaml:"train_end"`
	DailyMean  float64   `json:"daily_mean" yaml:"daily_mean"`
	Sigma      float64   `json:"sigma" yaml:"sigma"`
}

// RiskRow is one customer in a risk-filtered listing, sorted descending by
// churn probability.
type RiskRow struct {
	CustomerID  int64   `json:"customer_id"`
	Recency     int     `json:"recency"`
	Monetary    float64 `json:"monetary"`
	Probability float64 `json:"probability"`
}

// Explanation is a per-customer additive attribution: Baseline plus the
// sum of the attribution weights reconstructs Probability.
type Explanation struct {
	CustomerID   int64           `json:"customer_id"`
	Baseline     float64         `json:"baseline"`
	Probability  float64         `json:"probability"`
	Attributions []FeatureWeight `json:"attributions"`
}

// RunKind identifies which model a training run produced.
type RunKind string

// Training run kinds.
const (
	RunKindChurn    RunKind = "churn"
	RunKindForecast RunKind = "forecast"
)

// RunStatus is the lifecycle state of a training run record.
type RunStatus string

// Training run statuses.
const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// TrainingRun is one recorded model training execution.
type TrainingRun struct {
	ID           string          `json:"id"`
	Kind         RunKind         `json:"kind"`
	Status       RunStatus       `json:"status"`
	Metrics      json.RawMessage `json:"metrics,omitempty"`
	ArtifactPath string          `json:"artifact_path,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

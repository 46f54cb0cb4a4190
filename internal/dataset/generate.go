package dataset

import (
	"math"
	"math/rand"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/bricodata/retail-cli/internal/model"
)

// GenerateOptions sizes the synthetic dataset.
type GenerateOptions struct {
	Products     int
	Customers    int
	Transactions int
	Seed         int64
	StartDate    time.Time
	EndDate      time.Time
}

// DefaultGenerateOptions mirrors the dataset sizes the dashboards were
// demoed against.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Products:     5000,
		Customers:    50000,
		Transactions: 200000,
		Seed:         42,
		StartDate:    time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC),
	}
}

// GenerateProducts builds a synthetic catalog with margins between 20%
// and 50%, so cost never exceeds price.
func GenerateProducts(n int, rng *rand.Rand) []model.Product {
	products := make([]model.Product, n)
	for i := range products {
		price := roundCents(5.0 + rng.Float64()*495.0)
		margin := 0.2 + rng.Float64()*0.3
		products[i] = model.Product{
			ID:       int64(i + 1),
			Category: model.Categories[rng.Intn(len(model.Categories))],
			Price:    price,
			Cost:     roundCents(price * (1 - margin)),
		}
	}
	return products
}

// GenerateCustomers builds a synthetic customer base with a 70/25/5
// segment mix and an informational churn-risk prior.
func GenerateCustomers(n int, rng *rand.Rand) []model.Customer {
	customers := make([]model.Customer, n)
	for i := range customers {
		seg := model.SegmentParticular
		switch r := rng.Float64(); {
		case r >= 0.95:
			seg = model.SegmentEmpresa
		case r >= 0.70:
			seg = model.SegmentProfesional
		}
		customers[i] = model.Customer{
			ID:             int64(i + 1),
			Segment:        seg,
			ChurnRiskPrior: math.Round(rng.Float64()*1000) / 1000,
		}
	}
	return customers
}

// GenerateTransactions builds a synthetic transaction log with a 1%
// cumulative monthly growth trend and a summer bias toward Jardín
// products, sorted by date.
func GenerateTransactions(opts GenerateOptions, rng *rand.Rand) []model.Transaction {
	totalDays := int(opts.EndDate.Sub(opts.StartDate).Hours() / 24)
	txs := make([]model.Transaction, 0, opts.Transactions)

	for i := 0; i < opts.Transactions; i++ {
		date := opts.StartDate.AddDate(0, 0, rng.Intn(totalDays+1))

		monthsElapsed := (date.Year()-opts.StartDate.Year())*12 + int(date.Month()) - int(opts.StartDate.Month())
		trend := math.Pow(1.01, float64(monthsElapsed))

		productID := int64(rng.Intn(opts.Products) + 1)
		month := date.Month()
		isSummer := month >= time.June && month <= time.August
		if isSummer && rng.Float64() < 0.5 {
			// Summer demand skews toward the Jardín id range.
			hi := opts.Products
			if hi > 2000 {
				hi = 2000
			}
			if hi > 1000 {
				productID = int64(1000 + rng.Intn(hi-1000+1))
			}
		}

		qty := rng.Intn(10) + 1
		unitPrice := 50.0 * (0.9 + rng.Float64()*0.2)
		txs = append(txs, model.Transaction{
			Date:        date,
			CustomerID:  int64(rng.Intn(opts.Customers) + 1),
			ProductID:   productID,
			Quantity:    qty,
			TotalAmount: roundCents(float64(qty) * unitPrice * trend),
		})
	}

	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.Before(txs[j].Date) })
	return txs
}

// GenerateRaw generates the full synthetic dataset and writes the three
// raw CSV tables into dir.
func GenerateRaw(dir string, opts GenerateOptions) error {
	rng := rand.New(rand.NewSource(opts.Seed))
	log := zap.L().With(zap.String("component", "generate"))

	products := GenerateProducts(opts.Products, rng)
	customers := GenerateCustomers(opts.Customers, rng)
	txs := GenerateTransactions(opts, rng)

	if err := writeProducts(filepath.Join(dir, ProductsFile), products); err != nil {
		return err
	}
	if err := writeCustomers(filepath.Join(dir, CustomersFile), customers); err != nil {
		return err
	}
	if err := writeTransactions(filepath.Join(dir, TransactionsFile), txs); err != nil {
		return err
	}

	log.Info("synthetic data generated",
		zap.Int("products", len(products)),
		zap.Int("customers", len(customers)),
		zap.Int("transactions", len(txs)),
		zap.String("dir", dir),
	)
	return nil
}

func writeProducts(path string, products []model.Product) error {
	head := []string{"id", "category", "price", "cost"}
	rows := make([][]string, len(products))
	for i, p := range products {
		rows[i] = []string{
			strconv.FormatInt(p.ID, 10),
			string(p.Category),
			formatFloat(p.Price),
			formatFloat(p.Cost),
		}
	}
	return writeCSV(path, head, rows)
}

func writeCustomers(path string, customers []model.Customer) error {
	head := []string{"customer_id", "segment", "churn_risk"}
	rows := make([][]string, len(customers))
	for i, c := range customers {
		rows[i] = []string{
			strconv.FormatInt(c.ID, 10),
			string(c.Segment),
			formatFloat(c.ChurnRiskPrior),
		}
	}
	return writeCSV(path, head, rows)
}

func writeTransactions(path string, txs []model.Transaction) error {
	head := []string{"date", "customer_id", "product_id", "quantity", "total_amount"}
	rows := make([][]string, len(txs))
	for i, tx := range txs {
		rows[i] = []string{
			tx.Date.Format(dateLayout),
			strconv.FormatInt(tx.CustomerID, 10),
			strconv.FormatInt(tx.ProductID, 10),
			strconv.Itoa(tx.Quantity),
			formatFloat(tx.TotalAmount),
		}
	}
	return writeCSV(path, head, rows)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Package dataset loads the raw retail tables, writes the processed
// outputs, fetches remote source files, and generates synthetic data.
package dataset

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/bricodata/retail-cli/internal/model"
)

// dateLayout is the ISO-8601 calendar date format used by all tables.
const dateLayout = "2006-01-02"

// Conventional raw table file names.
const (
	ProductsFile     = "products.csv"
	CustomersFile    = "customers.csv"
	TransactionsFile = "transactions.csv"
)

// header maps lower-cased column names to their position.
type header map[string]int

func indexHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		h[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return h
}

// col returns the index of the first matching column name.
func (h header) col(names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := h[n]; ok {
			return i, true
		}
	}
	return 0, false
}

// requireColumns fails with ErrData naming every missing column. Each
// required entry may list aliases separated by '|'.
func requireColumns(h header, table string, required ...string) error {
	var missing []string
	for _, spec := range required {
		if _, ok := h.col(strings.Split(spec, "|")...); !ok {
			missing = append(missing, spec)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return eris.Wrapf(model.ErrData, "dataset: %s is missing required columns %v", table, missing)
	}
	return nil
}

// readTable reads a CSV file and returns its header and data rows.
func readTable(path string) (header, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, eris.Wrapf(model.ErrNotFound, "dataset: %s", path)
		}
		return nil, nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, eris.Wrapf(err, "dataset: read %s", path)
	}
	if len(records) == 0 {
		return nil, nil, eris.Wrapf(model.ErrData, "dataset: %s has no header row", path)
	}

	return indexHeader(records[0]), records[1:], nil
}

// LoadProducts reads the product catalog from a CSV file.
func LoadProducts(path string) ([]model.Product, error) {
	h, rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	return parseProducts(h, rows)
}

func parseProducts(h header, rows [][]string) ([]model.Product, error) {
	if err := requireColumns(h, "products", "id|product_id", "category", "price", "cost"); err != nil {
		return nil, err
	}

	idIdx, _ := h.col("id", "product_id")
	catIdx, _ := h.col("category")
	priceIdx, _ := h.col("price")
	costIdx, _ := h.col("cost")

	products := make([]model.Product, 0, len(rows))
	for i, row := range rows {
		id, err := parseInt(row, idIdx, "products", i, "id")
		if err != nil {
			return nil, err
		}
		price, err := parseFloat(row, priceIdx, "products", i, "price")
		if err != nil {
			return nil, err
		}
		cost, err := parseFloat(row, costIdx, "products", i, "cost")
		if err != nil {
			return nil, err
		}
		products = append(products, model.Product{
			ID:       id,
			Category: model.Category(field(row, catIdx)),
			Price:    price,
			Cost:     cost,
		})
	}
	return products, nil
}

// LoadCustomers reads the customer table from a CSV file. The churn_risk
// column is optional and informational only.
func LoadCustomers(path string) ([]model.Customer, error) {
	h, rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	return parseCustomers(h, rows)
}

func parseCustomers(h header, rows [][]string) ([]model.Customer, error) {
	if err := requireColumns(h, "customers", "customer_id", "segment"); err != nil {
		return nil, err
	}

	idIdx, _ := h.col("customer_id")
	segIdx, _ := h.col("segment")
	riskIdx, hasRisk := h.col("churn_risk")

	customers := make([]model.Customer, 0, len(rows))
	for i, row := range rows {
		id, err := parseInt(row, idIdx, "customers", i, "customer_id")
		if err != nil {
			return nil, err
		}
		c := model.Customer{
			ID:      id,
			Segment: model.Segment(field(row, segIdx)),
		}
		if hasRisk && field(row, riskIdx) != "" {
			risk, err := parseFloat(row, riskIdx, "customers", i, "churn_risk")
			if err != nil {
				return nil, err
			}
			c.ChurnRiskPrior = risk
		}
		customers = append(customers, c)
	}
	return customers, nil
}

// LoadTransactions reads the transaction log from a CSV file. Rows with a
// non-positive quantity or amount are rejected, not dropped.
func LoadTransactions(path string) ([]model.Transaction, error) {
	h, rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	return parseTransactions(h, rows)
}

func parseTransactions(h header, rows [][]string) ([]model.Transaction, error) {
	if err := requireColumns(h, "transactions", "date", "customer_id", "product_id", "quantity", "total_amount"); err != nil {
		return nil, err
	}

	dateIdx, _ := h.col("date")
	custIdx, _ := h.col("customer_id")
	prodIdx, _ := h.col("product_id")
	qtyIdx, _ := h.col("quantity")
	amountIdx, _ := h.col("total_amount")

	txs := make([]model.Transaction, 0, len(rows))
	for i, row := range rows {
		date, err := time.Parse(dateLayout, field(row, dateIdx))
		if err != nil {
			return nil, eris.Wrapf(model.ErrData, "dataset: transactions row %d: bad date %q", i+1, field(row, dateIdx))
		}
		custID, err := parseInt(row, custIdx, "transactions", i, "customer_id")
		if err != nil {
			return nil, err
		}
		prodID, err := parseInt(row, prodIdx, "transactions", i, "product_id")
		if err != nil {
			return nil, err
		}
		qty, err := parseInt(row, qtyIdx, "transactions", i, "quantity")
		if err != nil {
			return nil, err
		}
		if qty <= 0 {
			return nil, eris.Wrapf(model.ErrData, "dataset: transactions row %d: quantity must be positive, got %d", i+1, qty)
		}
		amount, err := parseFloat(row, amountIdx, "transactions", i, "total_amount")
		if err != nil {
			return nil, err
		}
		if amount <= 0 {
			return nil, eris.Wrapf(model.ErrData, "dataset: transactions row %d: total_amount must be positive, got %g", i+1, amount)
		}

		txs = append(txs, model.Transaction{
			Date:        date,
			CustomerID:  custID,
			ProductID:   prodID,
			Quantity:    int(qty),
			TotalAmount: amount,
		})
	}
	return txs, nil
}

// LoadCustomerFeatures reads a processed customer feature table. The
// avg_ticket column is recomputed from monetary and frequency so serving
// always matches the training derivation.
func LoadCustomerFeatures(path string) ([]model.CustomerFeature, error) {
	h, rows, err := readTable(path)
	if err != nil {
		return nil, err
	}

	if err := requireColumns(h, "customer_features", "customer_id", "recency", "frequency", "monetary"); err != nil {
		return nil, err
	}

	idIdx, _ := h.col("customer_id")
	recIdx, _ := h.col("recency")
	freqIdx, _ := h.col("frequency")
	monIdx, _ := h.col("monetary")
	segIdx, hasSeg := h.col("segment")

	feats := make([]model.CustomerFeature, 0, len(rows))
	for i, row := range rows {
		id, err := parseInt(row, idIdx, "customer_features", i, "customer_id")
		if err != nil {
			return nil, err
		}
		rec, err := parseInt(row, recIdx, "customer_features", i, "recency")
		if err != nil {
			return nil, err
		}
		freq, err := parseInt(row, freqIdx, "customer_features", i, "frequency")
		if err != nil {
			return nil, err
		}
		mon, err := parseFloat(row, monIdx, "customer_features", i, "monetary")
		if err != nil {
			return nil, err
		}

		f := model.CustomerFeature{
			CustomerID: id,
			Recency:    int(rec),
			Frequency:  int(freq),
			Monetary:   mon,
			AvgTicket:  AvgTicket(mon, int(freq)),
		}
		if hasSeg && field(row, segIdx) != "" {
			seg := model.Segment(field(row, segIdx))
			f.Segment = &seg
		}
		feats = append(feats, f)
	}
	return feats, nil
}

// AvgTicket is the single shared avg_ticket derivation: monetary divided
// by frequency, defined as 0 when frequency is 0.
func AvgTicket(monetary float64, frequency int) float64 {
	if frequency <= 0 {
		return 0
	}
	return monetary / float64(frequency)
}

// LoadAll reads the three raw tables from dir concurrently.
func LoadAll(ctx context.Context, dir string) ([]model.Product, []model.Customer, []model.Transaction, error) {
	var (
		products  []model.Product
		customers []model.Customer
		txs       []model.Transaction
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = LoadProducts(filepath.Join(dir, ProductsFile))
		return err
	})
	g.Go(func() error {
		var err error
		customers, err = LoadCustomers(filepath.Join(dir, CustomersFile))
		return err
	})
	g.Go(func() error {
		var err error
		txs, err = LoadTransactions(filepath.Join(dir, TransactionsFile))
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return products, customers, txs, nil
}

// writeCSV atomically writes header and rows to path.
func writeCSV(path string, head []string, rows [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "dataset: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "dataset: create temp file")
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	if err := w.Write(head); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrapf(err, "dataset: write header to %s", tmpName)
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrapf(err, "dataset: write rows to %s", tmpName)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrapf(err, "dataset: flush %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "dataset: close %s", tmpName)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "dataset: publish %s", path)
	}
	return nil
}

// WriteCustomerFeatures writes the derived customer feature table.
func WriteCustomerFeatures(path string, feats []model.CustomerFeature) error {
	head := []string{"customer_id", "recency", "frequency", "monetary", "avg_ticket", "segment"}
	rows := make([][]string, len(feats))
	for i, f := range feats {
		seg := ""
		if f.Segment != nil {
			seg = string(*f.Segment)
		}
		rows[i] = []string{
			strconv.FormatInt(f.CustomerID, 10),
			strconv.Itoa(f.Recency),
			strconv.Itoa(f.Frequency),
			formatFloat(f.Monetary),
			formatFloat(f.AvgTicket),
			seg,
		}
	}
	return writeCSV(path, head, rows)
}

// WriteEnriched writes the enriched transaction table consumed by the
// sales forecaster.
func WriteEnriched(path string, txs []model.EnrichedTransaction) error {
	head := []string{
		"date", "customer_id", "product_id", "quantity", "total_amount",
		"category", "price", "cost", "margin", "year", "month", "weekday",
	}
	rows := make([][]string, len(txs))
	for i, tx := range txs {
		rows[i] = []string{
			tx.Date.Format(dateLayout),
			strconv.FormatInt(tx.CustomerID, 10),
			strconv.FormatInt(tx.ProductID, 10),
			strconv.Itoa(tx.Quantity),
			formatFloat(tx.TotalAmount),
			optCategory(tx.Category),
			optFloat(tx.Price),
			optFloat(tx.Cost),
			optFloat(tx.Margin),
			strconv.Itoa(tx.Year),
			strconv.Itoa(tx.Month),
			strconv.Itoa(tx.Weekday),
		}
	}
	return writeCSV(path, head, rows)
}

func field(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseInt(row []string, idx int, table string, rowNum int, col string) (int64, error) {
	v, err := strconv.ParseInt(field(row, idx), 10, 64)
	if err != nil {
		return 0, eris.Wrapf(model.ErrData, "dataset: %s row %d: bad %s %q", table, rowNum+1, col, field(row, idx))
	}
	return v, nil
}

func parseFloat(row []string, idx int, table string, rowNum int, col string) (float64, error) {
	v, err := strconv.ParseFloat(field(row, idx), 64)
	if err != nil {
		return 0, eris.Wrapf(model.ErrData, "dataset: %s row %d: bad %s %q", table, rowNum+1, col, field(row, idx))
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func optCategory(c *model.Category) string {
	if c == nil {
		return ""
	}
	return string(*c)
}

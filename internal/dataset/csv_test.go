package dataset

import (
	"context"
	"os"
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

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadProducts(t *testing.T) {
	path := writeFile(t, t.TempDir(), "products.csv",
		"id,category,price,cost\n1,Hogar,19.99,12.50\n2,Jardín,250,180.75\n")

	products, err := LoadProducts(path)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, int64(1), products[0].ID)
	assert.Equal(t, model.CategoryHogar, products[0].Category)
	assert.InDelta(t, 19.99, products[0].Price, 1e-9)
	assert.InDelta(t, 12.50, products[0].Cost, 1e-9)
}

func TestLoadProductsAcceptsProductIDAlias(t *testing.T) {
	path := writeFile(t, t.TempDir(), "products.csv",
		"product_id,category,price,cost\n7,Herramientas,10,5\n")

	products, err := LoadProducts(path)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, int64(7), products[0].ID)
}

func TestLoadProductsMissingColumnsNamed(t *testing.T) {
	path := writeFile(t, t.TempDir(), "products.csv", "id,category\n1,Hogar\n")

	_, err := LoadProducts(path)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrData))
	assert.Contains(t, err.Error(), "cost")
	assert.Contains(t, err.Error(), "price")
}

func TestLoadProductsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.csv")

	_, err := LoadProducts(path)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrNotFound))
	assert.Contains(t, err.Error(), path)
}

func TestLoadCustomersOptionalRisk(t *testing.T) {
	dir := t.TempDir()

	withRisk := writeFile(t, dir, "c1.csv",
		"customer_id,segment,churn_risk\n1,Particular,0.25\n")
	customers, err := LoadCustomers(withRisk)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.InDelta(t, 0.25, customers[0].ChurnRiskPrior, 1e-9)

	withoutRisk := writeFile(t, dir, "c2.csv",
		"customer_id,segment\n2,Empresa\n")
	customers, err = LoadCustomers(withoutRisk)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, model.SegmentEmpresa, customers[0].Segment)
	assert.Zero(t, customers[0].ChurnRiskPrior)
}

func TestLoadTransactions(t *testing.T) {
	path := writeFile(t, t.TempDir(), "transactions.csv",
		"date,customer_id,product_id,quantity,total_amount\n"+
			"2024-03-01,10,99,2,40.50\n"+
			"2024-03-02,11,100,1,9.99\n")

	txs, err := LoadTransactions(path)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), txs[0].Date)
	assert.Equal(t, int64(10), txs[0].CustomerID)
	assert.Equal(t, 2, txs[0].Quantity)
	assert.InDelta(t, 40.50, txs[0].TotalAmount, 1e-9)
}

func TestLoadTransactionsRejectsBadRows(t *testing.T) {
	dir := t.TempDir()

	badDate := writeFile(t, dir, "t1.csv",
		"date,customer_id,product_id,quantity,total_amount\n03/01/2024,1,1,1,10\n")
	_, err := LoadTransactions(badDate)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrData))

	zeroQty := writeFile(t, dir, "t2.csv",
		"date,customer_id,product_id,quantity,total_amount\n2024-03-01,1,1,0,10\n")
	_, err = LoadTransactions(zeroQty)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrData))
	assert.Contains(t, err.Error(), "quantity")

	negAmount := writeFile(t, dir, "t3.csv",
		"date,customer_id,product_id,quantity,total_amount\n2024-03-01,1,1,1,-5\n")
	_, err = LoadTransactions(negAmount)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrData))
	assert.Contains(t, err.Error(), "total_amount")
}

func TestCustomerFeaturesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customer_features.csv")
	seg := model.SegmentProfesional
	in := []model.CustomerFeature{
		{CustomerID: 1, Recency: 12, Frequency: 3, Monetary: 60, AvgTicket: 20, Segment: &seg},
		{CustomerID: 2, Recency: 120, Frequency: 1, Monetary: 9.5, AvgTicket: 9.5},
	}
	require.NoError(t, WriteCustomerFeatures(path, in))

	out, err := LoadCustomerFeatures(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0].CustomerID, out[0].CustomerID)
	assert.Equal(t, in[0].Recency, out[0].Recency)
	assert.InDelta(t, in[0].Monetary, out[0].Monetary, 1e-9)
	require.NotNil(t, out[0].Segment)
	assert.Equal(t, seg, *out[0].Segment)
	assert.Nil(t, out[1].Segment)
	// avg_ticket is recomputed from monetary/frequency on load.
	assert.InDelta(t, 9.5, out[1].AvgTicket, 1e-9)
}

func TestAvgTicket(t *testing.T) {
	assert.InDelta(t, 20.0, AvgTicket(60, 3), 1e-9)
	assert.Zero(t, AvgTicket(60, 0))
	assert.Zero(t, AvgTicket(0, 0))
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ProductsFile, "id,category,price,cost\n1,Hogar,10,5\n")
	writeFile(t, dir, CustomersFile, "customer_id,segment\n1,Particular\n")
	writeFile(t, dir, TransactionsFile,
		"date,customer_id,product_id,quantity,total_amount\n2024-01-01,1,1,1,10\n")

	products, customers, txs, err := LoadAll(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Len(t, customers, 1)
	assert.Len(t, txs, 1)
}

func TestLoadAllPropagatesMissingTable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ProductsFile, "id,category,price,cost\n1,Hogar,10,5\n")

	_, _, _, err := LoadAll(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrNotFound))
}

package dataset

import (
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/bricodata/retail-cli/internal/model"
)

func writeXLSX(t *testing.T, dir, name string, rows [][]string) string {
	t.Helper()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, row := range rows {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().SetString(v)
		}
	}

	path := filepath.Join(dir, name)
	require.NoError(t, f.Save(path))
	return path
}

func TestLoadTransactionsXLSX(t *testing.T) {
	path := writeXLSX(t, t.TempDir(), "transactions.xlsx", [][]string{
		{"date", "customer_id", "product_id", "quantity", "total_amount"},
		{"2024-05-01", "3", "17", "4", "120.40"},
	})

	txs, err := LoadTransactionsXLSX(path)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(3), txs[0].CustomerID)
	assert.Equal(t, 4, txs[0].Quantity)
	assert.InDelta(t, 120.40, txs[0].TotalAmount, 1e-9)
}

func TestLoadProductsXLSXMissingColumn(t *testing.T) {
	path := writeXLSX(t, t.TempDir(), "products.xlsx", [][]string{
		{"id", "category", "price"},
		{"1", "Hogar", "10"},
	})

	_, err := LoadProductsXLSX(path)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrData))
	assert.Contains(t, err.Error(), "cost")
}

func TestLoadCustomersXLSXMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customers.xlsx")

	_, err := LoadCustomersXLSX(path)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrNotFound))
}

func TestConvertXLSXProducesCanonicalCSV(t *testing.T) {
	dir := t.TempDir()
	src := writeXLSX(t, dir, "products.xlsx", [][]string{
		{"id", "category", "price", "cost"},
		{"1", "Jardín", "25.5", "15.3"},
		{"2", "Hogar", "10", "7"},
	})

	dst := filepath.Join(dir, ProductsFile)
	require.NoError(t, ConvertXLSX(src, dst))

	products, err := LoadProducts(dst)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, model.CategoryJardin, products[0].Category)
	assert.InDelta(t, 25.5, products[0].Price, 1e-9)
}

func TestConvertXLSXUnknownTable(t *testing.T) {
	dir := t.TempDir()
	src := writeXLSX(t, dir, "misc.xlsx", [][]string{{"a"}, {"1"}})

	err := ConvertXLSX(src, filepath.Join(dir, "misc.csv"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrData))
}

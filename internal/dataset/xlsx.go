package dataset

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/bricodata/retail-cli/internal/model"
)

// readXLSXTable reads the first sheet of an XLSX workbook and returns its
// header and data rows, mirroring readTable for CSV files.
func readXLSXTable(path string) (header, [][]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil, eris.Wrapf(model.ErrNotFound, "dataset: %s", path)
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, nil, eris.Wrapf(model.ErrData, "dataset: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil, eris.Wrapf(model.ErrData, "dataset: %s has no header row", path)
	}

	rows := make([][]string, 0, len(sheet.Rows)-1)
	var head header
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if i == 0 {
			head = indexHeader(cells)
			continue
		}
		rows = append(rows, cells)
	}

	return head, rows, nil
}

// LoadProductsXLSX reads the product catalog from a spreadsheet export.
func LoadProductsXLSX(path string) ([]model.Product, error) {
	h, rows, err := readXLSXTable(path)
	if err != nil {
		return nil, err
	}
	return parseProducts(h, rows)
}

// LoadCustomersXLSX reads the customer table from a spreadsheet export.
func LoadCustomersXLSX(path string) ([]model.Customer, error) {
	h, rows, err := readXLSXTable(path)
	if err != nil {
		return nil, err
	}
	return parseCustomers(h, rows)
}

// LoadTransactionsXLSX reads the transaction log from a spreadsheet export.
func LoadTransactionsXLSX(path string) ([]model.Transaction, error) {
	h, rows, err := readXLSXTable(path)
	if err != nil {
		return nil, err
	}
	return parseTransactions(h, rows)
}

// ConvertXLSX rewrites a spreadsheet export of one raw table as its
// canonical CSV. The table is identified by the destination file name.
func ConvertXLSX(src, dst string) error {
	switch filepath.Base(dst) {
	case ProductsFile:
		products, err := LoadProductsXLSX(src)
		if err != nil {
			return err
		}
		return writeProducts(dst, products)
	case CustomersFile:
		customers, err := LoadCustomersXLSX(src)
		if err != nil {
			return err
		}
		return writeCustomers(dst, customers)
	case TransactionsFile:
		txs, err := LoadTransactionsXLSX(src)
		if err != nil {
			return err
		}
		return writeTransactions(dst, txs)
	default:
		return eris.Wrapf(model.ErrData, "dataset: no raw table named %s", filepath.Base(dst))
	}
}

// Package features derives the customer feature table and the enriched
// transaction table from the raw retail data.
package features

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bricodata/retail-cli/internal/dataset"
	"github.com/bricodata/retail-cli/internal/model"
)

// Run joins the raw tables and computes the per-customer RFM aggregates.
//
// Transactions are left-joined to the product catalog; a transaction
// referencing an unknown product keeps nil category, price, cost, and
// margin. Recency is anchored at the dataset-wide maximum transaction
// date so the pipeline is reproducible on historical data. Customers
// missing from the customer table keep their RFM row with a nil segment.
//
// Inputs are not mutated; each run recomputes the outputs in full.
func Run(customers []model.Customer, products []model.Product, transactions []model.Transaction) ([]model.EnrichedTransaction, []model.CustomerFeature, error) {
	if len(transactions) == 0 {
		return nil, nil, eris.Wrap(model.ErrData, "features: no transactions to process")
	}

	log := zap.L().With(zap.String("component", "features"))

	productByID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		productByID[p.ID] = p
	}
	segmentByID := make(map[int64]model.Segment, len(customers))
	for _, c := range customers {
		segmentByID[c.ID] = c.Segment
	}

	enriched := make([]model.EnrichedTransaction, len(transactions))
	maxDate := transactions[0].Date
	unmatched := 0
	for i, tx := range transactions {
		e := model.EnrichedTransaction{
			Transaction: tx,
			Year:        tx.Date.Year(),
			Month:       int(tx.Date.Month()),
			Weekday:     int(tx.Date.Weekday()),
		}
		if p, ok := productByID[tx.ProductID]; ok {
			cat, price, cost := p.Category, p.Price, p.Cost
			margin := (price - cost) * float64(tx.Quantity)
			e.Category = &cat
			e.Price = &price
			e.Cost = &cost
			e.Margin = &margin
		} else {
			unmatched++
		}
		enriched[i] = e

		if tx.Date.After(maxDate) {
			maxDate = tx.Date
		}
	}

	if unmatched > 0 {
		log.Warn("transactions reference unknown products",
			zap.Int("count", unmatched),
		)
	}

	feats := aggregate(enriched, maxDate, segmentByID)

	log.Info("feature pipeline complete",
		zap.Int("transactions", len(enriched)),
		zap.Int("customers", len(feats)),
		zap.Time("max_date", maxDate),
	)
	return enriched, feats, nil
}

// aggregate groups enriched transactions by customer and computes the
// recency/frequency/monetary row for each, sorted by customer id.
func aggregate(txs []model.EnrichedTransaction, maxDate time.Time, segmentByID map[int64]model.Segment) []model.CustomerFeature {
	type acc struct {
		latest   time.Time
		count    int
		monetary float64
	}

	byCustomer := make(map[int64]*acc)
	for _, tx := range txs {
		a, ok := byCustomer[tx.CustomerID]
		if !ok {
			a = &acc{latest: tx.Date}
			byCustomer[tx.CustomerID] = a
		}
		if tx.Date.After(a.latest) {
			a.latest = tx.Date
		}
		a.count++
		a.monetary += tx.TotalAmount
	}

	feats := make([]model.CustomerFeature, 0, len(byCustomer))
	for id, a := range byCustomer {
		f := model.CustomerFeature{
			CustomerID: id,
			Recency:    int(maxDate.Sub(a.latest).Hours() / 24),
			Frequency:  a.count,
			Monetary:   a.monetary,
			AvgTicket:  dataset.AvgTicket(a.monetary, a.count),
		}
		if seg, ok := segmentByID[id]; ok {
			s := seg
			f.Segment = &s
		}
		feats = append(feats, f)
	}

	sort.Slice(feats, func(i, j int) bool { return feats[i].CustomerID < feats[j].CustomerID })
	return feats
}

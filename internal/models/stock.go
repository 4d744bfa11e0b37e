package models

import (
	"fmt"
	"sort"
)

// StockLevel is the current stock of a product at confirmation time
type StockLevel struct {
	ProductID string `db:"id"`
	Name      string `db:"name"`
	Stock     int    `db:"stock"`
}

// StockDecrement is one product counter change of a payment confirmation
type StockDecrement struct {
	ProductID string
	Quantity  int
	Remaining int
}

// ItemProductIDs returns the distinct product ids of items in ascending
// order. Locking rows in this order keeps concurrent confirmations from
// deadlocking each other.
func ItemProductIDs(items []OrderItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Strings(ids)
	return ids
}

// PlanStockDecrement checks every line against the given stock levels and
// returns the decrements to apply. Either every line fits, or an error is
// returned and nothing is to be applied.
func PlanStockDecrement(items []OrderItem, levels []StockLevel) ([]StockDecrement, error) {
	byID := make(map[string]StockLevel, len(levels))
	for _, l := range levels {
		byID[l.ProductID] = l
	}

	wanted := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %s", ErrInvalidInput, item.ProductID)
		}
		wanted[item.ProductID] += item.Quantity
	}

	plan := make([]StockDecrement, 0, len(wanted))
	for _, id := range ItemProductIDs(items) {
		level, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: product %s no longer exists", ErrInsufficientStock, id)
		}
		qty := wanted[id]
		if level.Stock < qty {
			return nil, fmt.Errorf("%w for %s: available=%d, requested=%d",
				ErrInsufficientStock, level.Name, level.Stock, qty)
		}
		plan = append(plan, StockDecrement{
			ProductID: id,
			Quantity:  qty,
			Remaining: level.Stock - qty,
		})
	}

	return plan, nil
}

// Package costing derives weighted-average unit costs and inventory
// valuations from procurement receipt history.
package costing

import (
	"errors"
	"time"
)

// Receipt is one received purchase line for a variant. EffectiveQty guards
// against legacy rows where the received quantity was never recorded.
type Receipt struct {
	PurchaseID  int64
	VariantID   int64
	Qty         float64
	ReceivedQty float64
	UnitCost    float64
	ReceivedAt  time.Time
}

// EffectiveQty returns the received quantity, falling back to the ordered
// quantity when nothing was recorded at receiving time.
func (r Receipt) EffectiveQty() float64 {
	if r.ReceivedQty > 0 {
		return r.ReceivedQty
	}
	return r.Qty
}

// UnitCost is the weighted-average cost of a variant as of a date.
type UnitCost struct {
	VariantID int64     `json:"variant_id"`
	AsOf      time.Time `json:"as_of"`
	Cost      float64   `json:"cost"`
	Receipts  int       `json:"receipts"`
}

// ValuationLine values one variant's on-hand stock at its average cost.
type ValuationLine struct {
	VariantID int64   `json:"variant_id"`
	OnHand    float64 `json:"on_hand"`
	UnitCost  float64 `json:"unit_cost"`
	Value     float64 `json:"value"`
}

// COGSRow aggregates cost of goods received over a period.
type COGSRow struct {
	VariantID int64   `json:"variant_id"`
	Qty       float64 `json:"qty"`
	Cost      float64 `json:"cost"`
}

var (
	// ErrNotFound indicates a missing variant.
	ErrNotFound = errors.New("costing: variant not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("costing: invalid input")
)

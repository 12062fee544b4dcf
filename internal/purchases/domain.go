// Package purchases owns the procurement lifecycle. It is the only place a
// purchase's status field changes; every transition keeps the supplier
// payable and the journal consistent within one transaction.
package purchases

import (
	"errors"
	"math"
	"time"

	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/shared"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/status"
)

// Purchase is one procurement event. Status holds the raw stored value,
// which may be a legacy alias; normalize through the status package before
// comparing.
type Purchase struct {
	ID                  int64
	PurchaseNumber      string
	SupplierID          int64
	SupplierReferenceNo string
	Status              string
	Subtotal            float64
	DamageDeduction     float64
	DamageCategory      string
	DamageReason        string
	GrandTotal          float64
	SupplierPayableID   int64
	PaymentMethod       string
	Notes               string
	OrderedAt           *time.Time
	ReceivedAt          *time.Time
	CreatedBy           int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Items               []PurchaseItem
}

// PurchaseItem is one ordered line. ReceivedQty stays zero until goods
// receipt records the actual quantity.
type PurchaseItem struct {
	ID          int64
	PurchaseID  int64
	VariantID   int64
	Qty         float64
	ReceivedQty float64
	UnitCost    float64
	LineTotal   float64
}

// NetPayable is the amount owed to the supplier, never negative.
func (p Purchase) NetPayable() float64 {
	return shared.Round2(math.Max(0, p.Subtotal-p.DamageDeduction))
}

// Editable reports whether line items may still be mutated. Once goods
// movement starts the monetary base is frozen; only the damage deduction
// changes after that, through the discrepancy path.
func (p Purchase) Editable() bool {
	switch status.Normalize(p.Status) {
	case status.Draft, status.Submitted:
		return true
	}
	return false
}

// Protected reports whether the purchase may no longer be deleted. Anything
// at or past goods receipt has financial side effects.
func (p Purchase) Protected() bool {
	switch status.Normalize(p.Status) {
	case status.Received, status.DiscrepancyReported, status.Paid, status.Completed, status.Closed:
		return true
	}
	return false
}

var (
	// ErrNotFound indicates a missing purchase.
	ErrNotFound = errors.New("purchases: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("purchases: invalid input")
	// ErrImmutable indicates a line mutation after the monetary base froze.
	ErrImmutable = errors.New("purchases: line items can no longer be changed")
	// ErrProtected indicates a delete attempt on a financially posted purchase.
	ErrProtected = errors.New("purchases: purchase is protected from deletion")
)

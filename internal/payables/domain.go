// Package payables keeps supplier payable records synchronized with the
// procurement sources that generate them, and records every change in an
// append-only audit ledger.
package payables

import (
	"errors"
	"time"
)

// Payable statuses. Settlement is all-or-nothing, so a payable is either
// unpaid or paid.
const (
	StatusUnpaid = "unpaid"
	StatusPaid   = "paid"
)

// Source types for the polymorphic source link.
const (
	SourcePurchase = "purchase"
)

// Audit ledger entry types. Rows are pure history, never updated or deleted.
const (
	EntryCreated          = "created"
	EntryDeductionApplied = "deduction_applied"
	EntryPaymentRecorded  = "payment_recorded"
	EntryNoteAdded        = "note_added"
)

// SupplierPayable is the amount owed to a supplier for one procurement
// source. Exactly one row exists per (source_type, source_id).
type SupplierPayable struct {
	ID              int64
	SupplierID      int64
	SourceType      string
	SourceID        int64
	Amount          float64
	GrossAmount     float64
	DeductionsTotal float64
	NetAmount       float64
	Status          string
	PaymentMethod   string
	BankRef         string
	LedgerEntryID   int64
	CreatedBy       int64
	PaidBy          int64
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LedgerRow is one append-only audit record for a payable.
type LedgerRow struct {
	ID         int64
	PayableID  int64
	EntryType  string
	Amount     float64
	Reference  string
	Meta       map[string]any
	Note       string
	CreatedBy  int64
	RecordedAt time.Time
}

var (
	// ErrNotFound indicates a missing payable.
	ErrNotFound = errors.New("payables: not found")
	// ErrAlreadySettled indicates the payable is not in the unpaid state.
	ErrAlreadySettled = errors.New("payables: payable already settled")
	// ErrAmountMismatch indicates a payment that does not match the balance.
	ErrAmountMismatch = errors.New("payables: paid amount must equal payable balance")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("payables: invalid input")
)

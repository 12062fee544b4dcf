// Package ledger posts balanced double-entry journal entries and guarantees
// each distinct business event is posted at most once.
package ledger

import (
	"errors"
	"time"
)

// Account is a chart-of-accounts row.
type Account struct {
	ID   int64
	Code string
	Name string
	Type string
}

// Entry is a dated journal header, optionally linked to the business record
// that produced it via (ReferenceType, ReferenceID).
type Entry struct {
	ID            int64
	EntryDate     time.Time
	ReferenceType string
	ReferenceID   int64
	Memo          string
	CreatedBy     int64
	CreatedAt     time.Time
	Lines         []Line
}

// Line posts a debit or credit amount to one account.
type Line struct {
	ID          int64
	EntryID     int64
	AccountID   int64
	Description string
	Debit       float64
	Credit      float64
}

var (
	// ErrUnbalanced indicates the debit and credit sums differ at 2-decimal precision.
	ErrUnbalanced = errors.New("ledger: entry not balanced")
	// ErrUnknownAccount indicates an account code that does not resolve.
	ErrUnknownAccount = errors.New("ledger: unknown account")
	// ErrTooFewLines indicates fewer than two posting lines.
	ErrTooFewLines = errors.New("ledger: entry requires at least two lines")
	// ErrValidation indicates invalid posting input.
	ErrValidation = errors.New("ledger: invalid input")
	// ErrNotFound indicates a missing entry.
	ErrNotFound = errors.New("ledger: entry not found")
	// ErrReferenceConflict is returned by stores when the reference unique
	// index rejects an insert; the poster resolves it by re-reading.
	ErrReferenceConflict = errors.New("ledger: reference already posted")
)

// Default chart-of-accounts codes provisioned on first use.
var defaultAccounts = map[string]Account{
	"1010": {Code: "1010", Name: "Cash on Hand", Type: "asset"},
	"1020": {Code: "1020", Name: "Cash in Bank", Type: "asset"},
	"1200": {Code: "1200", Name: "Inventory", Type: "asset"},
	"2030": {Code: "2030", Name: "VAT Payable", Type: "liability"},
	"2100": {Code: "2100", Name: "Accounts Payable", Type: "liability"},
	"4010": {Code: "4010", Name: "Sales Revenue", Type: "revenue"},
	"5000": {Code: "5000", Name: "Cost of Goods Sold", Type: "expense"},
}

// Well-known account codes used by the procurement flow.
const (
	AccountCashOnHand      = "1010"
	AccountCashInBank      = "1020"
	AccountInventory       = "1200"
	AccountAccountsPayable = "2100"
)

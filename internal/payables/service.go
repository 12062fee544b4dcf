package payables

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/ledger"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/shared"
)

// TxStore exposes the payable writes available inside a transaction.
type TxStore interface {
	FindBySource(ctx context.Context, sourceType string, sourceID int64) (SupplierPayable, error)
	Insert(ctx context.Context, payable SupplierPayable) (int64, error)
	UpdateAmounts(ctx context.Context, id int64, changes AmountChanges) error
	MarkPaid(ctx context.Context, id int64, settlement Settlement) error
	AppendLedger(ctx context.Context, row LedgerRow) (LedgerRow, error)
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	Get(ctx context.Context, id int64) (SupplierPayable, error)
	FindBySource(ctx context.Context, sourceType string, sourceID int64) (SupplierPayable, error)
	ListOutstanding(ctx context.Context) ([]SupplierPayable, error)
	ListLedger(ctx context.Context, payableID int64) ([]LedgerRow, error)
	AppendLedger(ctx context.Context, row LedgerRow) (LedgerRow, error)
}

// AmountChanges carries only the monetary fields that actually changed, so
// an unchanged sync writes nothing.
type AmountChanges struct {
	GrossAmount     *float64
	DeductionsTotal *float64
	NetAmount       *float64
}

// Empty reports whether no field changed.
func (c AmountChanges) Empty() bool {
	return c.GrossAmount == nil && c.DeductionsTotal == nil && c.NetAmount == nil
}

// Settlement carries the fields written when a payable is paid.
type Settlement struct {
	PaymentMethod string
	BankRef       string
	LedgerEntryID int64
	PaidBy        int64
	PaidAt        time.Time
}

// Source describes the monetary state of a payable-generating record.
type Source struct {
	Type           string
	ID             int64
	SupplierID     int64
	Gross          float64
	Deductions     float64
	DamageCategory string
	DamageReason   string
	Reference      string
}

// Net returns the amount owed, never negative.
func (s Source) Net() float64 {
	return shared.Round2(math.Max(0, s.Gross-s.Deductions))
}

// Service reconciles supplier payables against their sources.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditPort
	now   func() time.Time
}

// NewService constructs the reconciler.
func NewService(repo RepositoryPort, audit shared.AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Sync reconciles inside its own transaction. See SyncWith.
func (s *Service) Sync(ctx context.Context, src Source, actor shared.Actor) (SupplierPayable, error) {
	var payable SupplierPayable
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		synced, err := s.SyncWith(ctx, tx, src, actor)
		if err != nil {
			return err
		}
		payable = synced
		return nil
	})
	if err != nil {
		return SupplierPayable{}, err
	}
	return payable, nil
}

// SyncWith derives or corrects the payable for src against the supplied
// store. It is idempotent: re-invoking with unchanged totals writes nothing
// and appends no audit rows. Drift is corrected, never accumulated.
func (s *Service) SyncWith(ctx context.Context, store TxStore, src Source, actor shared.Actor) (SupplierPayable, error) {
	if src.Type == "" || src.ID == 0 {
		return SupplierPayable{}, fmt.Errorf("%w: source required", ErrValidation)
	}
	gross := shared.Round2(src.Gross)
	deductions := shared.Round2(src.Deductions)
	net := src.Net()

	existing, err := store.FindBySource(ctx, src.Type, src.ID)
	if errors.Is(err, ErrNotFound) {
		return s.createWith(ctx, store, src, gross, deductions, net, actor)
	}
	if err != nil {
		return SupplierPayable{}, err
	}

	var changes AmountChanges
	if !shared.SameAmount(existing.GrossAmount, gross) {
		changes.GrossAmount = &gross
	}
	if !shared.SameAmount(existing.DeductionsTotal, deductions) {
		changes.DeductionsTotal = &deductions
	}
	if !shared.SameAmount(existing.NetAmount, net) {
		changes.NetAmount = &net
	}
	if changes.Empty() {
		return existing, nil
	}

	if err := store.UpdateAmounts(ctx, existing.ID, changes); err != nil {
		return SupplierPayable{}, err
	}
	if _, err := store.AppendLedger(ctx, LedgerRow{
		PayableID: existing.ID,
		EntryType: EntryDeductionApplied,
		Amount:    net,
		Reference: src.Reference,
		Meta:      s.snapshotMeta(src, gross, deductions, net),
		CreatedBy: actor.ID,
	}); err != nil {
		return SupplierPayable{}, err
	}

	refreshed := existing
	if changes.GrossAmount != nil {
		refreshed.GrossAmount = gross
	}
	if changes.DeductionsTotal != nil {
		refreshed.DeductionsTotal = deductions
	}
	if changes.NetAmount != nil {
		refreshed.NetAmount = net
		refreshed.Amount = net
	}
	s.recordAudit(ctx, actor, "payable.reconcile", refreshed.ID, map[string]any{
		"gross": gross, "deductions": deductions, "net": net,
	})
	return refreshed, nil
}

func (s *Service) createWith(ctx context.Context, store TxStore, src Source, gross, deductions, net float64, actor shared.Actor) (SupplierPayable, error) {
	payable := SupplierPayable{
		SupplierID:      src.SupplierID,
		SourceType:      src.Type,
		SourceID:        src.ID,
		Amount:          net,
		GrossAmount:     gross,
		DeductionsTotal: deductions,
		NetAmount:       net,
		Status:          StatusUnpaid,
		CreatedBy:       actor.ID,
		CreatedAt:       s.now(),
	}
	id, err := store.Insert(ctx, payable)
	if err != nil {
		return SupplierPayable{}, err
	}
	payable.ID = id
	if _, err := store.AppendLedger(ctx, LedgerRow{
		PayableID: id,
		EntryType: EntryCreated,
		Amount:    net,
		Reference: src.Reference,
		Meta:      s.snapshotMeta(src, gross, deductions, net),
		CreatedBy: actor.ID,
	}); err != nil {
		return SupplierPayable{}, err
	}
	s.recordAudit(ctx, actor, "payable.create", id, map[string]any{
		"source_type": src.Type, "source_id": src.ID, "net": net,
	})
	return payable, nil
}

// PaymentInput describes a settlement request.
type PaymentInput struct {
	Method  string
	BankRef string
	Amount  float64
	Memo    string
}

// PayWith settles an unpaid payable: it posts the clearing journal entry
// through the supplied poster, flips the payable to paid, and appends a
// payment_recorded audit row. The paid amount must equal the payable
// balance; zero means pay in full.
func (s *Service) PayWith(ctx context.Context, store TxStore, journal ledger.TxStore, poster *ledger.Service, payable SupplierPayable, input PaymentInput, actor shared.Actor) (SupplierPayable, ledger.Entry, error) {
	if payable.Status != StatusUnpaid {
		return SupplierPayable{}, ledger.Entry{}, ErrAlreadySettled
	}
	amount := input.Amount
	if amount == 0 {
		amount = payable.Amount
	}
	if math.Abs(amount-payable.Amount) > 0.01 {
		return SupplierPayable{}, ledger.Entry{}, fmt.Errorf("%w: got %.2f want %.2f", ErrAmountMismatch, amount, payable.Amount)
	}

	memo := input.Memo
	if memo == "" {
		memo = fmt.Sprintf("Supplier payment (payable %d)", payable.ID)
	}
	entry, err := poster.PostEntryWith(ctx, journal, ledger.PostingInput{
		EntryDate:     s.now(),
		ReferenceType: "supplier_payable",
		ReferenceID:   payable.ID,
		ActorID:       actor.ID,
		Memo:          memo,
		Lines: []ledger.LineInput{
			{AccountCode: ledger.AccountAccountsPayable, Debit: amount, Description: "Accounts payable cleared"},
			{AccountCode: CreditAccountForMethod(input.Method), Credit: amount, Description: "Cash outflow"},
		},
	})
	if err != nil {
		return SupplierPayable{}, ledger.Entry{}, err
	}

	paidAt := s.now()
	settlement := Settlement{
		PaymentMethod: input.Method,
		BankRef:       input.BankRef,
		LedgerEntryID: entry.ID,
		PaidBy:        actor.ID,
		PaidAt:        paidAt,
	}
	if err := store.MarkPaid(ctx, payable.ID, settlement); err != nil {
		return SupplierPayable{}, ledger.Entry{}, err
	}
	if _, err := store.AppendLedger(ctx, LedgerRow{
		PayableID: payable.ID,
		EntryType: EntryPaymentRecorded,
		Amount:    amount,
		Reference: input.BankRef,
		Meta: map[string]any{
			"paid_amount":    amount,
			"payment_method": input.Method,
			"bank_ref":       input.BankRef,
		},
		CreatedBy: actor.ID,
	}); err != nil {
		return SupplierPayable{}, ledger.Entry{}, err
	}

	payable.Status = StatusPaid
	payable.PaymentMethod = input.Method
	payable.BankRef = input.BankRef
	payable.LedgerEntryID = entry.ID
	payable.PaidBy = actor.ID
	payable.PaidAt = &paidAt
	s.recordAudit(ctx, actor, "payable.pay", payable.ID, map[string]any{
		"amount": amount, "method": input.Method,
	})
	return payable, entry, nil
}

// RecordNote appends a note_added audit row without touching the monetary
// fields.
func (s *Service) RecordNote(ctx context.Context, payableID int64, note string, actor shared.Actor) (LedgerRow, error) {
	if strings.TrimSpace(note) == "" {
		return LedgerRow{}, fmt.Errorf("%w: note required", ErrValidation)
	}
	if _, err := s.repo.Get(ctx, payableID); err != nil {
		return LedgerRow{}, err
	}
	return s.repo.AppendLedger(ctx, LedgerRow{
		PayableID: payableID,
		EntryType: EntryNoteAdded,
		Meta:      map[string]any{"note": note},
		Note:      note,
		CreatedBy: actor.ID,
	})
}

// Get fetches a payable.
func (s *Service) Get(ctx context.Context, id int64) (SupplierPayable, error) {
	return s.repo.Get(ctx, id)
}

// FindBySource fetches the payable derived from a source record.
func (s *Service) FindBySource(ctx context.Context, sourceType string, sourceID int64) (SupplierPayable, error) {
	return s.repo.FindBySource(ctx, sourceType, sourceID)
}

// ListOutstanding returns unpaid payables.
func (s *Service) ListOutstanding(ctx context.Context) ([]SupplierPayable, error) {
	return s.repo.ListOutstanding(ctx)
}

// ListLedger returns the audit trail for a payable, oldest first.
func (s *Service) ListLedger(ctx context.Context, payableID int64) ([]LedgerRow, error) {
	return s.repo.ListLedger(ctx, payableID)
}

// CreditAccountForMethod maps a payment method to the credited cash account:
// bank transfers hit Cash in Bank, everything else Cash on Hand.
func CreditAccountForMethod(method string) string {
	method = strings.ToLower(method)
	if strings.Contains(method, "bank") || strings.Contains(method, "transfer") {
		return ledger.AccountCashInBank
	}
	return ledger.AccountCashOnHand
}

func (s *Service) snapshotMeta(src Source, gross, deductions, net float64) map[string]any {
	meta := map[string]any{
		"gross_amount":     gross,
		"deductions_total": deductions,
		"net_amount":       net,
	}
	if src.DamageCategory != "" {
		meta["damage_category"] = src.DamageCategory
	}
	if src.DamageReason != "" {
		meta["damage_reason"] = src.DamageReason
	}
	return meta
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, payableID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "supplier_payable",
		EntityID: fmt.Sprintf("%d", payableID),
		Meta:     meta,
		At:       s.now(),
	})
}

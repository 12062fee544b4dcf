package purchases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/ledger"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/observability"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/payables"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/shared"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/status"
)

// TxStore exposes purchase writes inside a transaction, plus payable and
// journal stores bound to the same transaction. That binding is what makes
// a transition all-or-nothing across the three tables.
type TxStore interface {
	GetForUpdate(ctx context.Context, id int64) (Purchase, error)
	Insert(ctx context.Context, purchase Purchase) (int64, error)
	SetNumber(ctx context.Context, id int64, number string) error
	UpdateStatus(ctx context.Context, id int64, rawStatus string, orderedAt, receivedAt *time.Time) error
	UpdateTotals(ctx context.Context, id int64, subtotal, deduction float64, category, reason string, grandTotal float64) error
	SetPaymentMethod(ctx context.Context, id int64, method string) error
	SetPayableRef(ctx context.Context, id, payableID int64) error
	ReplaceItems(ctx context.Context, id int64, items []PurchaseItem) error
	RecordReceipts(ctx context.Context, id int64, receivedQty map[int64]float64) error
	Payables() payables.TxStore
	Journal() ledger.TxStore
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	Get(ctx context.Context, id int64) (Purchase, error)
	List(ctx context.Context, limit, offset int) ([]Purchase, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id int64) error
}

// CostInvalidator drops cached unit costs after new receipts land.
type CostInvalidator interface {
	Invalidate(ctx context.Context, variantID int64)
}

// Service is the procurement orchestrator, the only component that writes a
// purchase's status field.
type Service struct {
	repo     RepositoryPort
	payables *payables.Service
	poster   *ledger.Service
	costs    CostInvalidator
	audit    shared.AuditPort
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the orchestrator. costs and metrics may be nil.
func NewService(
	repo RepositoryPort,
	payableSvc *payables.Service,
	poster *ledger.Service,
	costs CostInvalidator,
	audit shared.AuditPort,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		payables: payableSvc,
		poster:   poster,
		costs:    costs,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// LineInput describes one ordered line.
type LineInput struct {
	VariantID int64
	Qty       float64
	UnitCost  float64
}

// CreateInput describes a new draft purchase.
type CreateInput struct {
	SupplierID          int64
	SupplierReferenceNo string
	Notes               string
	Items               []LineInput
}

// Create opens a draft purchase and assigns its purchase number.
func (s *Service) Create(ctx context.Context, input CreateInput, actor shared.Actor) (Purchase, error) {
	if input.SupplierID <= 0 {
		return Purchase{}, fmt.Errorf("%w: supplier required", ErrValidation)
	}
	items, subtotal, err := buildItems(input.Items)
	if err != nil {
		return Purchase{}, err
	}

	var created Purchase
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		now := s.now()
		purchase := Purchase{
			SupplierID:          input.SupplierID,
			SupplierReferenceNo: input.SupplierReferenceNo,
			Notes:               input.Notes,
			Status:              string(status.Draft),
			Subtotal:            subtotal,
			GrandTotal:          subtotal,
			CreatedBy:           actor.ID,
			CreatedAt:           now,
			Items:               items,
		}
		id, err := tx.Insert(ctx, purchase)
		if err != nil {
			return err
		}
		purchase.ID = id
		purchase.PurchaseNumber = fmt.Sprintf("PUR-%d-%06d", now.Year(), id)
		if err := tx.SetNumber(ctx, id, purchase.PurchaseNumber); err != nil {
			return err
		}
		created = purchase
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}
	s.recordAudit(ctx, actor, "purchase.create", created.ID, map[string]any{
		"purchase_number": created.PurchaseNumber,
		"subtotal":        created.Subtotal,
	})
	return created, nil
}

// UpdateLines replaces the line items of a still-editable purchase and
// recomputes its totals. An already-derived payable is reconciled in the
// same transaction.
func (s *Service) UpdateLines(ctx context.Context, id int64, lines []LineInput, actor shared.Actor) (Purchase, error) {
	items, subtotal, err := buildItems(lines)
	if err != nil {
		return Purchase{}, err
	}

	var updated Purchase
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		purchase, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !purchase.Editable() {
			return fmt.Errorf("%w: status %s", ErrImmutable, purchase.Status)
		}
		purchase.Subtotal = subtotal
		purchase.GrandTotal = purchase.NetPayable()
		purchase.Items = items
		if err := tx.ReplaceItems(ctx, id, items); err != nil {
			return err
		}
		if err := tx.UpdateTotals(ctx, id, purchase.Subtotal, purchase.DamageDeduction,
			purchase.DamageCategory, purchase.DamageReason, purchase.GrandTotal); err != nil {
			return err
		}
		if purchase.SupplierPayableID != 0 {
			if _, err := s.syncPayable(ctx, tx, purchase, actor); err != nil {
				return err
			}
		}
		updated = purchase
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}
	s.recordAudit(ctx, actor, "purchase.update_lines", id, map[string]any{"subtotal": subtotal})
	return updated, nil
}

// DamageInput describes a discrepancy adjustment.
type DamageInput struct {
	Deduction float64
	Category  string
	Reason    string
}

// ReportDamage records a damage deduction against a purchase that is in
// goods movement. Totals and the payable follow in the same transaction.
func (s *Service) ReportDamage(ctx context.Context, id int64, input DamageInput, actor shared.Actor) (Purchase, error) {
	if input.Deduction < 0 {
		return Purchase{}, fmt.Errorf("%w: deduction cannot be negative", ErrValidation)
	}

	var updated Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		purchase, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch status.Normalize(purchase.Status) {
		case status.Receiving, status.Received, status.DiscrepancyReported:
		default:
			return fmt.Errorf("%w: damage can only be reported during goods movement, status %s", ErrValidation, purchase.Status)
		}
		purchase.DamageDeduction = shared.Round2(input.Deduction)
		purchase.DamageCategory = input.Category
		purchase.DamageReason = input.Reason
		purchase.GrandTotal = purchase.NetPayable()
		if err := tx.UpdateTotals(ctx, id, purchase.Subtotal, purchase.DamageDeduction,
			purchase.DamageCategory, purchase.DamageReason, purchase.GrandTotal); err != nil {
			return err
		}
		if purchase.SupplierPayableID != 0 {
			if _, err := s.syncPayable(ctx, tx, purchase, actor); err != nil {
				return err
			}
		}
		updated = purchase
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}
	s.recordAudit(ctx, actor, "purchase.report_damage", id, map[string]any{
		"deduction": updated.DamageDeduction,
		"category":  updated.DamageCategory,
	})
	return updated, nil
}

// TransitionInput carries a transition request. Receipts records received
// quantities per item id when the target is received; Payment is required
// when the target is paid.
type TransitionInput struct {
	Target   string
	Receipts map[int64]float64
	Payment  payables.PaymentInput
}

// Transition moves a purchase to a new status. The status write, the
// payable reconciliation and any journal posting commit or roll back as one
// unit. The purchase row is locked for the duration, so a concurrent
// transition observes the committed status and is re-validated against it.
func (s *Service) Transition(ctx context.Context, id int64, input TransitionInput, actor shared.Actor) (Purchase, error) {
	var updated Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		purchase, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// Submission is open to any authenticated purchaser; no role owns
		// the draft -> submitted edge.
		role := actor.Role
		if status.Normalize(purchase.Status) == status.Draft || purchase.Status == "" {
			role = ""
		}
		if err := status.EnsureTransition(purchase.Status, input.Target, role); err != nil {
			return err
		}
		target := status.Normalize(input.Target)

		purchase.Status = string(target)
		switch target {
		case status.Submitted:
			at := s.now()
			purchase.OrderedAt = &at
		case status.Received:
			at := s.now()
			purchase.ReceivedAt = &at
			if len(input.Receipts) > 0 {
				if err := tx.RecordReceipts(ctx, id, input.Receipts); err != nil {
					return err
				}
				applyReceipts(&purchase, input.Receipts)
			}
		}
		if err := tx.UpdateStatus(ctx, id, purchase.Status, purchase.OrderedAt, purchase.ReceivedAt); err != nil {
			return err
		}

		payable, err := s.syncPayable(ctx, tx, purchase, actor)
		if err != nil {
			return err
		}
		if purchase.SupplierPayableID == 0 {
			if err := tx.SetPayableRef(ctx, id, payable.ID); err != nil {
				return err
			}
			purchase.SupplierPayableID = payable.ID
		}

		switch target {
		case status.Received:
			if err := s.postGoodsReceipt(ctx, tx, purchase, actor); err != nil {
				return err
			}
		case status.Paid:
			if err := s.settle(ctx, tx, &purchase, payable, input.Payment, actor); err != nil {
				return err
			}
		}
		updated = purchase
		return nil
	})
	if err != nil {
		s.observeTransition(input.Target, "rejected")
		return Purchase{}, err
	}

	if status.Normalize(updated.Status) == status.Received && s.costs != nil {
		for _, item := range updated.Items {
			s.costs.Invalidate(ctx, item.VariantID)
		}
	}
	s.observeTransition(input.Target, "applied")
	s.recordAudit(ctx, actor, "purchase.transition", id, map[string]any{
		"status": updated.Status,
	})
	return updated, nil
}

// Delete removes a purchase that never reached goods receipt.
func (s *Service) Delete(ctx context.Context, id int64, actor shared.Actor) error {
	purchase, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if purchase.Protected() {
		return fmt.Errorf("%w: status %s", ErrProtected, purchase.Status)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "purchase.delete", id, map[string]any{
		"purchase_number": purchase.PurchaseNumber,
	})
	return nil
}

// Get fetches a purchase with its items.
func (s *Service) Get(ctx context.Context, id int64) (Purchase, error) {
	return s.repo.Get(ctx, id)
}

// List returns one page of purchases ordered by creation, newest first.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Purchase, shared.Pagination, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	meta := shared.NewPagination(page, perPage, total)
	rows, err := s.repo.List(ctx, meta.PerPage, (meta.Page-1)*meta.PerPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return rows, meta, nil
}

func (s *Service) syncPayable(ctx context.Context, tx TxStore, purchase Purchase, actor shared.Actor) (payables.SupplierPayable, error) {
	payable, err := s.payables.SyncWith(ctx, tx.Payables(), payables.Source{
		Type:           payables.SourcePurchase,
		ID:             purchase.ID,
		SupplierID:     purchase.SupplierID,
		Gross:          purchase.Subtotal,
		Deductions:     purchase.DamageDeduction,
		DamageCategory: purchase.DamageCategory,
		DamageReason:   purchase.DamageReason,
		Reference:      purchase.PurchaseNumber,
	}, actor)
	if err != nil {
		return payables.SupplierPayable{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveReconciliation()
	}
	return payable, nil
}

func (s *Service) postGoodsReceipt(ctx context.Context, tx TxStore, purchase Purchase, actor shared.Actor) error {
	amount := purchase.NetPayable()
	if amount <= 0 {
		return nil
	}
	_, err := s.poster.PostEntryWith(ctx, tx.Journal(), ledger.PostingInput{
		EntryDate:     s.now(),
		ReferenceType: "purchase",
		ReferenceID:   purchase.ID,
		ActorID:       actor.ID,
		Memo:          fmt.Sprintf("Goods receipt %s", purchase.PurchaseNumber),
		Lines: []ledger.LineInput{
			{AccountCode: ledger.AccountInventory, Debit: amount, Description: "Inventory received"},
			{AccountCode: ledger.AccountAccountsPayable, Credit: amount, Description: "Accounts payable accrued"},
		},
	})
	if err != nil {
		return err
	}
	s.observePosting("purchase")
	return nil
}

func (s *Service) settle(ctx context.Context, tx TxStore, purchase *Purchase, payable payables.SupplierPayable, payment payables.PaymentInput, actor shared.Actor) error {
	if payment.Method == "" {
		return fmt.Errorf("%w: payment method required", ErrValidation)
	}
	paid, _, err := s.payables.PayWith(ctx, tx.Payables(), tx.Journal(), s.poster, payable, payment, actor)
	if err != nil {
		return err
	}
	if err := tx.SetPaymentMethod(ctx, purchase.ID, payment.Method); err != nil {
		return err
	}
	purchase.PaymentMethod = payment.Method
	purchase.SupplierPayableID = paid.ID
	s.observePosting("supplier_payable")
	return nil
}

func (s *Service) observeTransition(target, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(status.Normalize(target)), outcome)
	}
}

func (s *Service) observePosting(referenceType string) {
	if s.metrics != nil {
		s.metrics.ObservePosting(referenceType)
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, purchaseID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "purchase",
		EntityID: fmt.Sprintf("%d", purchaseID),
		Meta:     meta,
		At:       s.now(),
	})
}

func buildItems(lines []LineInput) ([]PurchaseItem, float64, error) {
	if len(lines) == 0 {
		return nil, 0, fmt.Errorf("%w: at least one line item required", ErrValidation)
	}
	items := make([]PurchaseItem, 0, len(lines))
	var subtotal float64
	for _, line := range lines {
		if line.VariantID <= 0 {
			return nil, 0, fmt.Errorf("%w: variant required on every line", ErrValidation)
		}
		if line.Qty <= 0 {
			return nil, 0, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
		if line.UnitCost < 0 {
			return nil, 0, fmt.Errorf("%w: unit cost cannot be negative", ErrValidation)
		}
		total := shared.Round2(line.Qty * line.UnitCost)
		items = append(items, PurchaseItem{
			VariantID: line.VariantID,
			Qty:       line.Qty,
			UnitCost:  line.UnitCost,
			LineTotal: total,
		})
		subtotal = shared.Round2(subtotal + total)
	}
	return items, subtotal, nil
}

func applyReceipts(purchase *Purchase, receipts map[int64]float64) {
	for i := range purchase.Items {
		if qty, ok := receipts[purchase.Items[i].ID]; ok && qty >= 0 {
			purchase.Items[i].ReceivedQty = qty
			purchase.Items[i].LineTotal = shared.Round2(qty * purchase.Items[i].UnitCost)
		}
	}
}

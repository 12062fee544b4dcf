package purchases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/ledger"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/payables"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn against a transaction-bound store. The payable and journal
// stores it exposes share the same transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{
			q:        tx,
			payables: payables.NewStore(tx),
			journal:  ledger.NewStore(tx),
		})
	})
}

const selectPurchase = `SELECT id, COALESCE(purchase_number, ''), supplier_id, COALESCE(supplier_reference_no, ''), status,
	subtotal, damage_deduction, COALESCE(damage_category, ''), COALESCE(damage_reason, ''), grand_total,
	COALESCE(supplier_payable_id, 0), COALESCE(payment_method, ''), COALESCE(notes, ''), ordered_at, received_at,
	COALESCE(created_by_user_id, 0), created_at, updated_at
	FROM purchases`

// Get fetches a purchase with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Purchase, error) {
	purchase, err := scanPurchase(r.pool.QueryRow(ctx, selectPurchase+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, ErrNotFound
	}
	if err != nil {
		return Purchase{}, err
	}
	purchase.Items, err = itemsFor(ctx, r.pool, id)
	return purchase, err
}

// Count reports the total number of purchases.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases`).Scan(&total); err != nil {
		return 0, fmt.Errorf("purchases: count: %w", err)
	}
	return total, nil
}

// List returns purchases newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Purchase, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, selectPurchase+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("purchases: list: %w", err)
	}
	defer rows.Close()

	var out []Purchase
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, purchase)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		items, err := itemsFor(ctx, r.pool, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

// Delete removes a purchase and its items. The protection check happens in
// the service before this runs.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM purchase_items WHERE purchase_id = $1`, id); err != nil {
			return fmt.Errorf("purchases: delete items: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM purchases WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("purchases: delete: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

type txStore struct {
	q        pgx.Tx
	payables *payables.Store
	journal  *ledger.Store
}

func (s *txStore) Payables() payables.TxStore { return s.payables }
func (s *txStore) Journal() ledger.TxStore    { return s.journal }

// GetForUpdate loads the purchase with a row lock so concurrent transitions
// serialize on it.
func (s *txStore) GetForUpdate(ctx context.Context, id int64) (Purchase, error) {
	purchase, err := scanPurchase(s.q.QueryRow(ctx, selectPurchase+` WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, ErrNotFound
	}
	if err != nil {
		return Purchase{}, err
	}
	items, err := itemsFor(ctx, s.q, id)
	if err != nil {
		return Purchase{}, err
	}
	purchase.Items = items
	return purchase, nil
}

func (s *txStore) Insert(ctx context.Context, purchase Purchase) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO purchases
		(supplier_id, supplier_reference_no, status, subtotal, damage_deduction, grand_total, notes, created_by_user_id, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $9) RETURNING id`,
		purchase.SupplierID, purchase.SupplierReferenceNo, purchase.Status,
		purchase.Subtotal, purchase.DamageDeduction, purchase.GrandTotal, purchase.Notes,
		purchase.CreatedBy, purchase.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("purchases: insert: %w", err)
	}
	for _, item := range purchase.Items {
		if err := insertItem(ctx, s.q, id, item); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (s *txStore) SetNumber(ctx context.Context, id int64, number string) error {
	_, err := s.q.Exec(ctx, `UPDATE purchases SET purchase_number = $2 WHERE id = $1`, id, number)
	if err != nil {
		return fmt.Errorf("purchases: set number: %w", err)
	}
	return nil
}

func (s *txStore) UpdateStatus(ctx context.Context, id int64, rawStatus string, orderedAt, receivedAt *time.Time) error {
	tag, err := s.q.Exec(ctx, `UPDATE purchases
		SET status = $2, ordered_at = COALESCE($3, ordered_at), received_at = COALESCE($4, received_at), updated_at = now()
		WHERE id = $1`, id, rawStatus, orderedAt, receivedAt)
	if err != nil {
		return fmt.Errorf("purchases: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *txStore) UpdateTotals(ctx context.Context, id int64, subtotal, deduction float64, category, reason string, grandTotal float64) error {
	tag, err := s.q.Exec(ctx, `UPDATE purchases
		SET subtotal = $2, damage_deduction = $3, damage_category = NULLIF($4, ''), damage_reason = NULLIF($5, ''), grand_total = $6, updated_at = now()
		WHERE id = $1`, id, subtotal, deduction, category, reason, grandTotal)
	if err != nil {
		return fmt.Errorf("purchases: update totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *txStore) SetPaymentMethod(ctx context.Context, id int64, method string) error {
	_, err := s.q.Exec(ctx, `UPDATE purchases SET payment_method = $2, updated_at = now() WHERE id = $1`, id, method)
	if err != nil {
		return fmt.Errorf("purchases: set payment method: %w", err)
	}
	return nil
}

func (s *txStore) SetPayableRef(ctx context.Context, id, payableID int64) error {
	_, err := s.q.Exec(ctx, `UPDATE purchases SET supplier_payable_id = $2, updated_at = now() WHERE id = $1`, id, payableID)
	if err != nil {
		return fmt.Errorf("purchases: set payable ref: %w", err)
	}
	return nil
}

func (s *txStore) ReplaceItems(ctx context.Context, id int64, items []PurchaseItem) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM purchase_items WHERE purchase_id = $1`, id); err != nil {
		return fmt.Errorf("purchases: replace items: %w", err)
	}
	for _, item := range items {
		if err := insertItem(ctx, s.q, id, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *txStore) RecordReceipts(ctx context.Context, id int64, receivedQty map[int64]float64) error {
	for itemID, qty := range receivedQty {
		if qty < 0 {
			return fmt.Errorf("%w: received quantity cannot be negative", ErrValidation)
		}
		tag, err := s.q.Exec(ctx, `UPDATE purchase_items
			SET received_qty = $3, line_total = ROUND(($3 * unit_cost)::numeric, 2)
			WHERE id = $2 AND purchase_id = $1`, id, itemID, qty)
		if err != nil {
			return fmt.Errorf("purchases: record receipts: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: item %d does not belong to purchase %d", ErrValidation, itemID, id)
		}
	}
	return nil
}

func itemsFor(ctx context.Context, q db.Querier, purchaseID int64) ([]PurchaseItem, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_id, variant_id, qty, COALESCE(received_qty, 0), unit_cost, line_total
		FROM purchase_items WHERE purchase_id = $1 ORDER BY id`, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("purchases: items: %w", err)
	}
	defer rows.Close()

	var items []PurchaseItem
	for rows.Next() {
		var item PurchaseItem
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.VariantID, &item.Qty, &item.ReceivedQty, &item.UnitCost, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	err := row.Scan(&p.ID, &p.PurchaseNumber, &p.SupplierID, &p.SupplierReferenceNo, &p.Status,
		&p.Subtotal, &p.DamageDeduction, &p.DamageCategory, &p.DamageReason, &p.GrandTotal,
		&p.SupplierPayableID, &p.PaymentMethod, &p.Notes, &p.OrderedAt, &p.ReceivedAt,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func insertItem(ctx context.Context, q db.Querier, purchaseID int64, item PurchaseItem) error {
	_, err := q.Exec(ctx, `INSERT INTO purchase_items (purchase_id, variant_id, qty, received_qty, unit_cost, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		purchaseID, item.VariantID, item.Qty, item.ReceivedQty, item.UnitCost, item.LineTotal)
	if err != nil {
		return fmt.Errorf("purchases: insert item: %w", err)
	}
	return nil
}

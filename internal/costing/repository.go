package costing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads receipt history from PostgreSQL. Only purchases that
// reached goods receipt count; rejected and still-pending ones do not.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const receiptColumns = `pi.purchase_id, pi.variant_id, pi.qty, COALESCE(pi.received_qty, 0), pi.unit_cost, p.received_at`

// ReceiptsForVariant returns receipts for one variant dated at or before asOf.
func (r *Repository) ReceiptsForVariant(ctx context.Context, variantID int64, asOf time.Time) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+receiptColumns+`
		FROM purchase_items pi
		JOIN purchases p ON p.id = pi.purchase_id
		WHERE pi.variant_id = $1 AND p.received_at IS NOT NULL AND p.received_at <= $2
		ORDER BY p.received_at`, variantID, asOf)
	if err != nil {
		return nil, fmt.Errorf("costing: receipts for variant: %w", err)
	}
	return collectReceipts(rows)
}

// LatestReceipt returns the most recent receipt for a variant regardless of
// date, or ok=false when the variant has never been received.
func (r *Repository) LatestReceipt(ctx context.Context, variantID int64) (Receipt, bool, error) {
	var rec Receipt
	err := r.pool.QueryRow(ctx, `SELECT `+receiptColumns+`
		FROM purchase_items pi
		JOIN purchases p ON p.id = pi.purchase_id
		WHERE pi.variant_id = $1 AND p.received_at IS NOT NULL
		ORDER BY p.received_at DESC
		LIMIT 1`, variantID).Scan(&rec.PurchaseID, &rec.VariantID, &rec.Qty, &rec.ReceivedQty, &rec.UnitCost, &rec.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, false, nil
		}
		return Receipt{}, false, fmt.Errorf("costing: latest receipt: %w", err)
	}
	return rec, true, nil
}

// ReceiptsInRange returns all receipts dated within [from, to].
func (r *Repository) ReceiptsInRange(ctx context.Context, from, to time.Time) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+receiptColumns+`
		FROM purchase_items pi
		JOIN purchases p ON p.id = pi.purchase_id
		WHERE p.received_at IS NOT NULL AND p.received_at >= $1 AND p.received_at <= $2
		ORDER BY p.received_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("costing: receipts in range: %w", err)
	}
	return collectReceipts(rows)
}

// OnHand sums received quantity for a variant. Sales depletion lives in a
// separate stock module; this figure is gross receipts.
func (r *Repository) OnHand(ctx context.Context, variantID int64) (float64, error) {
	var onHand float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN COALESCE(pi.received_qty, 0) > 0 THEN pi.received_qty ELSE pi.qty END), 0)
		FROM purchase_items pi
		JOIN purchases p ON p.id = pi.purchase_id
		WHERE pi.variant_id = $1 AND p.received_at IS NOT NULL`, variantID).Scan(&onHand)
	if err != nil {
		return 0, fmt.Errorf("costing: on hand: %w", err)
	}
	return onHand, nil
}

// VariantIDs lists every variant that has at least one receipt.
func (r *Repository) VariantIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT pi.variant_id
		FROM purchase_items pi
		JOIN purchases p ON p.id = pi.purchase_id
		WHERE p.received_at IS NOT NULL
		ORDER BY pi.variant_id`)
	if err != nil {
		return nil, fmt.Errorf("costing: variant ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectReceipts(rows pgx.Rows) ([]Receipt, error) {
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		var r Receipt
		if err := rows.Scan(&r.PurchaseID, &r.VariantID, &r.Qty, &r.ReceivedQty, &r.UnitCost, &r.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

package payables

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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

// WithTx runs fn against a transaction-bound store.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}

// Get fetches a payable by id.
func (r *Repository) Get(ctx context.Context, id int64) (SupplierPayable, error) {
	return NewStore(r.pool).Get(ctx, id)
}

// FindBySource fetches the payable derived from a source record.
func (r *Repository) FindBySource(ctx context.Context, sourceType string, sourceID int64) (SupplierPayable, error) {
	return NewStore(r.pool).FindBySource(ctx, sourceType, sourceID)
}

// ListOutstanding returns unpaid payables, oldest first.
func (r *Repository) ListOutstanding(ctx context.Context) ([]SupplierPayable, error) {
	rows, err := r.pool.Query(ctx, selectPayable+` WHERE status = $1 ORDER BY created_at`, StatusUnpaid)
	if err != nil {
		return nil, fmt.Errorf("payables: list outstanding: %w", err)
	}
	defer rows.Close()

	var out []SupplierPayable
	for rows.Next() {
		payable, err := scanPayable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, payable)
	}
	return out, rows.Err()
}

// ListLedger returns the audit rows for a payable, oldest first.
func (r *Repository) ListLedger(ctx context.Context, payableID int64) ([]LedgerRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, supplier_payable_id, entry_type, amount, COALESCE(reference, ''), meta, COALESCE(note, ''), created_by_user_id, created_at
		FROM payable_ledgers WHERE supplier_payable_id = $1 ORDER BY id`, payableID)
	if err != nil {
		return nil, fmt.Errorf("payables: list ledger: %w", err)
	}
	defer rows.Close()

	var out []LedgerRow
	for rows.Next() {
		var row LedgerRow
		var metaJSON []byte
		if err := rows.Scan(&row.ID, &row.PayableID, &row.EntryType, &row.Amount, &row.Reference, &metaJSON, &row.Note, &row.CreatedBy, &row.RecordedAt); err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &row.Meta); err != nil {
				return nil, fmt.Errorf("payables: decode ledger meta: %w", err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// AppendLedger appends an audit row outside a transaction.
func (r *Repository) AppendLedger(ctx context.Context, row LedgerRow) (LedgerRow, error) {
	return NewStore(r.pool).AppendLedger(ctx, row)
}

// Store implements TxStore over any pgx querier.
type Store struct {
	q db.Querier
}

// NewStore binds a store to a querier.
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

const selectPayable = `SELECT id, supplier_id, source_type, source_id, amount, gross_amount, deductions_total, net_amount, status,
	COALESCE(payment_method, ''), COALESCE(bank_ref, ''), COALESCE(ledger_entry_id, 0), COALESCE(created_by_user_id, 0), COALESCE(paid_by_user_id, 0),
	paid_at, created_at, updated_at
	FROM supplier_payables`

// Get fetches a payable by id.
func (s *Store) Get(ctx context.Context, id int64) (SupplierPayable, error) {
	payable, err := scanPayable(s.q.QueryRow(ctx, selectPayable+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return SupplierPayable{}, ErrNotFound
	}
	return payable, err
}

// FindBySource fetches the payable derived from a source record, locking the
// row when called inside a transaction so concurrent syncs serialize.
func (s *Store) FindBySource(ctx context.Context, sourceType string, sourceID int64) (SupplierPayable, error) {
	query := selectPayable + ` WHERE source_type = $1 AND source_id = $2`
	if _, inTx := s.q.(pgx.Tx); inTx {
		query += ` FOR UPDATE`
	}
	payable, err := scanPayable(s.q.QueryRow(ctx, query, sourceType, sourceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return SupplierPayable{}, ErrNotFound
	}
	return payable, err
}

// Insert creates a payable row and returns its id.
func (s *Store) Insert(ctx context.Context, payable SupplierPayable) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO supplier_payables
		(supplier_id, source_type, source_id, amount, gross_amount, deductions_total, net_amount, status, created_by_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10) RETURNING id`,
		payable.SupplierID, payable.SourceType, payable.SourceID, payable.Amount,
		payable.GrossAmount, payable.DeductionsTotal, payable.NetAmount, payable.Status,
		payable.CreatedBy, payable.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("payables: insert: %w", err)
	}
	return id, nil
}

// UpdateAmounts writes only the changed monetary columns. Amount tracks the
// net whenever the net changes.
func (s *Store) UpdateAmounts(ctx context.Context, id int64, changes AmountChanges) error {
	if changes.Empty() {
		return nil
	}
	sets := []string{"updated_at = now()"}
	args := []any{id}
	add := func(column string, value float64) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if changes.GrossAmount != nil {
		add("gross_amount", *changes.GrossAmount)
	}
	if changes.DeductionsTotal != nil {
		add("deductions_total", *changes.DeductionsTotal)
	}
	if changes.NetAmount != nil {
		add("net_amount", *changes.NetAmount)
		add("amount", *changes.NetAmount)
	}
	tag, err := s.q.Exec(ctx, `UPDATE supplier_payables SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("payables: update amounts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaid flips the payable to paid and records the settlement fields.
func (s *Store) MarkPaid(ctx context.Context, id int64, settlement Settlement) error {
	tag, err := s.q.Exec(ctx, `UPDATE supplier_payables
		SET status = $2, payment_method = $3, bank_ref = NULLIF($4, ''), ledger_entry_id = $5, paid_by_user_id = $6, paid_at = $7, updated_at = now()
		WHERE id = $1 AND status = $8`,
		id, StatusPaid, settlement.PaymentMethod, settlement.BankRef, settlement.LedgerEntryID,
		settlement.PaidBy, settlement.PaidAt, StatusUnpaid)
	if err != nil {
		return fmt.Errorf("payables: mark paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadySettled
	}
	return nil
}

// AppendLedger appends an audit row and returns it with id and timestamp set.
func (s *Store) AppendLedger(ctx context.Context, row LedgerRow) (LedgerRow, error) {
	metaJSON, err := json.Marshal(row.Meta)
	if err != nil {
		return LedgerRow{}, fmt.Errorf("payables: encode ledger meta: %w", err)
	}
	err = s.q.QueryRow(ctx, `INSERT INTO payable_ledgers
		(supplier_payable_id, entry_type, amount, reference, meta, note, created_by_user_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7) RETURNING id, created_at`,
		row.PayableID, row.EntryType, row.Amount, row.Reference, metaJSON, row.Note, row.CreatedBy).
		Scan(&row.ID, &row.RecordedAt)
	if err != nil {
		return LedgerRow{}, fmt.Errorf("payables: append ledger: %w", err)
	}
	return row, nil
}

func scanPayable(row pgx.Row) (SupplierPayable, error) {
	var p SupplierPayable
	err := row.Scan(&p.ID, &p.SupplierID, &p.SourceType, &p.SourceID, &p.Amount,
		&p.GrossAmount, &p.DeductionsTotal, &p.NetAmount, &p.Status,
		&p.PaymentMethod, &p.BankRef, &p.LedgerEntryID, &p.CreatedBy, &p.PaidBy,
		&p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

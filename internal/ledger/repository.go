package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

// Store implements TxStore over any pgx querier, so the same writes can run
// on the pool or inside a caller's transaction.
type Store struct {
	q db.Querier
}

// NewStore binds a store to a querier.
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

// FindEntryByReference returns the entry linked to a business record.
func (s *Store) FindEntryByReference(ctx context.Context, referenceType string, referenceID int64) (Entry, error) {
	row := s.q.QueryRow(ctx, `SELECT id, entry_date, reference_type, reference_id, COALESCE(memo, ''), created_by_user_id, created_at
		FROM ledger_entries WHERE reference_type = $1 AND reference_id = $2`, referenceType, referenceID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	lines, err := s.linesFor(ctx, entry.ID)
	if err != nil {
		return Entry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

// InsertEntry persists the journal header. A duplicate reference pair maps
// to ErrReferenceConflict so the poster can resolve the race by re-reading.
func (s *Store) InsertEntry(ctx context.Context, entry Entry) (int64, error) {
	var refType any
	var refID any
	if entry.ReferenceType != "" && entry.ReferenceID != 0 {
		refType = entry.ReferenceType
		refID = entry.ReferenceID
	}
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO ledger_entries (entry_date, reference_type, reference_id, memo, created_by_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		entry.EntryDate, refType, refID, entry.Memo, entry.CreatedBy, entry.CreatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrReferenceConflict
		}
		return 0, fmt.Errorf("ledger: insert entry: %w", err)
	}
	return id, nil
}

// InsertLine persists one posting line.
func (s *Store) InsertLine(ctx context.Context, line Line) error {
	_, err := s.q.Exec(ctx, `INSERT INTO ledger_lines (ledger_entry_id, account_id, description, debit, credit)
		VALUES ($1, $2, $3, $4, $5)`,
		line.EntryID, line.AccountID, line.Description, line.Debit, line.Credit)
	if err != nil {
		return fmt.Errorf("ledger: insert line: %w", err)
	}
	return nil
}

// GetAccountByCode resolves a chart-of-accounts code.
func (s *Store) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	var account Account
	err := s.q.QueryRow(ctx, `SELECT id, code, name, account_type FROM chart_of_accounts WHERE code = $1`, code).
		Scan(&account.ID, &account.Code, &account.Name, &account.Type)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: code %q", ErrUnknownAccount, code)
		}
		return Account{}, err
	}
	return account, nil
}

// CreateAccount inserts a chart-of-accounts row.
func (s *Store) CreateAccount(ctx context.Context, account Account) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO chart_of_accounts (code, name, account_type) VALUES ($1, $2, $3) RETURNING id`,
		account.Code, account.Name, account.Type).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ledger: create account: %w", err)
	}
	return id, nil
}

// FindEntryByReference on the repository reads outside a transaction.
func (r *Repository) FindEntryByReference(ctx context.Context, referenceType string, referenceID int64) (Entry, error) {
	return NewStore(r.pool).FindEntryByReference(ctx, referenceType, referenceID)
}

// GetEntry fetches one entry with lines.
func (r *Repository) GetEntry(ctx context.Context, id int64) (Entry, error) {
	store := NewStore(r.pool)
	row := r.pool.QueryRow(ctx, `SELECT id, entry_date, reference_type, reference_id, COALESCE(memo, ''), created_by_user_id, created_at
		FROM ledger_entries WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	lines, err := store.linesFor(ctx, entry.ID)
	if err != nil {
		return Entry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

// ListEntries returns recent entries without lines.
func (r *Repository) ListEntries(ctx context.Context, limit, offset int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, entry_date, reference_type, reference_id, COALESCE(memo, ''), created_by_user_id, created_at
		FROM ledger_entries ORDER BY entry_date DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) linesFor(ctx context.Context, entryID int64) ([]Line, error) {
	rows, err := s.q.Query(ctx, `SELECT id, ledger_entry_id, account_id, COALESCE(description, ''), debit, credit
		FROM ledger_lines WHERE ledger_entry_id = $1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Description, &line.Debit, &line.Credit); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var entry Entry
	var refType *string
	var refID *int64
	if err := row.Scan(&entry.ID, &entry.EntryDate, &refType, &refID, &entry.Memo, &entry.CreatedBy, &entry.CreatedAt); err != nil {
		return Entry{}, err
	}
	if refType != nil {
		entry.ReferenceType = *refType
	}
	if refID != nil {
		entry.ReferenceID = *refID
	}
	return entry, nil
}

package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryLedgerRepo struct {
	entries  map[int64]Entry
	lines    map[int64][]Line
	accounts map[string]Account
	byRef    map[string]int64
	nextID   int64

	conflictOnInsert bool
	missLookups      int
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		entries:  make(map[int64]Entry),
		lines:    make(map[int64][]Line),
		accounts: make(map[string]Account),
		byRef:    make(map[string]int64),
	}
}

func refKey(refType string, refID int64) string {
	return fmt.Sprintf("%s:%d", refType, refID)
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	// Snapshot so a failed callback leaves no partial writes, mirroring a
	// rolled-back transaction.
	entries := make(map[int64]Entry, len(r.entries))
	for k, v := range r.entries {
		entries[k] = v
	}
	lines := make(map[int64][]Line, len(r.lines))
	for k, v := range r.lines {
		lines[k] = append([]Line(nil), v...)
	}
	accounts := make(map[string]Account, len(r.accounts))
	for k, v := range r.accounts {
		accounts[k] = v
	}
	byRef := make(map[string]int64, len(r.byRef))
	for k, v := range r.byRef {
		byRef[k] = v
	}
	if err := fn(ctx, r); err != nil {
		r.entries, r.lines, r.accounts, r.byRef = entries, lines, accounts, byRef
		return err
	}
	return nil
}

func (r *memoryLedgerRepo) FindEntryByReference(ctx context.Context, refType string, refID int64) (Entry, error) {
	if r.missLookups > 0 {
		r.missLookups--
		return Entry{}, ErrNotFound
	}
	id, ok := r.byRef[refKey(refType, refID)]
	if !ok {
		return Entry{}, ErrNotFound
	}
	entry := r.entries[id]
	entry.Lines = append([]Line(nil), r.lines[id]...)
	return entry, nil
}

func (r *memoryLedgerRepo) InsertEntry(ctx context.Context, entry Entry) (int64, error) {
	if r.conflictOnInsert {
		return 0, ErrReferenceConflict
	}
	key := refKey(entry.ReferenceType, entry.ReferenceID)
	if entry.ReferenceType != "" {
		if _, exists := r.byRef[key]; exists {
			return 0, ErrReferenceConflict
		}
	}
	r.nextID++
	entry.ID = r.nextID
	r.entries[entry.ID] = entry
	if entry.ReferenceType != "" {
		r.byRef[key] = entry.ID
	}
	return entry.ID, nil
}

func (r *memoryLedgerRepo) InsertLine(ctx context.Context, line Line) error {
	r.nextID++
	line.ID = r.nextID
	r.lines[line.EntryID] = append(r.lines[line.EntryID], line)
	return nil
}

func (r *memoryLedgerRepo) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	account, ok := r.accounts[code]
	if !ok {
		return Account{}, fmt.Errorf("%w: code %q", ErrUnknownAccount, code)
	}
	return account, nil
}

func (r *memoryLedgerRepo) CreateAccount(ctx context.Context, account Account) (int64, error) {
	r.nextID++
	account.ID = r.nextID
	r.accounts[account.Code] = account
	return account.ID, nil
}

func (r *memoryLedgerRepo) GetEntry(ctx context.Context, id int64) (Entry, error) {
	entry, ok := r.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	entry.Lines = append([]Line(nil), r.lines[id]...)
	return entry, nil
}

func (r *memoryLedgerRepo) ListEntries(ctx context.Context, limit, offset int) ([]Entry, error) {
	out := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	return out, nil
}

func balancedLines(amount float64) []LineInput {
	return []LineInput{
		{AccountCode: AccountInventory, Debit: amount, Description: "Inventory received"},
		{AccountCode: AccountAccountsPayable, Credit: amount, Description: "Accounts payable for supplier"},
	}
}

func TestPostEntryCreatesBalancedEntry(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC) })

	entry, err := svc.PostEntry(context.Background(), PostingInput{
		ReferenceType: "purchase",
		ReferenceID:   7,
		ActorID:       3,
		Memo:          "Purchase PUR-0007",
		Lines:         balancedLines(1500),
	})
	require.NoError(t, err)
	require.NotZero(t, entry.ID)
	require.Len(t, entry.Lines, 2)
	require.Equal(t, 1500.0, entry.Lines[0].Debit)
	require.Equal(t, 1500.0, entry.Lines[1].Credit)
	// Default accounts were provisioned on first use.
	require.Contains(t, repo.accounts, AccountInventory)
	require.Contains(t, repo.accounts, AccountAccountsPayable)
}

func TestPostEntryIsIdempotentPerReference(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	first, err := svc.PostEntry(ctx, PostingInput{
		ReferenceType: "purchase", ReferenceID: 11, ActorID: 1, Lines: balancedLines(250),
	})
	require.NoError(t, err)

	second, err := svc.PostEntry(ctx, PostingInput{
		ReferenceType: "purchase", ReferenceID: 11, ActorID: 1, Lines: balancedLines(250),
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, repo.lines[first.ID], 2)
	require.Len(t, repo.entries, 1)
}

func TestPostEntryRejectsUnbalanced(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil)

	_, err := svc.PostEntry(context.Background(), PostingInput{
		ActorID: 1,
		Lines: []LineInput{
			{AccountCode: AccountInventory, Debit: 100.00},
			{AccountCode: AccountAccountsPayable, Credit: 99.99},
		},
	})
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Empty(t, repo.entries)
	require.Empty(t, repo.lines)
}

func TestPostEntryRejectsTooFewLines(t *testing.T) {
	svc := NewService(newMemoryLedgerRepo(), nil)
	_, err := svc.PostEntry(context.Background(), PostingInput{
		ActorID: 1,
		Lines:   []LineInput{{AccountCode: AccountInventory, Debit: 10}},
	})
	require.ErrorIs(t, err, ErrTooFewLines)
}

func TestPostEntryUnknownAccountRollsBack(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil)

	_, err := svc.PostEntry(context.Background(), PostingInput{
		ActorID: 1,
		Lines: []LineInput{
			{AccountCode: "9999", Debit: 10},
			{AccountCode: AccountInventory, Credit: 10},
		},
	})
	require.ErrorIs(t, err, ErrUnknownAccount)
	require.Empty(t, repo.entries, "partial journal entries must never be visible")
	require.Empty(t, repo.lines)
}

func TestPostEntryWithResolvesInsertRace(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	winner, err := svc.PostEntry(ctx, PostingInput{
		ReferenceType: "supplier_payable", ReferenceID: 4, ActorID: 1, Lines: balancedLines(80),
	})
	require.NoError(t, err)

	// Simulate the loser of the unique-index race: its pre-insert lookup
	// misses, the insert conflicts, and the re-read lands on the winner's
	// entry instead of failing.
	repo.missLookups = 1
	repo.conflictOnInsert = true
	entry, err := svc.PostEntryWith(ctx, repo, PostingInput{
		ReferenceType: "supplier_payable", ReferenceID: 4, ActorID: 2, Lines: balancedLines(80),
	})
	require.NoError(t, err)
	require.Equal(t, winner.ID, entry.ID)
	require.Len(t, repo.entries, 1)
}

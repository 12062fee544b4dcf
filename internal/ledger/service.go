package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/shared"
)

// TxStore exposes the journal writes available inside a transaction. The
// procurement orchestrator supplies a store bound to its own transaction so
// a failed posting rolls the whole transition back.
type TxStore interface {
	FindEntryByReference(ctx context.Context, referenceType string, referenceID int64) (Entry, error)
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
	InsertLine(ctx context.Context, line Line) error
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	CreateAccount(ctx context.Context, account Account) (int64, error)
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	FindEntryByReference(ctx context.Context, referenceType string, referenceID int64) (Entry, error)
	GetEntry(ctx context.Context, id int64) (Entry, error)
	ListEntries(ctx context.Context, limit, offset int) ([]Entry, error)
}

// Service is the journal poster.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditPort
	now   func() time.Time
}

// NewService constructs the poster.
func NewService(repo RepositoryPort, audit shared.AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// LineInput describes a posting line. The account is resolved directly by
// id, or by chart-of-accounts code when the id is zero.
type LineInput struct {
	AccountID   int64
	AccountCode string
	Description string
	Debit       float64
	Credit      float64
}

// PostingInput groups the fields required to post an entry.
type PostingInput struct {
	EntryDate     time.Time
	ReferenceType string
	ReferenceID   int64
	ActorID       int64
	Memo          string
	Lines         []LineInput
}

// Validate checks structure and the debit=credit invariant. It runs before
// any write; a violation is a hard failure, never a warning.
func (in PostingInput) Validate() error {
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.AccountID == 0 && line.AccountCode == "" {
			return fmt.Errorf("%w: line %d missing account", ErrValidation, idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("%w: line %d negative amount", ErrValidation, idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("%w: line %d cannot be both debit and credit", ErrValidation, idx)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if !shared.SameAmount(debit, credit) {
		return fmt.Errorf("%w: debit %.2f credit %.2f", ErrUnbalanced, debit, credit)
	}
	return nil
}

// PostEntry posts a balanced journal entry inside its own transaction.
// Re-posting the same (reference type, reference id) returns the existing
// entry unchanged.
func (s *Service) PostEntry(ctx context.Context, input PostingInput) (Entry, error) {
	if input.ReferenceType != "" && input.ReferenceID != 0 {
		existing, err := s.repo.FindEntryByReference(ctx, input.ReferenceType, input.ReferenceID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Entry{}, err
		}
	}
	if err := input.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		posted, err := s.PostEntryWith(ctx, tx, input)
		if err != nil {
			return err
		}
		entry = posted
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.recordAudit(ctx, input.ActorID, entry)
	return entry, nil
}

// PostEntryWith posts against a caller-supplied store, typically one bound
// to the caller's transaction. The duplicate-reference lookup runs again
// here so callers holding a row lock observe committed postings, and a
// unique-index conflict on insert is resolved by re-reading the winner.
func (s *Service) PostEntryWith(ctx context.Context, store TxStore, input PostingInput) (Entry, error) {
	if input.ReferenceType != "" && input.ReferenceID != 0 {
		existing, err := store.FindEntryByReference(ctx, input.ReferenceType, input.ReferenceID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Entry{}, err
		}
	}
	if err := input.Validate(); err != nil {
		return Entry{}, err
	}

	entryDate := input.EntryDate
	if entryDate.IsZero() {
		entryDate = s.now()
	}
	entry := Entry{
		EntryDate:     entryDate,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		Memo:          input.Memo,
		CreatedBy:     input.ActorID,
		CreatedAt:     s.now(),
	}
	entryID, err := store.InsertEntry(ctx, entry)
	if err != nil {
		if errors.Is(err, ErrReferenceConflict) {
			return store.FindEntryByReference(ctx, input.ReferenceType, input.ReferenceID)
		}
		return Entry{}, err
	}
	entry.ID = entryID
	for _, line := range input.Lines {
		accountID, err := s.resolveAccount(ctx, store, line)
		if err != nil {
			return Entry{}, err
		}
		posted := Line{
			EntryID:     entryID,
			AccountID:   accountID,
			Description: line.Description,
			Debit:       shared.Round2(line.Debit),
			Credit:      shared.Round2(line.Credit),
		}
		if err := store.InsertLine(ctx, posted); err != nil {
			return Entry{}, err
		}
		entry.Lines = append(entry.Lines, posted)
	}
	return entry, nil
}

// resolveAccount maps a line to an account id. Known default codes are
// provisioned on first use; anything else unresolved fails the posting.
func (s *Service) resolveAccount(ctx context.Context, store TxStore, line LineInput) (int64, error) {
	if line.AccountID != 0 {
		return line.AccountID, nil
	}
	account, err := store.GetAccountByCode(ctx, line.AccountCode)
	if err == nil {
		return account.ID, nil
	}
	if !errors.Is(err, ErrUnknownAccount) {
		return 0, err
	}
	seed, ok := defaultAccounts[line.AccountCode]
	if !ok {
		return 0, fmt.Errorf("%w: code %q", ErrUnknownAccount, line.AccountCode)
	}
	id, err := store.CreateAccount(ctx, seed)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetEntry fetches an entry with lines.
func (s *Service) GetEntry(ctx context.Context, id int64) (Entry, error) {
	return s.repo.GetEntry(ctx, id)
}

// ListEntries returns recent journal entries.
func (s *Service) ListEntries(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListEntries(ctx, limit, offset)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, entry Entry) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "ledger.post",
		Entity:   "ledger_entry",
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta: map[string]any{
			"reference_type": entry.ReferenceType,
			"reference_id":   entry.ReferenceID,
			"lines":          len(entry.Lines),
		},
		At: s.now(),
	})
}

// Package ledger is the append-only wallet ledger substrate (every
// other engine credits or debits through this package, never by
// writing a Wallet row directly). Grounded in the teacher's gasbank
// service (services/gasbank/service.go), which holds the same shape
// of invariant — a balance that must never go negative, guarded by a
// compare-and-swap loop rather than a blind read-modify-write.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/logging"
	"github.com/r3e-network/mlm-compensation-engine/internal/metrics"
	"github.com/r3e-network/mlm-compensation-engine/internal/store"
)

// Service exposes credit/debit/hold/release/finalize over a Store.
type Service struct {
	store store.Store
	log   *logging.Logger
}

// New constructs a ledger Service backed by s.
func New(s store.Store) *Service {
	return &Service{store: s, log: logging.Default()}
}

// Balance is the read-only projection getBalance returns (spec.md §4.A).
type Balance struct {
	UserID        string
	Balance       int64
	Pending       int64
	TotalCredited int64
	TotalDebited  int64
}

// GetBalance returns userID's current wallet snapshot.
func (s *Service) GetBalance(ctx context.Context, userID string) (Balance, error) {
	w, err := s.store.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		UserID:        w.UserID,
		Balance:       w.Balance,
		Pending:       w.Pending,
		TotalCredited: w.TotalCredited,
		TotalDebited:  w.TotalDebited,
	}, nil
}

// Credit appends a credit ledger row and increments balance and
// totalCredited atomically (spec.md §4.A). Fails only if amount <= 0.
func (s *Service) Credit(ctx context.Context, userID string, amount int64, category domain.LedgerCategory, refs []string, note string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: credit amount must be positive, got %d", domain.ErrValidation, amount)
	}
	return s.mutate(ctx, userID, domain.DirCredit, category, refs, note, func(w *domain.Wallet) error {
		w.Balance += amount
		w.TotalCredited += amount
		return nil
	}, amount)
}

// Debit appends a debit row and decrements balance, failing with
// ErrInsufficientBalance if balance < amount (spec.md §4.A).
func (s *Service) Debit(ctx context.Context, userID string, amount int64, category domain.LedgerCategory, refs []string, note string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: debit amount must be positive, got %d", domain.ErrValidation, amount)
	}
	return s.mutate(ctx, userID, domain.DirDebit, category, refs, note, func(w *domain.Wallet) error {
		if w.Balance < amount {
			return &domain.InsufficientBalanceError{UserID: userID, Available: w.Balance, Required: amount}
		}
		w.Balance -= amount
		w.TotalDebited += amount
		return nil
	}, -amount)
}

// Hold moves amount from balance into pending (spec.md §4.A).
func (s *Service) Hold(ctx context.Context, userID string, amount int64, refs []string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: hold amount must be positive, got %d", domain.ErrValidation, amount)
	}
	return s.mutate(ctx, userID, domain.DirHold, domain.CategoryWithdraw, refs, "", func(w *domain.Wallet) error {
		if w.Balance < amount {
			return &domain.InsufficientBalanceError{UserID: userID, Available: w.Balance, Required: amount}
		}
		w.Balance -= amount
		w.Pending += amount
		return nil
	}, 0)
}

// Release moves amount from pending back into balance (spec.md §4.A).
func (s *Service) Release(ctx context.Context, userID string, amount int64, refs []string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: release amount must be positive, got %d", domain.ErrValidation, amount)
	}
	return s.mutate(ctx, userID, domain.DirRelease, domain.CategoryWithdraw, refs, "", func(w *domain.Wallet) error {
		if w.Pending < amount {
			return &domain.InsufficientBalanceError{UserID: userID, Available: w.Pending, Required: amount}
		}
		w.Pending -= amount
		w.Balance += amount
		return nil
	}, 0)
}

// Finalize clears amount from pending permanently, recording it as
// debited (spec.md §4.A) — the terminal state of a withdrawal.
func (s *Service) Finalize(ctx context.Context, userID string, amount int64, refs []string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: finalize amount must be positive, got %d", domain.ErrValidation, amount)
	}
	return s.mutate(ctx, userID, domain.DirFinalize, domain.CategoryWithdraw, refs, "", func(w *domain.Wallet) error {
		if w.Pending < amount {
			return &domain.InsufficientBalanceError{UserID: userID, Available: w.Pending, Required: amount}
		}
		w.Pending -= amount
		w.TotalDebited += amount
		return nil
	}, -amount)
}

// mutate is the shared CAS loop behind every wallet operation: read
// wallet, apply fn, CAS-write the new wallet, append the ledger row.
// signedAmount is the ledger row's signed amount (0 for hold/release,
// which move money between balance and pending without changing the
// sum invariant in spec.md §8 invariant 1).
func (s *Service) mutate(ctx context.Context, userID string, dir domain.LedgerDirection, category domain.LedgerCategory, refs []string, note string, fn func(*domain.Wallet) error, signedAmount int64) (string, error) {
	const maxAttempts = 8
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		w, err := s.store.GetOrCreateWallet(ctx, userID)
		if err != nil {
			return "", err
		}
		expectedUpdatedAt := w.UpdatedAt
		if err := fn(w); err != nil {
			return "", err
		}
		if err := s.store.CompareAndSwapWallet(ctx, w, expectedUpdatedAt); err != nil {
			if domain.IsConflict(err) {
				lastErr = err
				continue
			}
			return "", err
		}

		txID := uuid.NewString()
		entry := &domain.LedgerEntry{
			TxID:            txID,
			UserID:          userID,
			Direction:       dir,
			Amount:          absInt64(signedAmount),
			Category:        category,
			BalanceAfter:    w.Balance,
			RelatedEntryIDs: refs,
			Note:            note,
			CreatedAt:       time.Now(),
		}
		if err := s.store.AppendLedgerEntry(ctx, entry); err != nil {
			return "", err
		}

		metrics.LedgerOpsTotal.WithLabelValues(string(dir), string(category)).Inc()
		s.log.LogLedgerOp(ctx, string(dir), string(category), userID, signedAmount, txID)
		return txID, nil
	}
	return "", fmt.Errorf("%w: wallet %s CAS exhausted after %d attempts: %v", domain.ErrRetry, userID, maxAttempts, lastErr)
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

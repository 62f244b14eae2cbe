package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
)

func (s *Store) GetOrCreateWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[userID]
	if !ok {
		w = &domain.Wallet{UserID: userID, UpdatedAt: time.Now()}
		s.wallets[userID] = w
	}
	cp := *w
	return &cp, nil
}

// CompareAndSwapWallet is the memory store's CAS primitive: it
// succeeds only if the stored wallet's UpdatedAt still equals
// expectedUpdatedAt, mirroring the optimistic-concurrency pattern
// internal/txrunner falls back to when a store has no real
// transactions (spec.md §4.A, §9).
func (s *Store) CompareAndSwapWallet(ctx context.Context, newWallet *domain.Wallet, expectedUpdatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.wallets[newWallet.UserID]
	if !ok {
		current = &domain.Wallet{UserID: newWallet.UserID}
	}
	if !current.UpdatedAt.Equal(expectedUpdatedAt) {
		return fmt.Errorf("%w: wallet %s changed since read", domain.ErrConflict, newWallet.UserID)
	}
	cp := *newWallet
	cp.UpdatedAt = time.Now()
	s.wallets[newWallet.UserID] = &cp
	return nil
}

func (s *Store) AppendLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.ledger = append(s.ledger, &cp)
	return nil
}

func (s *Store) LedgerEntriesForUser(ctx context.Context, userID string) ([]*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.LedgerEntry
	for _, e := range s.ledger {
		if e.UserID == userID {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *Store) AppendBVLedgerEntry(ctx context.Context, e *domain.BVLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.bvLedger = append(s.bvLedger, &cp)
	return nil
}

func (s *Store) GetFundPool(ctx context.Context) (*domain.FundPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.fundPool
	return &cp, nil
}

func (s *Store) CompareAndSwapFundPool(ctx context.Context, newPool *domain.FundPool, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fundVersion != expectedVersion {
		return fmt.Errorf("%w: fund pool changed since read", domain.ErrConflict)
	}
	cp := *newPool
	s.fundPool = &cp
	s.fundVersion++
	return nil
}

func (s *Store) FundPoolVersion(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fundVersion, nil
}

package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
)

// InsertSessionRun is the idempotency sentinel for a (dateKey,
// sessionIndex) pair: an insert into a unique key, exactly as a
// Postgres UNIQUE constraint would enforce it (spec.md §4.E, §9).
func (s *Store) InsertSessionRun(ctx context.Context, run *domain.SessionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(run.DateKey, run.SessionIndex)
	if _, exists := s.sessionRuns[key]; exists {
		return fmt.Errorf("%w: session %s already run", domain.ErrAlreadyProcessed, key)
	}
	if run.ID == "" {
		run.ID = s.nextID("session")
	}
	cp := *run
	cp.ProcessedPairs = append([]domain.ProcessedPair(nil), run.ProcessedPairs...)
	s.sessionRuns[key] = &cp
	return nil
}

func (s *Store) GetSessionRun(ctx context.Context, dateKey string, sessionIndex int) (*domain.SessionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(dateKey, sessionIndex)
	run, ok := s.sessionRuns[key]
	if !ok {
		return nil, domain.NewNotFoundError("session_run", key)
	}
	cp := *run
	cp.ProcessedPairs = append([]domain.ProcessedPair(nil), run.ProcessedPairs...)
	return &cp, nil
}

func (s *Store) AppendProcessedPair(ctx context.Context, dateKey string, sessionIndex int, pair domain.ProcessedPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(dateKey, sessionIndex)
	run, ok := s.sessionRuns[key]
	if !ok {
		return domain.NewNotFoundError("session_run", key)
	}
	run.ProcessedPairs = append(run.ProcessedPairs, pair)
	run.ProcessedPairCount++
	return nil
}

func (s *Store) FinalizeSessionRun(ctx context.Context, dateKey string, sessionIndex int, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(dateKey, sessionIndex)
	run, ok := s.sessionRuns[key]
	if !ok {
		return domain.NewNotFoundError("session_run", key)
	}
	run.Finalized = true
	run.FinishedAt = finishedAt
	return nil
}

func (s *Store) CountProcessedPairs(ctx context.Context, dateKey string, sessionIndex int, userID string, packageCode plan.PackageCode) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(dateKey, sessionIndex)
	run, ok := s.sessionRuns[key]
	if !ok {
		return 0, nil
	}
	count := 0
	for _, p := range run.ProcessedPairs {
		if p.UserID == userID && p.PackageCode == packageCode {
			count++
		}
	}
	return count, nil
}

func (s *Store) HasRankHistory(ctx context.Context, userID string, packageCode plan.PackageCode, rankIndex int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rankHistoryKey(userID, packageCode, rankIndex)
	_, ok := s.rankHistory[key]
	return ok, nil
}

func (s *Store) InsertRankHistory(ctx context.Context, e *domain.RankHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rankHistoryKey(e.UserID, plan.PackageCode(e.PackageCode), e.RankIndex)
	if _, exists := s.rankHistory[key]; exists {
		return fmt.Errorf("%w: rank %s already credited", domain.ErrAlreadyProcessed, key)
	}
	cp := *e
	s.rankHistory[key] = &cp
	return nil
}

func rankHistoryKey(userID string, packageCode plan.PackageCode, rankIndex int) string {
	return fmt.Sprintf("%s#%s#%d", userID, packageCode, rankIndex)
}

func (s *Store) AppendRoyaltyLog(ctx context.Context, e *domain.RoyaltyLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.royaltyLog = append(s.royaltyLog, &cp)
	return nil
}

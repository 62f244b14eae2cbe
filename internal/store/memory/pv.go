package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
)

func (s *Store) CreatePVEntry(ctx context.Context, e *domain.PVEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = s.nextID("pv")
	}
	cp := *e
	s.pvEntries[cp.ID] = &cp
	return nil
}

// CandidateUsers returns userIDs with at least one red entry on each
// side for packageCode, ordered by the user's earliest red entry
// (either side) ascending — FIFO candidate discovery (spec.md §4.E.1).
func (s *Store) CandidateUsers(ctx context.Context, packageCode plan.PackageCode) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hasLeft := make(map[string]bool)
	hasRight := make(map[string]bool)
	earliest := make(map[string]time.Time)

	for _, e := range s.pvEntries {
		if e.PackageCode != packageCode || e.State != domain.PVRed {
			continue
		}
		if e.Side == domain.SideLeft {
			hasLeft[e.OwnerUserID] = true
		} else {
			hasRight[e.OwnerUserID] = true
		}
		if t, ok := earliest[e.OwnerUserID]; !ok || e.CreatedAt.Before(t) {
			earliest[e.OwnerUserID] = e.CreatedAt
		}
	}

	var candidates []string
	for userID := range hasLeft {
		if hasRight[userID] {
			candidates = append(candidates, userID)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return earliest[candidates[i]].Before(earliest[candidates[j]])
	})
	return candidates, nil
}

func (s *Store) EarliestRed(ctx context.Context, userID string, packageCode plan.PackageCode, side domain.Side) (*domain.PVEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *domain.PVEntry
	for _, e := range s.pvEntries {
		if e.OwnerUserID != userID || e.PackageCode != packageCode || e.Side != side || e.State != domain.PVRed {
			continue
		}
		if e.ReservedBy != "" {
			continue
		}
		if best == nil || e.CreatedAt.Before(best.CreatedAt) {
			best = e
		}
	}
	if best == nil {
		return nil, domain.NewNotFoundError("pv_entry", fmt.Sprintf("%s/%s/%s", userID, packageCode, side))
	}
	cp := *best
	return &cp, nil
}

func (s *Store) ReserveForMatch(ctx context.Context, entryID, reservationToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pvEntries[entryID]
	if !ok {
		return domain.NewNotFoundError("pv_entry", entryID)
	}
	if e.State != domain.PVRed {
		return fmt.Errorf("%w: entry %s already green", domain.ErrConflict, entryID)
	}
	if e.ReservedBy != "" && e.ReservedBy != reservationToken {
		return fmt.Errorf("%w: entry %s already reserved", domain.ErrConflict, entryID)
	}
	e.ReservedBy = reservationToken
	return nil
}

func (s *Store) ReleaseReservation(ctx context.Context, entryID, reservationToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pvEntries[entryID]
	if !ok {
		return domain.NewNotFoundError("pv_entry", entryID)
	}
	if e.ReservedBy == reservationToken {
		e.ReservedBy = ""
	}
	return nil
}

func (s *Store) FlipToGreen(ctx context.Context, leftEntryID, rightEntryID string, sessionIndex int, matchedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	left, ok := s.pvEntries[leftEntryID]
	if !ok {
		return domain.NewNotFoundError("pv_entry", leftEntryID)
	}
	right, ok := s.pvEntries[rightEntryID]
	if !ok {
		return domain.NewNotFoundError("pv_entry", rightEntryID)
	}
	if left.State != domain.PVRed || right.State != domain.PVRed {
		return fmt.Errorf("%w: pair already matched", domain.ErrConflict)
	}

	left.State = domain.PVGreen
	left.MatchedWithEntryID = rightEntryID
	left.SessionMatchedIndex = sessionIndex
	left.MatchedAt = matchedAt
	left.ReservedBy = ""

	right.State = domain.PVGreen
	right.MatchedWithEntryID = leftEntryID
	right.SessionMatchedIndex = sessionIndex
	right.MatchedAt = matchedAt
	right.ReservedBy = ""

	return nil
}

func (s *Store) CreatePendingIncome(ctx context.Context, p *domain.PendingIncome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = s.nextID("pending")
	}
	cp := *p
	s.pendingIncome[cp.ID] = &cp
	return nil
}

func (s *Store) UnmaterializedPendingIncome(ctx context.Context, userID string, packageCode plan.PackageCode) ([]*domain.PendingIncome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.PendingIncome
	for _, p := range s.pendingIncome {
		if p.UserID == userID && p.PackageCode == packageCode && !p.Materialized {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) MarkPendingIncomeMaterialized(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pendingIncome[id]
	if !ok {
		return domain.NewNotFoundError("pending_income", id)
	}
	p.Materialized = true
	return nil
}

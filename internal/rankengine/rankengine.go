// Package rankengine tracks per-package pair counters and advances a
// user's rank index every 8 pairs (4 income + 4 cutoff), crediting the
// fixed rank-income table exactly once per (user, package, rank index)
// (spec.md §4.F). Grounded in the teacher's automation trigger-counter
// pattern (services/automation/automation_triggers.go), which evaluates
// a counter threshold and fires a one-shot action.
package rankengine

import (
	"context"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/eventbus"
	"github.com/r3e-network/mlm-compensation-engine/internal/ledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/logging"
	"github.com/r3e-network/mlm-compensation-engine/internal/metrics"
	"github.com/r3e-network/mlm-compensation-engine/internal/money"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
	"github.com/r3e-network/mlm-compensation-engine/internal/store"
)

// Service implements onPairPaid and the one-shot rank credit.
type Service struct {
	store  store.Store
	ledger *ledger.Service
	bus    *eventbus.Bus
	log    *logging.Logger
}

// New constructs a rankengine Service.
func New(s store.Store, l *ledger.Service, bus *eventbus.Bus) *Service {
	return &Service{store: s, ledger: l, bus: bus, log: logging.Default()}
}

// OnPairPaid increments userID's income or cutoff counter for pkg and,
// once the combined count reaches plan.PairsPerRankStep, advances the
// user's rank index and credits the one-shot rank income (spec.md
// §4.F). Rank income is lifetime-stacking: it is never reversed or
// replaced by a later rank.
func (s *Service) OnPairPaid(ctx context.Context, userID string, pkg plan.PackageCode) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	if user.IncomePairs[pkg] < 4 {
		user.IncomePairs[pkg]++
	} else {
		user.CutoffPairs[pkg]++
	}

	if user.IncomePairs[pkg]+user.CutoffPairs[pkg] < plan.PairsPerRankStep {
		return s.store.UpdateUser(ctx, user)
	}

	currentRank := user.CurrentRankIndex(pkg)
	newRank := currentRank + 1
	if newRank > plan.MaxRankIndex {
		newRank = plan.MaxRankIndex
	}
	user.IncomePairs[pkg] = 0
	user.CutoffPairs[pkg] = 0
	user.RankIndex[pkg] = newRank

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return err
	}

	already, err := s.store.HasRankHistory(ctx, userID, pkg, newRank)
	if err != nil {
		return err
	}
	if !already {
		wholeAmount, err := plan.RankIncome(pkg, newRank)
		if err != nil {
			return err
		}
		amount := money.FromWhole(wholeAmount)
		if _, err := s.ledger.Credit(ctx, userID, amount, domain.CategoryRank, nil, ""); err != nil {
			return err
		}
		if err := s.store.InsertRankHistory(ctx, &domain.RankHistoryEntry{
			UserID:      userID,
			PackageCode: string(pkg),
			RankIndex:   newRank,
			Amount:      amount,
			CreditedAt:  time.Now(),
		}); err != nil && !domain.IsAlreadyProcessed(err) {
			return err
		}
		metrics.RankAdvancesTotal.WithLabelValues(string(pkg)).Inc()
	}

	s.bus.Publish(ctx, eventbus.RankAdvancedEvent{
		UserID:       userID,
		PackageCode:  string(pkg),
		NewRankIndex: newRank,
	})
	s.log.WithFields(map[string]interface{}{
		"user_id":      userID,
		"package_code": pkg,
		"new_rank":     newRank,
	}).Info("rank advanced")
	return nil
}

// RecalculateUser re-applies the rank-step promotion rule for every
// package the user has pair counters for (planctl's
// recalculate-ranks admin op, spec.md §6). It is a pure consequence of
// the one-shot invariant: counters already at or past the 8-pair
// threshold are promoted exactly as OnPairPaid would, and the
// HasRankHistory check still guards against a duplicate credit — so
// recalculation is safe to run any number of times, including against
// a user who is already fully up to date (a no-op in that case).
func (s *Service) RecalculateUser(ctx context.Context, userID string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	for pkg := range user.IncomePairs {
		if err := s.promoteIfDue(ctx, userID, pkg); err != nil {
			return err
		}
	}
	for pkg := range user.CutoffPairs {
		if _, ok := user.IncomePairs[pkg]; ok {
			continue
		}
		if err := s.promoteIfDue(ctx, userID, pkg); err != nil {
			return err
		}
	}
	return nil
}

// promoteIfDue advances userID's rank for pkg as many times as its
// current counters warrant, crediting each newly reached rank index at
// most once.
func (s *Service) promoteIfDue(ctx context.Context, userID string, pkg plan.PackageCode) error {
	for {
		user, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.IncomePairs[pkg]+user.CutoffPairs[pkg] < plan.PairsPerRankStep {
			return nil
		}
		currentRank := user.CurrentRankIndex(pkg)
		newRank := currentRank + 1
		if newRank > plan.MaxRankIndex {
			newRank = plan.MaxRankIndex
		}
		user.IncomePairs[pkg] = 0
		user.CutoffPairs[pkg] = 0
		user.RankIndex[pkg] = newRank
		if err := s.store.UpdateUser(ctx, user); err != nil {
			return err
		}

		already, err := s.store.HasRankHistory(ctx, userID, pkg, newRank)
		if err != nil {
			return err
		}
		if !already {
			wholeAmount, err := plan.RankIncome(pkg, newRank)
			if err != nil {
				return err
			}
			amount := money.FromWhole(wholeAmount)
			if _, err := s.ledger.Credit(ctx, userID, amount, domain.CategoryRank, nil, "recalculate-ranks"); err != nil {
				return err
			}
			if err := s.store.InsertRankHistory(ctx, &domain.RankHistoryEntry{
				UserID:      userID,
				PackageCode: string(pkg),
				RankIndex:   newRank,
				Amount:      amount,
				CreditedAt:  time.Now(),
			}); err != nil && !domain.IsAlreadyProcessed(err) {
				return err
			}
		}
		if newRank == currentRank {
			return nil
		}
		s.bus.Publish(ctx, eventbus.RankAdvancedEvent{
			UserID:       userID,
			PackageCode:  string(pkg),
			NewRankIndex: newRank,
		})
	}
}

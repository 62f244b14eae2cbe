// Package fundengine distributes the monthly car/house fund pools and
// the yearly travel fund allocation (spec.md §4.H). Unlike the other
// engines this one is cron-triggered rather than event-triggered;
// internal/scheduler invokes it on month/year boundaries. Grounded in
// the teacher's automation service's scheduled-trigger handlers
// (services/automation/automation_triggers.go).
package fundengine

import (
	"context"
	"fmt"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/ledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/logging"
	"github.com/r3e-network/mlm-compensation-engine/internal/metrics"
	"github.com/r3e-network/mlm-compensation-engine/internal/money"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
	"github.com/r3e-network/mlm-compensation-engine/internal/store"
)

// Service implements the monthly and yearly fund distributions.
type Service struct {
	store  store.Store
	ledger *ledger.Service
	log    *logging.Logger
}

// New constructs a fundengine Service.
func New(s store.Store, l *ledger.Service) *Service {
	return &Service{store: s, ledger: l, log: logging.Default()}
}

// Report summarizes one distribution call.
type Report struct {
	RecipientCount int
	TotalPaid      int64
}

// DistributeCarFund shares the month's accumulated car pool equally
// among users ranked at or above Ruby Star in any package, then resets
// CarPoolMonthly to 0 (spec.md §4.H).
func (s *Service) DistributeCarFund(ctx context.Context, month string) (Report, error) {
	return s.distributeMonthlyFund(ctx, month, domain.CategoryFundCar, "car", plan.CarPoolEligibleRankIndex,
		func(pool *domain.FundPool) int64 { return pool.CarPoolMonthly },
		func(pool *domain.FundPool) { pool.CarPoolMonthly = 0 })
}

// DistributeHouseFund shares the month's accumulated house pool
// equally among users ranked at or above Diamond Star (spec.md §4.H).
func (s *Service) DistributeHouseFund(ctx context.Context, month string) (Report, error) {
	return s.distributeMonthlyFund(ctx, month, domain.CategoryFundHouse, "house", plan.HousePoolEligibleRankIndex,
		func(pool *domain.FundPool) int64 { return pool.HousePoolMonthly },
		func(pool *domain.FundPool) { pool.HousePoolMonthly = 0 })
}

func (s *Service) distributeMonthlyFund(
	ctx context.Context,
	month string,
	category domain.LedgerCategory,
	poolLabel string,
	minRankIndex int,
	readAmount func(*domain.FundPool) int64,
	resetAmount func(*domain.FundPool),
) (Report, error) {
	amount, err := s.drainPool(ctx, month, poolLabel, readAmount, resetAmount)
	if err != nil {
		return Report{}, err
	}
	if amount <= 0 {
		return Report{}, nil
	}

	recipients, err := s.store.ListByMinRank(ctx, minRankIndex)
	if err != nil {
		return Report{}, err
	}
	if len(recipients) == 0 {
		return Report{}, nil
	}

	share := amount / int64(len(recipients))
	if share <= 0 {
		return Report{}, nil
	}

	var totalPaid int64
	for _, u := range recipients {
		if _, err := s.ledger.Credit(ctx, u.ID, share, category, nil,
			fmt.Sprintf("%s fund distribution %s", poolLabel, month)); err != nil {
			return Report{}, err
		}
		totalPaid += share
	}

	metrics.FundPoolBalance.WithLabelValues(poolLabel).Set(0)
	return Report{RecipientCount: len(recipients), TotalPaid: totalPaid}, nil
}

// drainPool reads the requested pool field, zeroes it, appends a
// POOL_RESET history record, and CAS-writes the pool, returning the
// amount that was present before the reset.
func (s *Service) drainPool(ctx context.Context, month, poolLabel string, readAmount func(*domain.FundPool) int64, resetAmount func(*domain.FundPool)) (int64, error) {
	const maxAttempts = 8
	for attempt := 0; attempt < maxAttempts; attempt++ {
		pool, err := s.store.GetFundPool(ctx)
		if err != nil {
			return 0, err
		}
		version, err := s.store.FundPoolVersion(ctx)
		if err != nil {
			return 0, err
		}
		amount := readAmount(pool)
		resetAmount(pool)
		pool.History = append(pool.History, domain.FundHistoryEntry{
			Kind:      "POOL_RESET",
			Amount:    amount,
			Month:     month,
			CreatedAt: time.Now(),
		})
		if err := s.store.CompareAndSwapFundPool(ctx, pool, version); err != nil {
			if domain.IsConflict(err) {
				continue
			}
			return 0, err
		}
		return amount, nil
	}
	return 0, fmt.Errorf("%w: fund pool CAS exhausted draining pool", domain.ErrRetry)
}

// AllocateTravelFund records the yearly travel fund split between
// national and international shares, recording the split into
// FundPool.TravelAllocations (spec.md §4.H: "selection of actual
// winners/distribution is outside the core").
func (s *Service) AllocateTravelFund(ctx context.Context, year int, totalTravelFund int64) (domain.TravelAllocation, error) {
	national := money.PercentOf(totalTravelFund, plan.TravelNationalSharePercent)
	international := totalTravelFund - national

	allocation := domain.TravelAllocation{
		Year:                year,
		NationalAmount:      national,
		InternationalAmount: international,
		CreatedAt:           time.Now(),
	}

	const maxAttempts = 8
	for attempt := 0; attempt < maxAttempts; attempt++ {
		pool, err := s.store.GetFundPool(ctx)
		if err != nil {
			return domain.TravelAllocation{}, err
		}
		version, err := s.store.FundPoolVersion(ctx)
		if err != nil {
			return domain.TravelAllocation{}, err
		}
		pool.TravelFund += totalTravelFund
		pool.TravelAllocations = append(pool.TravelAllocations, allocation)
		if err := s.store.CompareAndSwapFundPool(ctx, pool, version); err != nil {
			if domain.IsConflict(err) {
				continue
			}
			return domain.TravelAllocation{}, err
		}
		return allocation, nil
	}
	return domain.TravelAllocation{}, fmt.Errorf("%w: fund pool CAS exhausted allocating travel fund", domain.ErrRetry)
}

// NationalEligible returns users eligible for the national travel
// share: rank >= Ruby Star (spec.md §4.H).
func (s *Service) NationalEligible(ctx context.Context) ([]*domain.User, error) {
	return s.store.ListByMinRank(ctx, plan.TravelNationalRankIndex)
}

// InternationalEligible returns users eligible for the international
// travel share: rank >= Diamond Star (spec.md §4.H).
func (s *Service) InternationalEligible(ctx context.Context) ([]*domain.User, error) {
	return s.store.ListByMinRank(ctx, plan.TravelInternationalRankIdx)
}

// Package bvledger is the append-only BV/PV ledger (spec.md §4.B): it
// credits and consumes BV against the singleton FundPool, and places
// new red PV entries for the binary engine to pick up. Grounded in the
// same CAS discipline as internal/ledger, applied to the FundPool
// singleton row instead of a per-user wallet.
package bvledger

import (
	"context"
	"fmt"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/config"
	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/eventbus"
	"github.com/r3e-network/mlm-compensation-engine/internal/logging"
	"github.com/r3e-network/mlm-compensation-engine/internal/metrics"
	"github.com/r3e-network/mlm-compensation-engine/internal/money"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
	"github.com/r3e-network/mlm-compensation-engine/internal/store"
)

// Service implements creditBV/consumeBV/creditPV.
type Service struct {
	store  store.Store
	bus    *eventbus.Bus
	cfg    *config.Config
	log    *logging.Logger
}

// New constructs a bvledger Service. cfg supplies the car/house/royalty
// pool percentages (spec.md §4.B, configurable per §9 design notes).
func New(s store.Store, bus *eventbus.Bus, cfg *config.Config) *Service {
	return &Service{store: s, bus: bus, cfg: cfg, log: logging.Default()}
}

const maxPoolCASAttempts = 8

// CreditBV appends a positive BV row for userID and allocates the
// configured car/house pool shares into FundPool in the same atomic
// unit (spec.md §4.B).
func (s *Service) CreditBV(ctx context.Context, userID string, bvAmount int64, source string) error {
	if bvAmount <= 0 {
		return fmt.Errorf("%w: creditBV amount must be positive, got %d", domain.ErrValidation, bvAmount)
	}
	return s.mutatePool(ctx, func(pool *domain.FundPool) {
		pool.TotalCTOBV += bvAmount
		pool.CarPoolMonthly += money.PercentOf(money.FromWhole(bvAmount), s.cfg.CarPoolPercent)
		pool.HousePoolMonthly += money.PercentOf(money.FromWhole(bvAmount), s.cfg.HousePoolPercent)
	}, func() error {
		return s.store.AppendBVLedgerEntry(ctx, &domain.BVLedgerEntry{
			UserID:       userID,
			SignedAmount: bvAmount,
			Source:       source,
			CreatedAt:    time.Now(),
		})
	}, func() {
		s.bus.Publish(ctx, eventbus.BVCreditedEvent{UserID: userID, SignedAmount: bvAmount, Source: source})
	})
}

// ConsumeBV appends a negative BV row; FundPool.TotalCTOBV is clamped
// at 0, never negative (spec.md §4.B).
func (s *Service) ConsumeBV(ctx context.Context, userID string, bvAmount int64, source string) error {
	if bvAmount <= 0 {
		return fmt.Errorf("%w: consumeBV amount must be positive, got %d", domain.ErrValidation, bvAmount)
	}
	return s.mutatePool(ctx, func(pool *domain.FundPool) {
		pool.TotalCTOBV -= bvAmount
		if pool.TotalCTOBV < 0 {
			pool.TotalCTOBV = 0
		}
	}, func() error {
		return s.store.AppendBVLedgerEntry(ctx, &domain.BVLedgerEntry{
			UserID:       userID,
			SignedAmount: -bvAmount,
			Source:       source,
			CreatedAt:    time.Now(),
		})
	}, func() {
		s.bus.Publish(ctx, eventbus.BVCreditedEvent{UserID: userID, SignedAmount: -bvAmount, Source: source})
	})
}

func (s *Service) mutatePool(ctx context.Context, apply func(*domain.FundPool), appendLedger func() error, notify func()) error {
	var lastErr error
	for attempt := 0; attempt < maxPoolCASAttempts; attempt++ {
		pool, err := s.store.GetFundPool(ctx)
		if err != nil {
			return err
		}
		version, err := s.store.FundPoolVersion(ctx)
		if err != nil {
			return err
		}
		apply(pool)
		if err := s.store.CompareAndSwapFundPool(ctx, pool, version); err != nil {
			if domain.IsConflict(err) {
				lastErr = err
				continue
			}
			return err
		}
		if err := appendLedger(); err != nil {
			return err
		}
		metrics.FundPoolBalance.WithLabelValues("car").Set(float64(pool.CarPoolMonthly))
		metrics.FundPoolBalance.WithLabelValues("house").Set(float64(pool.HousePoolMonthly))
		notify()
		return nil
	}
	return fmt.Errorf("%w: fund pool CAS exhausted: %v", domain.ErrRetry, lastErr)
}

// CreditPV creates a new red PV entry on side for userID/packageCode
// (spec.md §4.B). Each activation or PV-giving event creates one new
// entry; this is never a counter update.
func (s *Service) CreditPV(ctx context.Context, userID string, packageCode plan.PackageCode, pvAmount int64, side domain.Side) (*domain.PVEntry, error) {
	if pvAmount <= 0 {
		return nil, fmt.Errorf("%w: creditPV amount must be positive, got %d", domain.ErrValidation, pvAmount)
	}
	entry := &domain.PVEntry{
		OwnerUserID: userID,
		PackageCode: packageCode,
		Side:        side,
		PV:          pvAmount,
		State:       domain.PVRed,
		CreatedAt:   time.Now(),
	}
	if err := s.store.CreatePVEntry(ctx, entry); err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]interface{}{
		"user_id":      userID,
		"package_code": packageCode,
		"side":         side,
		"pv":           pvAmount,
	}).Debug("pv entry credited")
	return entry, nil
}

// Package bvdistributor fans out every BV-creating event into level
// income up the sponsor chain and a weighted royalty-pool payout among
// eligible silver-rank holders (spec.md §4.G). It subscribes to
// internal/eventbus's BVCreditedEvent rather than being called
// directly, keeping creditBV (internal/bvledger) decoupled from its
// downstream consumers — grounded in the teacher's hydrate/notify
// hook style in infrastructure/service/base.go.
package bvdistributor

import (
	"context"
	"fmt"

	"github.com/r3e-network/mlm-compensation-engine/internal/config"
	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/eventbus"
	"github.com/r3e-network/mlm-compensation-engine/internal/ledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/logging"
	"github.com/r3e-network/mlm-compensation-engine/internal/metrics"
	"github.com/r3e-network/mlm-compensation-engine/internal/money"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
	"github.com/r3e-network/mlm-compensation-engine/internal/store"
)

// Service implements the BV-event fan-out plus the level-star bonus
// cycle, which is driven separately by an admin/cron trigger.
type Service struct {
	store  store.Store
	ledger *ledger.Service
	cfg    *config.Config
	log    *logging.Logger
}

// New constructs a bvdistributor Service and subscribes its fan-out
// handler to bus.
func New(s store.Store, l *ledger.Service, bus *eventbus.Bus, cfg *config.Config) *Service {
	svc := &Service{store: s, ledger: l, cfg: cfg, log: logging.Default()}
	eventbus.Subscribe(bus, svc.onBVCredited)
	return svc
}

func (s *Service) onBVCredited(ctx context.Context, e eventbus.BVCreditedEvent) error {
	if e.SignedAmount <= 0 {
		// consumeBV events do not fan out (spec.md §4.G: "On any
		// BV-creating event" — a negative reversal is not BV-creating).
		return nil
	}
	if err := s.creditLevelIncome(ctx, e.UserID, e.SignedAmount); err != nil {
		return err
	}
	return s.distributeRoyaltyPool(ctx, e.SignedAmount)
}

// creditLevelIncome walks the sponsor chain (not the placement
// chain) of the BV-originating user and credits plan.LevelIncomePercent
// of bvAmount to each of the first cfg.LevelCount sponsors found
// (spec.md §4.G).
func (s *Service) creditLevelIncome(ctx context.Context, userID string, bvAmount int64) error {
	sponsors, err := s.store.SponsorChain(ctx, userID, s.cfg.LevelCount)
	if err != nil {
		return err
	}
	amount := money.PercentOf(money.FromWhole(bvAmount), plan.LevelIncomePercent)
	if amount <= 0 {
		return nil
	}
	for level, sponsorID := range sponsors {
		if _, err := s.ledger.Credit(ctx, sponsorID, amount, domain.CategoryLevel, nil,
			fmt.Sprintf("level %d income", level+1)); err != nil {
			return err
		}
	}
	return nil
}

// distributeRoyaltyPool implements the star-cap-then-rank-table
// royalty payout (spec.md §4.G): eligible users are prioritized
// ascending by totalRoyaltyReceived, each gets a desired share scaled
// down proportionally if the sum would exceed the available pool.
func (s *Service) distributeRoyaltyPool(ctx context.Context, bvAmount int64) error {
	pool := money.PercentOf(money.FromWhole(bvAmount), s.cfg.RoyaltyPoolPercent)
	if pool <= 0 {
		return nil
	}

	eligible, err := s.store.ListActiveSilverHolders(ctx)
	if err != nil {
		return err
	}
	if len(eligible) == 0 {
		return nil
	}

	desired := make([]int64, len(eligible))
	var totalDesired int64
	for i, u := range eligible {
		rate := plan.RoyaltyPercent(u.TotalRoyaltyReceived, u.CurrentRankIndex(plan.Silver))
		desired[i] = money.PercentOf(money.FromWhole(bvAmount), rate)
		totalDesired += desired[i]
	}

	scale := 1.0
	if totalDesired > pool {
		scale = float64(pool) / float64(totalDesired)
	}

	var totalPaid int64
	for i, u := range eligible {
		paid := money.Round(float64(desired[i]) * scale)
		if paid <= 0 {
			continue
		}
		if _, err := s.ledger.Credit(ctx, u.ID, paid, domain.CategoryRoyalty, nil, "royalty pool share"); err != nil {
			return err
		}
		if err := s.store.AppendRoyaltyLog(ctx, &domain.RoyaltyLogEntry{
			UserID:      u.ID,
			CTOBVAmount: bvAmount,
			Rate:        plan.RoyaltyPercent(u.TotalRoyaltyReceived, u.CurrentRankIndex(plan.Silver)),
			Desired:     desired[i],
			Paid:        paid,
		}); err != nil {
			return err
		}
		// TotalRoyaltyReceived tracks the star-cap threshold in whole
		// units (spec.md §6's CapPhaseCeiling=35 INR); paid is in
		// ledger sub-units, so it is rescaled down before accumulating.
		u.TotalRoyaltyReceived += float64(paid) / float64(money.Scale)
		if err := s.store.UpdateUser(ctx, u); err != nil {
			return err
		}
		totalPaid += paid
		metrics.RoyaltyPaidTotal.WithLabelValues("distributed").Add(float64(paid))
	}

	return s.deductDistributedFromPool(ctx, totalPaid)
}

func (s *Service) deductDistributedFromPool(ctx context.Context, totalPaid int64) error {
	if totalPaid <= 0 {
		return nil
	}
	const maxAttempts = 8
	for attempt := 0; attempt < maxAttempts; attempt++ {
		poolRow, err := s.store.GetFundPool(ctx)
		if err != nil {
			return err
		}
		version, err := s.store.FundPoolVersion(ctx)
		if err != nil {
			return err
		}
		poolRow.TotalCTOBV -= totalPaid
		if poolRow.TotalCTOBV < 0 {
			poolRow.TotalCTOBV = 0
		}
		if err := s.store.CompareAndSwapFundPool(ctx, poolRow, version); err != nil {
			if domain.IsConflict(err) {
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: fund pool CAS exhausted deducting royalty payout", domain.ErrRetry)
}

// RunLevelStarBonusCycle evaluates the level-star bonus for userID
// against cycleCTOBV. Unlike level income and the royalty pool, this
// is not triggered per BV event — it runs on an admin or cron cycle
// (spec.md §4.G).
func (s *Service) RunLevelStarBonusCycle(ctx context.Context, userID string, cycleCTOBV int64) error {
	level1, err := s.store.DirectSponsoreeCount(ctx, userID)
	if err != nil {
		return err
	}
	level2, err := s.store.DownlineCountAtDepth(ctx, userID, 2)
	if err != nil {
		return err
	}
	level3, err := s.store.DownlineCountAtDepth(ctx, userID, 3)
	if err != nil {
		return err
	}

	for _, threshold := range plan.LevelStarThresholds {
		var count int
		switch threshold.Level {
		case 1:
			count = level1
		case 2:
			count = level2
		case 3:
			count = level3
		}
		if count < threshold.RequiredDirects {
			continue
		}
		amount := money.PercentOf(money.FromWhole(cycleCTOBV), threshold.CTOBVPercent)
		if amount <= 0 {
			continue
		}
		if _, err := s.ledger.Credit(ctx, userID, amount, domain.CategoryLevel, nil,
			fmt.Sprintf("level-star bonus level %d", threshold.Level)); err != nil {
			return err
		}
	}
	return nil
}

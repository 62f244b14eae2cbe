// Package binaryengine is the core per-session matching algorithm
// (spec.md §4.E): for each package in a fixed processing order, it
// discovers users with a red PV entry on each side, flips the
// earliest-FIFO pair to green, credits pair income, and hands the pair
// off to the rank engine. Grounded in the teacher's automation service
// loop (services/automation/automation_service.go), which drives the
// same "idempotent sentinel, iterate candidates, per-candidate short
// transaction, continue on per-candidate failure" shape.
package binaryengine

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/ledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/logging"
	"github.com/r3e-network/mlm-compensation-engine/internal/metrics"
	"github.com/r3e-network/mlm-compensation-engine/internal/money"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
	"github.com/r3e-network/mlm-compensation-engine/internal/rankengine"
	"github.com/r3e-network/mlm-compensation-engine/internal/store"
)

// Service runs one scheduled session across all packages.
type Service struct {
	store      store.Store
	ledger     *ledger.Service
	rankEngine *rankengine.Service
	log        *logging.Logger
}

// New constructs a binaryengine Service.
func New(s store.Store, l *ledger.Service, r *rankengine.Service) *Service {
	return &Service{store: s, ledger: l, rankEngine: r, log: logging.Default()}
}

// Report summarizes one RunSession call.
type Report struct {
	AlreadyProcessed bool
	PairsMatched     int
	Errors           []error
}

// RunSession executes the binary engine for (dateKey, sessionIndex).
// It is idempotent: a second call for the same key returns
// AlreadyProcessed=true and does no further work (spec.md §4.E).
func (s *Service) RunSession(ctx context.Context, dateKey string, sessionIndex int) (Report, error) {
	run := &domain.SessionRun{
		DateKey:      dateKey,
		SessionIndex: sessionIndex,
		StartedAt:    time.Now(),
	}
	if err := s.store.InsertSessionRun(ctx, run); err != nil {
		if domain.IsAlreadyProcessed(err) {
			return Report{AlreadyProcessed: true}, nil
		}
		return Report{}, err
	}

	started := time.Now()
	var report Report
	var multi *multierror.Error

	for _, pkg := range plan.ProcessingOrder {
		matched, errs := s.processPackage(ctx, dateKey, sessionIndex, pkg)
		report.PairsMatched += matched
		for _, e := range errs {
			multi = multierror.Append(multi, e)
		}
	}

	if err := s.store.FinalizeSessionRun(ctx, dateKey, sessionIndex, time.Now()); err != nil {
		multi = multierror.Append(multi, err)
	}

	metrics.SessionDuration.WithLabelValues(sessionIndexLabel(sessionIndex)).Observe(time.Since(started).Seconds())

	if multi != nil {
		report.Errors = multi.Errors
	}
	return report, nil
}

// processPackage matches at most package.CapPerSession pairs per
// candidate user for pkg, continuing past any single user's failure
// (spec.md §4.E "Failure semantics").
func (s *Service) processPackage(ctx context.Context, dateKey string, sessionIndex int, pkg plan.PackageCode) (int, []error) {
	pkgPlan, err := plan.LookupPackage(pkg)
	if err != nil {
		return 0, []error{err}
	}

	candidates, err := s.store.CandidateUsers(ctx, pkg)
	if err != nil {
		return 0, []error{err}
	}

	matched := 0
	var errs []error
	for _, userID := range candidates {
		ok, err := s.matchOnePair(ctx, dateKey, sessionIndex, userID, pkg, pkgPlan)
		if err != nil {
			errs = append(errs, err)
			s.log.WithError(err).WithFields(map[string]interface{}{
				"user_id":      userID,
				"package_code": pkg,
			}).Error("pair match failed, continuing to next candidate")
			continue
		}
		if ok {
			matched++
		}
	}
	return matched, errs
}

// matchOnePair attempts to flip one pair for userID/pkg, subject to
// the per-session cap. It returns ok=false (no error) when the user
// should simply be skipped this round (wrong active package, cap
// reached, lost a reservation race).
func (s *Service) matchOnePair(ctx context.Context, dateKey string, sessionIndex int, userID string, pkg plan.PackageCode, pkgPlan plan.Package) (bool, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if !user.HasActivePackage(pkg) {
		return false, nil
	}

	existing, err := s.store.CountProcessedPairs(ctx, dateKey, sessionIndex, userID, pkg)
	if err != nil {
		return false, err
	}
	if existing >= pkgPlan.CapPerSession {
		return false, nil
	}

	left, err := s.store.EarliestRed(ctx, userID, pkg, domain.SideLeft)
	if err != nil {
		if domain.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	right, err := s.store.EarliestRed(ctx, userID, pkg, domain.SideRight)
	if err != nil {
		if domain.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	token := uuid.NewString()
	if err := s.store.ReserveForMatch(ctx, left.ID, token); err != nil {
		if domain.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	if err := s.store.ReserveForMatch(ctx, right.ID, token); err != nil {
		_ = s.store.ReleaseReservation(ctx, left.ID, token)
		if domain.IsConflict(err) {
			return false, nil
		}
		return false, err
	}

	matchedAt := time.Now()
	if err := s.store.FlipToGreen(ctx, left.ID, right.ID, sessionIndex, matchedAt); err != nil {
		_ = s.store.ReleaseReservation(ctx, left.ID, token)
		_ = s.store.ReleaseReservation(ctx, right.ID, token)
		return false, err
	}

	pairIncome := money.FromWhole(pkgPlan.PairIncome)
	refs := []string{left.ID, right.ID}
	if _, err := s.ledger.Credit(ctx, userID, pairIncome, domain.CategoryBinary, refs, "binary pair match"); err != nil {
		return false, err
	}

	pair := domain.ProcessedPair{
		UserID:       userID,
		PackageCode:  pkg,
		LeftEntryID:  left.ID,
		RightEntryID: right.ID,
		Amount:       pairIncome,
		CreditedAt:   matchedAt,
	}
	if err := s.store.AppendProcessedPair(ctx, dateKey, sessionIndex, pair); err != nil {
		return false, err
	}
	metrics.PairsMatchedTotal.WithLabelValues(string(pkg)).Inc()

	if err := s.rankEngine.OnPairPaid(ctx, userID, pkg); err != nil {
		return false, err
	}

	if pkg == plan.Silver {
		if err := s.createUnlockPendingIncome(ctx, userID); err != nil {
			return false, err
		}
	}

	return true, nil
}

// createUnlockPendingIncome implements the cross-package "silver pair
// unlocks gold/ruby" rule (spec.md §4.E): every matched silver pair
// entitles the user to gold.pairIncome and ruby.pairIncome once they
// own those packages, materialized later by internal/activation.
func (s *Service) createUnlockPendingIncome(ctx context.Context, userID string) error {
	for _, pkg := range []plan.PackageCode{plan.Gold, plan.Ruby} {
		pkgPlan, err := plan.LookupPackage(pkg)
		if err != nil {
			return err
		}
		if err := s.store.CreatePendingIncome(ctx, &domain.PendingIncome{
			UserID:      userID,
			PackageCode: pkg,
			Amount:      money.FromWhole(pkgPlan.PairIncome),
			CreatedAt:   time.Now(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func sessionIndexLabel(sessionIndex int) string {
	return strconv.Itoa(sessionIndex)
}

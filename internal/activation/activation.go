// Package activation implements the package-activation transaction
// (spec.md §4.D): consumes an EPIN or payment reference, places PV on
// the user's leg, credits activation BV, and notifies the BV
// distributor. Grounded in the teacher's gasbank topup flow
// (services/gasbank/topup.go), which is the closest teacher analogue
// to "consume a token, then mutate a balance, all in one unit."
package activation

import (
	"context"
	"fmt"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/bvledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/eventbus"
	"github.com/r3e-network/mlm-compensation-engine/internal/ledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/logging"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
	"github.com/r3e-network/mlm-compensation-engine/internal/store"
)

// Request is the input to Activate (spec.md §4.D).
type Request struct {
	UserID      string
	EPINCode    string // optional
	PaymentRef  string // optional, required if EPINCode is empty
	PackageCode plan.PackageCode
}

// Service implements the activation transaction.
type Service struct {
	store    store.Store
	bvLedger *bvledger.Service
	ledger   *ledger.Service
	bus      *eventbus.Bus
	log      *logging.Logger
}

// New constructs an activation Service.
func New(s store.Store, bv *bvledger.Service, l *ledger.Service, bus *eventbus.Bus) *Service {
	return &Service{store: s, bvLedger: bv, ledger: l, bus: bus, log: logging.Default()}
}

// Activate runs the 8-step activation transaction described in
// spec.md §4.D. Failure at any step leaves no partial EPIN consumption
// or user-package mutation behind (the memory store's CAS primitives
// and the Postgres store's real transaction both guarantee this; see
// internal/txrunner).
func (s *Service) Activate(ctx context.Context, req Request) error {
	pkg, err := plan.LookupPackage(req.PackageCode)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrUnknownPackage, req.PackageCode)
	}

	if req.EPINCode != "" {
		if err := s.consumeEPIN(ctx, req.EPINCode, req.UserID); err != nil {
			return err
		}
	} else if req.PaymentRef == "" {
		return domain.ErrPaymentRequired
	}

	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		return err
	}
	if user.HasActivePackage(req.PackageCode) {
		return fmt.Errorf("%w: user %s already owns %s", domain.ErrAlreadyProcessed, req.UserID, req.PackageCode)
	}

	user.ActivePackage = req.PackageCode
	user.PackageActivatedAt = time.Now()
	if _, ok := user.RankIndex[req.PackageCode]; !ok {
		user.RankIndex[req.PackageCode] = -1
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return err
	}

	if _, err := s.bvLedger.CreditPV(ctx, req.UserID, req.PackageCode, pkg.PV, user.PlacementSide); err != nil {
		return err
	}

	if pkg.BV > 0 {
		if err := s.bvLedger.CreditBV(ctx, req.UserID, pkg.BV, "activation"); err != nil {
			return err
		}
	}

	if err := s.materializePendingIncome(ctx, req.UserID, req.PackageCode); err != nil {
		return err
	}

	s.bus.Publish(ctx, eventbus.ActivationEvent{
		UserID:      req.UserID,
		PackageCode: string(req.PackageCode),
		EPINCode:    req.EPINCode,
	})

	s.log.WithFields(map[string]interface{}{
		"user_id":      req.UserID,
		"package_code": req.PackageCode,
	}).Info("package activated")
	return nil
}

func (s *Service) consumeEPIN(ctx context.Context, code, userID string) error {
	epin, err := s.store.GetEPIN(ctx, code)
	if err != nil {
		return err
	}
	if epin.IsUsed {
		return fmt.Errorf("%w: epin %s already used", domain.ErrAlreadyProcessed, code)
	}
	if err := s.store.ReserveEPIN(ctx, code, userID); err != nil {
		return err
	}
	return s.store.ConsumeEPIN(ctx, code, userID, time.Now())
}

// materializePendingIncome credits any unmaterialized PendingIncome
// rows for packageCode (created earlier by a silver pair unlock,
// spec.md §4.E) now that the user owns the target package.
func (s *Service) materializePendingIncome(ctx context.Context, userID string, packageCode plan.PackageCode) error {
	pendings, err := s.store.UnmaterializedPendingIncome(ctx, userID, packageCode)
	if err != nil {
		return err
	}
	for _, p := range pendings {
		refs := []string{p.ID}
		if _, err := s.ledger.Credit(ctx, userID, p.Amount, domain.CategoryBinary, refs, "silver pair unlock materialized"); err != nil {
			return err
		}
		if err := s.store.MarkPendingIncomeMaterialized(ctx, p.ID); err != nil {
			return err
		}
	}
	return nil
}

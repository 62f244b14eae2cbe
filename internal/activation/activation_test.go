package activation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/bvledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/config"
	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/eventbus"
	"github.com/r3e-network/mlm-compensation-engine/internal/ledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
	"github.com/r3e-network/mlm-compensation-engine/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store, *eventbus.Bus) {
	t.Helper()
	s := memory.New()
	bus := eventbus.New()
	cfg := &config.Config{CarPoolPercent: 2.0, HousePoolPercent: 2.0, RoyaltyPoolPercent: 2.0}
	bv := bvledger.New(s, bus, cfg)
	l := ledger.New(s)
	return New(s, bv, l, bus), s, bus
}

func TestActivateWithEPIN(t *testing.T) {
	svc, s, bus := newTestService(t)
	ctx := context.Background()

	user := domain.NewUser("u1", "")
	user.PlacementSide = domain.SideLeft
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateEPINs(ctx, []*domain.EPIN{{Code: "E1", PackageCode: plan.Silver, CreatedAt: time.Now()}}); err != nil {
		t.Fatalf("CreateEPINs: %v", err)
	}

	var activated eventbus.ActivationEvent
	eventbus.Subscribe(bus, func(ctx context.Context, e eventbus.ActivationEvent) error {
		activated = e
		return nil
	})

	if err := svc.Activate(ctx, Request{UserID: "u1", EPINCode: "E1", PackageCode: plan.Silver}); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	got, _ := s.GetUser(ctx, "u1")
	if got.ActivePackage != plan.Silver {
		t.Fatalf("expected active package silver, got %s", got.ActivePackage)
	}
	epin, _ := s.GetEPIN(ctx, "E1")
	if !epin.IsUsed || epin.UsedByUserID != "u1" {
		t.Fatalf("expected epin consumed by u1, got %+v", epin)
	}
	if activated.UserID != "u1" {
		t.Fatalf("expected ActivationEvent published, got %+v", activated)
	}

	pool, _ := s.GetFundPool(ctx)
	if pool.TotalCTOBV != plan.Packages[plan.Silver].BV {
		t.Fatalf("expected BV credited at activation, got %d", pool.TotalCTOBV)
	}
}

func TestActivateWithoutEPINOrPaymentFails(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()
	_ = s.CreateUser(ctx, domain.NewUser("u1", ""))

	err := svc.Activate(ctx, Request{UserID: "u1", PackageCode: plan.Silver})
	if !errors.Is(err, domain.ErrPaymentRequired) {
		t.Fatalf("expected ErrPaymentRequired, got %v", err)
	}
}

func TestActivateUnknownPackage(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()
	_ = s.CreateUser(ctx, domain.NewUser("u1", ""))

	err := svc.Activate(ctx, Request{UserID: "u1", PaymentRef: "pay-1", PackageCode: "diamond"})
	if !errors.Is(err, domain.ErrUnknownPackage) {
		t.Fatalf("expected ErrUnknownPackage, got %v", err)
	}
}

func TestActivateAlreadyUsedEPINFails(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()
	_ = s.CreateUser(ctx, domain.NewUser("u1", ""))
	_ = s.CreateUser(ctx, domain.NewUser("u2", ""))
	_ = s.CreateEPINs(ctx, []*domain.EPIN{{Code: "E1", PackageCode: plan.Silver, CreatedAt: time.Now()}})

	if err := svc.Activate(ctx, Request{UserID: "u1", EPINCode: "E1", PackageCode: plan.Silver}); err != nil {
		t.Fatalf("first activation: %v", err)
	}
	err := svc.Activate(ctx, Request{UserID: "u2", EPINCode: "E1", PackageCode: plan.Silver})
	if !domain.IsAlreadyProcessed(err) {
		t.Fatalf("expected already-processed reusing a consumed epin, got %v", err)
	}
}

func TestActivateMaterializesPendingIncome(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()
	user := domain.NewUser("u1", "")
	user.PlacementSide = domain.SideLeft
	_ = s.CreateUser(ctx, user)

	if err := s.CreatePendingIncome(ctx, &domain.PendingIncome{UserID: "u1", PackageCode: plan.Gold, Amount: 50, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreatePendingIncome: %v", err)
	}

	if err := svc.Activate(ctx, Request{UserID: "u1", PaymentRef: "pay-1", PackageCode: plan.Gold}); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	l := ledger.New(s)
	bal, err := l.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Balance != 50 {
		t.Fatalf("expected pending income materialized into balance, got %d", bal.Balance)
	}
}

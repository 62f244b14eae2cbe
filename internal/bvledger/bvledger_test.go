package bvledger

import (
	"context"
	"testing"

	"github.com/r3e-network/mlm-compensation-engine/internal/config"
	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/eventbus"
	"github.com/r3e-network/mlm-compensation-engine/internal/money"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
	"github.com/r3e-network/mlm-compensation-engine/internal/store/memory"
)

func testConfig() *config.Config {
	return &config.Config{CarPoolPercent: 2.0, HousePoolPercent: 2.0, RoyaltyPoolPercent: 2.0}
}

func TestCreditBVAllocatesPools(t *testing.T) {
	s := memory.New()
	bus := eventbus.New()
	svc := New(s, bus, testConfig())
	ctx := context.Background()

	var got eventbus.BVCreditedEvent
	eventbus.Subscribe(bus, func(ctx context.Context, e eventbus.BVCreditedEvent) error {
		got = e
		return nil
	})

	if err := svc.CreditBV(ctx, "u1", 1000, "binary"); err != nil {
		t.Fatalf("CreditBV: %v", err)
	}

	pool, err := s.GetFundPool(ctx)
	if err != nil {
		t.Fatalf("GetFundPool: %v", err)
	}
	if pool.TotalCTOBV != 1000 {
		t.Fatalf("expected totalCTOBV 1000, got %d", pool.TotalCTOBV)
	}
	wantPool := money.PercentOf(money.FromWhole(1000), 2.0)
	if pool.CarPoolMonthly != wantPool || pool.HousePoolMonthly != wantPool {
		t.Fatalf("expected 2%% pool allocations of %d, got car=%d house=%d", wantPool, pool.CarPoolMonthly, pool.HousePoolMonthly)
	}
	if got.UserID != "u1" || got.SignedAmount != 1000 {
		t.Fatalf("expected event published, got %+v", got)
	}
}

func TestConsumeBVClampsAtZero(t *testing.T) {
	s := memory.New()
	bus := eventbus.New()
	svc := New(s, bus, testConfig())
	ctx := context.Background()

	if err := svc.CreditBV(ctx, "u1", 100, "binary"); err != nil {
		t.Fatalf("CreditBV: %v", err)
	}
	if err := svc.ConsumeBV(ctx, "u1", 500, "reversal"); err != nil {
		t.Fatalf("ConsumeBV: %v", err)
	}
	pool, _ := s.GetFundPool(ctx)
	if pool.TotalCTOBV != 0 {
		t.Fatalf("expected totalCTOBV clamped to 0, got %d", pool.TotalCTOBV)
	}
}

func TestCreditPVCreatesRedEntry(t *testing.T) {
	s := memory.New()
	bus := eventbus.New()
	svc := New(s, bus, testConfig())
	ctx := context.Background()

	entry, err := svc.CreditPV(ctx, "u1", plan.Silver, 35, domain.SideLeft)
	if err != nil {
		t.Fatalf("CreditPV: %v", err)
	}
	if entry.State != domain.PVRed || entry.Side != domain.SideLeft || entry.PV != 35 {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	candidates, err := s.CandidateUsers(ctx, plan.Silver)
	if err != nil {
		t.Fatalf("CandidateUsers: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no matched candidates with only one leg filled, got %v", candidates)
	}
}

func TestCreditBVRejectsNonPositive(t *testing.T) {
	s := memory.New()
	bus := eventbus.New()
	svc := New(s, bus, testConfig())
	if err := svc.CreditBV(context.Background(), "u1", 0, "binary"); err == nil {
		t.Fatalf("expected validation error for zero bv")
	}
}

package franchise

import (
	"context"
	"testing"

	"github.com/r3e-network/mlm-compensation-engine/internal/bvledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/config"
	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/eventbus"
	"github.com/r3e-network/mlm-compensation-engine/internal/ledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/money"
	"github.com/r3e-network/mlm-compensation-engine/internal/store/memory"
)

func setup(t *testing.T) (*Service, *memory.Store, *ledger.Service) {
	t.Helper()
	s := memory.New()
	bus := eventbus.New()
	l := ledger.New(s)
	cfg := &config.Config{CarPoolPercent: 2.0, HousePoolPercent: 2.0, RoyaltyPoolPercent: 2.0}
	bv := bvledger.New(s, bus, cfg)
	return New(s, l, bv, bus), s, l
}

func seedProduct(s *memory.Store, id, ownerUserID string, salePrice, bvEquivalent, stock int64) {
	s.SeedFranchiseProduct(&domain.FranchiseProduct{
		ID:           id,
		OwnerUserID:  ownerUserID,
		SalePrice:    salePrice,
		BVEquivalent: bvEquivalent,
		Stock:        stock,
	})
}

func TestProcessSaleSplitsCommissions(t *testing.T) {
	svc, s, l := setup(t)
	ctx := context.Background()

	_ = s.CreateUser(ctx, domain.NewUser("holder", ""))
	_ = s.CreateUser(ctx, domain.NewUser("referrer", ""))
	_ = s.CreateUser(ctx, domain.NewUser("buyer", ""))
	seedProduct(s, "p1", "holder", 1000, 500, 10)

	sale, err := svc.ProcessSale(ctx, SaleRequest{ProductID: "p1", BuyerUserID: "buyer", ReferrerUserID: "referrer", Qty: 1})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}
	wantHolder := money.PercentOf(money.FromWhole(1000), 5.0)  // 5% of a sale price of 1000
	wantReferrer := money.PercentOf(money.FromWhole(500), 1.0) // 1% of a BV equivalent of 500
	if sale.HolderCommission != wantHolder {
		t.Fatalf("expected holder commission %d, got %d", wantHolder, sale.HolderCommission)
	}
	if sale.ReferrerIncome != wantReferrer {
		t.Fatalf("expected referrer income %d, got %d", wantReferrer, sale.ReferrerIncome)
	}

	holderBal, _ := l.GetBalance(ctx, "holder")
	referrerBal, _ := l.GetBalance(ctx, "referrer")
	if holderBal.Balance != wantHolder {
		t.Fatalf("expected holder balance %d, got %d", wantHolder, holderBal.Balance)
	}
	if referrerBal.Balance != wantReferrer {
		t.Fatalf("expected referrer balance %d, got %d", wantReferrer, referrerBal.Balance)
	}
}

func TestProcessSaleInsufficientStock(t *testing.T) {
	svc, s, _ := setup(t)
	ctx := context.Background()
	_ = s.CreateUser(ctx, domain.NewUser("buyer", ""))
	seedProduct(s, "p1", "holder", 1000, 500, 1)

	_, err := svc.ProcessSale(ctx, SaleRequest{ProductID: "p1", BuyerUserID: "buyer", Qty: 5})
	if err == nil {
		t.Fatalf("expected insufficient stock error")
	}
}

func TestProcessSaleCreditsBuyerBV(t *testing.T) {
	svc, s, _ := setup(t)
	ctx := context.Background()
	_ = s.CreateUser(ctx, domain.NewUser("buyer", ""))
	seedProduct(s, "p1", "holder", 1000, 500, 10)

	if _, err := svc.ProcessSale(ctx, SaleRequest{ProductID: "p1", BuyerUserID: "buyer", Qty: 2}); err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}

	pool, _ := s.GetFundPool(ctx)
	if pool.TotalCTOBV != 1000 { // 2 * 500 BVEquivalent
		t.Fatalf("expected totalCTOBV 1000, got %d", pool.TotalCTOBV)
	}
}

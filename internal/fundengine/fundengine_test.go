package fundengine

import (
	"context"
	"testing"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/ledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
	"github.com/r3e-network/mlm-compensation-engine/internal/store/memory"
)

func seedFundPool(t *testing.T, s *memory.Store, carPool, housePool int64) {
	t.Helper()
	ctx := context.Background()
	pool, err := s.GetFundPool(ctx)
	if err != nil {
		t.Fatalf("GetFundPool: %v", err)
	}
	version, err := s.FundPoolVersion(ctx)
	if err != nil {
		t.Fatalf("FundPoolVersion: %v", err)
	}
	pool.CarPoolMonthly = carPool
	pool.HousePoolMonthly = housePool
	if err := s.CompareAndSwapFundPool(ctx, pool, version); err != nil {
		t.Fatalf("CompareAndSwapFundPool: %v", err)
	}
}

func rubyStarUser(id string) *domain.User {
	u := domain.NewUser(id, "")
	u.RankIndex[plan.Silver] = plan.CarPoolEligibleRankIndex
	return u
}

func diamondStarUser(id string) *domain.User {
	u := domain.NewUser(id, "")
	u.RankIndex[plan.Silver] = plan.HousePoolEligibleRankIndex
	return u
}

func TestDistributeCarFundSharesEquallyAmongEligible(t *testing.T) {
	s := memory.New()
	l := ledger.New(s)
	ctx := context.Background()

	_ = s.CreateUser(ctx, rubyStarUser("ruby1"))
	_ = s.CreateUser(ctx, rubyStarUser("ruby2"))
	_ = s.CreateUser(ctx, domain.NewUser("unranked", ""))
	seedFundPool(t, s, 1000, 0)

	svc := New(s, l)
	report, err := svc.DistributeCarFund(ctx, "2026-07")
	if err != nil {
		t.Fatalf("DistributeCarFund: %v", err)
	}
	if report.RecipientCount != 2 {
		t.Fatalf("expected 2 recipients, got %d", report.RecipientCount)
	}
	if report.TotalPaid != 1000 {
		t.Fatalf("expected total paid 1000, got %d", report.TotalPaid)
	}

	bal1, _ := l.GetBalance(ctx, "ruby1")
	bal2, _ := l.GetBalance(ctx, "ruby2")
	if bal1.Balance != 500 || bal2.Balance != 500 {
		t.Fatalf("expected equal 500 shares, got ruby1=%d ruby2=%d", bal1.Balance, bal2.Balance)
	}

	unrankedBal, _ := l.GetBalance(ctx, "unranked")
	if unrankedBal.Balance != 0 {
		t.Fatalf("expected unranked user to receive nothing, got %d", unrankedBal.Balance)
	}

	pool, _ := s.GetFundPool(ctx)
	if pool.CarPoolMonthly != 0 {
		t.Fatalf("expected CarPoolMonthly reset to 0, got %d", pool.CarPoolMonthly)
	}
	if len(pool.History) != 1 || pool.History[0].Kind != "POOL_RESET" {
		t.Fatalf("expected a POOL_RESET history entry, got %+v", pool.History)
	}
}

func TestDistributeHouseFundRequiresDiamondStar(t *testing.T) {
	s := memory.New()
	l := ledger.New(s)
	ctx := context.Background()

	_ = s.CreateUser(ctx, rubyStarUser("rubyOnly"))
	_ = s.CreateUser(ctx, diamondStarUser("diamond1"))
	seedFundPool(t, s, 0, 400)

	svc := New(s, l)
	report, err := svc.DistributeHouseFund(ctx, "2026-07")
	if err != nil {
		t.Fatalf("DistributeHouseFund: %v", err)
	}
	if report.RecipientCount != 1 {
		t.Fatalf("expected exactly 1 eligible (diamond-star) recipient, got %d", report.RecipientCount)
	}

	rubyBal, _ := l.GetBalance(ctx, "rubyOnly")
	if rubyBal.Balance != 0 {
		t.Fatalf("ruby-star-only user must not receive house fund, got %d", rubyBal.Balance)
	}
	diamondBal, _ := l.GetBalance(ctx, "diamond1")
	if diamondBal.Balance != 400 {
		t.Fatalf("expected diamond1 to receive full 400, got %d", diamondBal.Balance)
	}
}

func TestDistributeCarFundNoopWhenPoolEmpty(t *testing.T) {
	s := memory.New()
	l := ledger.New(s)
	ctx := context.Background()
	_ = s.CreateUser(ctx, rubyStarUser("ruby1"))

	svc := New(s, l)
	report, err := svc.DistributeCarFund(ctx, "2026-07")
	if err != nil {
		t.Fatalf("DistributeCarFund: %v", err)
	}
	if report.RecipientCount != 0 || report.TotalPaid != 0 {
		t.Fatalf("expected no-op report when pool is empty, got %+v", report)
	}
}

func TestAllocateTravelFundSplitsSixtyForty(t *testing.T) {
	s := memory.New()
	l := ledger.New(s)
	ctx := context.Background()

	svc := New(s, l)
	allocation, err := svc.AllocateTravelFund(ctx, 2026, 100000)
	if err != nil {
		t.Fatalf("AllocateTravelFund: %v", err)
	}
	if allocation.NationalAmount != 60000 {
		t.Fatalf("expected national 60000, got %d", allocation.NationalAmount)
	}
	if allocation.InternationalAmount != 40000 {
		t.Fatalf("expected international 40000, got %d", allocation.InternationalAmount)
	}

	pool, _ := s.GetFundPool(ctx)
	if pool.TravelFund != 100000 {
		t.Fatalf("expected TravelFund accumulated to 100000, got %d", pool.TravelFund)
	}
	if len(pool.TravelAllocations) != 1 {
		t.Fatalf("expected one recorded travel allocation, got %d", len(pool.TravelAllocations))
	}
}

func TestTravelFundEligibilityByRank(t *testing.T) {
	s := memory.New()
	l := ledger.New(s)
	ctx := context.Background()

	_ = s.CreateUser(ctx, rubyStarUser("ruby1"))
	_ = s.CreateUser(ctx, diamondStarUser("diamond1"))
	_ = s.CreateUser(ctx, domain.NewUser("unranked", ""))

	svc := New(s, l)
	national, err := svc.NationalEligible(ctx)
	if err != nil {
		t.Fatalf("NationalEligible: %v", err)
	}
	if len(national) != 2 {
		t.Fatalf("expected both ruby and diamond star users eligible nationally, got %d", len(national))
	}

	international, err := svc.InternationalEligible(ctx)
	if err != nil {
		t.Fatalf("InternationalEligible: %v", err)
	}
	if len(international) != 1 || international[0].ID != "diamond1" {
		t.Fatalf("expected only diamond1 eligible internationally, got %+v", international)
	}
}

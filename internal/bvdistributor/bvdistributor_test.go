package bvdistributor

import (
	"context"
	"testing"

	"github.com/r3e-network/mlm-compensation-engine/internal/config"
	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/eventbus"
	"github.com/r3e-network/mlm-compensation-engine/internal/ledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/money"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
	"github.com/r3e-network/mlm-compensation-engine/internal/store/memory"
)

func testConfig() *config.Config {
	return &config.Config{CarPoolPercent: 2.0, HousePoolPercent: 2.0, RoyaltyPoolPercent: 2.0, LevelCount: 10}
}

func TestLevelIncomeCreditsSponsorChain(t *testing.T) {
	s := memory.New()
	bus := eventbus.New()
	l := ledger.New(s)
	ctx := context.Background()

	_ = s.CreateUser(ctx, domain.NewUser("grandparent", ""))
	_ = s.CreateUser(ctx, domain.NewUser("parent", "grandparent"))
	_ = s.CreateUser(ctx, domain.NewUser("child", "parent"))

	New(s, l, bus, testConfig())

	bus.Publish(ctx, eventbus.BVCreditedEvent{UserID: "child", SignedAmount: 1000, Source: "activation"})

	parentBal, _ := l.GetBalance(ctx, "parent")
	grandparentBal, _ := l.GetBalance(ctx, "grandparent")

	wantPerLevel := money.PercentOf(money.FromWhole(1000), plan.LevelIncomePercent)
	if parentBal.Balance != wantPerLevel {
		t.Fatalf("expected parent level income %d, got %d", wantPerLevel, parentBal.Balance)
	}
	if grandparentBal.Balance != wantPerLevel {
		t.Fatalf("expected grandparent level income %d, got %d", wantPerLevel, grandparentBal.Balance)
	}
}

// TestLevelIncomeMatchesGoldActivationWorkedExample pins the exact
// figures from spec.md §8 scenario S4: a gold activation (bv=155)
// with a 3-deep sponsor chain credits each sponsor 0.775, for a total
// of 2.325 — not zero, which is what a truncating int64(bv*pct/100)
// computation would produce.
func TestLevelIncomeMatchesGoldActivationWorkedExample(t *testing.T) {
	s := memory.New()
	bus := eventbus.New()
	l := ledger.New(s)
	ctx := context.Background()

	_ = s.CreateUser(ctx, domain.NewUser("s3", ""))
	_ = s.CreateUser(ctx, domain.NewUser("s2", "s3"))
	_ = s.CreateUser(ctx, domain.NewUser("s1", "s2"))
	_ = s.CreateUser(ctx, domain.NewUser("u", "s1"))

	New(s, l, bus, testConfig())

	bus.Publish(ctx, eventbus.BVCreditedEvent{UserID: "u", SignedAmount: plan.Packages[plan.Gold].BV, Source: "activation"})

	wantPerSponsor := int64(775) // 0.775 rupees, in money.Scale sub-units
	var total int64
	for _, sponsor := range []string{"s1", "s2", "s3"} {
		bal, _ := l.GetBalance(ctx, sponsor)
		if bal.Balance != wantPerSponsor {
			t.Fatalf("expected %s level income %d (0.775), got %d", sponsor, wantPerSponsor, bal.Balance)
		}
		total += bal.Balance
	}
	if want := int64(2325); total != want { // 2.325 rupees
		t.Fatalf("expected total level income %d (2.325), got %d", want, total)
	}
}

func TestRoyaltyPoolDistributesToEligibleSilverHolders(t *testing.T) {
	s := memory.New()
	bus := eventbus.New()
	l := ledger.New(s)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2"} {
		u := domain.NewUser(id, "")
		u.ActivePackage = plan.Silver
		u.RankIndex[plan.Silver] = -1
		_ = s.CreateUser(ctx, u)
	}

	New(s, l, bus, testConfig())

	bus.Publish(ctx, eventbus.BVCreditedEvent{UserID: "buyer", SignedAmount: 1000, Source: "activation"})

	bal1, _ := l.GetBalance(ctx, "r1")
	bal2, _ := l.GetBalance(ctx, "r2")
	if bal1.Balance <= 0 || bal2.Balance <= 0 {
		t.Fatalf("expected both eligible users to receive royalty, got r1=%d r2=%d", bal1.Balance, bal2.Balance)
	}
}

func TestRoyaltyPoolScalesDownWhenOversubscribed(t *testing.T) {
	s := memory.New()
	bus := eventbus.New()
	l := ledger.New(s)
	ctx := context.Background()

	// Many eligible users each wanting the 3% cap-phase rate so total
	// desired exceeds the small royaltyPoolPercent-derived pool.
	for i := 0; i < 20; i++ {
		id := "r" + string(rune('a'+i))
		u := domain.NewUser(id, "")
		u.ActivePackage = plan.Silver
		u.RankIndex[plan.Silver] = -1
		_ = s.CreateUser(ctx, u)
	}

	cfg := testConfig()
	cfg.RoyaltyPoolPercent = 0.5 // pool = bv*0.5% but desired = bv*3%*20 users
	New(s, l, bus, cfg)

	bus.Publish(ctx, eventbus.BVCreditedEvent{UserID: "buyer", SignedAmount: 10000, Source: "activation"})

	// Desired shares sum to 20 x 3% of the BV, far above the 0.5% pool,
	// so every share is scaled down and the total paid stays within it.
	royaltyPool := money.PercentOf(money.FromWhole(10000), cfg.RoyaltyPoolPercent)
	var totalPaid int64
	for i := 0; i < 20; i++ {
		bal, _ := l.GetBalance(ctx, "r"+string(rune('a'+i)))
		totalPaid += bal.Balance
	}
	if totalPaid <= 0 || totalPaid > royaltyPool {
		t.Fatalf("expected scaled royalty total in (0, %d], got %d", royaltyPool, totalPaid)
	}

	pool, _ := s.GetFundPool(ctx)
	// Royalty payout should never push totalCTOBV negative; it clamps at 0.
	if pool.TotalCTOBV < 0 {
		t.Fatalf("expected totalCTOBV clamped at 0, got %d", pool.TotalCTOBV)
	}
}

func TestNegativeBVEventDoesNotFanOut(t *testing.T) {
	s := memory.New()
	bus := eventbus.New()
	l := ledger.New(s)
	ctx := context.Background()

	_ = s.CreateUser(ctx, domain.NewUser("parent", ""))
	_ = s.CreateUser(ctx, domain.NewUser("child", "parent"))

	New(s, l, bus, testConfig())
	bus.Publish(ctx, eventbus.BVCreditedEvent{UserID: "child", SignedAmount: -500, Source: "reversal"})

	bal, _ := l.GetBalance(ctx, "parent")
	if bal.Balance != 0 {
		t.Fatalf("expected no level income for a negative (consumeBV) event, got %d", bal.Balance)
	}
}

func TestLevelStarBonusFiresIndependently(t *testing.T) {
	s := memory.New()
	bus := eventbus.New()
	l := ledger.New(s)
	ctx := context.Background()

	root := domain.NewUser("root", "")
	_ = s.CreateUser(ctx, root)
	for i := 0; i < 10; i++ {
		id := "direct" + string(rune('a'+i))
		_ = s.CreateUser(ctx, domain.NewUser(id, "root"))
	}

	svc := New(s, l, bus, testConfig())
	if err := svc.RunLevelStarBonusCycle(ctx, "root", 100000); err != nil {
		t.Fatalf("RunLevelStarBonusCycle: %v", err)
	}

	bal, _ := l.GetBalance(ctx, "root")
	want := money.PercentOf(money.FromWhole(100000), 1.0) // level1 threshold met (10 directs), 1.0%
	if bal.Balance != want {
		t.Fatalf("expected level-star bonus %d, got %d", want, bal.Balance)
	}
}

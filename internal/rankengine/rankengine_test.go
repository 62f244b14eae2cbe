package rankengine

import (
	"context"
	"testing"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/eventbus"
	"github.com/r3e-network/mlm-compensation-engine/internal/ledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/money"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
	"github.com/r3e-network/mlm-compensation-engine/internal/store/memory"
)

func TestOnPairPaidAccumulatesBeforeRankStep(t *testing.T) {
	s := memory.New()
	bus := eventbus.New()
	l := ledger.New(s)
	svc := New(s, l, bus)
	ctx := context.Background()

	user := domain.NewUser("u1", "")
	user.ActivePackage = plan.Silver
	user.RankIndex[plan.Silver] = -1
	_ = s.CreateUser(ctx, user)

	for i := 0; i < 7; i++ {
		if err := svc.OnPairPaid(ctx, "u1", plan.Silver); err != nil {
			t.Fatalf("OnPairPaid #%d: %v", i, err)
		}
	}

	got, _ := s.GetUser(ctx, "u1")
	if got.RankIndex[plan.Silver] != -1 {
		t.Fatalf("expected no rank advance before 8 pairs, got %d", got.RankIndex[plan.Silver])
	}
	if got.IncomePairs[plan.Silver] != 4 || got.CutoffPairs[plan.Silver] != 3 {
		t.Fatalf("unexpected counters: income=%d cutoff=%d", got.IncomePairs[plan.Silver], got.CutoffPairs[plan.Silver])
	}
}

func TestOnPairPaidAdvancesRankAndCreditsOnce(t *testing.T) {
	s := memory.New()
	bus := eventbus.New()
	l := ledger.New(s)
	svc := New(s, l, bus)
	ctx := context.Background()

	user := domain.NewUser("u1", "")
	user.ActivePackage = plan.Silver
	user.RankIndex[plan.Silver] = -1
	_ = s.CreateUser(ctx, user)

	var advanced eventbus.RankAdvancedEvent
	eventbus.Subscribe(bus, func(ctx context.Context, e eventbus.RankAdvancedEvent) error {
		advanced = e
		return nil
	})

	for i := 0; i < 8; i++ {
		if err := svc.OnPairPaid(ctx, "u1", plan.Silver); err != nil {
			t.Fatalf("OnPairPaid #%d: %v", i, err)
		}
	}

	got, _ := s.GetUser(ctx, "u1")
	if got.RankIndex[plan.Silver] != 0 {
		t.Fatalf("expected rank index 0 (Star) after 8 pairs, got %d", got.RankIndex[plan.Silver])
	}
	if got.IncomePairs[plan.Silver] != 0 || got.CutoffPairs[plan.Silver] != 0 {
		t.Fatalf("expected counters reset, got income=%d cutoff=%d", got.IncomePairs[plan.Silver], got.CutoffPairs[plan.Silver])
	}
	if advanced.NewRankIndex != 0 {
		t.Fatalf("expected RankAdvancedEvent with rank 0, got %+v", advanced)
	}

	bal, _ := l.GetBalance(ctx, "u1")
	wholeAmount, _ := plan.RankIncome(plan.Silver, 0)
	wantAmount := money.FromWhole(wholeAmount)
	if bal.Balance != wantAmount {
		t.Fatalf("expected rank income %d credited, got %d", wantAmount, bal.Balance)
	}
}

func TestRankIndexClampsAtCompanyStar(t *testing.T) {
	s := memory.New()
	bus := eventbus.New()
	l := ledger.New(s)
	svc := New(s, l, bus)
	ctx := context.Background()

	user := domain.NewUser("u1", "")
	user.ActivePackage = plan.Silver
	user.RankIndex[plan.Silver] = plan.MaxRankIndex
	_ = s.CreateUser(ctx, user)

	for i := 0; i < 8; i++ {
		if err := svc.OnPairPaid(ctx, "u1", plan.Silver); err != nil {
			t.Fatalf("OnPairPaid #%d: %v", i, err)
		}
	}

	got, _ := s.GetUser(ctx, "u1")
	if got.RankIndex[plan.Silver] != plan.MaxRankIndex {
		t.Fatalf("expected rank clamped at %d, got %d", plan.MaxRankIndex, got.RankIndex[plan.Silver])
	}
}

func TestRecalculateUserPromotesFromStaleCounters(t *testing.T) {
	s := memory.New()
	bus := eventbus.New()
	l := ledger.New(s)
	svc := New(s, l, bus)
	ctx := context.Background()

	user := domain.NewUser("u1", "")
	user.ActivePackage = plan.Silver
	user.RankIndex[plan.Silver] = -1
	user.IncomePairs[plan.Silver] = 4
	user.CutoffPairs[plan.Silver] = 4
	_ = s.CreateUser(ctx, user)

	if err := svc.RecalculateUser(ctx, "u1"); err != nil {
		t.Fatalf("RecalculateUser: %v", err)
	}

	got, _ := s.GetUser(ctx, "u1")
	if got.RankIndex[plan.Silver] != 0 {
		t.Fatalf("expected rank index 0 after recalculation, got %d", got.RankIndex[plan.Silver])
	}
	if got.IncomePairs[plan.Silver] != 0 || got.CutoffPairs[plan.Silver] != 0 {
		t.Fatalf("expected counters reset, got income=%d cutoff=%d", got.IncomePairs[plan.Silver], got.CutoffPairs[plan.Silver])
	}

	bal, _ := l.GetBalance(ctx, "u1")
	wholeAmount, _ := plan.RankIncome(plan.Silver, 0)
	wantAmount := money.FromWhole(wholeAmount)
	if bal.Balance != wantAmount {
		t.Fatalf("expected rank income %d credited once, got %d", wantAmount, bal.Balance)
	}

	// A second recalculation is a no-op: rank income is never double-credited.
	if err := svc.RecalculateUser(ctx, "u1"); err != nil {
		t.Fatalf("second RecalculateUser: %v", err)
	}
	bal2, _ := l.GetBalance(ctx, "u1")
	if bal2.Balance != wantAmount {
		t.Fatalf("expected balance unchanged after second recalculation, got %d want %d", bal2.Balance, wantAmount)
	}
}

package scheduler

import (
	"context"
	"testing"

	"github.com/r3e-network/mlm-compensation-engine/internal/binaryengine"
	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/eventbus"
	"github.com/r3e-network/mlm-compensation-engine/internal/fundengine"
	"github.com/r3e-network/mlm-compensation-engine/internal/ledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
	"github.com/r3e-network/mlm-compensation-engine/internal/rankengine"
	"github.com/r3e-network/mlm-compensation-engine/internal/store/memory"
)

func setup(t *testing.T) (*Scheduler, *memory.Store) {
	t.Helper()
	s := memory.New()
	l := ledger.New(s)
	bus := eventbus.New()
	rank := rankengine.New(s, l, bus)
	binEng := binaryengine.New(s, l, rank)
	fundEng := fundengine.New(s, l)

	sched, err := New(binEng, fundEng, "Asia/Kolkata")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sched, s
}

func TestNewRejectsInvalidTimezone(t *testing.T) {
	s := memory.New()
	l := ledger.New(s)
	bus := eventbus.New()
	rank := rankengine.New(s, l, bus)
	binEng := binaryengine.New(s, l, rank)
	fundEng := fundengine.New(s, l)

	if _, err := New(binEng, fundEng, "Not/A/Zone"); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestTriggerSessionNowIsIdempotent(t *testing.T) {
	sched, _ := setup(t)
	ctx := context.Background()

	report1, err := sched.TriggerSessionNow(ctx, "2026-07-30", 1)
	if err != nil {
		t.Fatalf("TriggerSessionNow: %v", err)
	}
	if report1.AlreadyProcessed {
		t.Fatalf("expected first trigger to run, got AlreadyProcessed=true")
	}

	report2, err := sched.TriggerSessionNow(ctx, "2026-07-30", 1)
	if err != nil {
		t.Fatalf("TriggerSessionNow (second call): %v", err)
	}
	if !report2.AlreadyProcessed {
		t.Fatalf("expected second trigger for the same (dateKey, sessionIndex) to be a no-op")
	}
}

func TestStartRegistersAllSessionWindowsAndMonthlyTrigger(t *testing.T) {
	sched, _ := setup(t)
	ctx := context.Background()

	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	entries := sched.cron.Entries()
	want := len(plan.SessionWindows) + 1 // 8 sessions + monthly fund trigger
	if len(entries) != want {
		t.Fatalf("expected %d registered cron entries, got %d", want, len(entries))
	}
}

func TestRunMonthlyFundsDrainsPools(t *testing.T) {
	sched, s := setup(t)
	ctx := context.Background()

	u := domain.NewUser("ruby1", "")
	u.RankIndex[plan.Silver] = plan.CarPoolEligibleRankIndex
	_ = s.CreateUser(ctx, u)

	pool, _ := s.GetFundPool(ctx)
	version, _ := s.FundPoolVersion(ctx)
	pool.CarPoolMonthly = 600
	if err := s.CompareAndSwapFundPool(ctx, pool, version); err != nil {
		t.Fatalf("seed car pool: %v", err)
	}

	sched.runMonthlyFunds(ctx)

	finalPool, _ := s.GetFundPool(ctx)
	if finalPool.CarPoolMonthly != 0 {
		t.Fatalf("expected car pool drained to 0, got %d", finalPool.CarPoolMonthly)
	}
}

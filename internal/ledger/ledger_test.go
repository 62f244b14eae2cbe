package ledger

import (
	"context"
	"math/rand"
	"testing"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/store/memory"
)

func TestCreditIncreasesBalance(t *testing.T) {
	s := New(memory.New())
	ctx := context.Background()

	txID, err := s.Credit(ctx, "u1", 100, domain.CategoryBinary, []string{"pair-1"}, "")
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if txID == "" {
		t.Fatalf("expected non-empty txID")
	}

	bal, err := s.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Balance != 100 || bal.TotalCredited != 100 {
		t.Fatalf("unexpected balance: %+v", bal)
	}
}

func TestCreditRejectsNonPositive(t *testing.T) {
	s := New(memory.New())
	if _, err := s.Credit(context.Background(), "u1", 0, domain.CategoryBinary, nil, ""); err == nil {
		t.Fatalf("expected validation error for zero amount")
	}
	if _, err := s.Credit(context.Background(), "u1", -5, domain.CategoryBinary, nil, ""); err == nil {
		t.Fatalf("expected validation error for negative amount")
	}
}

func TestDebitInsufficientBalance(t *testing.T) {
	s := New(memory.New())
	ctx := context.Background()
	if _, err := s.Debit(ctx, "u1", 50, domain.CategoryWithdraw, nil, ""); err == nil {
		t.Fatalf("expected insufficient balance error")
	}
}

func TestHoldReleaseRoundTrip(t *testing.T) {
	s := New(memory.New())
	ctx := context.Background()

	if _, err := s.Credit(ctx, "u1", 200, domain.CategoryDeposit, nil, ""); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, err := s.Hold(ctx, "u1", 80, nil); err != nil {
		t.Fatalf("Hold: %v", err)
	}
	bal, _ := s.GetBalance(ctx, "u1")
	if bal.Balance != 120 || bal.Pending != 80 {
		t.Fatalf("unexpected balance after hold: %+v", bal)
	}

	if _, err := s.Release(ctx, "u1", 80, nil); err != nil {
		t.Fatalf("Release: %v", err)
	}
	bal, _ = s.GetBalance(ctx, "u1")
	if bal.Balance != 200 || bal.Pending != 0 {
		t.Fatalf("unexpected balance after release: %+v", bal)
	}
}

func TestHoldThenFinalize(t *testing.T) {
	s := New(memory.New())
	ctx := context.Background()

	if _, err := s.Credit(ctx, "u1", 200, domain.CategoryDeposit, nil, ""); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, err := s.Hold(ctx, "u1", 80, nil); err != nil {
		t.Fatalf("Hold: %v", err)
	}
	if _, err := s.Finalize(ctx, "u1", 80, nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	bal, _ := s.GetBalance(ctx, "u1")
	if bal.Balance != 120 || bal.Pending != 0 || bal.TotalDebited != 80 {
		t.Fatalf("unexpected balance after finalize: %+v", bal)
	}
}

func TestLedgerSumInvariant(t *testing.T) {
	s := New(memory.New())
	ctx := context.Background()

	mustCredit := func(amount int64) {
		if _, err := s.Credit(ctx, "u1", amount, domain.CategoryBinary, nil, ""); err != nil {
			t.Fatalf("Credit(%d): %v", amount, err)
		}
	}
	mustCredit(10)
	mustCredit(20)
	if _, err := s.Debit(ctx, "u1", 5, domain.CategoryWithdraw, nil, ""); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	bal, _ := s.GetBalance(ctx, "u1")
	if bal.Balance != 25 {
		t.Fatalf("expected balance 25, got %d", bal.Balance)
	}
	if bal.TotalCredited != 30 || bal.TotalDebited != 5 {
		t.Fatalf("unexpected totals: %+v", bal)
	}
}

// TestLedgerRandomizedTraceInvariants runs a long randomized sequence
// of credit/debit/hold/release/finalize calls against a single wallet
// and checks, after every single operation, the invariants spec.md §8
// requires of a wallet regardless of the exact trace that produced it:
// balance and pending never go negative, balance+pending always equals
// totalCredited-totalDebited (sum invariant 1), and a rejected op (e.g.
// debit exceeding balance) never mutates the wallet (invariant 7).
func TestLedgerRandomizedTraceInvariants(t *testing.T) {
	s := New(memory.New())
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	var wantCredited, wantDebited int64
	prevBal, _ := s.GetBalance(ctx, "u1")

	for i := 0; i < 500; i++ {
		amount := int64(rng.Intn(200) + 1)
		switch rng.Intn(5) {
		case 0:
			if _, err := s.Credit(ctx, "u1", amount, domain.CategoryBinary, nil, ""); err != nil {
				t.Fatalf("Credit: %v", err)
			}
			wantCredited += amount
		case 1:
			if _, err := s.Debit(ctx, "u1", amount, domain.CategoryWithdraw, nil, ""); err == nil {
				wantDebited += amount
			} else {
				bal, _ := s.GetBalance(ctx, "u1")
				if bal != prevBal {
					t.Fatalf("rejected Debit mutated wallet: before=%+v after=%+v", prevBal, bal)
				}
			}
		case 2:
			if _, err := s.Hold(ctx, "u1", amount, nil); err != nil {
				// Insufficient balance: wallet must be unchanged.
				bal, _ := s.GetBalance(ctx, "u1")
				if bal != prevBal {
					t.Fatalf("rejected Hold mutated wallet: before=%+v after=%+v", prevBal, bal)
				}
			}
		case 3:
			if _, err := s.Release(ctx, "u1", amount, nil); err != nil {
				bal, _ := s.GetBalance(ctx, "u1")
				if bal != prevBal {
					t.Fatalf("rejected Release mutated wallet: before=%+v after=%+v", prevBal, bal)
				}
			}
		case 4:
			if _, err := s.Finalize(ctx, "u1", amount, nil); err == nil {
				wantDebited += amount
			} else {
				bal, _ := s.GetBalance(ctx, "u1")
				if bal != prevBal {
					t.Fatalf("rejected Finalize mutated wallet: before=%+v after=%+v", prevBal, bal)
				}
			}
		}

		bal, err := s.GetBalance(ctx, "u1")
		if err != nil {
			t.Fatalf("GetBalance: %v", err)
		}
		if bal.Balance < 0 || bal.Pending < 0 {
			t.Fatalf("step %d: negative balance/pending: %+v", i, bal)
		}
		if bal.Balance+bal.Pending != wantCredited-wantDebited {
			t.Fatalf("step %d: sum invariant violated: balance+pending=%d want %d (credited=%d debited=%d)",
				i, bal.Balance+bal.Pending, wantCredited-wantDebited, wantCredited, wantDebited)
		}
		if bal.TotalCredited != wantCredited || bal.TotalDebited != wantDebited {
			t.Fatalf("step %d: totals drifted: %+v want credited=%d debited=%d", i, bal, wantCredited, wantDebited)
		}
		prevBal = bal
	}
}

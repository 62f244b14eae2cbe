// Package txrunner provides a single RunInTx entry point the engines
// call for every multi-repository mutation. Grounded in the teacher's
// service layer, which routes all side-effecting work through a
// narrow set of base-service helpers (infrastructure/service/base.go)
// rather than letting callers reach into repositories directly.
//
// Two backends exist behind the same call site (spec.md §9
// "RunInTx(ctx, fn)" design note):
//
//   - When store implements store.TxCapable (the Postgres store),
//     RunInTx opens a real SQL transaction, runs fn, and commits or
//     rolls back.
//   - Otherwise (the in-memory store) there is no multi-statement
//     transaction to open. fn is expected to express its mutations
//     through the store's CAS primitives (CompareAndSwapWallet,
//     ReserveChildSlot, FlipToGreen, InsertSessionRun, ...) and
//     RunInTx retries the whole fn body on domain.ErrConflict with
//     bounded attempts, surfacing domain.ErrRetry once exhausted.
package txrunner

import (
	"context"
	"errors"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/logging"
	"github.com/r3e-network/mlm-compensation-engine/internal/store"
)

// MaxCASRetries bounds the CAS-fallback retry loop (spec.md §5).
const MaxCASRetries = 5

// CASRetryBackoff is the fixed delay between CAS retries.
const CASRetryBackoff = 5 * time.Millisecond

// Fn is the unit of work executed inside a transaction or CAS-retry
// loop. It must be idempotent on retry: it will re-run from scratch
// against a freshly-read store state each attempt.
type Fn func(ctx context.Context, s store.Store) error

// RunInTx executes fn against s, using a real transaction when s
// supports one and a bounded CAS-retry loop otherwise.
func RunInTx(ctx context.Context, s store.Store, fn Fn) error {
	if txStore, ok := s.(store.TxCapable); ok {
		return runWithRealTx(ctx, s, txStore, fn)
	}
	return runWithCASRetry(ctx, s, fn)
}

func runWithRealTx(ctx context.Context, s store.Store, txStore store.TxCapable, fn Fn) error {
	tx, err := txStore.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, s); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.Default().WithError(rbErr).WithFields(map[string]interface{}{
				"original_error": err.Error(),
			}).Error("rollback failed after fn error")
		}
		return err
	}
	return tx.Commit()
}

func runWithCASRetry(ctx context.Context, s store.Store, fn Fn) error {
	var lastErr error
	for attempt := 0; attempt < MaxCASRetries; attempt++ {
		lastErr = fn(ctx, s)
		if lastErr == nil {
			return nil
		}
		if !domain.IsConflict(lastErr) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(CASRetryBackoff):
		}
	}
	return errors.Join(domain.ErrRetry, lastErr)
}

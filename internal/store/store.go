// Package store defines the persistence interfaces the compensation
// engines depend on, grounded in the teacher's split repository
// interface (infrastructure/database/repository_interface.go). Two
// implementations exist: internal/store/memory (mutex-guarded,
// CAS-based, used by default and by every test) and
// internal/store/postgres (sqlx + lib/pq, real transactions).
package store

import (
	"context"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
)

// Tx is an open transaction handle. Stores that support real
// multi-statement transactions return a concrete *sql.Tx-backed Tx
// from BeginTx; the memory store returns a no-op Tx and callers fall
// back to the CAS helpers in internal/txrunner instead.
type Tx interface {
	Commit() error
	Rollback() error
}

// TxCapable is implemented by stores that can hand out a real
// transaction handle (currently only the Postgres store).
type TxCapable interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// UserRepo manages User records and the placement tree pointers.
type UserRepo interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
	UpdateUser(ctx context.Context, u *domain.User) error
	// ReserveChildSlot atomically sets side's child pointer on parentID
	// to childID only if it is currently empty. Returns
	// domain.ErrConflict if another writer won the race.
	ReserveChildSlot(ctx context.Context, parentID string, side domain.Side, childID string) error
	// SponsorChain returns up to limit sponsors walking up from userID,
	// nearest first (spec.md §4.G level income).
	SponsorChain(ctx context.Context, userID string, limit int) ([]string, error)
	// DirectSponsoreeCount returns how many users have userID as their
	// direct sponsor (spec.md §4.G level-star bonus, level 1).
	DirectSponsoreeCount(ctx context.Context, userID string) (int, error)
	// DownlineCountAtDepth returns how many users sit exactly depth
	// sponsor-levels below userID (depth 2 or 3 for the level-star bonus).
	DownlineCountAtDepth(ctx context.Context, userID string, depth int) (int, error)
	// ListActiveSilverHolders returns users with an active silver package,
	// ordered by ascending TotalRoyaltyReceived (spec.md §4.G royalty
	// eligibility).
	ListActiveSilverHolders(ctx context.Context) ([]*domain.User, error)
	// ListByMinRank returns users whose rank index for any package is
	// >= minRankIndex (spec.md §4.H fund eligibility).
	ListByMinRank(ctx context.Context, minRankIndex int) ([]*domain.User, error)
}

// PVRepo manages PVEntry records for the binary engine.
type PVRepo interface {
	CreatePVEntry(ctx context.Context, e *domain.PVEntry) error
	// CandidateUsers returns, for packageCode, the user IDs that have at
	// least one red entry on each side, ordered by earliest red entry
	// time ascending (FIFO candidate discovery, spec.md §4.E.1).
	CandidateUsers(ctx context.Context, packageCode plan.PackageCode) ([]string, error)
	// EarliestRed returns the earliest red PV entry for userID/packageCode/side.
	EarliestRed(ctx context.Context, userID string, packageCode plan.PackageCode, side domain.Side) (*domain.PVEntry, error)
	// ReserveForMatch attempts to lock entryID for an in-flight match
	// attempt. Returns domain.ErrConflict if already reserved or green.
	ReserveForMatch(ctx context.Context, entryID, reservationToken string) error
	// ReleaseReservation clears a reservation without flipping state
	// (used when a partial match attempt must back out).
	ReleaseReservation(ctx context.Context, entryID, reservationToken string) error
	// FlipToGreen marks left and right as matched, atomically, or
	// neither (spec.md §4.E: "must have matched=true simultaneously or
	// not at all").
	FlipToGreen(ctx context.Context, leftEntryID, rightEntryID string, sessionIndex int, matchedAt time.Time) error
	CreatePendingIncome(ctx context.Context, p *domain.PendingIncome) error
	UnmaterializedPendingIncome(ctx context.Context, userID string, packageCode plan.PackageCode) ([]*domain.PendingIncome, error)
	MarkPendingIncomeMaterialized(ctx context.Context, id string) error
}

// WalletRepo manages Wallet balances with CAS semantics.
type WalletRepo interface {
	GetOrCreateWallet(ctx context.Context, userID string) (*domain.Wallet, error)
	// CompareAndSwapWallet writes newWallet only if the stored wallet's
	// UpdatedAt still matches expectedUpdatedAt (optimistic concurrency).
	// Returns domain.ErrConflict on mismatch.
	CompareAndSwapWallet(ctx context.Context, newWallet *domain.Wallet, expectedUpdatedAt time.Time) error
}

// LedgerRepo is the append-only wallet ledger.
type LedgerRepo interface {
	AppendLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error
	LedgerEntriesForUser(ctx context.Context, userID string) ([]*domain.LedgerEntry, error)
}

// BVLedgerRepo is the append-only BV ledger plus the FundPool singleton.
type BVLedgerRepo interface {
	AppendBVLedgerEntry(ctx context.Context, e *domain.BVLedgerEntry) error
	GetFundPool(ctx context.Context) (*domain.FundPool, error)
	// CompareAndSwapFundPool writes newPool only if it still matches the
	// version the caller read (optimistic concurrency on the hot
	// singleton row, spec.md §5).
	CompareAndSwapFundPool(ctx context.Context, newPool *domain.FundPool, expectedVersion int64) error
	FundPoolVersion(ctx context.Context) (int64, error)
}

// SessionRunRepo manages SessionRun idempotency and contents.
type SessionRunRepo interface {
	// InsertSessionRun creates the sentinel row for (dateKey,
	// sessionIndex). Returns domain.ErrAlreadyProcessed if one exists.
	InsertSessionRun(ctx context.Context, run *domain.SessionRun) error
	GetSessionRun(ctx context.Context, dateKey string, sessionIndex int) (*domain.SessionRun, error)
	AppendProcessedPair(ctx context.Context, dateKey string, sessionIndex int, pair domain.ProcessedPair) error
	FinalizeSessionRun(ctx context.Context, dateKey string, sessionIndex int, finishedAt time.Time) error
	CountProcessedPairs(ctx context.Context, dateKey string, sessionIndex int, userID string, packageCode plan.PackageCode) (int, error)
}

// RankRepo manages the one-shot rank history.
type RankRepo interface {
	HasRankHistory(ctx context.Context, userID string, packageCode plan.PackageCode, rankIndex int) (bool, error)
	InsertRankHistory(ctx context.Context, e *domain.RankHistoryEntry) error
}

// RoyaltyLogRepo records royalty payouts.
type RoyaltyLogRepo interface {
	AppendRoyaltyLog(ctx context.Context, e *domain.RoyaltyLogEntry) error
}

// EPINRepo manages the EPIN lifecycle.
type EPINRepo interface {
	CreateEPINs(ctx context.Context, epins []*domain.EPIN) error
	GetEPIN(ctx context.Context, code string) (*domain.EPIN, error)
	// TransferEPIN reassigns ownership; fails with domain.ErrAlreadyProcessed
	// if isUsed=true.
	TransferEPIN(ctx context.Context, code, toUserID string) error
	ReserveEPIN(ctx context.Context, code, userID string) error
	// ConsumeEPIN marks isUsed=true atomically; it is terminal.
	ConsumeEPIN(ctx context.Context, code, userID string, usedAt time.Time) error
}

// FranchiseRepo manages franchise products and sales.
type FranchiseRepo interface {
	GetProduct(ctx context.Context, id string) (*domain.FranchiseProduct, error)
	// DecrementStock atomically decrements stock by qty, failing with
	// domain.ErrInsufficientStock if short.
	DecrementStock(ctx context.Context, productID string, qty int64) error
	AppendSale(ctx context.Context, s *domain.FranchiseSale) error
}

// Store aggregates every repository the engines need. Both
// implementations (memory, postgres) satisfy the full interface.
type Store interface {
	UserRepo
	PVRepo
	WalletRepo
	LedgerRepo
	BVLedgerRepo
	SessionRunRepo
	RankRepo
	RoyaltyLogRepo
	EPINRepo
	FranchiseRepo

	HealthCheck(ctx context.Context) error
}

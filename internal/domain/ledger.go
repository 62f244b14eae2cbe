package domain

import "time"

// LedgerDirection is the tagged direction of a wallet ledger entry
// (spec.md §3). Using a closed set of string constants instead of a
// free-form string keeps the ledger's state machine exhaustive.
type LedgerDirection string

const (
	DirCredit   LedgerDirection = "credit"
	DirDebit    LedgerDirection = "debit"
	DirHold     LedgerDirection = "hold"
	DirRelease  LedgerDirection = "release"
	DirFinalize LedgerDirection = "finalize"
)

// LedgerCategory classifies what a ledger entry is for (spec.md §3).
type LedgerCategory string

const (
	CategoryBinary            LedgerCategory = "binary"
	CategoryRank              LedgerCategory = "rank"
	CategoryRoyalty           LedgerCategory = "royalty"
	CategoryLevel             LedgerCategory = "level"
	CategoryFundCar           LedgerCategory = "fund-car"
	CategoryFundHouse         LedgerCategory = "fund-house"
	CategoryFundTravel        LedgerCategory = "fund-travel"
	CategoryFranchiseHolder   LedgerCategory = "franchise-holder"
	CategoryFranchiseReferrer LedgerCategory = "franchise-referrer"
	CategoryWithdraw          LedgerCategory = "withdraw"
	CategoryDeposit           LedgerCategory = "deposit"
	CategoryAdmin             LedgerCategory = "admin"
	CategoryReversal          LedgerCategory = "reversal"
)

// Wallet is the single balance row per user (spec.md §3). Invariant:
// Balance + Pending >= 0 at all times.
type Wallet struct {
	UserID        string
	Balance       int64
	Pending       int64
	TotalCredited int64
	TotalDebited  int64
	UpdatedAt     time.Time
}

// LedgerEntry is one append-only row backing a wallet mutation
// (spec.md §3). BalanceAfter is a computed snapshot, monotonic when
// grouped by (UserID, CreatedAt ascending, TxID).
type LedgerEntry struct {
	TxID           string
	UserID         string
	Direction      LedgerDirection
	Amount         int64
	Category       LedgerCategory
	BalanceAfter   int64
	RelatedEntryIDs []string
	Note           string
	CreatedAt      time.Time
}

// BVLedgerEntry is one append-only BV movement (spec.md §3).
// SignedAmount is positive for a credit, negative for a consumption.
type BVLedgerEntry struct {
	ID           string
	UserID       string
	SignedAmount int64
	Source       string
	CreatedAt    time.Time
}

// RankHistoryEntry records a single one-shot rank-income credit
// (spec.md §3). At most one row exists per (UserID, PackageCode,
// RankIndex) — this enforces single-credit rank income.
type RankHistoryEntry struct {
	UserID      string
	PackageCode string
	RankIndex   int
	Amount      int64
	CreditedAt  time.Time
}

// RoyaltyLogEntry records one royalty payout for auditability
// (spec.md §4.G: "append RoyaltyLog row").
type RoyaltyLogEntry struct {
	ID          string
	UserID      string
	CTOBVAmount int64
	Rate        float64
	Desired     int64
	Paid        int64
	CreatedAt   time.Time
}

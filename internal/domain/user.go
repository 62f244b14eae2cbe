// Package domain holds the discriminated record types shared across
// every engine: User, PVEntry, SessionRun, Wallet, LedgerEntry,
// BVLedgerEntry, RankHistoryEntry, FundPool, EPIN, and franchise
// records (spec.md §3).
package domain

import (
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
)

// Side is a binary-tree leg.
type Side string

const (
	SideLeft  Side = "L"
	SideRight Side = "R"
)

// Opposite returns the other leg.
func (s Side) Opposite() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// User is a node in both the sponsor chain and the placement tree
// (spec.md §3). RankIndex, IncomePairs and CutoffPairs are keyed by package
// code since a user tracks rank and counters independently per
// package they own.
type User struct {
	ID                 string
	ExternalCode       string
	SponsorID          string // upline chain pointer, distinct from placement
	PlacementParentID  string
	PlacementSide      Side
	ActivePackage      plan.PackageCode // "" / "none" if never activated
	PackageActivatedAt time.Time

	// Per-package rank index, -1 meaning unranked, keyed by package code.
	RankIndex map[plan.PackageCode]int
	// Per-package pair counters, each 0..4 (spec.md §3, §4.F).
	IncomePairs map[plan.PackageCode]int
	CutoffPairs map[plan.PackageCode]int

	LeftChildID  string
	RightChildID string

	// TotalRoyaltyReceived drives the star-cap-phase royalty rule
	// (spec.md §4.G).
	TotalRoyaltyReceived float64

	// Quarantined is stored and loaded with the user. Nothing in this
	// module sets it, and no write path checks it.
	Quarantined bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser constructs a User with zeroed per-package counters.
func NewUser(id, sponsorID string) *User {
	return &User{
		ID:          id,
		SponsorID:   sponsorID,
		RankIndex:   make(map[plan.PackageCode]int),
		IncomePairs: make(map[plan.PackageCode]int),
		CutoffPairs: make(map[plan.PackageCode]int),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

// HasActivePackage reports whether the user currently owns pkg.
func (u *User) HasActivePackage(pkg plan.PackageCode) bool {
	return u.ActivePackage == pkg && pkg != ""
}

// CurrentRankIndex returns the user's rank index for a package,
// defaulting to -1 (unranked) if never set.
func (u *User) CurrentRankIndex(pkg plan.PackageCode) int {
	if idx, ok := u.RankIndex[pkg]; ok {
		return idx
	}
	return -1
}

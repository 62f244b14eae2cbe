package domain

import (
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
)

// PVState is the tagged state of a PVEntry: red (unmatched) or green
// (matched, terminal). No other transition exists (spec.md §4.E).
type PVState string

const (
	PVRed   PVState = "red"
	PVGreen PVState = "green"
)

// PVEntry is one placed PV unit on a user's leg. Immutable once
// state=green: all match fields are frozen (spec.md §3).
type PVEntry struct {
	ID          string
	OwnerUserID string
	PackageCode plan.PackageCode
	Side        Side
	PV          int64
	State       PVState

	// Match fields, nil/zero until State == PVGreen.
	MatchedWithEntryID string
	SessionMatchedIndex int
	MatchedAt           time.Time

	// reservedBy is a transient lock used by the binary engine while it
	// attempts to flip a pair; never persisted as part of the public
	// contract, only used by the store's CAS reservation primitive.
	ReservedBy string

	CreatedAt time.Time
}

// IsGreen reports whether the entry has been matched.
func (e *PVEntry) IsGreen() bool { return e.State == PVGreen }

// PendingIncome is a cross-package "silver pair unlocks gold/ruby"
// credit recorded by the binary engine and materialized once the user
// owns the target package (spec.md §4.E).
type PendingIncome struct {
	ID          string
	UserID      string
	PackageCode plan.PackageCode
	Amount      int64
	CreatedAt   time.Time
	Materialized bool
}

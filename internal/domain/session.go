package domain

import (
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
)

// SessionRun identifies one execution of the binary engine for a
// (dateKey, sessionIndex) pair. (dateKey, sessionIndex) is unique and
// is the idempotency key (spec.md §3).
type SessionRun struct {
	ID                 string
	DateKey            string // YYYY-MM-DD in the configured timezone
	SessionIndex       int
	StartedAt          time.Time
	FinishedAt         time.Time
	Finalized          bool
	ProcessedPairs     []ProcessedPair
	ProcessedPairCount int
}

// ProcessedPair is one credited pair recorded inside a SessionRun.
type ProcessedPair struct {
	UserID        string
	PackageCode   plan.PackageCode
	LeftEntryID   string
	RightEntryID  string
	Amount        int64
	CreditedAt    time.Time
}

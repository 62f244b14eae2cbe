package domain

import (
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
)

// EPIN is a single-use activation token. No expiry; unlimited
// transfers before use; isUsed=true is terminal (spec.md §3).
type EPIN struct {
	Code        string
	PackageCode plan.PackageCode
	OwnerUserID string // "" if unassigned
	IsUsed      bool
	UsedByUserID string
	UsedAt      time.Time
	TransferCount int
	CreatedBy   string
	CreatedAt   time.Time
}

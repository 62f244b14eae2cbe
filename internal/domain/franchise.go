package domain

import "time"

// FranchiseProduct is a stocked item sold through a franchise
// (spec.md §4.K).
type FranchiseProduct struct {
	ID            string
	FranchiseID   string
	OwnerUserID   string // franchise holder
	Name          string
	Stock         int64
	SalePrice     int64
	BVEquivalent  int64
	CreatedAt     time.Time
}

// FranchiseSale is one append-only sale record (spec.md §4.K).
type FranchiseSale struct {
	ID                string
	ProductID         string
	BuyerUserID       string
	ReferrerUserID    string // "" if no referrer
	SalePrice         int64
	BVEquivalent      int64
	HolderCommission  int64
	ReferrerIncome    int64
	CreatedAt         time.Time
}

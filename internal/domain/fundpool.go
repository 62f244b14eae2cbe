package domain

import "time"

// FundPool is the singleton BV-derived bucket shared by the fund
// engine and BV distributor (spec.md §3). Invariant: every field is
// >= 0 at all times.
type FundPool struct {
	TotalCTOBV       int64
	CarPoolMonthly   int64
	HousePoolMonthly int64
	TravelFund       int64

	CarPoolPercent     float64
	HousePoolPercent   float64
	RoyaltyPoolPercent float64

	History            []FundHistoryEntry
	TravelAllocations  []TravelAllocation
}

// FundHistoryEntry records a pool reset/distribution event
// (spec.md §8, S6: "FundPool.history contains POOL_RESET record").
type FundHistoryEntry struct {
	Kind      string // "POOL_RESET", the only kind fundengine writes
	Amount    int64
	Month     string // YYYY-MM
	CreatedAt time.Time
}

// TravelAllocation records one yearly travel-fund split decision
// (spec.md §4.H: selection of actual winners is outside the core).
type TravelAllocation struct {
	Year                int
	NationalAmount      int64
	InternationalAmount int64
	CreatedAt           time.Time
}

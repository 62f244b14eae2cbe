// Package money defines the fixed-point representation shared by
// every ledger/wallet amount in the engine (spec.md §3). Wallet
// balances, ledger entries, fund pools, and royalty/commission
// payouts are all expressed in these sub-units rather than whole
// currency units, because the compensation plan's own percentages
// produce fractional whole-unit amounts — gold's BV=155 at the 0.5%
// per-level income rate is 0.775, not 0 or 1 (spec.md §8 scenario S4).
// Truncating float64 math to a whole-unit int64 rounds every such
// split down to zero; sub-unit integers keep it exact.
package money

import "math"

// Scale is the number of ledger sub-units per whole display unit.
// Three decimal digits of precision is enough for every percentage in
// the compensation plan (0.5%, 1%, 1.1%, 3%, ...) to land on an exact
// integer even against a single package's BV.
const Scale int64 = 1000

// FromWhole converts a whole-unit figure — a package's BV/PV point
// value, a CTO BV aggregate, a sale price — into ledger sub-units.
func FromWhole(whole int64) int64 {
	return whole * Scale
}

// PercentOf returns pct percent of amount, where amount is already
// expressed in sub-units. Rounds half-up to the nearest sub-unit
// instead of truncating, so a chain of small percentage splits never
// silently drifts to zero.
func PercentOf(amount int64, pct float64) int64 {
	return Round(float64(amount) * pct / 100.0)
}

// Round rounds a sub-unit amount half-up to the nearest integer, the
// same primitive PercentOf uses for percentage splits — exported for
// callers that scale an already-computed sub-unit amount (a pro-rata
// cap cutback, for example) rather than taking a fresh percentage.
func Round(amount float64) int64 {
	return int64(math.Floor(amount + 0.5))
}

// Package plan holds the static compensation-plan tables from the
// engine's authoritative plan specification (package plan, rank-income
// table, royalty percentage table, level-income, fund percentages,
// franchise percentages, and the 8 fixed daily session windows).
//
// Nothing in this package is CRUD-able at runtime — package catalog
// CRUD is an explicit non-goal of the engine; these are compiled-in
// constants reloaded only by shipping a new build.
package plan

import "fmt"

// PackageCode identifies one of the three packages a user can own.
type PackageCode string

const (
	Silver PackageCode = "silver"
	Gold   PackageCode = "gold"
	Ruby   PackageCode = "ruby"
)

// ProcessingOrder is the fixed per-session processing order the binary
// engine must honor: silver before gold before ruby (spec.md §4.E).
var ProcessingOrder = []PackageCode{Silver, Gold, Ruby}

// Package describes one row of the package plan table (spec.md §6).
type Package struct {
	Code          PackageCode
	PV            int64
	BV            int64
	PairIncome    int64
	CapPerSession int
}

// Packages is the authoritative package plan table.
var Packages = map[PackageCode]Package{
	Silver: {Code: Silver, PV: 35, BV: 35, PairIncome: 10, CapPerSession: 1},
	Gold:   {Code: Gold, PV: 155, BV: 155, PairIncome: 50, CapPerSession: 1},
	Ruby:   {Code: Ruby, PV: 1250, BV: 1250, PairIncome: 500, CapPerSession: 1},
}

// LookupPackage returns the plan row for a package code, or an error if
// the code is unknown (spec.md §4.D step 1: UnknownPackage).
func LookupPackage(code PackageCode) (Package, error) {
	p, ok := Packages[code]
	if !ok {
		return Package{}, fmt.Errorf("unknown package: %s", code)
	}
	return p, nil
}

// RankName is a human-readable rank label.
type RankName string

const (
	RankStar            RankName = "Star"
	RankSilverStar      RankName = "Silver Star"
	RankGoldStar        RankName = "Gold Star"
	RankRubyStar        RankName = "Ruby Star"
	RankEmeraldStar     RankName = "Emerald Star"
	RankDiamondStar     RankName = "Diamond Star"
	RankCrownStar       RankName = "Crown Star"
	RankAmbassadorStar  RankName = "Ambassador Star"
	RankCompanyStar     RankName = "Company Star"
)

// RankNames indexes the rank ladder by rankIndex (0..8). rankIndex -1
// means unranked (spec.md §3).
var RankNames = []RankName{
	RankStar, RankSilverStar, RankGoldStar, RankRubyStar, RankEmeraldStar,
	RankDiamondStar, RankCrownStar, RankAmbassadorStar, RankCompanyStar,
}

// MaxRankIndex is "Company Star", the top of the ladder (spec.md §4.F:
// "clamped at 8").
const MaxRankIndex = 8

// RankNameFor returns the display name for a rank index, clamping into range.
func RankNameFor(rankIndex int) RankName {
	if rankIndex < 0 {
		return "Unranked"
	}
	if rankIndex >= len(RankNames) {
		rankIndex = len(RankNames) - 1
	}
	return RankNames[rankIndex]
}

// rankIncomeTable[pkg][rankIndex] is the lifetime one-shot rank-income
// table (spec.md §6).
var rankIncomeTable = map[PackageCode][]int64{
	Silver: {10, 20, 40, 80, 160, 320, 640, 1280, 2560},
	Gold:   {50, 100, 200, 400, 800, 1600, 3200, 6400, 12800},
	Ruby:   {500, 1000, 2000, 4000, 8000, 16000, 32000, 64000, 128000},
}

// RankIncome returns the one-shot income owed for reaching rankIndex on
// packageCode, or an error if either is out of range.
func RankIncome(code PackageCode, rankIndex int) (int64, error) {
	table, ok := rankIncomeTable[code]
	if !ok {
		return 0, fmt.Errorf("unknown package: %s", code)
	}
	if rankIndex < 0 || rankIndex >= len(table) {
		return 0, fmt.Errorf("rank index out of range: %d", rankIndex)
	}
	return table[rankIndex], nil
}

// royaltyPercentTable[rankIndex] is the royalty rate (in whole percent)
// once a user is past the star-cap phase (spec.md §6). Index 0 ("Star")
// is only ever used while totalRoyaltyReceived >= CapPhaseCeiling —
// see CapPhaseRoyaltyPercent below for the cap-phase rate itself.
var royaltyPercentTable = []float64{
	3, // Star; also the rate for unranked (-1) users past the cap phase
	1, // Silver Star
	2, // Gold Star
	3, // Ruby Star
	4, // Emerald Star
	5, // Diamond Star
	6, // Crown Star
	7, // Ambassador Star
	8, // Company Star
}

// CapPhaseRoyaltyPercent is the flat rate used while a user's
// totalRoyaltyReceived is below CapPhaseCeiling (spec.md §4.G, §6).
const CapPhaseRoyaltyPercent = 3.0

// CapPhaseCeiling is the totalRoyaltyReceived threshold (INR) below
// which the cap-phase flat rate applies instead of the rank table.
const CapPhaseCeiling = 35.0

// RoyaltyPercent returns the royalty rate for a silver-ranked user,
// honoring the star-cap-phase-then-rank-table rule from spec.md §4.G.
func RoyaltyPercent(totalRoyaltyReceived float64, silverRankIndex int) float64 {
	if totalRoyaltyReceived < CapPhaseCeiling {
		return CapPhaseRoyaltyPercent
	}
	idx := silverRankIndex
	if idx < 0 {
		idx = 0
	}
	if idx >= len(royaltyPercentTable) {
		idx = len(royaltyPercentTable) - 1
	}
	return royaltyPercentTable[idx]
}

// LevelIncomePercent is the per-level share of BV credited up the
// sponsor chain (spec.md §6: 0.5% per level).
const LevelIncomePercent = 0.5

// LevelStarThreshold describes one level-star bonus tier (spec.md §4.G, §6).
type LevelStarThreshold struct {
	Level           int // 1, 2, or 3
	RequiredDirects int
	CTOBVPercent    float64
}

// LevelStarThresholds is the fixed table of level-star bonus tiers.
var LevelStarThresholds = []LevelStarThreshold{
	{Level: 1, RequiredDirects: 10, CTOBVPercent: 1.0},
	{Level: 2, RequiredDirects: 70, CTOBVPercent: 1.1},
	{Level: 3, RequiredDirects: 200, CTOBVPercent: 1.2},
}

// FranchiseHolderMinPercent is the minimum holder commission on a
// franchise sale (spec.md §6: "holder minimum 5%").
const FranchiseHolderMinPercent = 5.0

// FranchiseReferrerPercent is the referrer cut of the sale's BV
// equivalent (spec.md §6: "referrer 1% of sale BV").
const FranchiseReferrerPercent = 1.0

// FundEligibility names the minimum rank index required to participate
// in a given pool (spec.md §6).
const (
	CarPoolEligibleRankIndex    = 3 // Ruby Star
	HousePoolEligibleRankIndex  = 5 // Diamond Star
	TravelNationalRankIndex     = 3 // Ruby Star
	TravelInternationalRankIdx  = 5 // Diamond Star
)

// TravelFundShare is the default national/international split of the
// yearly travel fund (spec.md §6).
const (
	TravelNationalSharePercent      = 60.0
	TravelInternationalSharePercent = 40.0
)

// PairsPerRankStep is the number of pairs (4 income + 4 cutoff) needed
// to advance one rank step (spec.md §6).
const PairsPerRankStep = 8

// IncomePairsPerStep / CutoffPairsPerStep split PairsPerRankStep evenly.
const (
	IncomePairsPerStep = 4
	CutoffPairsPerStep = 4
)

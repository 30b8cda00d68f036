package referral

// Tier shares in per-mille: 10%, 5%, 2.5%.
var tierPerMille = map[int]int64{
	1: 100,
	2: 50,
	3: 25,
}

// TierReward returns floor(xp * rate(tier)). Unknown tiers and non-positive
// amounts earn nothing.
func TierReward(tier int, xp int64) int64 {
	rate, ok := tierPerMille[tier]
	if !ok || xp <= 0 {
		return 0
	}
	return xp * rate / 1000
}

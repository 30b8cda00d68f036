package entity

import "time"

// ReferrerSummary is returned to a user who has just applied a code.
type ReferrerSummary struct {
	Username   string `json:"username"`
	TelegramId int64  `json:"telegram_id"`
	Tier       int    `json:"tier"`
}

type ApplyResult struct {
	Referrer ReferrerSummary `json:"referrer"`
	Chain    []ChainMember   `json:"chain"`
}

type ChainMember struct {
	Username string `json:"username"`
	Tier     int    `json:"tier"`
}

type ReferralLink struct {
	Code string `json:"referral_code"`
	Link string `json:"referral_link"`
}

type TierStats struct {
	Count    int   `json:"count"`
	Earnings int64 `json:"earnings"`
}

type DirectReferral struct {
	Username         string     `json:"username"`
	RewardsGenerated int64      `json:"rewards_generated"`
	JoinedDate       time.Time  `json:"joined_date"`
	LastActive       *time.Time `json:"last_active,omitempty"`
}

type ReferralStats struct {
	Code            string               `json:"referral_code,omitempty"`
	Link            string               `json:"referral_link,omitempty"`
	TotalReferrals  int                  `json:"total_referrals"`
	TotalEarnings   int64                `json:"total_earnings"`
	Tiers           map[string]TierStats `json:"tier_stats"`
	DirectReferrals []DirectReferral     `json:"direct_referrals"`
}

type RewardReferrer struct {
	Username   string `json:"username"`
	TelegramId int64  `json:"telegram_id"`
}

type AncestorReward struct {
	Referrer       RewardReferrer `json:"referrer"`
	Tier           int            `json:"tier"`
	TotalRewards   int64          `json:"total_rewards"`
	StartDate      time.Time      `json:"start_date"`
	LastRewardDate *time.Time     `json:"last_reward_date,omitempty"`
}

// UserReferralRewards lists what a user's activity has paid to each ancestor.
type UserReferralRewards struct {
	Rewards       []AncestorReward `json:"rewards"`
	TotalReceived int64            `json:"total_rewards_received"`
}

// Profile is the mini-app view of the current player.
type Profile struct {
	User          *User  `json:"user"`
	TotalReferral int    `json:"total_referrals"`
	ReferralCode  string `json:"referral_code,omitempty"`
	CanClaimDaily bool   `json:"can_claim_daily"`
}

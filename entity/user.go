package entity

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const DailyClaimInterval = 24 * time.Hour

// User is a mini-app player. The referral fields are maintained only by the
// referral service; gameplay code touches the XP counters.
type User struct {
	Id                   primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	TelegramId           int64                `json:"telegram_id" bson:"telegram_id"`
	Username             string               `json:"username" bson:"username"`
	FirstName            string               `json:"first_name,omitempty" bson:"first_name,omitempty"`
	LastName             string               `json:"last_name,omitempty" bson:"last_name,omitempty"`
	LanguageCode         string               `json:"language_code,omitempty" bson:"language_code,omitempty"`
	PhotoUrl             string               `json:"photo_url,omitempty" bson:"photo_url,omitempty"`
	AvatarUrl            string               `json:"avatar_url,omitempty" bson:"avatar_url,omitempty"`
	Language             string               `json:"language,omitempty" bson:"language,omitempty"`
	Theme                string               `json:"theme,omitempty" bson:"theme,omitempty"`
	XP                   int64                `json:"xp" bson:"xp"`
	Compute              int64                `json:"compute" bson:"compute"`
	ComputePower         int64                `json:"compute_power" bson:"compute_power"`
	TotalTaps            int64                `json:"total_taps" bson:"total_taps"`
	LastTapTime          *time.Time           `json:"last_tap_time,omitempty" bson:"last_tap_time,omitempty"`
	LastDailyClaim       *time.Time           `json:"last_daily_claim,omitempty" bson:"last_daily_claim,omitempty"`
	CheckInStreak        int                  `json:"check_in_streak" bson:"check_in_streak"`
	ReferredBy           primitive.ObjectID   `json:"referred_by,omitempty" bson:"referred_by,omitempty"`
	Referrals            []primitive.ObjectID `json:"referrals" bson:"referrals"`
	ReferralCode         string               `json:"referral_code,omitempty" bson:"referral_code,omitempty"`
	ReferralChain        []primitive.ObjectID `json:"referral_chain,omitempty" bson:"referral_chain,omitempty"`
	TotalReferralXP      int64                `json:"total_referral_xp" bson:"total_referral_xp"`
	TotalReferralRewards int64                `json:"total_referral_rewards" bson:"total_referral_rewards"`
	CreatedAt            time.Time            `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at" bson:"updated_at"`
}

func (u *User) HasReferrer() bool {
	return !u.ReferredBy.IsZero()
}

// CanClaimDaily reports whether a full interval has passed since the last claim.
func (u *User) CanClaimDaily(now time.Time) bool {
	if u.LastDailyClaim == nil {
		return true
	}
	return !now.Before(u.NextDailyClaim())
}

func (u *User) NextDailyClaim() time.Time {
	if u.LastDailyClaim == nil {
		return time.Time{}
	}
	return u.LastDailyClaim.Add(DailyClaimInterval)
}

func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return fmt.Sprintf("%d", u.TelegramId)
}

// TelegramProfile is the subset of a Telegram user object used to register players,
// taken either from verified WebApp init data or from a bot update.
type TelegramProfile struct {
	Id           int64  `json:"id" validate:"required,gt=0"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	LanguageCode string `json:"language_code"`
	PhotoUrl     string `json:"photo_url"`
}

// Name returns a non-empty username: Telegram usernames are optional.
func (p *TelegramProfile) Name() string {
	if p.Username != "" {
		return p.Username
	}
	if p.FirstName != "" {
		return p.FirstName
	}
	return fmt.Sprintf("user%d", p.Id)
}

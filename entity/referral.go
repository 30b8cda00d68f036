package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MaxReferralTier = 3

	ActivityReferralReward = "referral_reward"
)

// ReferralEdge links an ancestor to a referred user at one tier. One set of edges
// is written per referred user when a code is applied and never re-created;
// IsActive=false is the only form of removal.
type ReferralEdge struct {
	Id                      primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Referrer                primitive.ObjectID `json:"referrer" bson:"referrer"`
	Referred                primitive.ObjectID `json:"referred" bson:"referred"`
	Code                    string             `json:"code" bson:"code"`
	Tier                    int                `json:"tier" bson:"tier"`
	DateReferred            time.Time          `json:"date_referred" bson:"date_referred"`
	TotalRewardsDistributed int64              `json:"total_rewards_distributed" bson:"total_rewards_distributed"`
	LastRewardDate          *time.Time         `json:"last_reward_date,omitempty" bson:"last_reward_date,omitempty"`
	IsActive                bool               `json:"is_active" bson:"is_active"`
}

// Activity is an append-only audit record. For referral rewards the pair
// (EventId, User) is unique, which makes re-delivered XP events harmless.
type Activity struct {
	Id        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	User      primitive.ObjectID `json:"user" bson:"user"`
	Type      string             `json:"type" bson:"type"`
	EventId   string             `json:"event_id" bson:"event_id"`
	Amount    int64              `json:"amount" bson:"amount"`
	FromUser  primitive.ObjectID `json:"from_user" bson:"from_user"`
	Tier      int                `json:"tier" bson:"tier"`
	Source    string             `json:"source,omitempty" bson:"source,omitempty"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// TierTotal is the per-tier aggregate of the edges a referrer owns.
type TierTotal struct {
	Tier     int   `json:"tier" bson:"_id"`
	Count    int   `json:"count" bson:"count"`
	Earnings int64 `json:"earnings" bson:"earnings"`
}

package referral

import (
	"context"
	"tapearn/entity"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Tx is the referral graph as seen from inside one storage transaction.
// Lookups return (nil, nil) when a document does not exist.
type Tx interface {
	AncestorLookup

	UserById(ctx context.Context, id primitive.ObjectID) (*entity.User, error)
	UserByReferralCode(ctx context.Context, code string) (*entity.User, error)
	// ReferralCodeTaken checks both user codes and codes recorded on edges.
	ReferralCodeTaken(ctx context.Context, code string) (bool, error)
	// SetReferralCode stores code only if the user has none; false means it was already set.
	SetReferralCode(ctx context.Context, userId primitive.ObjectID, code string) (bool, error)

	HasInboundEdge(ctx context.Context, referred primitive.ObjectID) (bool, error)
	InsertEdges(ctx context.Context, edges []*entity.ReferralEdge) error
	// SetReferredBy links the user to its referrer only if no referrer is set yet.
	SetReferredBy(ctx context.Context, userId, referrer primitive.ObjectID, chain []primitive.ObjectID) (bool, error)
	AddDirectReferral(ctx context.Context, referrer, referred primitive.ObjectID) error

	ActiveEdgesOf(ctx context.Context, referred primitive.ObjectID) ([]*entity.ReferralEdge, error)
	// CreditReferralReward adds amount to the user's balance and referral totals; false if the user is missing.
	CreditReferralReward(ctx context.Context, userId primitive.ObjectID, amount int64) (bool, error)
	RecordEdgeReward(ctx context.Context, edgeId primitive.ObjectID, amount int64, at time.Time) error
	EventRecorded(ctx context.Context, eventId string) (bool, error)
	InsertActivity(ctx context.Context, activity *entity.Activity) error
}

// Store is the Referral Graph Store. WithTx runs fn in a single transaction:
// either every write made through tx commits or none does. Implementations
// report retryable conflicts wrapped in ErrTransient.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	UserById(ctx context.Context, id primitive.ObjectID) (*entity.User, error)
	UsersByIds(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*entity.User, error)
	ActiveEdgesOf(ctx context.Context, referred primitive.ObjectID) ([]*entity.ReferralEdge, error)
	DirectEdgesOf(ctx context.Context, referrer primitive.ObjectID) ([]*entity.ReferralEdge, error)
	TierTotals(ctx context.Context, referrer primitive.ObjectID) ([]entity.TierTotal, error)
	AllEdges(ctx context.Context) ([]*entity.ReferralEdge, error)
}

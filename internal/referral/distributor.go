package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"tapearn/entity"
	"tapearn/internal/metrics"
	"tapearn/lib/sl"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errDuplicateEvent = errors.New("xp event already distributed")

// XPEvent is one XP gain by a user. EventId identifies the gain across
// re-deliveries; rewards for an event id are applied at most once.
type XPEvent struct {
	EventId string
	UserId  primitive.ObjectID
	Amount  int64
	Source  string
}

type Credit struct {
	Ancestor primitive.ObjectID `json:"ancestor"`
	Tier     int                `json:"tier"`
	Amount   int64              `json:"amount"`
}

type Distribution struct {
	EventId   string   `json:"event_id"`
	Credits   []Credit `json:"credits"`
	Skipped   int      `json:"skipped"`
	Duplicate bool     `json:"duplicate"`
	Attempts  int      `json:"attempts"`
}

func (d *Distribution) Total() int64 {
	var total int64
	for _, c := range d.Credits {
		total += c.Amount
	}
	return total
}

// Distributor credits a user's ancestors with their tier share of an XP gain.
// One event is one transaction over every qualifying edge.
type Distributor struct {
	store Store
	retry RetryPolicy
	now   func() time.Time
	log   *slog.Logger
}

func NewDistributor(store Store, retry RetryPolicy, log *slog.Logger) *Distributor {
	return &Distributor{
		store: store,
		retry: retry,
		now:   time.Now,
		log:   log.With(sl.Module("referral.distributor")),
	}
}

// Distribute applies the event, retrying transient storage conflicts. Failures
// are returned wrapped in ErrFatalDistribution.
func (d *Distributor) Distribute(ctx context.Context, ev XPEvent) (*Distribution, error) {
	if ev.EventId == "" {
		ev.EventId = uuid.NewString()
	}
	if ev.Amount <= 0 {
		return &Distribution{EventId: ev.EventId}, nil
	}
	log := d.log.With(
		slog.String("event_id", ev.EventId),
		sl.Id("user", ev.UserId),
		slog.Int64("xp", ev.Amount),
	)

	var result *Distribution
	attempts, err := d.retry.Run(ctx, func(ctx context.Context) error {
		result = nil
		return d.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			r, err := d.apply(ctx, tx, ev, log)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	})
	if errors.Is(err, errDuplicateEvent) {
		log.Debug("event already distributed")
		return &Distribution{EventId: ev.EventId, Duplicate: true, Attempts: attempts}, nil
	}
	if err != nil {
		metrics.DistributionFailureInc(failureReason(err))
		log.With(slog.Int("attempts", attempts)).Error("referral reward distribution failed", sl.Err(err))
		return nil, fmt.Errorf("%w: event %s after %d attempts: %w", ErrFatalDistribution, ev.EventId, attempts, err)
	}

	result.Attempts = attempts
	if attempts > 1 {
		metrics.DistributionRetriesAdd(attempts - 1)
	}
	for _, c := range result.Credits {
		metrics.RewardDistributedAdd(c.Tier, c.Amount)
	}
	return result, nil
}

func (d *Distributor) apply(ctx context.Context, tx Tx, ev XPEvent, log *slog.Logger) (*Distribution, error) {
	result := &Distribution{EventId: ev.EventId}

	recorded, err := tx.EventRecorded(ctx, ev.EventId)
	if err != nil {
		return nil, err
	}
	if recorded {
		return nil, errDuplicateEvent
	}

	edges, err := tx.ActiveEdgesOf(ctx, ev.UserId)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		log.Debug("no active referral edges")
		return result, nil
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Tier < edges[j].Tier })

	now := d.now().UTC()
	for _, edge := range edges {
		elog := log.With(sl.Id("edge", edge.Id), slog.Int("tier", edge.Tier))

		if edge.Referrer.IsZero() || edge.Referrer == ev.UserId {
			elog.Warn("skipping malformed referral edge")
			result.Skipped++
			continue
		}
		reward := TierReward(edge.Tier, ev.Amount)
		if reward <= 0 {
			result.Skipped++
			continue
		}

		credited, err := tx.CreditReferralReward(ctx, edge.Referrer, reward)
		if err != nil {
			return nil, err
		}
		if !credited {
			elog.With(sl.Id("referrer", edge.Referrer)).Warn("referrer not found, reward skipped")
			result.Skipped++
			continue
		}
		if err = tx.RecordEdgeReward(ctx, edge.Id, reward, now); err != nil {
			return nil, err
		}
		err = tx.InsertActivity(ctx, &entity.Activity{
			User:      edge.Referrer,
			Type:      entity.ActivityReferralReward,
			EventId:   ev.EventId,
			Amount:    reward,
			FromUser:  ev.UserId,
			Tier:      edge.Tier,
			Source:    ev.Source,
			CreatedAt: now,
		})
		if errors.Is(err, ErrConflict) {
			return nil, errDuplicateEvent
		}
		if err != nil {
			return nil, err
		}

		elog.With(
			sl.Id("referrer", edge.Referrer),
			slog.Int64("reward", reward),
		).Info("referral reward credited")
		result.Credits = append(result.Credits, Credit{Ancestor: edge.Referrer, Tier: edge.Tier, Amount: reward})
	}
	return result, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context"
	default:
		return "storage"
	}
}

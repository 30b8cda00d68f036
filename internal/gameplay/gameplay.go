package gameplay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"tapearn/entity"
	"tapearn/internal/metrics"
	"tapearn/internal/referral"
	"tapearn/lib/sl"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DailyClaimXP = 100
	MaxTapCount  = 100

	SourceTap   = "tap"
	SourceDaily = "daily_claim"
)

// Repository persists player counters. Updates return the document after the
// change, or nil when no document matched.
type Repository interface {
	UpsertTelegramUser(ctx context.Context, profile *entity.TelegramProfile, at time.Time) (*entity.User, error)
	UserByTelegramId(ctx context.Context, telegramId int64) (*entity.User, error)
	UserById(ctx context.Context, id primitive.ObjectID) (*entity.User, error)
	AddTaps(ctx context.Context, userId primitive.ObjectID, xp, taps int64, at time.Time) (*entity.User, error)
	// ClaimDaily credits xp only if the previous claim is older than entity.DailyClaimInterval.
	ClaimDaily(ctx context.Context, userId primitive.ObjectID, xp int64, at time.Time) (*entity.User, error)
	UpdatePreferences(ctx context.Context, userId primitive.ObjectID, update *entity.ProfileUpdate, at time.Time) (*entity.User, error)
}

type Rewarder interface {
	DistributeReward(ctx context.Context, ev referral.XPEvent) (*referral.Distribution, error)
}

// ClaimTooEarlyError is returned when the daily claim is not available yet.
type ClaimTooEarlyError struct {
	Next time.Time
}

func (e *ClaimTooEarlyError) Error() string {
	return fmt.Sprintf("daily xp already claimed, next claim at %s", e.Next.UTC().Format(time.RFC3339))
}

func (e *ClaimTooEarlyError) Unwrap() error {
	return referral.ErrConflict
}

// Game holds the player actions that earn XP. Every gain is passed on to the
// referral distributor after it is stored; distribution failures are logged
// and never undo the gain.
type Game struct {
	repo    Repository
	rewards Rewarder
	now     func() time.Time
	log     *slog.Logger
	wg      sync.WaitGroup
}

func New(repo Repository, rewards Rewarder, log *slog.Logger) *Game {
	return &Game{
		repo:    repo,
		rewards: rewards,
		now:     time.Now,
		log:     log.With(sl.Module("gameplay")),
	}
}

func (g *Game) SetClock(now func() time.Time) {
	g.now = now
}

// Wait blocks until every pending reward distribution has finished.
func (g *Game) Wait() {
	g.wg.Wait()
}

// RegisterTelegramUser creates the player on first contact and refreshes the profile afterwards.
func (g *Game) RegisterTelegramUser(ctx context.Context, profile *entity.TelegramProfile) (*entity.User, error) {
	if profile == nil || profile.Id <= 0 {
		return nil, fmt.Errorf("%w: telegram user id is required", referral.ErrValidation)
	}
	user, err := g.repo.UpsertTelegramUser(ctx, profile, g.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}
	return user, nil
}

func (g *Game) UserByTelegramId(ctx context.Context, telegramId int64) (*entity.User, error) {
	user, err := g.repo.UserByTelegramId(ctx, telegramId)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: telegram user %d", referral.ErrNotFound, telegramId)
	}
	return user, nil
}

func (g *Game) Tap(ctx context.Context, userId primitive.ObjectID, count int64) (*entity.TapResult, error) {
	if count < 1 || count > MaxTapCount {
		return nil, fmt.Errorf("%w: tap count must be between 1 and %d", referral.ErrValidation, MaxTapCount)
	}
	user, err := g.repo.UserById(ctx, userId)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", referral.ErrNotFound, userId.Hex())
	}
	power := user.ComputePower
	if power < 1 {
		power = 1
	}
	xp := power * count

	updated, err := g.repo.AddTaps(ctx, userId, xp, count, g.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("store taps: %w", err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: user %s", referral.ErrNotFound, userId.Hex())
	}
	metrics.XPEarnedAdd(SourceTap, xp)
	g.distribute(ctx, userId, xp, SourceTap)

	return &entity.TapResult{
		XPGained:     xp,
		XPBefore:     updated.XP - xp,
		NewTotalXP:   updated.XP,
		TotalTaps:    updated.TotalTaps,
		ComputePower: updated.ComputePower,
	}, nil
}

func (g *Game) ClaimDaily(ctx context.Context, userId primitive.ObjectID) (*entity.DailyClaimResult, error) {
	now := g.now().UTC()
	updated, err := g.repo.ClaimDaily(ctx, userId, DailyClaimXP, now)
	if err != nil {
		return nil, fmt.Errorf("claim daily: %w", err)
	}
	if updated == nil {
		user, err := g.repo.UserById(ctx, userId)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, fmt.Errorf("%w: user %s", referral.ErrNotFound, userId.Hex())
		}
		return nil, &ClaimTooEarlyError{Next: user.NextDailyClaim()}
	}
	metrics.XPEarnedAdd(SourceDaily, DailyClaimXP)
	g.distribute(ctx, userId, DailyClaimXP, SourceDaily)

	return &entity.DailyClaimResult{
		XPGained:      DailyClaimXP,
		NewTotalXP:    updated.XP,
		CheckInStreak: updated.CheckInStreak,
		NextClaimTime: now.Add(entity.DailyClaimInterval),
	}, nil
}

func (g *Game) DailyStatus(ctx context.Context, userId primitive.ObjectID) (*entity.DailyStatus, error) {
	user, err := g.repo.UserById(ctx, userId)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", referral.ErrNotFound, userId.Hex())
	}
	now := g.now().UTC()
	status := &entity.DailyStatus{
		IsClaimable:   user.CanClaimDaily(now),
		NextClaimTime: now,
		CheckInStreak: user.CheckInStreak,
	}
	if !status.IsClaimable {
		status.NextClaimTime = user.NextDailyClaim()
	}
	return status, nil
}

func (g *Game) Profile(ctx context.Context, userId primitive.ObjectID) (*entity.Profile, error) {
	user, err := g.repo.UserById(ctx, userId)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", referral.ErrNotFound, userId.Hex())
	}
	return g.profileOf(user), nil
}

// UpdateProfile stores the changed preferences and returns the fresh profile.
func (g *Game) UpdateProfile(ctx context.Context, userId primitive.ObjectID, update *entity.ProfileUpdate) (*entity.Profile, error) {
	if update == nil {
		return nil, fmt.Errorf("%w: empty profile update", referral.ErrValidation)
	}
	user, err := g.repo.UpdatePreferences(ctx, userId, update, g.now().UTC())
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", referral.ErrNotFound, userId.Hex())
	}
	g.log.Info("profile updated", sl.Id("user", userId))
	return g.profileOf(user), nil
}

func (g *Game) profileOf(user *entity.User) *entity.Profile {
	return &entity.Profile{
		User:          user,
		TotalReferral: len(user.Referrals),
		ReferralCode:  user.ReferralCode,
		CanClaimDaily: user.CanClaimDaily(g.now().UTC()),
	}
}

// distribute hands the gain to the referral distributor in the background.
func (g *Game) distribute(ctx context.Context, userId primitive.ObjectID, xp int64, source string) {
	if g.rewards == nil {
		return
	}
	ev := referral.XPEvent{
		EventId: uuid.NewString(),
		UserId:  userId,
		Amount:  xp,
		Source:  source,
	}
	ctx = context.WithoutCancel(ctx)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		_, err := g.rewards.DistributeReward(ctx, ev)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.log.With(
				slog.String("event_id", ev.EventId),
				sl.Id("user", userId),
				slog.String("source", source),
			).Error("referral rewards not distributed", sl.Err(err))
		}
	}()
}

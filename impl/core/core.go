package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"tapearn/entity"
	"tapearn/internal/referral"
	"tapearn/lib/sl"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrForbidden = errors.New("forbidden")

type AuthService interface {
	UserByInitData(ctx context.Context, raw string) (*entity.User, error)
}

type ReferralService interface {
	GenerateReferralCode(ctx context.Context, userId primitive.ObjectID) (*entity.ReferralLink, error)
	ApplyReferralCode(ctx context.Context, userId primitive.ObjectID, code string) (*entity.ApplyResult, error)
	GetReferralStats(ctx context.Context, userId primitive.ObjectID) (*entity.ReferralStats, error)
	GetUserReferralRewards(ctx context.Context, userId primitive.ObjectID) (*entity.UserReferralRewards, error)
	CheckIntegrity(ctx context.Context) (*referral.Report, error)
}

type GameService interface {
	RegisterTelegramUser(ctx context.Context, profile *entity.TelegramProfile) (*entity.User, error)
	UserByTelegramId(ctx context.Context, telegramId int64) (*entity.User, error)
	Tap(ctx context.Context, userId primitive.ObjectID, count int64) (*entity.TapResult, error)
	ClaimDaily(ctx context.Context, userId primitive.ObjectID) (*entity.DailyClaimResult, error)
	DailyStatus(ctx context.Context, userId primitive.ObjectID) (*entity.DailyStatus, error)
	Profile(ctx context.Context, userId primitive.ObjectID) (*entity.Profile, error)
	UpdateProfile(ctx context.Context, userId primitive.ObjectID, update *entity.ProfileUpdate) (*entity.Profile, error)
}

// Core is the single entry point used by the HTTP api and the bot.
type Core struct {
	referral ReferralService
	game     GameService
	auth     AuthService
	log      *slog.Logger
}

func New(ref ReferralService, game GameService, log *slog.Logger) *Core {
	if ref == nil || game == nil {
		panic("referral and game services are required")
	}
	return &Core{
		referral: ref,
		game:     game,
		log:      log.With(sl.Module("core")),
	}
}

func (c *Core) SetAuthService(auth AuthService) {
	c.auth = auth
}

func (c *Core) AuthenticateByInitData(ctx context.Context, raw string) (*entity.User, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("auth service not connected")
	}
	return c.auth.UserByInitData(ctx, raw)
}

func (c *Core) RegisterTelegramUser(ctx context.Context, profile *entity.TelegramProfile) (*entity.User, error) {
	return c.game.RegisterTelegramUser(ctx, profile)
}

func (c *Core) UserByTelegramId(ctx context.Context, telegramId int64) (*entity.User, error) {
	return c.game.UserByTelegramId(ctx, telegramId)
}

func (c *Core) GenerateReferralCode(ctx context.Context, user *entity.User) (*entity.ReferralLink, error) {
	return c.referral.GenerateReferralCode(ctx, user.Id)
}

func (c *Core) ApplyReferralCode(ctx context.Context, user *entity.User, code string) (*entity.ApplyResult, error) {
	return c.referral.ApplyReferralCode(ctx, user.Id, code)
}

func (c *Core) ReferralStats(ctx context.Context, user *entity.User) (*entity.ReferralStats, error) {
	return c.referral.GetReferralStats(ctx, user.Id)
}

// ReferralRewards lists the rewards paid out of the activity of telegramId,
// which must be the requesting user.
func (c *Core) ReferralRewards(ctx context.Context, user *entity.User, telegramId int64) (*entity.UserReferralRewards, error) {
	if user.TelegramId != telegramId {
		return nil, fmt.Errorf("%w: rewards of another user", ErrForbidden)
	}
	return c.referral.GetUserReferralRewards(ctx, user.Id)
}

func (c *Core) CheckIntegrity(ctx context.Context) (*referral.Report, error) {
	return c.referral.CheckIntegrity(ctx)
}

func (c *Core) Tap(ctx context.Context, user *entity.User, count int64) (*entity.TapResult, error) {
	return c.game.Tap(ctx, user.Id, count)
}

func (c *Core) ClaimDaily(ctx context.Context, user *entity.User) (*entity.DailyClaimResult, error) {
	return c.game.ClaimDaily(ctx, user.Id)
}

func (c *Core) DailyStatus(ctx context.Context, user *entity.User) (*entity.DailyStatus, error) {
	return c.game.DailyStatus(ctx, user.Id)
}

func (c *Core) Profile(ctx context.Context, user *entity.User) (*entity.Profile, error) {
	return c.game.Profile(ctx, user.Id)
}

func (c *Core) UpdateProfile(ctx context.Context, user *entity.User, update *entity.ProfileUpdate) (*entity.Profile, error) {
	return c.game.UpdateProfile(ctx, user.Id, update)
}

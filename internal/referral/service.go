package referral

import (
	"context"
	"fmt"
	"log/slog"
	"tapearn/entity"
	"tapearn/internal/metrics"
	"tapearn/lib/sl"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Config struct {
	BotUsername  string
	MaxTier      int
	ScanDepth    int
	CodeLength   int
	CodeAttempts int
	Retry        RetryPolicy
	// Generator overrides the default uuid based code generator.
	Generator CodeGenerator
}

// Service is the referral subsystem as seen by transports and gameplay.
type Service struct {
	store       Store
	chain       ChainResolver
	codes       CodeRegistry
	distributor *Distributor
	retry       RetryPolicy
	botUsername string
	now         func() time.Time
	log         *slog.Logger
}

func NewService(store Store, conf Config, log *slog.Logger) *Service {
	generator := conf.Generator
	if generator == nil {
		generator = UUIDCodeGenerator(conf.CodeLength)
	}
	return &Service{
		store:       store,
		chain:       NewChainResolver(conf.MaxTier, conf.ScanDepth),
		codes:       NewCodeRegistry(generator, conf.CodeAttempts),
		distributor: NewDistributor(store, conf.Retry, log),
		retry:       conf.Retry,
		botUsername: conf.BotUsername,
		now:         time.Now,
		log:         log.With(sl.Module("referral")),
	}
}

// SetClock replaces the time source used for edge and reward timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.distributor.now = now
}

// Link is the bot deep link that starts the bot with the code as payload.
func (s *Service) Link(code string) string {
	if code == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/%s?start=%s", s.botUsername, code)
}

func (s *Service) GenerateReferralCode(ctx context.Context, userId primitive.ObjectID) (*entity.ReferralLink, error) {
	var code string
	_, err := s.retry.Run(ctx, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			c, err := s.codes.Allocate(ctx, tx, userId)
			if err != nil {
				return err
			}
			code = c
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.With(
		sl.Id("user", userId),
		slog.String("code", code),
	).Debug("referral code issued")
	metrics.CodeIssuedInc()
	return &entity.ReferralLink{Code: code, Link: s.Link(code)}, nil
}

func (s *Service) DistributeReward(ctx context.Context, ev XPEvent) (*Distribution, error) {
	return s.distributor.Distribute(ctx, ev)
}

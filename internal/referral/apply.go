package referral

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"tapearn/entity"
	"tapearn/internal/metrics"
	"tapearn/lib/sl"
	"tapearn/lib/validate"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ApplyReferralCode attaches userId below the owner of code and materializes
// one edge per ancestor up to the maximum tier. A user can be referred once.
func (s *Service) ApplyReferralCode(ctx context.Context, userId primitive.ObjectID, code string) (*entity.ApplyResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := validate.ReferralCode(code); err != nil {
		return nil, validationError("%v", err)
	}

	var result *entity.ApplyResult
	_, err := s.retry.Run(ctx, func(ctx context.Context) error {
		result = nil
		return s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			r, err := s.apply(ctx, tx, userId, code)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	})
	if err != nil {
		if IsCallerError(err) {
			s.log.With(
				sl.Id("user", userId),
				slog.String("code", code),
				slog.String("reason", err.Error()),
			).Debug("referral code rejected")
		}
		metrics.ReferralApplyInc(applyOutcome(err))
		return nil, err
	}
	metrics.ReferralApplyInc(applyOutcome(nil))
	return result, nil
}

func (s *Service) apply(ctx context.Context, tx Tx, userId primitive.ObjectID, code string) (*entity.ApplyResult, error) {
	user, err := tx.UserById(ctx, userId)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, notFoundError("user %s", userId.Hex())
	}
	if user.HasReferrer() {
		return nil, conflictError("you have already used a referral code")
	}
	hasEdge, err := tx.HasInboundEdge(ctx, userId)
	if err != nil {
		return nil, err
	}
	if hasEdge {
		return nil, conflictError("you have already used a referral code")
	}

	referrer, err := tx.UserByReferralCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if referrer == nil {
		return nil, notFoundError("referral code %s", code)
	}
	if referrer.Id == userId {
		return nil, validationError("cannot use your own referral code")
	}

	resolution, err := s.chain.Resolve(ctx, tx, referrer.Id, userId)
	if err != nil {
		if resolution != nil {
			s.log.With(
				sl.Id("user", userId),
				sl.Id("referrer", referrer.Id),
				slog.String("stop", resolution.Stop.String()),
			).Warn("referral chain rejected")
		}
		return nil, err
	}
	if resolution.Stop == StopMissingNode {
		s.log.With(
			sl.Id("user", userId),
			slog.Int("links", len(resolution.Links)),
		).Warn("referral chain has a missing ancestor, partial chain kept")
	}

	now := s.now().UTC()
	edges := make([]*entity.ReferralEdge, 0, len(resolution.Links))
	chain := make([]primitive.ObjectID, 0, len(resolution.Links))
	for _, link := range resolution.Links {
		edges = append(edges, &entity.ReferralEdge{
			Referrer:     link.UserId,
			Referred:     userId,
			Code:         code,
			Tier:         link.Tier,
			DateReferred: now,
			IsActive:     true,
		})
		chain = append(chain, link.UserId)
	}

	linked, err := tx.SetReferredBy(ctx, userId, referrer.Id, chain)
	if err != nil {
		return nil, err
	}
	if !linked {
		return nil, conflictError("you have already used a referral code")
	}
	if err = tx.InsertEdges(ctx, edges); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, conflictError("you have already used a referral code")
		}
		return nil, err
	}
	if err = tx.AddDirectReferral(ctx, referrer.Id, userId); err != nil {
		return nil, err
	}

	result := &entity.ApplyResult{
		Referrer: entity.ReferrerSummary{
			Username:   referrer.Username,
			TelegramId: referrer.TelegramId,
			Tier:       1,
		},
	}
	for _, link := range resolution.Links {
		member := entity.ChainMember{Tier: link.Tier}
		if link.UserId == referrer.Id {
			member.Username = referrer.Username
		} else {
			ancestor, err := tx.UserById(ctx, link.UserId)
			if err != nil {
				return nil, err
			}
			if ancestor != nil {
				member.Username = ancestor.Username
			}
		}
		result.Chain = append(result.Chain, member)
	}

	s.log.With(
		slog.Int64("telegram_id", user.TelegramId),
		slog.String("code", code),
		slog.Int("tiers", len(edges)),
	).Info("referral code applied")
	return result, nil
}

func applyOutcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

package referral

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"tapearn/entity"
	"tapearn/internal/http-server/handlers/problem"
	"tapearn/lib/api/cont"
	"tapearn/lib/api/response"
	"tapearn/lib/sl"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Core interface {
	GenerateReferralCode(ctx context.Context, user *entity.User) (*entity.ReferralLink, error)
	ApplyReferralCode(ctx context.Context, user *entity.User, code string) (*entity.ApplyResult, error)
	ReferralStats(ctx context.Context, user *entity.User) (*entity.ReferralStats, error)
	ReferralRewards(ctx context.Context, user *entity.User, telegramId int64) (*entity.UserReferralRewards, error)
}

func requestLogger(log *slog.Logger, r *http.Request, user *entity.User) *slog.Logger {
	return log.With(
		sl.Module("http.handlers.referral"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Int64("telegram_id", user.TelegramId),
	)
}

func GenerateCode(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := cont.GetUser(r.Context())
		logger := requestLogger(log, r, user)

		link, err := handler.GenerateReferralCode(r.Context(), user)
		if err != nil {
			problem.Render(w, r, logger, "generate referral code", err)
			return
		}
		logger.With(slog.String("code", link.Code)).Debug("referral code issued")

		render.JSON(w, r, response.Ok(link))
	}
}

func ApplyCode(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := cont.GetUser(r.Context())
		logger := requestLogger(log, r, user)

		var req entity.ApplyCodeRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Debug("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		logger = logger.With(slog.String("code", req.ReferralCode))

		result, err := handler.ApplyReferralCode(r.Context(), user, req.ReferralCode)
		if err != nil {
			problem.Render(w, r, logger, "apply referral code", err)
			return
		}
		logger.With(slog.Int("chain", len(result.Chain))).Info("referral code applied")

		render.JSON(w, r, response.Ok(result))
	}
}

func Stats(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := cont.GetUser(r.Context())
		logger := requestLogger(log, r, user)

		stats, err := handler.ReferralStats(r.Context(), user)
		if err != nil {
			problem.Render(w, r, logger, "referral stats", err)
			return
		}

		render.JSON(w, r, response.Ok(stats))
	}
}

func Rewards(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := cont.GetUser(r.Context())
		logger := requestLogger(log, r, user)

		telegramId, err := strconv.ParseInt(chi.URLParam(r, "telegramId"), 10, 64)
		if err != nil || telegramId <= 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid telegram id"))
			return
		}

		rewards, err := handler.ReferralRewards(r.Context(), user, telegramId)
		if err != nil {
			problem.Render(w, r, logger, "referral rewards", err)
			return
		}

		render.JSON(w, r, response.Ok(rewards))
	}
}

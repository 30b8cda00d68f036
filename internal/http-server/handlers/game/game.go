package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"tapearn/entity"
	"tapearn/internal/gameplay"
	"tapearn/internal/http-server/handlers/problem"
	"tapearn/lib/api/cont"
	"tapearn/lib/api/response"
	"tapearn/lib/clock"
	"tapearn/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Core interface {
	Tap(ctx context.Context, user *entity.User, count int64) (*entity.TapResult, error)
	ClaimDaily(ctx context.Context, user *entity.User) (*entity.DailyClaimResult, error)
	DailyStatus(ctx context.Context, user *entity.User) (*entity.DailyStatus, error)
	Profile(ctx context.Context, user *entity.User) (*entity.Profile, error)
	UpdateProfile(ctx context.Context, user *entity.User, update *entity.ProfileUpdate) (*entity.Profile, error)
}

func requestLogger(log *slog.Logger, r *http.Request, user *entity.User) *slog.Logger {
	return log.With(
		sl.Module("http.handlers.game"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Int64("telegram_id", user.TelegramId),
	)
}

func Tap(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := cont.GetUser(r.Context())
		logger := requestLogger(log, r, user)

		req := entity.TapRequest{Count: 1}
		if r.ContentLength != 0 {
			if err := render.Bind(r, &req); err != nil {
				logger.Debug("bind request", sl.Err(err))
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
				return
			}
		}

		result, err := handler.Tap(r.Context(), user, req.Count)
		if err != nil {
			problem.Render(w, r, logger.With(slog.Int64("count", req.Count)), "tap", err)
			return
		}

		render.JSON(w, r, response.Ok(result))
	}
}

func ClaimDaily(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := cont.GetUser(r.Context())
		logger := requestLogger(log, r, user)

		result, err := handler.ClaimDaily(r.Context(), user)
		if err != nil {
			var early *gameplay.ClaimTooEarlyError
			if errors.As(err, &early) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.Error(fmt.Sprintf("Daily reward already claimed, next claim at %s", clock.Format(early.Next))))
				return
			}
			problem.Render(w, r, logger, "claim daily", err)
			return
		}
		logger.With(slog.Int("streak", result.CheckInStreak)).Debug("daily reward claimed")

		render.JSON(w, r, response.Ok(result))
	}
}

func DailyStatus(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := cont.GetUser(r.Context())
		logger := requestLogger(log, r, user)

		status, err := handler.DailyStatus(r.Context(), user)
		if err != nil {
			problem.Render(w, r, logger, "daily status", err)
			return
		}

		render.JSON(w, r, response.Ok(status))
	}
}

func Profile(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := cont.GetUser(r.Context())
		logger := requestLogger(log, r, user)

		profile, err := handler.Profile(r.Context(), user)
		if err != nil {
			problem.Render(w, r, logger, "profile", err)
			return
		}

		render.JSON(w, r, response.Ok(profile))
	}
}

func UpdateProfile(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := cont.GetUser(r.Context())
		logger := requestLogger(log, r, user)

		var update entity.ProfileUpdate
		if err := render.Bind(r, &update); err != nil {
			logger.Debug("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}

		profile, err := handler.UpdateProfile(r.Context(), user, &update)
		if err != nil {
			problem.Render(w, r, logger, "update profile", err)
			return
		}

		render.JSON(w, r, response.Ok(profile))
	}
}

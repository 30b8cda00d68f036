package authenticate

import (
	"context"
	"errors"
	"fmt"
	"tapearn/entity"
	"tapearn/internal/metrics"
	"tapearn/lib/api/cont"
	"tapearn/lib/api/response"
	"tapearn/lib/sl"
	"tapearn/lib/tgauth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"log/slog"
	"net/http"

	"strings"
	"time"
)

const (
	HeaderInitData = "X-Telegram-Init-Data"
	authScheme     = "tma "
)

type Authenticate interface {
	AuthenticateByInitData(ctx context.Context, raw string) (*entity.User, error)
}

func New(log *slog.Logger, auth Authenticate) func(next http.Handler) http.Handler {
	mod := sl.Module("middleware.authenticate")
	log.With(mod).Info("authenticate middleware initialized")

	return func(next http.Handler) http.Handler {

		fn := func(w http.ResponseWriter, r *http.Request) {
			id := middleware.GetReqID(r.Context())
			remote := r.RemoteAddr
			// if the request is coming from a proxy, use the X-Forwarded-For header
			xRemote := r.Header.Get("X-Forwarded-For")
			if xRemote != "" {
				remote = xRemote
			}
			logger := log.With(
				mod,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", remote),
				slog.String("request_id", id),
			)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			t1 := time.Now()
			defer func() {
				logger.With(
					slog.Int("status", ww.Status()),
					slog.Int("size", ww.BytesWritten()),
					slog.Float64("duration", time.Since(t1).Seconds()),
				).Info("incoming request")
				metrics.APIRequestAndTime(routePattern(r), ww.Status(), time.Since(t1).Seconds())
			}()

			raw := initData(r)
			if raw == "" {
				logger = logger.With(sl.Err(fmt.Errorf("init data not found")))
				authFailed(ww, r, "Telegram init data not found")
				return
			}
			logger = logger.With(sl.Secret("init_data", raw))

			if auth == nil {
				authFailed(ww, r, "Unauthorized: authentication not enabled")
				return
			}

			user, err := auth.AuthenticateByInitData(r.Context(), raw)
			if err != nil {
				logger = logger.With(sl.Err(err))
				if errors.Is(err, tgauth.ErrExpired) {
					authFailed(ww, r, "Unauthorized: init data expired")
					return
				}
				authFailed(ww, r, "Unauthorized: invalid init data")
				return
			}
			logger = logger.With(
				slog.String("user", user.Username),
				slog.Int64("telegram_id", user.TelegramId),
			)
			ctx := cont.PutUser(r.Context(), user)

			ww.Header().Set("X-Request-ID", id)
			ww.Header().Set("X-User", user.Username)
			next.ServeHTTP(ww, r.WithContext(ctx))
		}

		return http.HandlerFunc(fn)
	}
}

// initData reads the raw init data from the dedicated header or from an
// "Authorization: tma <data>" header.
func initData(r *http.Request) string {
	if raw := r.Header.Get(HeaderInitData); raw != "" {
		return raw
	}
	header := r.Header.Get("Authorization")
	if len(header) > len(authScheme) && strings.EqualFold(header[:len(authScheme)], authScheme) {
		return strings.TrimSpace(header[len(authScheme):])
	}
	return ""
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func authFailed(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, response.Fail(http.StatusUnauthorized, message))
}

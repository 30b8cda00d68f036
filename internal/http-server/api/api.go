package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"tapearn/internal/config"
	handlerErrors "tapearn/internal/http-server/handlers/errors"
	"tapearn/internal/http-server/handlers/game"
	"tapearn/internal/http-server/handlers/referral"
	"tapearn/internal/metrics"
	"tapearn/lib/api/response"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"tapearn/internal/http-server/middleware/authenticate"
	"tapearn/internal/http-server/middleware/timeout"
	"tapearn/lib/sl"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	referral.Core
	game.Core
}

func NewRouter(log *slog.Logger, handler Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(timeout.Timeout(5 * time.Second))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(handlerErrors.NotFound(log))
	router.MethodNotAllowed(handlerErrors.NotAllowed(log))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, response.Ok("ok"))
	})
	router.Handle("/metrics", metrics.Handler())

	router.Route("/api", func(rootApi chi.Router) {
		rootApi.Use(authenticate.New(log, handler))
		rootApi.Route("/referral", func(ref chi.Router) {
			ref.Post("/generate-code", referral.GenerateCode(log, handler))
			ref.Post("/apply-code", referral.ApplyCode(log, handler))
			ref.Get("/stats", referral.Stats(log, handler))
			ref.Get("/rewards/{telegramId}", referral.Rewards(log, handler))
		})
		rootApi.Route("/user", func(user chi.Router) {
			user.Post("/tap", game.Tap(log, handler))
			user.Post("/claim-daily-xp", game.ClaimDaily(log, handler))
			user.Get("/daily-status", game.DailyStatus(log, handler))
			user.Get("/profile", game.Profile(log, handler))
			user.Put("/profile", game.UpdateProfile(log, handler))
		})
	})

	return router
}

func New(conf *config.Config, log *slog.Logger, handler Handler) *Server {
	server := &Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:      NewRouter(log, handler),
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server
}

// Start blocks until the server is shut down; a graceful shutdown returns nil.
func (s *Server) Start() error {
	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIp, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	s.log.Info("starting api server", slog.String("address", serverAddress))

	err = s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down api server")
	return s.httpServer.Shutdown(ctx)
}

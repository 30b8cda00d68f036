package errors

import (
	"log/slog"
	"net/http"
	"tapearn/lib/api/response"
	"tapearn/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

func NotFound(log *slog.Logger) http.HandlerFunc {
	return fallback(log, http.StatusNotFound, "Requested resource not found")
}

func NotAllowed(log *slog.Logger) http.HandlerFunc {
	return fallback(log, http.StatusMethodNotAllowed, "Method not allowed")
}

func fallback(log *slog.Logger, status int, message string) http.HandlerFunc {
	logger := log.With(sl.Module("http.handlers.errors"))
	return func(w http.ResponseWriter, r *http.Request) {
		logger.With(
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		).Debug(message)

		render.Status(r, status)
		render.JSON(w, r, response.Fail(status, message))
	}
}

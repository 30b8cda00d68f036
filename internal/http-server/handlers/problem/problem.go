package problem

import (
	"errors"
	"log/slog"
	"net/http"
	"tapearn/impl/core"
	"tapearn/internal/referral"
	"tapearn/lib/api/response"
	"tapearn/lib/sl"

	"github.com/go-chi/render"
)

// Status maps a service error to the HTTP status the client receives.
func Status(err error) int {
	switch {
	case errors.Is(err, referral.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, referral.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, referral.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Render writes err as an error response. Client errors carry their message,
// anything else is logged and answered with a generic text.
func Render(w http.ResponseWriter, r *http.Request, logger *slog.Logger, action string, err error) {
	status := Status(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error(action, sl.Err(err))
		message = "Internal error, please try again later"
	} else {
		logger.Debug(action, sl.Err(err))
	}
	render.Status(r, status)
	render.JSON(w, r, response.Fail(status, message))
}

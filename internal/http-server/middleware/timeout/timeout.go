package timeout

import (
	"context"
	"errors"
	"net/http"
	"tapearn/lib/api/response"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Timeout bounds the request context by d. A handler that gives up on the
// expired context without writing anything is answered with 504.
func Timeout(d time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			r = r.WithContext(ctx)
			next.ServeHTTP(ww, r)

			if errors.Is(ctx.Err(), context.DeadlineExceeded) && ww.Status() == 0 {
				render.Status(r, http.StatusGatewayTimeout)
				render.JSON(ww, r, response.Fail(http.StatusGatewayTimeout, "Request timed out"))
			}
		}
		return http.HandlerFunc(fn)
	}
}

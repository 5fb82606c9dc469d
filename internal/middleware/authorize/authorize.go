package authorize

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	resp "rollout_service/internal/lib/api/response"
	sl "rollout_service/internal/lib/logger"
	"rollout_service/internal/models"

	"github.com/go-chi/render"
)

type ctxKey int

const tokenKey ctxKey = 0

// TokenResolver maps a bearer token to its row. Expiry is NOT checked by the
// resolver; this middleware owns that check.
type TokenResolver interface {
	Resolve(ctx context.Context, bearerToken string) (models.AccessToken, error)
}

// New rejects requests without a resolvable, unexpired bearer token with 401
// before any protected handler runs.
func New(log *slog.Logger, resolver TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.authorize.New"

			bearer := bearerToken(r)
			if bearer == "" {
				unauthorized(w, r)
				return
			}

			t, err := resolver.Resolve(r.Context(), bearer)
			if err != nil {
				log.Info("token rejected", slog.String("op", op), sl.Err(err))
				unauthorized(w, r)
				return
			}

			if t.Expired(time.Now()) {
				log.Info("token expired", slog.String("op", op), slog.Int64("uid", t.UserID))
				unauthorized(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), tokenKey, t),
			))
		})
	}
}

// FromContext returns the access token stored by the middleware.
func FromContext(ctx context.Context) (models.AccessToken, bool) {
	t, ok := ctx.Value(tokenKey).(models.AccessToken)
	return t, ok
}

// NewContext stores an access token the way the middleware does.
func NewContext(ctx context.Context, t models.AccessToken) context.Context {
	return context.WithValue(ctx, tokenKey, t)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}

	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, resp.Error("Unauthorized"))
}

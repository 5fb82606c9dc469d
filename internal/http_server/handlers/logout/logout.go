package logout

import (
	"log/slog"
	"net/http"

	"rollout_service/internal/auth"
	resp "rollout_service/internal/lib/api/response"
	sl "rollout_service/internal/lib/logger"
	"rollout_service/internal/middleware/authorize"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

// New handles DELETE /apis/users/token: revoke the caller's access token.
// Revocation is idempotent, so a second logout still answers OK.
func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		t, ok := authorize.FromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Unauthorized"))

			return
		}

		if err := authService.Revoke(r.Context(), t.UserID); err != nil {
			log.Error("failed to revoke token", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("user logged out successfully")

		render.JSON(w, r, resp.OK())
	}
}

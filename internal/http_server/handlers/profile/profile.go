package profile

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"rollout_service/internal/auth"
	resp "rollout_service/internal/lib/api/response"
	sl "rollout_service/internal/lib/logger"
	"rollout_service/internal/middleware/authorize"
	"rollout_service/internal/models"
	"rollout_service/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Data models.User `json:"data"`
}

// NewGet handles GET /apis/users: the caller's own record, without the
// password hash.
func NewGet(log *slog.Logger, authService *auth.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.profile.NewGet"

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

		user, err := authService.User(r.Context(), t.UserID)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to load user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Data:     user,
		})
	}
}

// NewUpdate handles PATCH /apis/users. The request body is decoded into
// models.UserUpdate, so only allow-listed fields can reach storage; any
// unknown field is a hard 400.
func NewUpdate(log *slog.Logger, authService *auth.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.profile.NewUpdate"

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

		var upd models.UserUpdate

		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&upd); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("id, password, admin, email, or created cannot be updated"))

			return
		}

		if upd.Empty() {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("No updatable fields provided"))

			return
		}

		user, err := authService.UpdateUser(r.Context(), t.UserID, upd)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to update user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("user updated", slog.Int64("uid", t.UserID))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Data:     user,
		})
	}
}

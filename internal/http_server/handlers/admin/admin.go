package admin

import (
	"context"
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
	"github.com/go-playground/validator/v10"
)

type ListResponse[T any] struct {
	resp.Response
	Data []T `json:"data"`
}

// NewLogs handles GET /apis/admin/logs.
func NewLogs(log *slog.Logger, authService *auth.Auth) http.HandlerFunc {
	return listHandler(log, "handlers.admin.NewLogs", func(ctx context.Context, uid int64) ([]models.LogEntry, error) {
		return authService.Logs(ctx, uid)
	})
}

// NewUsers handles GET /apis/admin/users.
func NewUsers(log *slog.Logger, authService *auth.Auth) http.HandlerFunc {
	return listHandler(log, "handlers.admin.NewUsers", func(ctx context.Context, uid int64) ([]models.User, error) {
		return authService.Users(ctx, uid)
	})
}

// NewAdmins handles GET /apis/admin/admins.
func NewAdmins(log *slog.Logger, authService *auth.Auth) http.HandlerFunc {
	return listHandler(log, "handlers.admin.NewAdmins", func(ctx context.Context, uid int64) ([]models.User, error) {
		return authService.AdminUsers(ctx, uid)
	})
}

type SetAdminRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// NewSetAdmin handles POST /apis/admin/addadmin and
// POST /apis/admin/revokeadmin, differing only in the flag value.
func NewSetAdmin(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
	admin bool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.admin.NewSetAdmin"

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

		var req SetAdminRequest

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		if err := authService.SetAdminStatus(r.Context(), t.UserID, req.Email, admin); err != nil {
			writeGateError(w, r, log, err)

			return
		}

		log.Info("admin status changed", slog.String("target", req.Email), slog.Bool("admin", admin))

		render.JSON(w, r, resp.OK())
	}
}

func listHandler[T any](
	log *slog.Logger,
	op string,
	load func(ctx context.Context, actingUserID int64) ([]T, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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

		data, err := load(r.Context(), t.UserID)
		if err != nil {
			writeGateError(w, r, log, err)

			return
		}

		render.JSON(w, r, ListResponse[T]{
			Response: resp.OK(),
			Data:     data,
		})
	}
}

// writeGateError maps AdminGate outcomes onto status codes: non-admin
// callers get 403, unresolvable ids get 404, the rest is a generic 500.
func writeGateError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, resp.Error("User does not have admin access"))
	case errors.Is(err, storage.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error("User with given userId not found"))
	default:
		log.Error("admin operation failed", sl.Err(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, resp.Error("Internal error"))
	}
}

package forgot

import (
	"errors"
	"log/slog"
	"net/http"

	resp "rollout_service/internal/lib/api/response"
	sl "rollout_service/internal/lib/logger"
	"rollout_service/internal/reset"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type RequestBody struct {
	Email string `json:"email" validate:"required,email"`
}

// NewRequest handles POST /api/forgot/request: supersede any pending reset
// for the email and mail a fresh link.
func NewRequest(
	log *slog.Logger,
	validate *validator.Validate,
	flow *reset.Flow,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.forgot.NewRequest"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req RequestBody

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

		if err := flow.Request(r.Context(), req.Email); err != nil {
			if errors.Is(err, reset.ErrEmailRequired) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("An email must be provided"))

				return
			}

			log.Error("failed to create reset request", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Could not send a reset link; please try again later"))

			return
		}

		log.Info("reset link requested")

		render.JSON(w, r, resp.OK())
	}
}

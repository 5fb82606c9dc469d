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

type ResetBody struct {
	ID       string `json:"id" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// NewReset handles POST /api/forgot/reset: consume the mailed id and set the
// new password. All rejection reasons map to one generic message.
func NewReset(
	log *slog.Logger,
	validate *validator.Validate,
	flow *reset.Flow,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.forgot.NewReset"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req ResetBody

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

		if err := flow.Consume(r.Context(), req.ID, req.Password); err != nil {
			if errors.Is(err, reset.ErrInvalidOrExpired) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Reset link is invalid or has expired"))

				return
			}

			log.Error("failed to consume reset request", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("password reset")

		render.JSON(w, r, resp.OK())
	}
}

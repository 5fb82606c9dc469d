package forgot

import (
	"log/slog"
	"net/http"

	resp "rollout_service/internal/lib/api/response"
	sl "rollout_service/internal/lib/logger"
	"rollout_service/internal/reset"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type CheckBody struct {
	Email string `json:"email" validate:"required,email"`
}

type CheckResponse struct {
	resp.Response
	Exists bool `json:"exists"`
}

// NewCheck handles POST /api/forgot/check, an existence probe the client
// runs before offering a reset. It always answers 200 with exists true or
// false; internal failures read as false.
func NewCheck(
	log *slog.Logger,
	validate *validator.Validate,
	flow *reset.Flow,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.forgot.NewCheck"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req CheckBody

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

		exists := flow.CheckEmail(r.Context(), req.Email)

		render.JSON(w, r, CheckResponse{
			Response: resp.OK(),
			Exists:   exists,
		})
	}
}

package token

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"rollout_service/internal/auth"
	sl "rollout_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

// Response is the OAuth2 token body returned on a successful password grant.
type Response struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ErrorResponse follows the OAuth2 error body convention rather than the
// service-wide envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// New handles POST /oauth/token for grant_type=password. Client credentials
// are taken from HTTP Basic auth or, failing that, the form body.
func New(log *slog.Logger, authService *auth.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.token.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if err := r.ParseForm(); err != nil {
			log.Error("failed to parse form", sl.Err(err))

			oauthError(w, r, http.StatusBadRequest, "invalid_request")

			return
		}

		if r.PostFormValue("grant_type") != "password" {
			oauthError(w, r, http.StatusBadRequest, "unsupported_grant_type")

			return
		}

		clientID, clientSecret, ok := r.BasicAuth()
		if !ok {
			clientID = r.PostFormValue("client_id")
			clientSecret = r.PostFormValue("client_secret")
		}

		username := r.PostFormValue("username")
		password := r.PostFormValue("password")
		if username == "" || password == "" {
			oauthError(w, r, http.StatusBadRequest, "invalid_request")

			return
		}

		t, err := authService.Grant(r.Context(), username, password, clientID, clientSecret)
		if err != nil {
			if errors.Is(err, auth.ErrNoSuchClient) {
				oauthError(w, r, http.StatusUnauthorized, "invalid_client")

				return
			}
			if errors.Is(err, auth.ErrInvalidCredentials) {
				oauthError(w, r, http.StatusBadRequest, "invalid_grant")

				return
			}

			log.Error("failed to grant token", sl.Err(err))

			oauthError(w, r, http.StatusInternalServerError, "server_error")

			return
		}

		log.Info("token granted")

		render.JSON(w, r, Response{
			AccessToken: t.Token,
			TokenType:   "Bearer",
			ExpiresIn:   int64(time.Until(t.ExpiresAt).Seconds()),
		})
	}
}

func oauthError(w http.ResponseWriter, r *http.Request, status int, code string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: code})
}

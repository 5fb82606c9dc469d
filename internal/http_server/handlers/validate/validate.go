package validate

import (
	"net/http"

	"github.com/go-chi/render"
)

type Response struct {
	Authorized bool `json:"authorized"`
}

// New answers GET /oauth/validate. The authorization middleware has already
// resolved the bearer token by the time this runs, so reaching it at all
// means the caller is authorized.
func New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, Response{Authorized: true})
	}
}

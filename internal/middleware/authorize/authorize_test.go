package authorize_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rollout_service/internal/auth"
	"rollout_service/internal/middleware/authorize"
	"rollout_service/internal/models"
)

type stubResolver struct {
	tokens map[string]models.AccessToken
}

func (s *stubResolver) Resolve(ctx context.Context, bearerToken string) (models.AccessToken, error) {
	t, ok := s.tokens[bearerToken]
	if !ok {
		return models.AccessToken{}, auth.ErrInvalidToken
	}
	return t, nil
}

func newProtected(resolver authorize.TokenResolver, captured *models.AccessToken) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t, ok := authorize.FromContext(r.Context()); ok && captured != nil {
			*captured = t
		}
		w.WriteHeader(http.StatusOK)
	})

	return authorize.New(log, resolver)(next)
}

func TestRejectsWithoutToken(t *testing.T) {
	handler := newProtected(&stubResolver{}, nil)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc123"},
		{"unknown token", "Bearer nope"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/apis/users", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			if res.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", res.Code)
			}
		})
	}
}

func TestRejectsExpiredToken(t *testing.T) {
	resolver := &stubResolver{tokens: map[string]models.AccessToken{
		"stale": {Token: "stale", UserID: 1, ExpiresAt: time.Now().Add(-time.Minute)},
	}}
	handler := newProtected(resolver, nil)

	req := httptest.NewRequest(http.MethodGet, "/apis/users", nil)
	req.Header.Set("Authorization", "Bearer stale")

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expired token must be rejected, got %d", res.Code)
	}
}

func TestPassesValidToken(t *testing.T) {
	issued := models.AccessToken{Token: "good", ClientID: "rollout", UserID: 7, ExpiresAt: time.Now().Add(time.Hour)}
	resolver := &stubResolver{tokens: map[string]models.AccessToken{"good": issued}}

	var captured models.AccessToken
	handler := newProtected(resolver, &captured)

	req := httptest.NewRequest(http.MethodGet, "/apis/users", nil)
	req.Header.Set("Authorization", "Bearer good")

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if captured.UserID != issued.UserID {
		t.Fatalf("token not passed through context: %+v", captured)
	}
}

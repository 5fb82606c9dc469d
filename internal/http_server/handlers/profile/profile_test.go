package profile_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rollout_service/internal/auth"
	"rollout_service/internal/http_server/handlers/profile"
	"rollout_service/internal/middleware/authorize"
	"rollout_service/internal/models"
	"rollout_service/internal/storage"
)

type stubUsers struct {
	user models.User
}

func (s *stubUsers) UserByEmail(ctx context.Context, email string) (models.User, error) {
	if email != s.user.Email {
		return models.User{}, storage.ErrUserNotFound
	}
	return s.user, nil
}

func (s *stubUsers) UserByID(ctx context.Context, id int64) (models.User, error) {
	if id != s.user.ID {
		return models.User{}, storage.ErrUserNotFound
	}
	return s.user, nil
}

func (s *stubUsers) PasswordHashByEmail(ctx context.Context, email string) ([]byte, error) {
	return nil, storage.ErrUserNotFound
}

func (s *stubUsers) Users(ctx context.Context) ([]models.User, error)      { return nil, nil }
func (s *stubUsers) AdminUsers(ctx context.Context) ([]models.User, error) { return nil, nil }

func (s *stubUsers) SaveUser(ctx context.Context, email, name, phone string, passHash []byte) (int64, error) {
	return 0, storage.ErrUserExists
}

func (s *stubUsers) UpdateUser(ctx context.Context, id int64, upd models.UserUpdate) error {
	if id != s.user.ID {
		return storage.ErrUserNotFound
	}
	if upd.Name != nil {
		s.user.Name = *upd.Name
	}
	if upd.Phone != nil {
		s.user.Phone = *upd.Phone
	}
	if upd.Active != nil {
		s.user.Active = *upd.Active
	}
	if upd.LastLocation != nil {
		s.user.LastLocation = upd.LastLocation
	}
	return nil
}

func (s *stubUsers) SetAdmin(ctx context.Context, email string, admin bool) error {
	return storage.ErrUserNotFound
}

func newHandlers(t *testing.T) (http.HandlerFunc, http.HandlerFunc, *stubUsers) {
	t.Helper()

	users := &stubUsers{user: models.User{
		ID:     1,
		Email:  "a@x.com",
		Name:   "Initial",
		Active: true,
	}}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	authService := auth.New(log, users, users, nil, nil, nil, models.Client{}, time.Hour)

	return profile.NewGet(log, authService), profile.NewUpdate(log, authService), users
}

func authedRequest(method, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, "/apis/users", reader)
	ctx := authorize.NewContext(req.Context(), models.AccessToken{
		Token:     "tok",
		UserID:    1,
		ExpiresAt: time.Now().Add(time.Hour),
	})

	return req.WithContext(ctx)
}

func TestGetOwnRecord(t *testing.T) {
	getHandler, _, _ := newHandlers(t)

	res := httptest.NewRecorder()
	getHandler.ServeHTTP(res, authedRequest(http.MethodGet, ""))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var body struct {
		Data models.User `json:"data"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Email != "a@x.com" {
		t.Fatalf("unexpected record: %+v", body.Data)
	}
	if strings.Contains(res.Body.String(), "password") {
		t.Fatalf("response must not carry password material: %s", res.Body.String())
	}
}

func TestGetWithoutContextToken(t *testing.T) {
	getHandler, _, _ := newHandlers(t)

	res := httptest.NewRecorder()
	getHandler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/apis/users", nil))

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestUpdateAllowListedFields(t *testing.T) {
	_, updateHandler, users := newHandlers(t)

	res := httptest.NewRecorder()
	updateHandler.ServeHTTP(res, authedRequest(http.MethodPatch,
		`{"name":"Renamed","phone":"555-0100"}`))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if users.user.Name != "Renamed" || users.user.Phone != "555-0100" {
		t.Fatalf("update not applied: %+v", users.user)
	}
}

func TestUpdateRejectsImmutableFields(t *testing.T) {
	_, updateHandler, users := newHandlers(t)

	for _, body := range []string{
		`{"admin":true}`,
		`{"password":"injected"}`,
		`{"email":"other@x.com"}`,
		`{"id":42}`,
		`{"created":"2020-01-01T00:00:00Z"}`,
		`{"name":"ok","admin":true}`,
	} {
		res := httptest.NewRecorder()
		updateHandler.ServeHTTP(res, authedRequest(http.MethodPatch, body))

		if res.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, res.Code)
		}
	}

	if users.user.Admin || users.user.Name != "Initial" {
		t.Fatalf("rejected update must not mutate: %+v", users.user)
	}
}

func TestUpdateRequiresFields(t *testing.T) {
	_, updateHandler, _ := newHandlers(t)

	res := httptest.NewRecorder()
	updateHandler.ServeHTTP(res, authedRequest(http.MethodPatch, `{}`))

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty update, got %d", res.Code)
	}
}

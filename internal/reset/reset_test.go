package reset_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"rollout_service/internal/lib/token"
	"rollout_service/internal/models"
	"rollout_service/internal/reset"
	"rollout_service/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

type stubResetStore struct {
	users     map[string]models.User
	passwords map[string][]byte
	requests  map[string]models.PasswordReset
	consumed  map[string]bool
	jobs      []models.EmailJob

	userErr error
	pubErr  error
}

func newStubResetStore() *stubResetStore {
	return &stubResetStore{
		users:     map[string]models.User{"a@x.com": {ID: 1, Email: "a@x.com"}},
		passwords: make(map[string][]byte),
		requests:  make(map[string]models.PasswordReset),
		consumed:  make(map[string]bool),
	}
}

func (s *stubResetStore) UserByEmail(ctx context.Context, email string) (models.User, error) {
	if s.userErr != nil {
		return models.User{}, s.userErr
	}

	u, ok := s.users[email]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}
	return u, nil
}

func (s *stubResetStore) UpdatePassword(ctx context.Context, email string, passHash []byte) error {
	if _, ok := s.users[email]; !ok {
		return storage.ErrUserNotFound
	}

	s.passwords[email] = passHash
	return nil
}

func (s *stubResetStore) ReplaceResetRequest(ctx context.Context, email, tokenHash string) error {
	s.requests[email] = models.PasswordReset{Email: email, TokenHash: tokenHash, CreatedAt: time.Now()}
	return nil
}

func (s *stubResetStore) ResetRequest(ctx context.Context, email string) (models.PasswordReset, error) {
	req, ok := s.requests[email]
	if !ok {
		return models.PasswordReset{}, storage.ErrResetNotFound
	}
	return req, nil
}

func (s *stubResetStore) DeleteResetRequest(ctx context.Context, email string) error {
	delete(s.requests, email)
	return nil
}

func (s *stubResetStore) MarkResetConsumed(ctx context.Context, tokenHash string, ttl time.Duration) (bool, error) {
	if s.consumed[tokenHash] {
		return false, nil
	}

	s.consumed[tokenHash] = true
	return true, nil
}

func (s *stubResetStore) SendEmailJob(ctx context.Context, job models.EmailJob) error {
	if s.pubErr != nil {
		return s.pubErr
	}

	s.jobs = append(s.jobs, job)
	return nil
}

const baseURL = "http://rollout.test"

func newFlow(store *stubResetStore, ttl time.Duration) *reset.Flow {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return reset.New(log, store, store, store, store, ttl, baseURL)
}

// mailedID extracts the urlsafe id from the last dispatched link.
func mailedID(t *testing.T, store *stubResetStore) string {
	t.Helper()

	if len(store.jobs) == 0 {
		t.Fatalf("no mail job dispatched")
	}

	link := store.jobs[len(store.jobs)-1].Link
	if !strings.HasPrefix(link, baseURL+"/forgot?id=") {
		t.Fatalf("unexpected link format: %q", link)
	}

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}

	return u.Query().Get("id")
}

func TestRequestSupersedesPrior(t *testing.T) {
	store := newStubResetStore()
	flow := newFlow(store, time.Hour)

	ctx := context.Background()

	if err := flow.Request(ctx, "a@x.com"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	first := store.requests["a@x.com"]

	if err := flow.Request(ctx, "a@x.com"); err != nil {
		t.Fatalf("second request: %v", err)
	}

	if len(store.requests) != 1 {
		t.Fatalf("expected exactly one live request, got %d", len(store.requests))
	}
	if store.requests["a@x.com"].TokenHash == first.TokenHash {
		t.Fatalf("second request should carry a fresh token")
	}
	if len(store.jobs) != 2 {
		t.Fatalf("expected 2 mail jobs, got %d", len(store.jobs))
	}
}

func TestRequestRequiresEmail(t *testing.T) {
	store := newStubResetStore()
	flow := newFlow(store, time.Hour)

	if err := flow.Request(context.Background(), ""); !errors.Is(err, reset.ErrEmailRequired) {
		t.Fatalf("expected ErrEmailRequired, got %v", err)
	}
	if len(store.requests) != 0 {
		t.Fatalf("no request should be persisted without an email")
	}
}

func TestRequestLinkDecodes(t *testing.T) {
	store := newStubResetStore()
	flow := newFlow(store, time.Hour)

	if err := flow.Request(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("request: %v", err)
	}

	email, raw, err := token.DecodeResetID(mailedID(t, store))
	if err != nil {
		t.Fatalf("decode mailed id: %v", err)
	}
	if email != "a@x.com" {
		t.Fatalf("email in link: got %q", email)
	}
	if token.Hash(raw) != store.requests["a@x.com"].TokenHash {
		t.Fatalf("stored hash does not match the mailed token")
	}
}

func TestConsumeHappyPathIsSingleUse(t *testing.T) {
	store := newStubResetStore()
	flow := newFlow(store, time.Hour)

	ctx := context.Background()

	if err := flow.Request(ctx, "a@x.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	id := mailedID(t, store)

	if err := flow.Consume(ctx, id, "newsecret"); err != nil {
		t.Fatalf("consume: %v", err)
	}

	hash, ok := store.passwords["a@x.com"]
	if !ok {
		t.Fatalf("password not updated")
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte("newsecret")); err != nil {
		t.Fatalf("stored hash does not match new password: %v", err)
	}
	if len(store.requests) != 0 {
		t.Fatalf("request row should be deleted after consume")
	}

	if err := flow.Consume(ctx, id, "again"); !errors.Is(err, reset.ErrInvalidOrExpired) {
		t.Fatalf("second consume must fail, got %v", err)
	}
}

func TestConsumeRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed id", func(t *testing.T) {
		flow := newFlow(newStubResetStore(), time.Hour)

		if err := flow.Consume(ctx, "%%%not-base64%%%", "pw"); !errors.Is(err, reset.ErrInvalidOrExpired) {
			t.Fatalf("expected ErrInvalidOrExpired, got %v", err)
		}
	})

	t.Run("no pending request", func(t *testing.T) {
		flow := newFlow(newStubResetStore(), time.Hour)

		id := token.EncodeResetID("a@x.com", "deadbeef")
		if err := flow.Consume(ctx, id, "pw"); !errors.Is(err, reset.ErrInvalidOrExpired) {
			t.Fatalf("expected ErrInvalidOrExpired, got %v", err)
		}
	})

	t.Run("token mismatch", func(t *testing.T) {
		store := newStubResetStore()
		flow := newFlow(store, time.Hour)

		if err := flow.Request(ctx, "a@x.com"); err != nil {
			t.Fatalf("request: %v", err)
		}

		id := token.EncodeResetID("a@x.com", "deadbeef")
		if err := flow.Consume(ctx, id, "pw"); !errors.Is(err, reset.ErrInvalidOrExpired) {
			t.Fatalf("expected ErrInvalidOrExpired, got %v", err)
		}
		if len(store.passwords) != 0 {
			t.Fatalf("password must not change on mismatch")
		}
	})

	t.Run("expired window", func(t *testing.T) {
		store := newStubResetStore()
		flow := newFlow(store, time.Minute)

		if err := flow.Request(ctx, "a@x.com"); err != nil {
			t.Fatalf("request: %v", err)
		}

		req := store.requests["a@x.com"]
		req.CreatedAt = time.Now().Add(-2 * time.Minute)
		store.requests["a@x.com"] = req

		if err := flow.Consume(ctx, mailedID(t, store), "pw"); !errors.Is(err, reset.ErrInvalidOrExpired) {
			t.Fatalf("expected ErrInvalidOrExpired, got %v", err)
		}
	})
}

func TestCheckEmail(t *testing.T) {
	store := newStubResetStore()
	flow := newFlow(store, time.Hour)

	ctx := context.Background()

	if !flow.CheckEmail(ctx, "a@x.com") {
		t.Fatalf("existing email reported missing")
	}
	if flow.CheckEmail(ctx, "nobody@x.com") {
		t.Fatalf("missing email reported existing")
	}

	// Lookup failures read as "does not exist", never as an error.
	store.userErr = errors.New("connection refused")
	if flow.CheckEmail(ctx, "a@x.com") {
		t.Fatalf("lookup failure must report false")
	}
}

func TestRequestPublishFailure(t *testing.T) {
	store := newStubResetStore()
	store.pubErr = errors.New("broker down")
	flow := newFlow(store, time.Hour)

	if err := flow.Request(context.Background(), "a@x.com"); err == nil {
		t.Fatalf("expected dispatch failure to surface")
	}
}

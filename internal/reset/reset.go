package reset

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rollout_service/internal/auth"
	sl "rollout_service/internal/lib/logger"
	"rollout_service/internal/lib/token"
	"rollout_service/internal/models"
	"rollout_service/internal/storage"
)

var (
	ErrEmailRequired    = errors.New("email is required")
	ErrInvalidOrExpired = errors.New("reset token invalid or expired")
)

// Flow drives the forgot-password lifecycle: request a reset link, then
// consume it exactly once to set a new password.
type Flow struct {
	log      *slog.Logger
	users    UserStore
	requests RequestStore
	guard    ConsumeGuard
	pub      Publisher
	ttl      time.Duration
	baseURL  string
}

type UserStore interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UpdatePassword(ctx context.Context, email string, passHash []byte) error
}

type RequestStore interface {
	ReplaceResetRequest(ctx context.Context, email, tokenHash string) error
	ResetRequest(ctx context.Context, email string) (models.PasswordReset, error)
	DeleteResetRequest(ctx context.Context, email string) error
}

// ConsumeGuard marks a token hash as used; the first caller wins.
type ConsumeGuard interface {
	MarkResetConsumed(ctx context.Context, tokenHash string, ttl time.Duration) (bool, error)
}

type Publisher interface {
	SendEmailJob(ctx context.Context, job models.EmailJob) error
}

func New(
	log *slog.Logger,
	users UserStore,
	requests RequestStore,
	guard ConsumeGuard,
	pub Publisher,
	ttl time.Duration,
	baseURL string,
) *Flow {
	return &Flow{
		log:      log,
		users:    users,
		requests: requests,
		guard:    guard,
		pub:      pub,
		ttl:      ttl,
		baseURL:  baseURL,
	}
}

// Request supersedes any live reset request for the email with a fresh one
// and mails a link carrying the urlsafe id. The raw token is never stored.
func (f *Flow) Request(ctx context.Context, email string) error {
	const op = "reset.Request"

	log := f.log.With(slog.String("op", op))

	if email == "" {
		return ErrEmailRequired
	}

	value, err := token.New()
	if err != nil {
		log.Error("failed to generate reset token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := f.requests.ReplaceResetRequest(ctx, email, token.Hash(value)); err != nil {
		log.Error("failed to save reset request", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	job := models.EmailJob{
		Email:   email,
		Subject: "Reset your password",
		Link:    fmt.Sprintf("%s/forgot?id=%s", f.baseURL, token.EncodeResetID(email, value)),
	}

	if err := f.pub.SendEmailJob(ctx, job); err != nil {
		log.Error("failed to dispatch reset email", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("reset link dispatched")

	return nil
}

// Consume validates the mailed id, sets the new password and deletes the
// request. Every failure mode collapses into ErrInvalidOrExpired so the
// response never reveals which check failed.
func (f *Flow) Consume(ctx context.Context, encodedID, newPassword string) error {
	const op = "reset.Consume"

	log := f.log.With(slog.String("op", op))

	email, rawToken, err := token.DecodeResetID(encodedID)
	if err != nil {
		return ErrInvalidOrExpired
	}

	req, err := f.requests.ResetRequest(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrResetNotFound) {
			return ErrInvalidOrExpired
		}

		log.Error("failed to load reset request", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	hash := token.Hash(rawToken)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(req.TokenHash)) != 1 {
		log.Warn("reset token mismatch")
		return ErrInvalidOrExpired
	}

	if time.Since(req.CreatedAt) > f.ttl {
		log.Info("reset token expired")
		return ErrInvalidOrExpired
	}

	first, err := f.guard.MarkResetConsumed(ctx, hash, f.ttl)
	if err != nil {
		log.Error("failed to mark token consumed", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if !first {
		log.Warn("reset token already consumed")
		return ErrInvalidOrExpired
	}

	passHash, err := auth.HashPassword(newPassword)
	if err != nil {
		log.Error("failed to hash new password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := f.users.UpdatePassword(ctx, email, passHash); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrInvalidOrExpired
		}

		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := f.requests.DeleteResetRequest(ctx, email); err != nil {
		log.Error("failed to delete reset request", sl.Err(err))
	}

	log.Info("password reset completed")

	return nil
}

// CheckEmail reports whether an account exists for the email. Lookup
// failures deliberately read as "does not exist"; this probe never surfaces
// an error to its caller.
func (f *Flow) CheckEmail(ctx context.Context, email string) bool {
	const op = "reset.CheckEmail"

	if _, err := f.users.UserByEmail(ctx, email); err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			f.log.Error("email existence probe failed", slog.String("op", op), sl.Err(err))
		}

		return false
	}

	return true
}

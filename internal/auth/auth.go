package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sl "rollout_service/internal/lib/logger"
	"rollout_service/internal/lib/token"
	"rollout_service/internal/models"
	"rollout_service/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSuchClient       = errors.New("no such client")
	ErrInvalidToken       = errors.New("invalid access token")
	ErrForbidden          = errors.New("admin access required")
	ErrUserExists         = errors.New("user already exists")
)

type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	tokenStore  TokenStore
	clients     ClientProvider
	logbook     Logbook
	client      models.Client
	tokenTTL    time.Duration
}

type UserSaver interface {
	SaveUser(ctx context.Context, email, name, phone string, passHash []byte) (uid int64, err error)
	UpdateUser(ctx context.Context, id int64, upd models.UserUpdate) error
	SetAdmin(ctx context.Context, email string, admin bool) error
}

type UserProvider interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
	PasswordHashByEmail(ctx context.Context, email string) ([]byte, error)
	Users(ctx context.Context) ([]models.User, error)
	AdminUsers(ctx context.Context) ([]models.User, error)
}

type TokenStore interface {
	UpsertAccessToken(ctx context.Context, t models.AccessToken) error
	AccessToken(ctx context.Context, value string) (models.AccessToken, error)
	DeleteAccessTokenByUser(ctx context.Context, userID int64) error
}

type ClientProvider interface {
	Client(ctx context.Context, clientID, clientSecret string) (models.Client, error)
}

type Logbook interface {
	AppendLog(ctx context.Context, action, logType, message string) error
	Logs(ctx context.Context) ([]models.LogEntry, error)
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokenStore TokenStore,
	clientProvider ClientProvider,
	logbook Logbook,
	firstPartyClient models.Client,
	tokenTTL time.Duration,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		tokenStore:  tokenStore,
		clients:     clientProvider,
		logbook:     logbook,
		client:      firstPartyClient,
		tokenTTL:    tokenTTL,
	}
}

// AuthenticateClient validates an OAuth client pair. The statically
// configured first-party client is checked in constant time without touching
// the database; everything else goes through the client store.
func (a *Auth) AuthenticateClient(ctx context.Context, clientID, clientSecret string) (models.Client, error) {
	const op = "auth.AuthenticateClient"

	idMatch := subtle.ConstantTimeCompare([]byte(clientID), []byte(a.client.ClientID))
	secretMatch := subtle.ConstantTimeCompare([]byte(clientSecret), []byte(a.client.ClientSecret))
	if idMatch&secretMatch == 1 {
		return a.client, nil
	}

	client, err := a.clients.Client(ctx, clientID, clientSecret)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			a.log.Warn("unknown oauth client", slog.String("op", op), slog.String("client_id", clientID))
			return models.Client{}, ErrNoSuchClient
		}

		return models.Client{}, fmt.Errorf("%s: %w", op, err)
	}

	return client, nil
}

// VerifyCredentials reports whether the password matches the stored hash for
// the email. A missing user and a wrong password are indistinguishable to
// the caller.
func (a *Auth) VerifyCredentials(ctx context.Context, email, password string) bool {
	const op = "auth.VerifyCredentials"

	hash, err := a.usrProvider.PasswordHashByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			a.log.Error("failed to load password hash", slog.String("op", op), sl.Err(err))
		}

		return false
	}

	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// HashPassword derives the stored form of a password, used once at account
// creation and on reset. The plaintext is never persisted.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// Grant exchanges user credentials for a fresh access token after client
// authentication. Issuing replaces any previous token of the user, so at
// most one session per user stays valid.
func (a *Auth) Grant(ctx context.Context, email, password, clientID, clientSecret string) (models.AccessToken, error) {
	const op = "auth.Grant"

	log := a.log.With(slog.String("op", op))

	client, err := a.AuthenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return models.AccessToken{}, err
	}

	if !a.VerifyCredentials(ctx, email, password) {
		log.Info("invalid credentials")
		return models.AccessToken{}, ErrInvalidCredentials
	}

	user, err := a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		log.Error("failed to load user", sl.Err(err))
		return models.AccessToken{}, fmt.Errorf("%s: %w", op, err)
	}

	value, err := token.New()
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return models.AccessToken{}, fmt.Errorf("%s: %w", op, err)
	}

	t := models.AccessToken{
		Token:     value,
		ClientID:  client.ClientID,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(a.tokenTTL),
	}

	if err := a.tokenStore.UpsertAccessToken(ctx, t); err != nil {
		log.Error("failed to save access token", sl.Err(err))
		return models.AccessToken{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("access token issued", slog.Int64("uid", user.ID))

	return t, nil
}

// Resolve maps a bearer token to its owner. An unknown token is a normal
// outcome, reported as ErrInvalidToken. Expiry is deliberately not checked
// here: the authorization middleware compares ExpiresAt against the clock,
// and this contract keeps the check in exactly one place.
func (a *Auth) Resolve(ctx context.Context, bearerToken string) (models.AccessToken, error) {
	const op = "auth.Resolve"

	t, err := a.tokenStore.AccessToken(ctx, bearerToken)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return models.AccessToken{}, ErrInvalidToken
		}

		a.log.Error("failed to resolve token", slog.String("op", op), sl.Err(err))
		return models.AccessToken{}, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}

// Revoke deletes the user's token row. Revoking a user without a token is a
// no-op, so logout is idempotent.
func (a *Auth) Revoke(ctx context.Context, userID int64) error {
	const op = "auth.Revoke"

	if err := a.tokenStore.DeleteAccessTokenByUser(ctx, userID); err != nil {
		a.log.Error("failed to revoke token", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	a.log.Info("access revoked", slog.String("op", op), slog.Int64("uid", userID))

	return nil
}

func (a *Auth) RegisterNewUser(ctx context.Context, email, name, phone, pass string) (int64, error) {
	const op = "auth.RegisterNewUser"

	log := a.log.With(slog.String("op", op))

	passHash, err := HashPassword(pass)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := a.usrSaver.SaveUser(ctx, email, name, phone, passHash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")
			return 0, fmt.Errorf("%s: %w", op, ErrUserExists)
		}

		log.Error("failed to save user", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("uid", id))

	return id, nil
}

func (a *Auth) User(ctx context.Context, userID int64) (models.User, error) {
	const op = "auth.User"

	user, err := a.usrProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateUser applies a self-update. The UserUpdate type itself is the
// allow-list: immutable fields have no way in.
func (a *Auth) UpdateUser(ctx context.Context, userID int64, upd models.UserUpdate) (models.User, error) {
	const op = "auth.UpdateUser"

	if err := a.usrSaver.UpdateUser(ctx, userID, upd); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, storage.ErrUserNotFound
		}

		a.log.Error("failed to update user", slog.String("op", op), sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return a.User(ctx, userID)
}

// RequireAdmin re-fetches the caller on every privileged call and returns
// the record only when the admin flag is set.
func (a *Auth) RequireAdmin(ctx context.Context, userID int64) (models.User, error) {
	const op = "auth.RequireAdmin"

	user, err := a.usrProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if !user.Admin {
		a.log.Warn("admin access denied", slog.String("op", op), slog.Int64("uid", userID))
		return models.User{}, ErrForbidden
	}

	return user, nil
}

// SetAdminStatus flips the target's admin flag on behalf of actingUserID and
// records the change in the audit log.
func (a *Auth) SetAdminStatus(ctx context.Context, actingUserID int64, targetEmail string, admin bool) error {
	const op = "auth.SetAdminStatus"

	log := a.log.With(slog.String("op", op))

	actor, err := a.RequireAdmin(ctx, actingUserID)
	if err != nil {
		return err
	}

	if err := a.usrSaver.SetAdmin(ctx, targetEmail, admin); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return storage.ErrUserNotFound
		}

		log.Error("failed to change admin status", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	logType := "ADD"
	message := fmt.Sprintf("%s now has administrator access, completed by %s", targetEmail, actor.Email)
	if !admin {
		logType = "REVOKE"
		message = fmt.Sprintf("%s no longer has administrator access, completed by %s", targetEmail, actor.Email)
	}

	if err := a.logbook.AppendLog(ctx, "ADMIN", logType, message); err != nil {
		log.Error("failed to append audit log", sl.Err(err))
	}

	log.Info("admin status changed",
		slog.String("target", targetEmail),
		slog.Bool("admin", admin),
	)

	return nil
}

// Logs returns the audit log for an admin caller, oldest entry first.
func (a *Auth) Logs(ctx context.Context, actingUserID int64) ([]models.LogEntry, error) {
	const op = "auth.Logs"

	if _, err := a.RequireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}

	entries, err := a.logbook.Logs(ctx)
	if err != nil {
		a.log.Error("failed to load logs", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return entries, nil
}

// Users returns every user record for an admin caller.
func (a *Auth) Users(ctx context.Context, actingUserID int64) ([]models.User, error) {
	const op = "auth.Users"

	if _, err := a.RequireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}

	users, err := a.usrProvider.Users(ctx)
	if err != nil {
		a.log.Error("failed to load users", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}

// AdminUsers returns the users holding the admin flag, for an admin caller.
func (a *Auth) AdminUsers(ctx context.Context, actingUserID int64) ([]models.User, error) {
	const op = "auth.AdminUsers"

	if _, err := a.RequireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}

	users, err := a.usrProvider.AdminUsers(ctx)
	if err != nil {
		a.log.Error("failed to load admin users", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}

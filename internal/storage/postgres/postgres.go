package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rollout_service/internal/config"
	"rollout_service/internal/models"
	"rollout_service/internal/storage"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = "id, email, name, active, created, admin, COALESCE(phone, ''), last_location, last_updated"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

// Users -----------------------------------------------------------------

func (r *PostgresRepo) SaveUser(ctx context.Context, email, name, phone string, passHash []byte) (int64, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (email, name, password, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id;
	`

	var id int64

	err := r.pool.QueryRow(ctx, query, email, name, string(passHash), phone).Scan(&id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return 0, storage.ErrUserExists
		}

		return 0, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return id, nil
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1;`, userColumns)

	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1;`, userColumns)

	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// PasswordHashByEmail feeds the credential check. The email is always a
// bound parameter, like every other value in this package.
func (r *PostgresRepo) PasswordHashByEmail(ctx context.Context, email string) ([]byte, error) {
	query := `SELECT password FROM users WHERE email = $1;`

	var hash string
	err := r.pool.QueryRow(ctx, query, email).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}

		return nil, err
	}

	return []byte(hash), nil
}

func (r *PostgresRepo) Users(ctx context.Context) ([]models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users;`, userColumns)

	return r.queryUsers(ctx, query)
}

func (r *PostgresRepo) AdminUsers(ctx context.Context) ([]models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE admin = TRUE;`, userColumns)

	return r.queryUsers(ctx, query)
}

// UpdateUser applies the allow-listed fields of upd to the given user. The
// SET clause is assembled from a fixed column set; request payloads never
// contribute column names.
func (r *PostgresRepo) UpdateUser(ctx context.Context, id int64, upd models.UserUpdate) error {
	const op = "storage.postgres.UpdateUser"

	set := make([]string, 0, 5)
	args := make([]any, 0, 5)

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Phone != nil {
		add("phone", *upd.Phone)
	}
	if upd.Active != nil {
		add("active", *upd.Active)
	}
	if upd.LastLocation != nil {
		add("last_location", upd.LastLocation)
	}

	if len(set) == 0 {
		return nil
	}

	add("last_updated", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) SetAdmin(ctx context.Context, email string, admin bool) error {
	const op = "storage.postgres.SetAdmin"

	query := `UPDATE users SET admin = $1 WHERE email = $2`

	tag, err := r.pool.Exec(ctx, query, admin, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) UpdatePassword(ctx context.Context, email string, passHash []byte) error {
	const op = "storage.postgres.UpdatePassword"

	query := `UPDATE users SET password = $1, last_updated = NOW() WHERE email = $2`

	tag, err := r.pool.Exec(ctx, query, string(passHash), email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// OAuth clients ---------------------------------------------------------

func (r *PostgresRepo) Client(ctx context.Context, clientID, clientSecret string) (models.Client, error) {
	query := `
		SELECT client_id, client_secret, redirect_uri
		FROM oauth_clients
		WHERE client_id = $1 AND client_secret = $2;
	`

	var c models.Client

	err := r.pool.QueryRow(ctx, query, clientID, clientSecret).
		Scan(&c.ClientID, &c.ClientSecret, &c.RedirectURI)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Client{}, storage.ErrClientNotFound
	}

	return c, err
}

// Access tokens ---------------------------------------------------------

// UpsertAccessToken inserts or replaces the single token row of a user. The
// unique constraint on user_id makes concurrent grants for one user collapse
// into a single surviving row.
func (r *PostgresRepo) UpsertAccessToken(ctx context.Context, t models.AccessToken) error {
	const op = "storage.postgres.UpsertAccessToken"

	query := `
		INSERT INTO oauth_tokens (access_token, access_token_expires_on, client_id, user_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    access_token_expires_on = EXCLUDED.access_token_expires_on,
		    client_id = EXCLUDED.client_id;
	`

	_, err := r.pool.Exec(ctx, query, t.Token, t.ExpiresAt, t.ClientID, t.UserID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) AccessToken(ctx context.Context, value string) (models.AccessToken, error) {
	query := `
		SELECT access_token, access_token_expires_on, client_id, user_id
		FROM oauth_tokens
		WHERE access_token = $1;
	`

	var t models.AccessToken

	err := r.pool.QueryRow(ctx, query, value).
		Scan(&t.Token, &t.ExpiresAt, &t.ClientID, &t.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AccessToken{}, storage.ErrTokenNotFound
	}

	return t, err
}

func (r *PostgresRepo) DeleteAccessTokenByUser(ctx context.Context, userID int64) error {
	query := `DELETE FROM oauth_tokens WHERE user_id = $1`

	_, err := r.pool.Exec(ctx, query, userID)

	return err
}

// Password resets -------------------------------------------------------

// ReplaceResetRequest deletes any live request for the email before
// inserting the new one, so at most one request per email survives.
func (r *PostgresRepo) ReplaceResetRequest(ctx context.Context, email, tokenHash string) error {
	const op = "storage.postgres.ReplaceResetRequest"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM password_resets WHERE email = $1`, email); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO password_resets (email, token_hash, created_at) VALUES ($1, $2, NOW())`,
		email, tokenHash,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepo) ResetRequest(ctx context.Context, email string) (models.PasswordReset, error) {
	query := `
		SELECT email, token_hash, created_at
		FROM password_resets
		WHERE email = $1;
	`

	var pr models.PasswordReset

	err := r.pool.QueryRow(ctx, query, email).Scan(&pr.Email, &pr.TokenHash, &pr.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PasswordReset{}, storage.ErrResetNotFound
	}

	return pr, err
}

func (r *PostgresRepo) DeleteResetRequest(ctx context.Context, email string) error {
	query := `DELETE FROM password_resets WHERE email = $1`

	_, err := r.pool.Exec(ctx, query, email)

	return err
}

// Audit log -------------------------------------------------------------

func (r *PostgresRepo) AppendLog(ctx context.Context, action, logType, message string) error {
	const op = "storage.postgres.AppendLog"

	query := `
		INSERT INTO log (action, type, message, time)
		VALUES ($1, $2, $3, clock_timestamp())
	`

	_, err := r.pool.Exec(ctx, query, action, logType, message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) Logs(ctx context.Context) ([]models.LogEntry, error) {
	const op = "storage.postgres.Logs"

	query := `SELECT id, action, type, message, time FROM log ORDER BY time`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var entries []models.LogEntry

	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.Type, &e.Message, &e.Time); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return entries, nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

// dsn builds the database connection string.
func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}

// Helpers ---------------------------------------------------------------

func (r *PostgresRepo) scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Active,
		&u.Created,
		&u.Admin,
		&u.Phone,
		&u.LastLocation,
		&u.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	return u, nil
}

func (r *PostgresRepo) queryUsers(ctx context.Context, query string) ([]models.User, error) {
	const op = "storage.postgres.queryUsers"

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var users []models.User

	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, u)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return users, nil
}

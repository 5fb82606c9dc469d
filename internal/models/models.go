package models

import "time"

type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PassHash     []byte     `json:"-"`
	Active       bool       `json:"active"`
	Admin        bool       `json:"admin"`
	Phone        string     `json:"phone,omitempty"`
	LastLocation []float64  `json:"last_location,omitempty"`
	Created      time.Time  `json:"created"`
	LastUpdated  *time.Time `json:"last_updated,omitempty"`
}

// UserUpdate carries the self-updatable fields. Anything not listed here
// (id, email, password, admin, created) cannot be changed through an update.
type UserUpdate struct {
	Name         *string   `json:"name,omitempty"`
	Phone        *string   `json:"phone,omitempty"`
	Active       *bool     `json:"active,omitempty"`
	LastLocation []float64 `json:"last_location,omitempty"`
}

func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Phone == nil && u.Active == nil && u.LastLocation == nil
}

type Client struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// AccessToken is the single active bearer credential of a user. The storage
// layer keeps at most one row per user id.
type AccessToken struct {
	Token     string
	ClientID  string
	UserID    int64
	ExpiresAt time.Time
}

func (t *AccessToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// PasswordReset is a pending forgot-password request. Only the SHA-256 hash
// of the reset token is stored; the raw token leaves the process solely
// inside the mailed link.
type PasswordReset struct {
	Email     string
	TokenHash string
	CreatedAt time.Time
}

type LogEntry struct {
	ID      int64     `json:"id"`
	Action  string    `json:"action"`
	Type    string    `json:"type"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// EmailJob is the message published to the mail queue and consumed by the
// mailsender worker.
type EmailJob struct {
	Email   string `json:"to"`
	Subject string `json:"subject"`
	Link    string `json:"link"`
}

package storage

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUserExists     = errors.New("user already exists")
	ErrClientNotFound = errors.New("client not found")
	ErrTokenNotFound  = errors.New("access token not found")
	ErrResetNotFound  = errors.New("password reset request not found")
)

package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Opaque tokens carry 32 bytes of entropy from crypto/rand.
const tokenBytes = 32

var ErrMalformedResetID = errors.New("malformed reset id")

// New returns a fresh high-entropy opaque token.
func New() (string, error) {
	const op = "lib.token.New"

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return hex.EncodeToString(buf), nil
}

// Hash returns the hex SHA-256 of a token. Reset tokens are persisted only
// in this form.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// EncodeResetID packs email and reset token into the URL-safe id embedded in
// the mailed link: base64url("email:token").
func EncodeResetID(email, token string) string {
	return base64.URLEncoding.EncodeToString([]byte(email + ":" + token))
}

// DecodeResetID reverses EncodeResetID.
func DecodeResetID(id string) (email, token string, err error) {
	const op = "lib.token.DecodeResetID"

	raw, err := base64.URLEncoding.DecodeString(id)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, ErrMalformedResetID)
	}

	// The token itself is hex, so the last colon always separates it from
	// the email.
	sep := strings.LastIndex(string(raw), ":")
	if sep <= 0 || sep == len(raw)-1 {
		return "", "", fmt.Errorf("%s: %w", op, ErrMalformedResetID)
	}

	return string(raw[:sep]), string(raw[sep+1:]), nil
}

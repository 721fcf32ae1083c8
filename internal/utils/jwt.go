// Package utils provides token issuing/verification, password hashing and
// reset-code generation helpers shared by handlers and middleware.
package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTokenTTL is the fixed lifetime of a session token. Sessions are
// stateless: the server keeps no session table and never revokes a token,
// it simply expires.
const SessionTokenTTL = 5 * 24 * time.Hour

// ErrNoSecret is returned when token signing is attempted without a
// configured secret. The check happens at call time, not at startup.
var ErrNoSecret = errors.New("jwt signing secret is not configured")

// ErrInvalidToken covers malformed tokens, tokens signed with a different
// secret, and expired tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// SessionToken is a signed HS256 JWT plus its expiry.
type SessionToken struct {
	Token string
	Exp   time.Time
}

// NewSessionToken signs a session token binding the user's ID and role with
// the fixed 5-day expiry.
func NewSessionToken(secret string, userID uint64, role string) (SessionToken, error) {
	return newSessionToken(secret, userID, role, SessionTokenTTL)
}

func newSessionToken(secret string, userID uint64, role string, ttl time.Duration) (SessionToken, error) {
	if secret == "" {
		return SessionToken{}, ErrNoSecret
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, Exp: exp}, nil
}

// ParseSessionToken validates a raw token string and yields back the user ID
// and role it was issued for. Any verification failure maps to
// ErrInvalidToken.
func ParseSessionToken(secret, raw string) (uint64, string, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return 0, "", ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(float64) // JSON numbers decode as float64
	if !ok {
		return 0, "", ErrInvalidToken
	}
	role, _ := claims["role"].(string)
	return uint64(sub), role, nil
}

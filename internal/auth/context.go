package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing auth token")
	ErrBadToken     = errors.New("malformed auth token")
	ErrTokenExpired = errors.New("auth token expired")
	ErrNoSubject    = errors.New("auth token has no subject")
)

// Context carries the authenticated identity the external auth service
// issued. It is passed explicitly into anything that needs it; nothing in
// this module reads auth state from globals.
type Context struct {
	UserID        string
	Token         string
	Authenticated bool
}

func (c Context) Valid() bool {
	return c.Authenticated && c.UserID != "" && c.Token != ""
}

// FromToken derives a Context from a bearer token by reading its claims
// without verifying the signature. The client holds no signing key; the
// server rejects forged tokens on every call, so claim extraction here is
// purely a convenience for knowing which sender id is "self".
func FromToken(token string) (Context, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Context{}, ErrMissingToken
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Context{}, ErrBadToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Context{}, ErrBadToken
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		if exp.Before(time.Now()) {
			return Context{}, ErrTokenExpired
		}
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Context{}, ErrNoSubject
	}

	return Context{
		UserID:        sub,
		Token:         token,
		Authenticated: true,
	}, nil
}

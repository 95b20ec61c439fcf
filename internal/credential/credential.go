// Package credential inspects bearer tokens before they are used to open a
// push session. Signatures are not verified here; the server remains the
// authority. The check only rejects tokens that are certain to fail.
package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrEmpty is returned for a blank credential.
	ErrEmpty = errors.New("credential is empty")
	// ErrExpired is returned when a JWT credential carries an exp claim in the past.
	ErrExpired = errors.New("credential has expired")
)

// Info describes what could be read from a credential without verifying it.
type Info struct {
	JWT       bool
	Subject   string
	ExpiresAt time.Time
}

// Inspect parses token as an unverified JWT. Tokens that are not JWTs are
// treated as opaque and returned with JWT=false.
func Inspect(token string) (Info, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Info{}, ErrEmpty
	}
	if strings.Count(token, ".") != 2 {
		return Info{}, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// Three dot-separated segments that are not a JWT: still opaque.
		return Info{}, nil
	}

	info := Info{JWT: true}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}

// Check returns ErrEmpty or ErrExpired when token is known to be unusable at now.
func Check(token string, now time.Time) error {
	info, err := Inspect(token)
	if err != nil {
		return err
	}
	if info.JWT && !info.ExpiresAt.IsZero() && !now.Before(info.ExpiresAt) {
		return fmt.Errorf("%w at %s", ErrExpired, info.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// Header formats token for an Authorization header.
func Header(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}

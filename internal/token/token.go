// Package token decodes bearer tokens without verifying them.
//
// The decoded claims are used only to estimate expiry for UX decisions
// (whether to attempt a request, whether a refresh is worth trying). The
// signature is never checked here and nothing in this package may be used
// as a trust boundary; the backend remains the only authority.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var parser = jwt.NewParser()

func claimsOf(token string) (jwt.MapClaims, bool) {
	if token == "" {
		return nil, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}

// ExpiryOf returns the absolute expiry instant encoded in the token's exp
// claim. The second result is false when the token is empty, malformed, or
// carries no numeric exp.
func ExpiryOf(token string) (time.Time, bool) {
	claims, ok := claimsOf(token)
	if !ok {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// ExpiresAtMillis returns the expiry as epoch milliseconds.
func ExpiresAtMillis(token string) (int64, bool) {
	exp, ok := ExpiryOf(token)
	if !ok {
		return 0, false
	}
	return exp.UnixMilli(), true
}

// IsExpired reports whether the token is expired at now. Tokens whose expiry
// cannot be determined are treated as expired.
func IsExpired(token string, now time.Time) bool {
	exp, ok := ExpiryOf(token)
	if !ok {
		return true
	}
	return !now.Before(exp)
}

// Subject returns the unverified sub claim, or "" when absent.
func Subject(token string) string {
	claims, ok := claimsOf(token)
	if !ok {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

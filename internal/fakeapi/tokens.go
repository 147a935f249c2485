package fakeapi

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

type claims struct {
	Kind string `json:"typ"`
	jwt.RegisteredClaims
}

func (a *API) sign(subject, kind string, ttl time.Duration) string {
	now := time.Now()
	c := claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secret)
	if err != nil {
		panic(fmt.Sprintf("fakeapi: sign token: %v", err))
	}
	return signed
}

func (a *API) verify(token, kind string) (*claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if c.Kind != kind {
		return nil, fmt.Errorf("expected %s token, got %s", kind, c.Kind)
	}
	return &c, nil
}

// IssueTokens mints a token pair for email as a successful login would.
func (a *API) IssueTokens(email string) (access, refresh string) {
	a.mu.Lock()
	accessTTL, refreshTTL := a.accessTTL, a.refreshTTL
	a.mu.Unlock()
	return a.sign(email, kindAccess, accessTTL), a.sign(email, kindRefresh, refreshTTL)
}

// ExpiredAccessToken mints a correctly signed access token that expired a
// minute ago.
func (a *API) ExpiredAccessToken(email string) string {
	return a.sign(email, kindAccess, -time.Minute)
}

// ExpiredRefreshToken mints a correctly signed refresh token that expired a
// minute ago.
func (a *API) ExpiredRefreshToken(email string) string {
	return a.sign(email, kindRefresh, -time.Minute)
}

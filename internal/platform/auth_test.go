package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
	"github.com/felixgeelhaar/practicedesk/internal/fakeapi"
	"github.com/felixgeelhaar/practicedesk/internal/log"
	"github.com/felixgeelhaar/practicedesk/internal/session"
	"github.com/felixgeelhaar/practicedesk/internal/token"
)

func TestLoginAndProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pair, err := h.client.Login(ctx, staffEmail, "staff-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, 0, h.store.Len(), "login does not persist tokens")

	assert.Equal(t, staffEmail, token.Subject(pair.AccessToken))

	require.NoError(t, h.store.Set(ctx, session.KeyAccessToken, pair.AccessToken))
	profile, err := h.client.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Sam Staff", profile.FullName())
	assert.True(t, profile.HasRole("Receptionist"))
	assert.True(t, profile.Can("patients:read"))
	assert.False(t, profile.Can("users:read"))
}

func TestEditProfile(t *testing.T) {
	h := newHarness(t)
	h.seedValid(t, staffEmail)

	profile, err := h.client.EditProfile(context.Background(), ProfileUpdate{FirstName: "Samantha"})
	require.NoError(t, err)
	assert.Equal(t, "Samantha", profile.FirstName)
	assert.Equal(t, "Staff", profile.LastName)
}

func TestExchangeRefreshToken(t *testing.T) {
	h := newHarness(t)
	_, rt := h.api.IssueTokens(staffEmail)

	at, err := h.client.ExchangeRefreshToken(context.Background(), rt)
	require.NoError(t, err)
	assert.False(t, token.IsExpired(at, time.Now()))
	assert.Equal(t, 1, h.api.RefreshCalls())

	_, err = h.client.ExchangeRefreshToken(context.Background(), h.api.ExpiredRefreshToken(staffEmail))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeRequestFailed))
	assert.Equal(t, http.StatusUnauthorized, errors.StatusOf(err))
	assert.Contains(t, err.Error(), "invalid token")

	h.api.RateLimit(PathRefreshToken, true)
	_, err = h.client.ExchangeRefreshToken(context.Background(), rt)
	require.Error(t, err)
	assert.True(t, errors.IsRateLimited(err))
}

func TestExchangeRefreshTokenSendsNoBearer(t *testing.T) {
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Values("Authorization")
		_, _ = w.Write([]byte(`{"data":{"tokens":{}}}`))
	}))
	defer srv.Close()

	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), session.KeyAccessToken, "stale"))
	client := NewClient(srv.URL, store, WithLogger(log.Nop()))

	_, err := client.ExchangeRefreshToken(context.Background(), "rt")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMalformedResponse))
	assert.Empty(t, auth)
}

func TestLoginMissingTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"tokens":{"accessToken":"only-access"}}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, session.NewMemoryStore(), WithLogger(log.Nop()))
	_, err := client.Login(context.Background(), "a@b.c", "x")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMalformedResponse))
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	h := newHarness(t)
	_, rt := h.api.IssueTokens(staffEmail)

	require.NoError(t, h.client.Logout(context.Background(), rt))
	assert.Equal(t, 1, h.api.LogoutCalls())

	_, err := h.client.ExchangeRefreshToken(context.Background(), rt)
	require.Error(t, err)
}

func TestRegistrationFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ack, err := h.client.Register(ctx, RegisterRequest{
		FirstName: "Nia",
		LastName:  "Newman",
		Email:     "nia@clinic.example",
		Password:  "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, "nia@clinic.example", ack.Email)
	assert.NotEmpty(t, ack.Message)

	_, err = h.client.Register(ctx, RegisterRequest{Email: staffEmail, Password: "x"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, errors.StatusOf(err))

	pair, err := h.client.VerifyRegistration(ctx, "nia@clinic.example", fakeapi.RegistrationCode)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.RefreshToken)

	_, err = h.client.Login(ctx, "nia@clinic.example", "s3cret")
	require.NoError(t, err)
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.ForgotPassword(ctx, staffEmail)
	require.NoError(t, err)

	ack, err := h.client.VerifyResetCode(ctx, staffEmail, fakeapi.ResetCode)
	require.NoError(t, err)
	assert.Equal(t, staffEmail, ack.Email)

	_, err = h.client.ResetPassword(ctx, ResetPasswordRequest{Email: staffEmail, Code: "111111", NewPassword: "new"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidCredentials))
	assert.Contains(t, err.Error(), "Invalid or expired code")

	_, err = h.client.ResetPassword(ctx, ResetPasswordRequest{Email: staffEmail, Code: fakeapi.ResetCode, NewPassword: "new"})
	require.NoError(t, err)

	_, err = h.client.Login(ctx, staffEmail, "new")
	require.NoError(t, err)
	assert.Equal(t, 0, h.api.RefreshCalls())
}

func TestSetupPasswordFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	invite := h.api.Invite("pat@clinic.example", "Pat", "Provider")

	ack, err := h.client.SetupPassword(ctx, SetupPasswordRequest{Token: invite, Password: "first"})
	require.NoError(t, err)
	assert.Equal(t, "pat@clinic.example", ack.Email)

	_, err = h.client.SetupPassword(ctx, SetupPasswordRequest{Token: invite, Password: "again"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invitation expired")

	_, err = h.client.Login(ctx, "pat@clinic.example", "first")
	require.NoError(t, err)
}

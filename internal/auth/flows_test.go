package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
	"github.com/felixgeelhaar/practicedesk/internal/fakeapi"
	"github.com/felixgeelhaar/practicedesk/internal/platform"
)

func TestRegistrationSignsIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.ctrl.Register(ctx, platform.RegisterRequest{
		FirstName: "Nia",
		LastName:  "Newman",
		Email:     "nia@clinic.example",
		Password:  "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, "nia@clinic.example", res.Email)

	_, err = f.ctrl.VerifyRegistration(ctx, "nia@clinic.example", "000000")
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Invalid verification code", ae.Message)
	assert.Equal(t, 0, f.api.RefreshCalls())

	res, err = f.ctrl.VerifyRegistration(ctx, "nia@clinic.example", fakeapi.RegistrationCode)
	require.NoError(t, err)
	assert.Equal(t, "nia@clinic.example", res.Email)

	s := f.ctrl.State()
	assert.True(t, s.IsAuthenticated)
	assert.Equal(t, "Nia Newman", s.User.FullName())
	assert.True(t, s.User.HasRole("admin"))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.Register(context.Background(), platform.RegisterRequest{Email: staffEmail, Password: "x"})

	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Email already registered", ae.Message)
	assert.Equal(t, 409, errors.StatusOf(err))
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.ForgotPassword(ctx, staffEmail)
	require.NoError(t, err)

	_, err = f.ctrl.VerifyResetCode(ctx, staffEmail, "999999")
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Invalid or expired code", ae.Message)
	assert.Equal(t, errors.ErrCodeInvalidCredentials, ae.Code)

	res, err := f.ctrl.VerifyResetCode(ctx, staffEmail, fakeapi.ResetCode)
	require.NoError(t, err)
	assert.Equal(t, "Code verified", res.Message)

	_, err = f.ctrl.ResetPassword(ctx, platform.ResetPasswordRequest{Email: staffEmail, Code: fakeapi.ResetCode, NewPassword: "fresh"})
	require.NoError(t, err)

	require.NoError(t, f.ctrl.Login(ctx, staffEmail, "fresh"))
	assert.Equal(t, 0, f.api.RefreshCalls())
}

func TestSetupPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	invite := f.api.Invite("dr.who@clinic.example", "John", "Smith")

	_, err := f.ctrl.SetupPassword(ctx, platform.SetupPasswordRequest{Token: "expired", Password: "x"})
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Invitation expired", ae.Message)

	res, err := f.ctrl.SetupPassword(ctx, platform.SetupPasswordRequest{Token: invite, Password: "tardis"})
	require.NoError(t, err)
	assert.Equal(t, "dr.who@clinic.example", res.Email)

	require.NoError(t, f.ctrl.Login(ctx, "dr.who@clinic.example", "tardis"))
	assert.True(t, f.ctrl.State().User.HasRole("provider"))
}

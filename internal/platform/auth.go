package platform

import (
	"context"
	"net/http"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
)

// Auth endpoint paths.
const (
	PathLogin           = "/auth/login"
	PathRefreshToken    = "/auth/refresh-token"
	PathProfile         = "/auth/profile"
	PathLogout          = "/auth/logout"
	PathRegister        = "/auth/register"
	PathRegisterVerify  = "/auth/register/verify"
	PathForgotPassword  = "/auth/forgot-password"
	PathVerifyResetCode = "/auth/verify-reset-code"
	PathResetPassword   = "/auth/reset-password"
	PathSetupPassword   = "/auth/setup-password"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokensResponse struct {
	Tokens TokenPair `json:"tokens"`
}

type profileResponse struct {
	User *UserProfile `json:"user"`
}

// RegisterRequest creates a new practice account.
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// VerifyRequest carries a one-time code sent to email.
type VerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// ResetPasswordRequest sets a new password after a verified reset code.
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

// SetupPasswordRequest sets the first password of an invited user.
type SetupPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ProfileUpdate carries the editable profile fields. Empty fields are left
// unchanged.
type ProfileUpdate struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
}

// FlowResponse is the acknowledgement returned by registration and password
// flows.
type FlowResponse struct {
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
}

// Login authenticates with email and password and returns the issued tokens.
// It does not persist them.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	var resp tokensResponse
	if err := c.Do(ctx, http.MethodPost, PathLogin, LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	return requireTokens(resp.Tokens, PathLogin)
}

// ExchangeRefreshToken trades a refresh token for a new access token.
//
// The call bypasses the gateway's recovery logic entirely: it carries no
// bearer token and a 401 is returned to the caller instead of triggering
// another refresh.
func (c *Client) ExchangeRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	req := &request{method: http.MethodPost, path: PathRefreshToken}
	body, err := jsonBody(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return "", err
	}
	req.body = body

	resp, err := c.send(ctx, req, "")
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload := decodePayload(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests {
			e := errors.NewRateLimitError(PathRefreshToken, retryAfter(resp.Header))
			e.Status = resp.StatusCode
			e.Payload = payload
			return "", e
		}
		return "", errors.New(errors.ErrCodeRequestFailed, messageOr(payload, "refresh token rejected")).
			WithResponse(resp.StatusCode, PathRefreshToken, payload)
	}

	var out tokensResponse
	if err := decodeEnvelope(resp.Body, &out); err != nil {
		return "", err
	}
	if out.Tokens.AccessToken == "" {
		return "", errors.New(errors.ErrCodeMalformedResponse, "refresh response did not include an access token").
			WithResponse(resp.StatusCode, PathRefreshToken, nil)
	}
	return out.Tokens.AccessToken, nil
}

// Profile retrieves the currently authenticated user.
func (c *Client) Profile(ctx context.Context) (*UserProfile, error) {
	var resp profileResponse
	if err := c.Do(ctx, http.MethodGet, PathProfile, nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, errors.New(errors.ErrCodeMalformedResponse, "profile response did not include a user")
	}
	return resp.User, nil
}

// EditProfile updates the current user's profile and returns the new version.
func (c *Client) EditProfile(ctx context.Context, update ProfileUpdate) (*UserProfile, error) {
	var resp profileResponse
	if err := c.Do(ctx, http.MethodPatch, PathProfile, update, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, errors.New(errors.ErrCodeMalformedResponse, "profile response did not include a user")
	}
	return resp.User, nil
}

// Logout revokes refreshToken on the server.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.Do(ctx, http.MethodPost, PathLogout, map[string]string{"refreshToken": refreshToken}, nil)
}

// Register starts account registration. A verification code is sent to the
// given email.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*FlowResponse, error) {
	return c.flow(ctx, PathRegister, req)
}

// VerifyRegistration completes registration and returns the tokens of the
// new session.
func (c *Client) VerifyRegistration(ctx context.Context, email, code string) (*TokenPair, error) {
	var resp tokensResponse
	if err := c.Do(ctx, http.MethodPost, PathRegisterVerify, VerifyRequest{Email: email, Code: code}, &resp); err != nil {
		return nil, err
	}
	return requireTokens(resp.Tokens, PathRegisterVerify)
}

// ForgotPassword sends a password reset code to email.
func (c *Client) ForgotPassword(ctx context.Context, email string) (*FlowResponse, error) {
	return c.flow(ctx, PathForgotPassword, map[string]string{"email": email})
}

// VerifyResetCode checks a password reset code.
func (c *Client) VerifyResetCode(ctx context.Context, email, code string) (*FlowResponse, error) {
	return c.flow(ctx, PathVerifyResetCode, VerifyRequest{Email: email, Code: code})
}

// ResetPassword sets a new password using a verified reset code.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*FlowResponse, error) {
	return c.flow(ctx, PathResetPassword, req)
}

// SetupPassword sets the first password of an invited user.
func (c *Client) SetupPassword(ctx context.Context, req SetupPasswordRequest) (*FlowResponse, error) {
	return c.flow(ctx, PathSetupPassword, req)
}

func (c *Client) flow(ctx context.Context, path string, body any) (*FlowResponse, error) {
	var resp FlowResponse
	if err := c.Do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func requireTokens(tokens TokenPair, path string) (*TokenPair, error) {
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return nil, errors.New(errors.ErrCodeMalformedResponse, "response did not include both tokens").
			WithResponse(http.StatusOK, path, nil)
	}
	return &tokens, nil
}

package auth

import (
	"context"

	"github.com/felixgeelhaar/practicedesk/internal/platform"
)

// FlowResult acknowledges a registration or password flow step.
type FlowResult struct {
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
}

func flowResult(resp *platform.FlowResponse, err error) (*FlowResult, error) {
	if err != nil {
		return nil, NewAuthError(err)
	}
	return &FlowResult{Message: resp.Message, Email: resp.Email}, nil
}

// Register starts account registration.
func (c *Controller) Register(ctx context.Context, req platform.RegisterRequest) (*FlowResult, error) {
	return flowResult(c.api.Register(ctx, req))
}

// VerifyRegistration completes registration and signs the new user in.
func (c *Controller) VerifyRegistration(ctx context.Context, email, code string) (*FlowResult, error) {
	pair, err := c.api.VerifyRegistration(ctx, email, code)
	if err != nil {
		return nil, NewAuthError(err)
	}
	if err := c.establish(ctx, pair); err != nil {
		return nil, err
	}
	return &FlowResult{Message: "Registration complete", Email: email}, nil
}

// ForgotPassword requests a password reset code.
func (c *Controller) ForgotPassword(ctx context.Context, email string) (*FlowResult, error) {
	return flowResult(c.api.ForgotPassword(ctx, email))
}

// VerifyResetCode checks a reset code before a new password is chosen.
func (c *Controller) VerifyResetCode(ctx context.Context, email, code string) (*FlowResult, error) {
	return flowResult(c.api.VerifyResetCode(ctx, email, code))
}

// ResetPassword sets a new password with a verified reset code.
func (c *Controller) ResetPassword(ctx context.Context, req platform.ResetPasswordRequest) (*FlowResult, error) {
	return flowResult(c.api.ResetPassword(ctx, req))
}

// SetupPassword sets the first password of an invited user.
func (c *Controller) SetupPassword(ctx context.Context, req platform.SetupPasswordRequest) (*FlowResult, error) {
	return flowResult(c.api.SetupPassword(ctx, req))
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/practicedesk/internal/auth"
	"github.com/felixgeelhaar/practicedesk/internal/platform"
	"github.com/felixgeelhaar/practicedesk/internal/session"
	"github.com/felixgeelhaar/practicedesk/internal/token"
	"github.com/felixgeelhaar/practicedesk/internal/tui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the platform session",
	Long: `Sign in to the practice platform, inspect the stored session, and run the
registration and password flows.

The session is persisted in the configured store (file, redis or memory)
and shared by every practicedesk command.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Long: `Sign in and persist the issued access and refresh tokens.

Missing values are prompted for when running in a terminal.

Examples:
  # Prompt for everything
  practicedesk auth login

  # Non-interactive, password read from stdin
  echo "$PASSWORD" | practicedesk auth login --email ada@clinic.example --password-stdin`,
	RunE: withApp(runAuthLogin),
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the stored session",
	Long: `Revoke the refresh token on the platform and clear the stored session.

The local session is cleared even when the platform cannot be reached.
Signing out without a session does nothing.`,
	RunE: withApp(runAuthLogout),
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	Long: `Restore the stored session and show who is signed in and when the tokens
expire. An expired access token is refreshed on the way.

Examples:
  practicedesk auth status
  practicedesk auth status --output json`,
	RunE: withApp(runAuthStatus),
}

var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Mint a new access token now",
	Long: `Exchange the stored refresh token for a new access token.

An expired or missing refresh token ends the session without contacting
the platform.`,
	RunE: withApp(runAuthRefresh),
}

var authRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new account",
	Long: `Register a new account. The platform emails a verification code; complete
the registration with 'practicedesk auth verify'.`,
	RunE: withApp(runAuthRegister),
}

var authVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Complete registration with the emailed code",
	Long:  `Verify a registration with the emailed code. On success the new account is signed in.`,
	RunE:  withApp(runAuthVerify),
}

var authForgotPasswordCmd = &cobra.Command{
	Use:   "forgot-password",
	Short: "Request a password reset code",
	RunE:  withApp(runAuthForgotPassword),
}

var authVerifyResetCodeCmd = &cobra.Command{
	Use:   "verify-reset-code",
	Short: "Check a password reset code",
	RunE:  withApp(runAuthVerifyResetCode),
}

var authResetPasswordCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Set a new password with a reset code",
	RunE:  withApp(runAuthResetPassword),
}

var authSetupPasswordCmd = &cobra.Command{
	Use:   "setup-password",
	Short: "Set the first password of an invited account",
	Long:  `Set the first password of an invited account using the token from the invitation email.`,
	RunE:  withApp(runAuthSetupPassword),
}

var (
	authEmail         string
	authPassword      string
	authPasswordStdin bool
	authFirstName     string
	authLastName      string
	authCode          string
	authInviteToken   string
)

func init() {
	authLoginCmd.Flags().StringVarP(&authEmail, "email", "e", "", "account email")
	authLoginCmd.Flags().StringVarP(&authPassword, "password", "p", "", "account password (prefer the prompt or --password-stdin)")
	authLoginCmd.Flags().BoolVar(&authPasswordStdin, "password-stdin", false, "read the password from stdin")

	authRegisterCmd.Flags().StringVar(&authFirstName, "first-name", "", "first name")
	authRegisterCmd.Flags().StringVar(&authLastName, "last-name", "", "last name")
	authRegisterCmd.Flags().StringVarP(&authEmail, "email", "e", "", "account email")
	authRegisterCmd.Flags().StringVarP(&authPassword, "password", "p", "", "account password")

	authVerifyCmd.Flags().StringVarP(&authEmail, "email", "e", "", "account email")
	authVerifyCmd.Flags().StringVar(&authCode, "code", "", "verification code from the email")

	authForgotPasswordCmd.Flags().StringVarP(&authEmail, "email", "e", "", "account email")

	authVerifyResetCodeCmd.Flags().StringVarP(&authEmail, "email", "e", "", "account email")
	authVerifyResetCodeCmd.Flags().StringVar(&authCode, "code", "", "reset code from the email")

	authResetPasswordCmd.Flags().StringVarP(&authEmail, "email", "e", "", "account email")
	authResetPasswordCmd.Flags().StringVar(&authCode, "code", "", "reset code from the email")
	authResetPasswordCmd.Flags().StringVarP(&authPassword, "password", "p", "", "new password")

	authSetupPasswordCmd.Flags().StringVar(&authInviteToken, "token", "", "invitation token")
	authSetupPasswordCmd.Flags().StringVarP(&authPassword, "password", "p", "", "new password")

	authCmd.AddCommand(
		authLoginCmd,
		authLogoutCmd,
		authStatusCmd,
		authRefreshCmd,
		authRegisterCmd,
		authVerifyCmd,
		authForgotPasswordCmd,
		authVerifyResetCodeCmd,
		authResetPasswordCmd,
		authSetupPasswordCmd,
	)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(ctx context.Context, a *app, _ []string) error {
	creds := tui.Credentials{Email: authEmail, Password: authPassword}

	if authPasswordStdin {
		pw, err := readSecretLine(a.in)
		if err != nil {
			return err
		}
		creds.Password = pw
	}

	if creds.Email == "" || creds.Password == "" {
		if !shouldPrompt() {
			if creds.Email == "" {
				return MissingInputError("email")
			}
			return MissingInputError("password")
		}
		var err error
		if creds, err = promptCredentials(creds); err != nil {
			return err
		}
	}

	a.restoreForAudit(ctx)
	if err := a.controller.Login(ctx, creds.Email, creds.Password); err != nil {
		return err
	}

	state := a.controller.State()
	return a.out.print(state, func() string {
		return tui.RenderMessage(fmt.Sprintf("Signed in as %s <%s>", state.User.FullName(), state.User.Email), a.out.styles)
	})
}

func runAuthLogout(ctx context.Context, a *app, _ []string) error {
	a.restoreForAudit(ctx)
	if err := a.controller.Logout(ctx); err != nil {
		return err
	}
	return a.out.message("Signed out")
}

// statusReport is the structured form of 'auth status'.
type statusReport struct {
	Phase            auth.Phase            `json:"phase"`
	IsAuthenticated  bool                  `json:"isAuthenticated"`
	User             *platform.UserProfile `json:"user,omitempty"`
	BaseURL          string                `json:"baseUrl"`
	Backend          string                `json:"backend"`
	AccessExpiresAt  *time.Time            `json:"accessExpiresAt,omitempty"`
	RefreshExpiresAt *time.Time            `json:"refreshExpiresAt,omitempty"`
	Warning          string                `json:"warning,omitempty"`
}

func runAuthStatus(ctx context.Context, a *app, _ []string) error {
	var warning string
	if err := a.controller.Start(ctx); err != nil {
		warning = auth.Message(err)
	}

	state := a.controller.State()
	report := statusReport{
		Phase:           state.Phase(),
		IsAuthenticated: state.IsAuthenticated,
		User:            state.User,
		BaseURL:         a.cfg.API.BaseURL,
		Backend:         a.cfg.Session.Backend,
		Warning:         warning,
	}
	report.AccessExpiresAt = storedExpiry(ctx, a.store, session.KeyAccessToken)
	report.RefreshExpiresAt = storedExpiry(ctx, a.store, session.KeyRefreshToken)

	return a.out.print(report, func() string {
		view := tui.SessionView{
			Phase:   string(report.Phase),
			BaseURL: report.BaseURL,
			Backend: report.Backend,
			Warning: report.Warning,
		}
		if u := report.User; u != nil {
			view.Name = u.FullName()
			view.Email = u.Email
			for _, r := range u.Roles {
				view.Roles = append(view.Roles, r.Name)
			}
		}
		if report.AccessExpiresAt != nil {
			view.AccessExpiry = *report.AccessExpiresAt
		}
		if report.RefreshExpiresAt != nil {
			view.RefreshExpiry = *report.RefreshExpiresAt
		}
		return tui.RenderSession(view, a.out.styles, time.Now())
	})
}

func storedExpiry(ctx context.Context, store session.Store, key session.Key) *time.Time {
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return nil
	}
	exp, ok := token.ExpiryOf(raw)
	if !ok {
		return nil
	}
	return &exp
}

func runAuthRefresh(ctx context.Context, a *app, _ []string) error {
	if err := a.controller.ManualRefresh(ctx); err != nil {
		return err
	}

	exp := storedExpiry(ctx, a.store, session.KeyAccessToken)
	result := map[string]any{"message": "Session refreshed"}
	if exp != nil {
		result["accessExpiresAt"] = exp
	}
	return a.out.print(result, func() string {
		msg := "Session refreshed"
		if exp != nil {
			msg += fmt.Sprintf(", access token valid until %s", exp.Local().Format(time.RFC1123))
		}
		return tui.RenderMessage(msg, a.out.styles)
	})
}

func runAuthRegister(ctx context.Context, a *app, _ []string) error {
	var (
		req platform.RegisterRequest
		err error
	)
	if req.FirstName, err = valueOrPrompt(authFirstName, "first-name", tui.Prompt{Message: "First name"}); err != nil {
		return err
	}
	if req.LastName, err = valueOrPrompt(authLastName, "last-name", tui.Prompt{Message: "Last name"}); err != nil {
		return err
	}
	if req.Email, err = valueOrPrompt(authEmail, "email", tui.Prompt{Message: "Email"}); err != nil {
		return err
	}
	if req.Password, err = secretOrPrompt(authPassword, "password", "Password"); err != nil {
		return err
	}

	res, err := a.controller.Register(ctx, req)
	if err != nil {
		return err
	}
	return printFlow(a, res)
}

func runAuthVerify(ctx context.Context, a *app, _ []string) error {
	email, err := valueOrPrompt(authEmail, "email", tui.Prompt{Message: "Email"})
	if err != nil {
		return err
	}
	code, err := valueOrPrompt(authCode, "code", tui.Prompt{Message: "Verification code"})
	if err != nil {
		return err
	}

	a.restoreForAudit(ctx)
	res, err := a.controller.VerifyRegistration(ctx, email, code)
	if err != nil {
		return err
	}
	return printFlow(a, res)
}

func runAuthForgotPassword(ctx context.Context, a *app, _ []string) error {
	email, err := valueOrPrompt(authEmail, "email", tui.Prompt{Message: "Email"})
	if err != nil {
		return err
	}

	res, err := a.controller.ForgotPassword(ctx, email)
	if err != nil {
		return err
	}
	return printFlow(a, res)
}

func runAuthVerifyResetCode(ctx context.Context, a *app, _ []string) error {
	email, err := valueOrPrompt(authEmail, "email", tui.Prompt{Message: "Email"})
	if err != nil {
		return err
	}
	code, err := valueOrPrompt(authCode, "code", tui.Prompt{Message: "Reset code"})
	if err != nil {
		return err
	}

	res, err := a.controller.VerifyResetCode(ctx, email, code)
	if err != nil {
		return err
	}
	return printFlow(a, res)
}

func runAuthResetPassword(ctx context.Context, a *app, _ []string) error {
	var (
		req platform.ResetPasswordRequest
		err error
	)
	if req.Email, err = valueOrPrompt(authEmail, "email", tui.Prompt{Message: "Email"}); err != nil {
		return err
	}
	if req.Code, err = valueOrPrompt(authCode, "code", tui.Prompt{Message: "Reset code"}); err != nil {
		return err
	}
	if req.NewPassword, err = secretOrPrompt(authPassword, "password", "New password"); err != nil {
		return err
	}

	res, err := a.controller.ResetPassword(ctx, req)
	if err != nil {
		return err
	}
	return printFlow(a, res)
}

func runAuthSetupPassword(ctx context.Context, a *app, _ []string) error {
	var (
		req platform.SetupPasswordRequest
		err error
	)
	if req.Token, err = valueOrPrompt(authInviteToken, "token", tui.Prompt{Message: "Invitation token"}); err != nil {
		return err
	}
	if req.Password, err = secretOrPrompt(authPassword, "password", "Password"); err != nil {
		return err
	}

	res, err := a.controller.SetupPassword(ctx, req)
	if err != nil {
		return err
	}
	return printFlow(a, res)
}

func printFlow(a *app, res *auth.FlowResult) error {
	return a.out.print(res, func() string {
		return tui.RenderMessage(res.Message, a.out.styles)
	})
}

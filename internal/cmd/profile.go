package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/practicedesk/internal/platform"
	"github.com/felixgeelhaar/practicedesk/internal/tui"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit the signed-in user's profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the signed-in user's profile",
	RunE:  withApp(runProfileShow),
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Edit the signed-in user's profile",
	Long: `Edit the signed-in user's profile. Only the given fields change.

Examples:
  practicedesk profile update --first-name Ada --last-name Lovelace`,
	RunE: withApp(runProfileUpdate),
}

var profileUpdate platform.ProfileUpdate

func init() {
	profileUpdateCmd.Flags().StringVar(&profileUpdate.FirstName, "first-name", "", "new first name")
	profileUpdateCmd.Flags().StringVar(&profileUpdate.LastName, "last-name", "", "new last name")
	profileUpdateCmd.Flags().StringVar(&profileUpdate.Email, "email", "", "new email")

	profileCmd.AddCommand(profileShowCmd, profileUpdateCmd)
	rootCmd.AddCommand(profileCmd)
}

func runProfileShow(ctx context.Context, a *app, _ []string) error {
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	return printProfile(a, a.controller.State().User)
}

func runProfileUpdate(ctx context.Context, a *app, _ []string) error {
	if profileUpdate == (platform.ProfileUpdate{}) {
		return NewErrorWithSuggestions("nothing to update", nil,
			"Pass at least one of --first-name, --last-name or --email")
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	if err := a.controller.EditProfile(ctx, profileUpdate); err != nil {
		return err
	}
	return printProfile(a, a.controller.State().User)
}

func printProfile(a *app, u *platform.UserProfile) error {
	return a.out.print(u, func() string {
		roles := make([]string, 0, len(u.Roles))
		for _, r := range u.Roles {
			roles = append(roles, r.Name)
		}
		return tui.RenderTable(
			[]string{"FIELD", "VALUE"},
			[][]string{
				{"ID", u.ID},
				{"Name", u.FullName()},
				{"Email", u.Email},
				{"Roles", strings.Join(roles, ", ")},
			},
			a.out.styles,
		)
	})
}

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
	"github.com/felixgeelhaar/practicedesk/internal/platform"
	"github.com/felixgeelhaar/practicedesk/internal/tui"
)

var patientsCmd = &cobra.Command{
	Use:   "patients",
	Short: "Browse patients",
}

var patientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List patients",
	Long: `List patients, optionally filtered by name.

Examples:
  practicedesk patients list --search li
  practicedesk patients list --page 2 --limit 50 --output json`,
	RunE: withApp(runPatientsList),
}

var patientsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one patient",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runPatientsGet),
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Browse providers",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers",
	RunE:  withApp(runProvidersList),
}

var appointmentsCmd = &cobra.Command{
	Use:   "appointments",
	Short: "Browse appointments",
}

var appointmentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List appointments",
	RunE:  withApp(runAppointmentsList),
}

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "Browse invoices",
}

var invoicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices",
	RunE:  withApp(runInvoicesList),
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Browse staff accounts (admin only)",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staff accounts",
	Long:  `List staff accounts. Requires the admin role.`,
	RunE:  withApp(runUsersList),
}

var listOpts platform.ListOptions

func init() {
	for _, c := range []*cobra.Command{patientsListCmd, providersListCmd, appointmentsListCmd, invoicesListCmd, usersListCmd} {
		c.Flags().IntVar(&listOpts.Page, "page", 0, "page number (1-based)")
		c.Flags().IntVar(&listOpts.Limit, "limit", 0, "page size")
		c.Flags().StringVar(&listOpts.Search, "search", "", "filter by name")
	}

	patientsCmd.AddCommand(patientsListCmd, patientsGetCmd)
	providersCmd.AddCommand(providersListCmd)
	appointmentsCmd.AddCommand(appointmentsListCmd)
	invoicesCmd.AddCommand(invoicesListCmd)
	usersCmd.AddCommand(usersListCmd)

	rootCmd.AddCommand(patientsCmd, providersCmd, appointmentsCmd, invoicesCmd, usersCmd)
}

func runPatientsList(ctx context.Context, a *app, _ []string) error {
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	page, err := a.client.ListPatients(ctx, listOpts)
	if err != nil {
		return err
	}
	return printPage(a, page, []string{"ID", "NAME", "BORN", "EMAIL", "PHONE"}, func(p platform.Patient) []string {
		return []string{p.ID, fullName(p.FirstName, p.LastName), p.DateOfBirth, p.Email, p.Phone}
	})
}

func runPatientsGet(ctx context.Context, a *app, args []string) error {
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	p, err := a.client.GetPatient(ctx, args[0])
	if err != nil {
		return err
	}
	return a.out.print(p, func() string {
		return tui.RenderTable(
			[]string{"FIELD", "VALUE"},
			[][]string{
				{"ID", p.ID},
				{"Name", fullName(p.FirstName, p.LastName)},
				{"Born", p.DateOfBirth},
				{"Email", p.Email},
				{"Phone", p.Phone},
			},
			a.out.styles,
		)
	})
}

func runProvidersList(ctx context.Context, a *app, _ []string) error {
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	page, err := a.client.ListProviders(ctx, listOpts)
	if err != nil {
		return err
	}
	return printPage(a, page, []string{"ID", "NAME", "SPECIALTY"}, func(p platform.Provider) []string {
		return []string{p.ID, fullName(p.FirstName, p.LastName), p.Specialty}
	})
}

func runAppointmentsList(ctx context.Context, a *app, _ []string) error {
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	page, err := a.client.ListAppointments(ctx, listOpts)
	if err != nil {
		return err
	}
	return printPage(a, page, []string{"ID", "PATIENT", "PROVIDER", "STARTS", "STATUS"}, func(ap platform.Appointment) []string {
		return []string{ap.ID, ap.PatientID, ap.ProviderID, ap.StartsAt.Local().Format("2006-01-02 15:04"), ap.Status}
	})
}

func runInvoicesList(ctx context.Context, a *app, _ []string) error {
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	page, err := a.client.ListInvoices(ctx, listOpts)
	if err != nil {
		return err
	}
	return printPage(a, page, []string{"ID", "PATIENT", "AMOUNT", "STATUS", "ISSUED"}, func(inv platform.Invoice) []string {
		return []string{inv.ID, inv.PatientID, formatAmount(inv.Amount, inv.Currency), inv.Status, inv.IssuedAt.Local().Format("2006-01-02")}
	})
}

func runUsersList(ctx context.Context, a *app, _ []string) error {
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	if u := a.controller.State().User; u == nil || !u.HasRole("admin") {
		return errors.New(errors.ErrCodeRequestFailed, "listing users requires the admin role").
			WithResponse(403, "/users", nil)
	}
	page, err := a.client.ListUsers(ctx, listOpts)
	if err != nil {
		return err
	}
	return printPage(a, page, []string{"ID", "NAME", "EMAIL", "ROLES", "ACTIVE"}, func(u platform.User) []string {
		roles := make([]string, 0, len(u.Roles))
		for _, r := range u.Roles {
			roles = append(roles, r.Name)
		}
		return []string{u.ID, fullName(u.FirstName, u.LastName), u.Email, strings.Join(roles, ", "), fmt.Sprint(u.Active)}
	})
}

func printPage[T any](a *app, page *platform.Page[T], headers []string, row func(T) []string) error {
	return a.out.print(page, func() string {
		rows := make([][]string, 0, len(page.Items))
		for _, item := range page.Items {
			rows = append(rows, row(item))
		}
		footer := a.out.styles.Muted.Render(fmt.Sprintf("%d of %d", len(page.Items), page.Total))
		return tui.RenderTable(headers, rows, a.out.styles) + "\n" + footer
	})
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

// formatAmount renders minor units with two decimals, e.g. 12050 EUR as "120.50 EUR".
func formatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return strings.TrimSpace(fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, currency))
}

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Styles contains lipgloss styles for terminal output
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Border  lipgloss.Style
	Header  lipgloss.Style
}

// DefaultStyles returns the default lipgloss styles
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")). // Purple
			MarginBottom(1),
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")). // Gray
			Width(12),
		Value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("46")), // Green
		Warning: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("226")), // Yellow
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")), // Red
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			Padding(0, 1),
	}
}

// SessionView is what the status card shows.
type SessionView struct {
	Phase         string
	Name          string
	Email         string
	Roles         []string
	BaseURL       string
	Backend       string
	AccessExpiry  time.Time
	RefreshExpiry time.Time
	Warning       string
}

// RenderSession renders the session status card.
func RenderSession(v SessionView, s Styles, now time.Time) string {
	var b strings.Builder

	b.WriteString(s.Title.Render("practicedesk session"))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(s.Label.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	row("Status", phaseStyle(v.Phase, s).Render(v.Phase))
	if v.Name != "" || v.Email != "" {
		row("User", s.Value.Render(strings.TrimSpace(fmt.Sprintf("%s <%s>", v.Name, v.Email))))
	}
	if len(v.Roles) > 0 {
		row("Roles", s.Value.Render(strings.Join(v.Roles, ", ")))
	}
	row("API", s.Value.Render(v.BaseURL))
	row("Store", s.Value.Render(v.Backend))
	if !v.AccessExpiry.IsZero() {
		row("Access", expiryText(v.AccessExpiry, now, s))
	}
	if !v.RefreshExpiry.IsZero() {
		row("Refresh", expiryText(v.RefreshExpiry, now, s))
	}
	if v.Warning != "" {
		b.WriteString("\n")
		b.WriteString(s.Warning.Render("! " + v.Warning))
	}

	return s.Border.Render(strings.TrimRight(b.String(), "\n"))
}

func phaseStyle(phase string, s Styles) lipgloss.Style {
	switch phase {
	case "authenticated":
		return s.Success
	case "initializing":
		return s.Warning
	default:
		return s.Muted
	}
}

func expiryText(at, now time.Time, s Styles) string {
	d := at.Sub(now).Round(time.Second)
	if d <= 0 {
		return s.Error.Render(fmt.Sprintf("expired %s ago", -d))
	}
	return s.Value.Render(fmt.Sprintf("expires in %s", d))
}

// RenderTable renders rows under headers. An empty table renders a muted
// placeholder instead.
func RenderTable(headers []string, rows [][]string, s Styles) string {
	if len(rows) == 0 {
		return s.Muted.Render("No results")
	}

	cell := lipgloss.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("241"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.Header
			}
			return cell
		}).
		String()
}

// RenderMessage renders a one-line result.
func RenderMessage(msg string, s Styles) string {
	return s.Success.Render("✓ ") + msg
}

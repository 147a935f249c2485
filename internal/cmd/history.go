package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/practicedesk/internal/audit"
	"github.com/felixgeelhaar/practicedesk/internal/tui"
)

var authHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded session events",
	Long: `List sign-ins, sign-outs and profile changes from the local audit trail,
newest first. Requires audit.dir (PRACTICEDESK_AUDIT_DIR) to be set.

Examples:
  practicedesk auth history
  practicedesk auth history --type session.signed_in --since 24h`,
	RunE: withApp(runAuthHistory),
}

var (
	historyLimit int
	historyType  string
	historySince time.Duration
)

func init() {
	authHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of events")
	authHistoryCmd.Flags().StringVar(&historyType, "type", "", "only events of this type")
	authHistoryCmd.Flags().DurationVar(&historySince, "since", 0, "only events newer than this")

	authCmd.AddCommand(authHistoryCmd)
}

func runAuthHistory(_ context.Context, a *app, _ []string) error {
	if a.audit == nil {
		return NewErrorWithSuggestions(
			"audit trail is disabled",
			nil,
			"Set audit.dir in the config file",
			"Or export PRACTICEDESK_AUDIT_DIR",
		)
	}

	filter := audit.Filter{Type: audit.EventType(historyType), Limit: historyLimit}
	if historySince > 0 {
		filter.Since = time.Now().Add(-historySince)
	}

	events, err := a.audit.Query(filter)
	if err != nil {
		return err
	}
	if events == nil {
		events = []*audit.Event{}
	}

	return a.out.print(events, func() string {
		rows := make([][]string, 0, len(events))
		for _, e := range events {
			rows = append(rows, []string{
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				string(e.Type),
				e.Actor,
				e.Source,
			})
		}
		return tui.RenderTable([]string{"Time", "Event", "User", "Source"}, rows, a.out.styles)
	})
}

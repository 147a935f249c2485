package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "practicedesk",
	Short: "Session-aware admin client for the practice platform",
	Long: `practicedesk signs staff in to the practice platform and keeps the session
alive across commands. Access tokens are refreshed transparently when the
platform rejects them; concurrent requests share a single refresh, and a
failed refresh ends the session everywhere at once.

Configuration is read from --config, $CONFIG_PATH or ./practicedesk.yaml,
with PRACTICEDESK_* environment variables taking precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	cfgFile      string
	outputFormat string
	apiURL       string
	logLevel     string
)

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, so that interrupt signals
// cancel in-flight requests.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./practicedesk.yaml or $CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatText, "output format: text, json or yaml")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "platform API base URL (overrides api.base_url)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides log.level)")
}

// cmd/main.go is the application entry point.
// It wires together all layers behind the serve, migrate and token commands.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fest",
		Short: "Registration, team formation and entry gate for a multi-day fest",
		Long: `fest runs the attendance engine: attendee sign-up, activity registration
with payment, team formation and single-use gate admission.

Configuration is read from the environment (PORT, STORE, DB_*, REDIS_URL,
TOKEN_*, PAYMENT_*, LOG_LEVEL).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newTokenCommand())
	return cmd
}

func newLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

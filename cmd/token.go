package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/config"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/credential"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
)

type tokenOptions struct {
	attendeeID string
	role       string
	ttl        time.Duration
}

// newTokenCommand mints staff bearer tokens for gate devices and organizer tools.
func newTokenCommand() *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a staff bearer token",
		Long: `Issue a bearer token for a staff member or organizer.

Example:
  fest token --attendee 3f0c... --role staff --ttl 12h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			role := model.Role(opts.role)
			if role != model.RoleStaff && role != model.RoleOrganizer {
				return fmt.Errorf("invalid role %q: must be staff or organizer", opts.role)
			}
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			token, expiresAt, err := credential.New(cfg.Token.SigningKey, cfg.Token.Issuer).
				IssueStaff(opts.attendeeID, role, opts.ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintln(cmd.ErrOrStderr(), "expires", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.attendeeID, "attendee", "", "attendee id of the token holder (required)")
	cmd.Flags().StringVar(&opts.role, "role", string(model.RoleStaff), "staff or organizer")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("attendee")
	return cmd
}

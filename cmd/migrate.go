package main

import (
	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/config"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/database"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			pool, err := database.NewPool(cmd.Context(), cfg.DB, logger)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			logger.Info("schema applied", "db", cfg.DB.Name)
			return nil
		},
	}
}

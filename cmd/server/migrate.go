package main

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		if db == nil {
			return errors.New("[migrate] the memory driver has no schema")
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		version, err := db.MigrationVersion(ctx)
		if err != nil {
			return err
		}
		log.Info().Str("driver", cfg.GetDatabaseDriver()).Int64("version", version).Msg("database migrated")
		return nil
	},
}

package main

import (
	"fmt"

	"github.com/Sentinaut/CommunityBot/internal/bot"
	"github.com/Sentinaut/CommunityBot/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := bot.LoadConfig(cfgViper)
		if err != nil {
			return err
		}

		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := db.Migrate(database.DB); err != nil {
			return fmt.Errorf("migrate %s: %w", cfg.DBPath, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema up to date: %s\n", cfg.DBPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

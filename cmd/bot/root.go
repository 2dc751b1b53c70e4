package main

import (
	"log"

	"github.com/Sentinaut/CommunityBot/internal/bot"
	"github.com/spf13/cobra"
)

var (
	cfgViper = bot.NewViper()
	envFile  string
)

var rootCmd = &cobra.Command{
	Use:           "communitybot",
	Short:         "Discord community bot keeping sticky messages at the bottom of channels",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return bot.LoadEnv(envFile)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", "", "env file to load (default .env if present)")
	flags.String("db-path", "", "SQLite database path (env DB_PATH)")
	flags.String("log-level", "", "DEBUG, INFO, WARN or ERROR (env LOG_LEVEL)")

	mustBind(rootCmd, bot.KeyDBPath, "db-path")
	mustBind(rootCmd, bot.KeyLogLevel, "log-level")
}

// mustBind lets a flag override the config key it mirrors.
func mustBind(cmd *cobra.Command, key, flag string) {
	f := cmd.PersistentFlags().Lookup(flag)
	if f == nil {
		f = cmd.Flags().Lookup(flag)
	}
	if err := cfgViper.BindPFlag(key, f); err != nil {
		log.Fatalf("binding --%s: %v", flag, err)
	}
}

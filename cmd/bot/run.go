package main

import (
	"log/slog"

	"github.com/Sentinaut/CommunityBot/internal/bot"
	"github.com/Sentinaut/CommunityBot/internal/dashboard"
	"github.com/Sentinaut/CommunityBot/internal/db"
	"github.com/Sentinaut/CommunityBot/modules/sticky"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and serve the dashboard until interrupted",
	RunE:  runBot,
}

func init() {
	runCmd.Flags().String("dashboard-listen", "", "dashboard address, empty to disable (env DASHBOARD_LISTEN)")
	mustBind(runCmd, bot.KeyDashboardListen, "dashboard-listen")
	rootCmd.AddCommand(runCmd)
}

func runBot(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := bot.LoadConfig(cfgViper)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	handler := bot.NewLogHandler(cmd.ErrOrStderr(), cfg.LogLevel)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	bot.InstallDiscordgoLogger(ctx, handler)

	logger.Info("opening database", "path", cfg.DBPath)
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database.DB); err != nil {
		return err
	}

	r, err := bot.NewRunner(cfg, logger)
	if err != nil {
		return err
	}

	store := sticky.NewSQLStore(database.DB, logger)
	messenger := sticky.NewDiscordMessenger(r.Session)
	engine := sticky.NewEngine(store, messenger, logger)
	r.Add(sticky.NewModule(engine, cfg.GuildID, logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.Run(gctx) })

	if cfg.Dashboard.Enabled() {
		api := dashboard.New(
			dashboard.Config{
				Listen:    cfg.Dashboard.Listen,
				Token:     cfg.Dashboard.Token,
				Origin:    cfg.Dashboard.Origin,
				RateLimit: cfg.Dashboard.RateLimit,
			},
			engine,
			store,
			messenger,
			logger,
		)
		g.Go(func() error { return api.Serve(gctx) })
	} else {
		logger.Info("dashboard disabled")
	}

	return g.Wait()
}

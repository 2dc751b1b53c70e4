package bot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

type Module interface {
	Name() string
	Register(s *discordgo.Session) error
	Start(ctx context.Context, s *discordgo.Session) error
}

type Runner struct {
	Session *discordgo.Session
	Modules []Module

	guildID string
	logger  *slog.Logger

	cleanupOnce sync.Once
}

func NewRunner(cfg Config, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}

	// Message authors and ids are enough; content is never read.
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	s.LogLevel = discordgoSessionLevel(cfg.LogLevel)

	return &Runner{
		Session: s,
		guildID: cfg.GuildID,
		logger:  logger.With("module", "bot"),
	}, nil
}

func (r *Runner) Add(modules ...Module) {
	r.Modules = append(r.Modules, modules...)
}

// Run registers handlers, starts every module, then opens the gateway and
// blocks until ctx is cancelled. Modules are started before the connection
// opens so their state is ready for the first event.
func (r *Runner) Run(ctx context.Context) error {
	// In single-guild mode old GLOBAL slash commands show up as duplicates
	// next to the guild ones, so they are wiped once on Ready.
	r.Session.AddHandler(r.onReadyGlobalCommandCleanup)

	for _, m := range r.Modules {
		if err := m.Register(r.Session); err != nil {
			return err
		}
		r.logger.Info("registered module", "name", m.Name())
	}

	for _, m := range r.Modules {
		if err := m.Start(ctx, r.Session); err != nil {
			return err
		}
		r.logger.Info("started module", "name", m.Name())
	}

	if err := r.Session.Open(); err != nil {
		return err
	}
	defer func() {
		if err := r.Session.Close(); err != nil {
			r.logger.Warn("closing gateway", tint.Err(err))
		}
	}()

	r.logger.Info("bot is running")
	<-ctx.Done()
	r.logger.Info("shutting down")
	return nil
}

func (r *Runner) onReadyGlobalCommandCleanup(s *discordgo.Session, _ *discordgo.Ready) {
	r.cleanupOnce.Do(func() {
		if r.guildID == "" {
			return
		}

		appID := ""
		if s.State != nil && s.State.User != nil {
			appID = s.State.User.ID
		}
		if appID == "" {
			r.logger.Warn("global command cleanup skipped: missing application ID")
			return
		}

		// Bulk overwrite with an empty list deletes every global command.
		if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
			r.logger.Error("global command cleanup failed", tint.Err(err))
			return
		}
		r.logger.Info("cleared global slash commands", "guild_id", r.guildID)
	})
}

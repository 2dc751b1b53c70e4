package sticky

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// Module plugs the engine into the bot runner.
type Module struct {
	engine  *Engine
	guildID string // if set, commands register instantly for that guild (single-server design)
	logger  *slog.Logger

	ctx context.Context
}

// NewModule creates the sticky module.
// guildID is used ONLY for slash command registration scope (guild vs global).
func NewModule(engine *Engine, guildID string, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{
		engine:  engine,
		guildID: strings.TrimSpace(guildID),
		logger:  logger.With("module", "sticky"),
		ctx:     context.Background(),
	}
}

func (m *Module) Name() string { return "sticky" }

func (m *Module) Register(s *discordgo.Session) error {
	s.AddHandler(m.onReady)
	s.AddHandler(m.onInteractionCreate)
	s.AddHandler(m.onMessageCreate)
	return nil
}

// Start seeds the engine before the gateway connection opens, so no message
// is handled against an empty cache.
func (m *Module) Start(ctx context.Context, _ *discordgo.Session) error {
	m.ctx = ctx
	return m.engine.Initialize(ctx)
}

func (m *Module) onMessageCreate(_ *discordgo.Session, e *discordgo.MessageCreate) {
	if e == nil || e.Message == nil || e.Author == nil {
		return
	}
	// Bots (ourselves included) never displace a sticky; neither do DMs.
	if e.Author.Bot || e.GuildID == "" {
		return
	}
	m.engine.HandleNewActivity(m.ctx, e.ChannelID, Activity{ID: e.ID, AuthorID: e.Author.ID})
}

// ---- command registration ----

func (m *Module) onReady(s *discordgo.Session, _ *discordgo.Ready) {
	appID := ""
	if s.State != nil && s.State.User != nil {
		appID = s.State.User.ID
	}
	if appID == "" {
		m.logger.Warn("cannot register commands: missing application ID")
		return
	}

	// Always delete old versions by name to avoid duplicates.
	_ = deleteCommandsByName(s, appID, m.guildID, commandName)
	if m.guildID != "" {
		// If we are registering guild-scoped, also delete any global versions.
		_ = deleteCommandsByName(s, appID, "", commandName)
	}

	if _, err := s.ApplicationCommandCreate(appID, m.guildID, stickyCommand()); err != nil {
		m.logger.Error("/sticky create failed", tint.Err(err))
		return
	}
	m.logger.Info("registered /sticky", "guild_id", m.guildID)
}

func deleteCommandsByName(s *discordgo.Session, appID, guildID, name string) error {
	cmds, err := s.ApplicationCommands(appID, guildID)
	if err != nil {
		return err
	}
	for _, c := range cmds {
		if c != nil && c.Name == name {
			_ = s.ApplicationCommandDelete(appID, guildID, c.ID)
		}
	}
	return nil
}

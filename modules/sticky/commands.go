package sticky

import (
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	commandName   = "sticky"
	subcommandSet = "set"
	subcommandRem = "remove"
)

func stickyCommand() *discordgo.ApplicationCommand {
	perms := int64(discordgo.PermissionManageMessages)
	dm := false
	return &discordgo.ApplicationCommand{
		Name:                     commandName,
		Description:              "Manage sticky messages",
		DefaultMemberPermissions: &perms,
		DMPermission:             &dm,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        subcommandSet,
				Description: "Set a sticky message in the current channel",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "message", Description: "The message content to make sticky", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "title", Description: "Optional title for the sticky message embed", Required: false},
					{Type: discordgo.ApplicationCommandOptionString, Name: "color", Description: "Color for the embed (hex code)", Required: false},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        subcommandRem,
				Description: "Remove the sticky message from the current channel",
			},
		},
	}
}

// setArgs are the options of /sticky set.
type setArgs struct {
	Content string
	Title   string
	Color   string
}

func parseSetArgs(opts []*discordgo.ApplicationCommandInteractionDataOption) setArgs {
	var a setArgs
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		v, ok := opt.Value.(string)
		if !ok {
			continue
		}
		switch opt.Name {
		case "message":
			a.Content = v
		case "title":
			a.Title = v
		case "color":
			a.Color = v
		}
	}
	return a
}

// ---- permissions ----

func canManageMessages(i *discordgo.InteractionCreate) bool {
	if i == nil || i.Member == nil {
		return false
	}
	perms := i.Member.Permissions
	return perms&(discordgo.PermissionAdministrator|discordgo.PermissionManageMessages) != 0
}

func (m *Module) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil {
		return
	}
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != commandName || len(data.Options) == 0 {
		return
	}

	if i.GuildID == "" {
		m.respondEphemeral(s, i, "This command only works in a server.")
		return
	}
	if !canManageMessages(i) {
		m.respondEphemeral(s, i, "You need **Manage Messages** to use this command.")
		return
	}

	sub := data.Options[0]
	switch sub.Name {
	case subcommandSet:
		m.handleSet(s, i, parseSetArgs(sub.Options))
	case subcommandRem:
		m.handleRemove(s, i)
	}
}

func (m *Module) handleSet(s *discordgo.Session, i *discordgo.InteractionCreate, args setArgs) {
	if !m.deferEphemeral(s, i) {
		return
	}

	var author Author
	if i.Member != nil {
		author = AuthorFromUser(i.Member.User)
	}

	_, err := m.engine.Set(m.ctx, Channel{ID: i.ChannelID, GuildID: i.GuildID}, args.Content, NewEmbed(args.Title, args.Color), author)
	if err != nil {
		m.logger.Warn("/sticky set failed", "channel_id", i.ChannelID, tint.Err(err))
	}
	m.editReply(s, i, setReply(err))
}

func (m *Module) handleRemove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !m.deferEphemeral(s, i) {
		return
	}

	removed, err := m.engine.Remove(m.ctx, i.ChannelID)
	switch {
	case err != nil:
		m.logger.Warn("/sticky remove failed", "channel_id", i.ChannelID, tint.Err(err))
		m.editReply(s, i, "There was an error removing the sticky message.")
	case !removed:
		m.editReply(s, i, "There was no sticky message in this channel.")
	default:
		m.editReply(s, i, "Sticky message removed successfully!")
	}
}

// setReply tells the user whether to fix their input, fix the bot's
// permissions, or simply retry.
func setReply(err error) string {
	if err == nil {
		return "Sticky message set successfully!"
	}
	switch KindOf(err) {
	case KindInvalidInput:
		return "The sticky message can't be empty."
	case KindPermissionDenied:
		return "I need **View Channel**, **Send Messages** and, for embeds, **Embed Links** in this channel."
	case KindPersistFailed:
		return "The sticky message couldn't be saved. Please try again."
	default:
		return "There was an error setting the sticky message. Please try again."
	}
}

func (m *Module) respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (m *Module) deferEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		m.logger.Error("interaction ack failed", tint.Err(err))
		return false
	}
	return true
}

func (m *Module) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &msg}); err != nil {
		m.logger.Error("interaction edit failed", tint.Err(err))
	}
}

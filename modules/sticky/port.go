package sticky

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
)

// ErrMessageGone is returned by Messenger.Delete when the message no longer
// exists. Callers treat it as a successful delete.
var ErrMessageGone = errors.New("message no longer exists")

// Capabilities is a Discord permission bit set for the bot in a channel.
type Capabilities int64

const (
	CapView  = Capabilities(discordgo.PermissionViewChannel)
	CapSend  = Capabilities(discordgo.PermissionSendMessages)
	CapEmbed = Capabilities(discordgo.PermissionEmbedLinks)
)

func (c Capabilities) Has(want Capabilities) bool {
	if int64(c)&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return c&want == want
}

// Payload is one outgoing sticky message: plain content or a single embed.
type Payload struct {
	Content string
	Embed   *discordgo.MessageEmbed
}

// MessageHandle identifies a message sent into a channel.
type MessageHandle struct {
	ChannelID string
	ID        string
}

// Author is the display identity of whoever set a sticky.
type Author struct {
	ID        string
	Tag       string
	AvatarURL string
}

// Channel names the target of Set.
type Channel struct {
	ID      string
	GuildID string
}

// Activity is a message that arrived in a channel.
type Activity struct {
	ID       string
	AuthorID string
}

// Messenger is the narrow per-channel surface of the chat platform the engine
// needs.
type Messenger interface {
	Send(ctx context.Context, channelID string, p Payload) (MessageHandle, error)
	// Fetch reports whether the message still exists.
	Fetch(ctx context.Context, channelID, messageID string) (bool, error)
	Delete(ctx context.Context, channelID, messageID string) error
	Permissions(ctx context.Context, channelID string) (Capabilities, error)
	ResolveUser(ctx context.Context, userID string) (Author, error)
	BotUserID() string
}

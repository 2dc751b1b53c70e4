package sticky

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// ErrUnknownChannel is returned when Discord does not know a channel id.
var ErrUnknownChannel = errors.New("unknown channel")

// Session is the subset of *discordgo.Session used by DiscordMessenger, kept
// small so tests can stub it.
type Session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// DiscordMessenger implements Messenger on a discordgo session.
type DiscordMessenger struct {
	session Session
	botID   func() string
}

func NewDiscordMessenger(s *discordgo.Session) *DiscordMessenger {
	return &DiscordMessenger{
		session: s,
		botID: func() string {
			if s.State != nil && s.State.User != nil {
				return s.State.User.ID
			}
			return ""
		},
	}
}

func (d *DiscordMessenger) Send(ctx context.Context, channelID string, p Payload) (MessageHandle, error) {
	msg, err := d.session.ChannelMessageSendComplex(channelID, p.messageSend(), discordgo.WithContext(ctx))
	if err != nil {
		return MessageHandle{}, err
	}
	if msg == nil || msg.ID == "" {
		return MessageHandle{}, errors.New("discord returned no message")
	}
	return MessageHandle{ChannelID: channelID, ID: msg.ID}, nil
}

func (d *DiscordMessenger) Fetch(ctx context.Context, channelID, messageID string) (bool, error) {
	_, err := d.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *DiscordMessenger) Delete(ctx context.Context, channelID, messageID string) error {
	err := d.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	if isNotFound(err) {
		return ErrMessageGone
	}
	return err
}

func (d *DiscordMessenger) Permissions(ctx context.Context, channelID string) (Capabilities, error) {
	botID := d.BotUserID()
	if botID == "" {
		return 0, errors.New("bot user not known yet")
	}
	perms, err := d.session.UserChannelPermissions(botID, channelID, discordgo.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("permissions in %s: %w", channelID, err)
	}
	return Capabilities(perms), nil
}

func (d *DiscordMessenger) ResolveUser(ctx context.Context, userID string) (Author, error) {
	u, err := d.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return Author{}, err
	}
	return AuthorFromUser(u), nil
}

func (d *DiscordMessenger) BotUserID() string {
	if d.botID == nil {
		return ""
	}
	return d.botID()
}

// ChannelGuild returns the guild a channel belongs to, or ErrUnknownChannel.
func (d *DiscordMessenger) ChannelGuild(ctx context.Context, channelID string) (string, error) {
	ch, err := d.session.Channel(channelID, discordgo.WithContext(ctx))
	if isNotFound(err) {
		return "", ErrUnknownChannel
	}
	if err != nil {
		return "", err
	}
	return ch.GuildID, nil
}

// AuthorFromUser converts a Discord user to the footer identity.
func AuthorFromUser(u *discordgo.User) Author {
	if u == nil {
		return Author{}
	}
	return Author{ID: u.ID, Tag: u.String(), AvatarURL: u.AvatarURL("")}
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return false
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
			return true
		}
	}
	return rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound
}

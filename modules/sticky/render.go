package sticky

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

const unknownAuthor = "Unknown User"

// render builds the outgoing payload for rec. author may be zero when the
// account could not be resolved.
func render(rec Record, author Author) Payload {
	if rec.Embed == nil {
		return Payload{Content: rec.Content}
	}

	footer := &discordgo.MessageEmbedFooter{Text: "Sticky message set by " + unknownAuthor}
	if author.Tag != "" {
		footer.Text = "Sticky message set by " + author.Tag
		footer.IconURL = author.AvatarURL
	}

	embed := &discordgo.MessageEmbed{
		Title:       rec.Embed.title(),
		Description: rec.Content,
		Color:       rec.Embed.color(),
		Footer:      footer,
	}
	if !rec.CreatedAt.IsZero() {
		embed.Timestamp = rec.CreatedAt.UTC().Format(time.RFC3339)
	}

	return Payload{Embed: embed}
}

func (p Payload) messageSend() *discordgo.MessageSend {
	if p.Embed != nil {
		return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{p.Embed}}
	}
	return &discordgo.MessageSend{
		Content: p.Content,
		// Sticky text is repeated often; never let it ping anyone.
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
}

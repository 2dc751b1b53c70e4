package sticky

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTitle = "Sticky Message"
	DefaultColor = 0x0099FF

	maxColor = 0xFFFFFF
)

// Record is the single sticky configuration of a channel.
type Record struct {
	ChannelID     string
	GuildID       string
	Content       string
	Embed         *Embed // nil: sent as plain text
	AuthorID      string
	LastMessageID string
	CreatedAt     time.Time
}

// Embed holds the optional embed shape of a sticky. A zero Color renders as
// DefaultColor and an empty Title as DefaultTitle.
type Embed struct {
	Title string
	Color int
}

// NewEmbed builds the embed variant from raw user input. It returns nil when
// neither a title nor a colour was supplied, which selects plain text.
func NewEmbed(title, color string) *Embed {
	title = strings.TrimSpace(title)
	color = strings.TrimSpace(color)
	if title == "" && color == "" {
		return nil
	}
	e := &Embed{Title: title}
	if color != "" {
		e.Color = ParseColor(color)
	}
	return e
}

func (e *Embed) title() string {
	if e == nil || e.Title == "" {
		return DefaultTitle
	}
	return e.Title
}

func (e *Embed) color() int {
	if e == nil || e.Color <= 0 || e.Color > maxColor {
		return DefaultColor
	}
	return e.Color
}

// ParseColor parses "#RRGGBB", "RRGGBB" or "0xRRGGBB". Anything else yields
// DefaultColor; colours are coerced, never rejected.
func ParseColor(s string) int {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if s == "" {
		return DefaultColor
	}

	v, err := strconv.ParseInt(s, 16, 64)
	if err != nil || v < 0 || v > maxColor {
		return DefaultColor
	}
	return int(v)
}

// ColorFromNumber accepts a colour given as a JSON number. Fractions and
// values outside 0x000000..0xFFFFFF yield DefaultColor.
func ColorFromNumber(v float64) int {
	if v < 0 || v > maxColor || v != math.Trunc(v) {
		return DefaultColor
	}
	return int(v)
}

func (r Record) clone() Record {
	if r.Embed != nil {
		e := *r.Embed
		r.Embed = &e
	}
	return r
}

package dashboard

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/Sentinaut/CommunityBot/modules/sticky"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

type handlers struct {
	engine Engine
	reader Reader
	dir    Directory
}

type stickyView struct {
	ChannelID     string     `json:"channel_id"`
	GuildID       string     `json:"guild_id"`
	Content       string     `json:"content"`
	Embed         bool       `json:"embed"`
	Title         string     `json:"title,omitempty"`
	Color         string     `json:"color,omitempty"`
	AuthorID      string     `json:"author_id,omitempty"`
	LastMessageID string     `json:"last_message_id,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

func newStickyView(r sticky.Record) stickyView {
	v := stickyView{
		ChannelID:     r.ChannelID,
		GuildID:       r.GuildID,
		Content:       r.Content,
		AuthorID:      r.AuthorID,
		LastMessageID: r.LastMessageID,
	}
	if r.Embed != nil {
		v.Embed = true
		v.Title = r.Embed.Title
		if r.Embed.Color != 0 {
			v.Color = fmt.Sprintf("#%06X", r.Embed.Color)
		}
	}
	if !r.CreatedAt.IsZero() {
		ts := r.CreatedAt
		v.CreatedAt = &ts
	}
	return v
}

type setStickyRequest struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Title     string `json:"title"`
	Color     any    `json:"color"` // "#RRGGBB" or an integer
	AuthorID  string `json:"author_id"`
}

// embed coerces the colour rather than rejecting it.
func (r setStickyRequest) embed() *sticky.Embed {
	switch c := r.Color.(type) {
	case nil:
		return sticky.NewEmbed(r.Title, "")
	case string:
		return sticky.NewEmbed(r.Title, c)
	case float64:
		return &sticky.Embed{Title: strings.TrimSpace(r.Title), Color: sticky.ColorFromNumber(c)}
	default:
		return &sticky.Embed{Title: strings.TrimSpace(r.Title), Color: sticky.DefaultColor}
	}
}

type setStickyResponse struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

type removeStickyResponse struct {
	Removed bool `json:"removed"`
}

type healthResponse struct {
	Status            string  `json:"status"`
	HostUptimeSeconds uint64  `json:"host_uptime_seconds,omitempty"`
	MemoryUsedPercent float64 `json:"memory_used_percent,omitempty"`
	Goroutines        int     `json:"goroutines"`
}

// health is unauthenticated. Host stats are best effort.
func (h *handlers) health(c *gin.Context) {
	resp := healthResponse{Status: "ok", Goroutines: runtime.NumGoroutine()}
	if up, err := host.UptimeWithContext(c.Request.Context()); err == nil {
		resp.HostUptimeSeconds = up
	}
	if vm, err := mem.VirtualMemoryWithContext(c.Request.Context()); err == nil {
		resp.MemoryUsedPercent = vm.UsedPercent
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) listStickies(c *gin.Context) {
	guildID := c.Param("guildId")
	records, err := h.reader.ListByGuild(c.Request.Context(), guildID)
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, httpError{Error: "error loading sticky messages"})
		return
	}

	out := make([]stickyView, 0, len(records))
	for _, r := range records {
		out = append(out, newStickyView(r))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) setSticky(c *gin.Context) {
	ctx := c.Request.Context()
	logger := requestLogger(c)
	guildID := c.Param("guildId")

	var req setStickyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: "invalid request body"})
		return
	}
	req.ChannelID = strings.TrimSpace(req.ChannelID)
	if req.ChannelID == "" || strings.TrimSpace(req.Content) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: "channel_id and content are required"})
		return
	}

	channelGuild, err := h.dir.ChannelGuild(ctx, req.ChannelID)
	switch {
	case errors.Is(err, sticky.ErrUnknownChannel):
		c.AbortWithStatusJSON(http.StatusNotFound, httpError{Error: "channel not found"})
		return
	case err != nil:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadGateway, httpError{Error: "error looking up channel"})
		return
	case channelGuild != guildID:
		c.AbortWithStatusJSON(http.StatusNotFound, httpError{Error: "channel not found in this guild"})
		return
	}

	author := sticky.Author{ID: req.AuthorID}
	if req.AuthorID != "" {
		if a, err := h.dir.ResolveUser(ctx, req.AuthorID); err == nil {
			author = a
		} else {
			logger.Warn("could not resolve sticky author", "author_id", req.AuthorID, tint.Err(err))
		}
	}

	handle, err := h.engine.Set(
		ctx,
		sticky.Channel{ID: req.ChannelID, GuildID: guildID},
		req.Content,
		req.embed(),
		author,
	)
	if err != nil {
		status, msg := setErrorStatus(err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, httpError{Error: msg})
		return
	}
	c.JSON(http.StatusCreated, setStickyResponse{ChannelID: handle.ChannelID, MessageID: handle.ID})
}

func setErrorStatus(err error) (int, string) {
	switch sticky.KindOf(err) {
	case sticky.KindInvalidInput:
		return http.StatusBadRequest, "invalid sticky message"
	case sticky.KindPermissionDenied:
		return http.StatusForbidden, "the bot is missing permissions in that channel"
	case sticky.KindSendFailed:
		return http.StatusBadGateway, "error posting the sticky message"
	default:
		return http.StatusInternalServerError, "error saving the sticky message"
	}
}

func (h *handlers) removeSticky(c *gin.Context) {
	guildID := c.Param("guildId")
	channelID := c.Param("channelId")

	rec, ok, err := h.reader.Get(c.Request.Context(), channelID)
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, httpError{Error: "error loading the sticky message"})
		return
	}
	// Another guild's channel is reported as nothing to remove.
	if ok && rec.GuildID != "" && rec.GuildID != guildID {
		c.JSON(http.StatusOK, removeStickyResponse{Removed: false})
		return
	}

	removed, err := h.engine.Remove(c.Request.Context(), channelID)
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, httpError{Error: "error removing the sticky message"})
		return
	}
	c.JSON(http.StatusOK, removeStickyResponse{Removed: removed})
}

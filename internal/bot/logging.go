package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const loggerNameKey = "logger"

var discordgoLogLevels = map[int]slog.Level{
	discordgo.LogDebug:         slog.LevelDebug,
	discordgo.LogError:         slog.LevelError,
	discordgo.LogWarning:       slog.LevelWarn,
	discordgo.LogInformational: slog.LevelInfo,
}

// ParseLevel accepts DEBUG, INFO, WARN or ERROR in any case. Empty means INFO.
func ParseLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", s)
	}
	return lvl, nil
}

// NewLogHandler returns the colourised handler every logger in the process
// is built on.
func NewLogHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
	})
}

// InstallDiscordgoLogger routes discordgo's internal logging into slog.
func InstallDiscordgoLogger(ctx context.Context, handler slog.Handler) {
	discordgo.Logger = discordgoLoggerFunc(
		ctx,
		handler.WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)
}

func discordgoLoggerFunc(ctx context.Context, handler slog.Handler) func(msgL int, caller int, format string, args ...any) {
	log := slog.New(handler)
	return func(msgL int, _ int, format string, args ...any) {
		level, ok := discordgoLogLevels[msgL]
		if !ok {
			level = slog.LevelInfo
		}
		log.LogAttrs(ctx, level, strings.ReplaceAll(fmt.Sprintf(format, args...), "\n", ""))
	}
}

// discordgoSessionLevel picks how chatty the session itself is allowed to be.
func discordgoSessionLevel(level slog.Level) int {
	switch {
	case level <= slog.LevelDebug:
		return discordgo.LogDebug
	case level <= slog.LevelInfo:
		return discordgo.LogWarning
	default:
		return discordgo.LogError
	}
}

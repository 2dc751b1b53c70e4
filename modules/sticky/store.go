package sticky

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lmittmann/tint"
)

// Store is the durable record of one sticky per channel.
type Store interface {
	Upsert(ctx context.Context, r Record) error
	DeleteByChannel(ctx context.Context, channelID string) error
	LoadAll(ctx context.Context) ([]Record, error)
	UpdateLastMessageID(ctx context.Context, channelID, messageID string) error
}

// SQLStore keeps stickies in the sticky_messages table.
type SQLStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewSQLStore(db *sqlx.DB, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{db: db, logger: logger.With("module", "sticky_store")}
}

// Rows written by older dashboards may carry NULLs, a TEXT colour or a
// TIMESTAMP created_at, hence the loose types for color and created_at.
const selectColumns = `channel_id,
	COALESCE(guild_id, '')        AS guild_id,
	COALESCE(content, '')         AS content,
	COALESCE(has_embed, 0)        AS has_embed,
	COALESCE(title, '')           AS title,
	color,
	COALESCE(author_id, '')       AS author_id,
	COALESCE(last_message_id, '') AS last_message_id,
	created_at`

type stickyRow struct {
	ChannelID     string `db:"channel_id"`
	GuildID       string `db:"guild_id"`
	Content       string `db:"content"`
	HasEmbed      int    `db:"has_embed"`
	Title         string `db:"title"`
	Color         any    `db:"color"`
	AuthorID      string `db:"author_id"`
	LastMessageID string `db:"last_message_id"`
	CreatedAt     any    `db:"created_at"`
}

type stickyParams struct {
	ChannelID     string `db:"channel_id"`
	GuildID       string `db:"guild_id"`
	Content       string `db:"content"`
	HasEmbed      int    `db:"has_embed"`
	Title         string `db:"title"`
	Color         int    `db:"color"`
	AuthorID      string `db:"author_id"`
	LastMessageID string `db:"last_message_id"`
	CreatedAt     int64  `db:"created_at"`
}

func (s *SQLStore) Upsert(ctx context.Context, r Record) error {
	p := stickyParams{
		ChannelID:     r.ChannelID,
		GuildID:       r.GuildID,
		Content:       r.Content,
		AuthorID:      r.AuthorID,
		LastMessageID: r.LastMessageID,
	}
	if r.Embed != nil {
		p.HasEmbed = 1
		p.Title = r.Embed.Title
		p.Color = r.Embed.Color
	}
	if !r.CreatedAt.IsZero() {
		p.CreatedAt = r.CreatedAt.Unix()
	}

	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO sticky_messages(channel_id, guild_id, content, has_embed, title, color, author_id, last_message_id, created_at)
		 VALUES(:channel_id, :guild_id, :content, :has_embed, :title, :color, :author_id, :last_message_id, :created_at)
		 ON CONFLICT(channel_id) DO UPDATE SET
		   guild_id        = excluded.guild_id,
		   content         = excluded.content,
		   has_embed       = excluded.has_embed,
		   title           = excluded.title,
		   color           = excluded.color,
		   author_id       = excluded.author_id,
		   last_message_id = excluded.last_message_id,
		   created_at      = excluded.created_at`,
		p,
	)
	if err != nil {
		return fmt.Errorf("upsert sticky %s: %w", r.ChannelID, err)
	}
	return nil
}

func (s *SQLStore) DeleteByChannel(ctx context.Context, channelID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sticky_messages WHERE channel_id = ?`, channelID); err != nil {
		return fmt.Errorf("delete sticky %s: %w", channelID, err)
	}
	return nil
}

func (s *SQLStore) UpdateLastMessageID(ctx context.Context, channelID, messageID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sticky_messages SET last_message_id = ? WHERE channel_id = ?`,
		messageID, channelID,
	)
	if err != nil {
		return fmt.Errorf("update last message of %s: %w", channelID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update last message of %s: %w", channelID, sql.ErrNoRows)
	}
	return nil
}

// LoadAll returns every readable row. Rows that cannot be decoded are logged
// and skipped so one bad row does not take every sticky down with it.
func (s *SQLStore) LoadAll(ctx context.Context) ([]Record, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM sticky_messages`)
}

// ListByGuild is the dashboard read path.
func (s *SQLStore) ListByGuild(ctx context.Context, guildID string) ([]Record, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM sticky_messages WHERE guild_id = ? ORDER BY channel_id`, guildID)
}

func (s *SQLStore) Get(ctx context.Context, channelID string) (Record, bool, error) {
	var row stickyRow
	err := s.db.GetContext(ctx, &row, `SELECT `+selectColumns+` FROM sticky_messages WHERE channel_id = ?`, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get sticky %s: %w", channelID, err)
	}
	rec, err := row.record()
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *SQLStore) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query stickies: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		var row stickyRow
		if err := rows.StructScan(&row); err != nil {
			s.logger.Error("skipping unreadable sticky row", tint.Err(err))
			continue
		}
		rec, err := row.record()
		if err != nil {
			s.logger.Error("skipping invalid sticky row", "channel_id", row.ChannelID, tint.Err(err))
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stickies: %w", err)
	}
	return out, nil
}

func (row stickyRow) record() (Record, error) {
	if strings.TrimSpace(row.ChannelID) == "" {
		return Record{}, errors.New("empty channel id")
	}
	if strings.TrimSpace(row.Content) == "" {
		return Record{}, errors.New("empty content")
	}

	rec := Record{
		ChannelID:     row.ChannelID,
		GuildID:       row.GuildID,
		Content:       row.Content,
		AuthorID:      row.AuthorID,
		LastMessageID: row.LastMessageID,
		CreatedAt:     timeFromDB(row.CreatedAt),
	}
	if row.HasEmbed != 0 {
		rec.Embed = &Embed{Title: row.Title, Color: colorFromDB(row.Color)}
	}
	return rec, nil
}

func colorFromDB(v any) int {
	switch c := v.(type) {
	case int64:
		return int(c)
	case float64:
		return int(c)
	case string:
		return ParseColor(c)
	case []byte:
		return ParseColor(string(c))
	default:
		return 0
	}
}

const sqliteTimestampLayout = "2006-01-02 15:04:05"

func timeFromDB(v any) time.Time {
	switch t := v.(type) {
	case int64:
		if t <= 0 {
			return time.Time{}
		}
		return time.Unix(t, 0).UTC()
	case time.Time:
		return t.UTC()
	case string:
		return parseTimestamp(t)
	case []byte:
		return parseTimestamp(string(t))
	default:
		return time.Time{}
	}
}

func parseTimestamp(s string) time.Time {
	if ts, err := time.Parse(sqliteTimestampLayout, s); err == nil {
		return ts.UTC()
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC()
	}
	return time.Time{}
}

package db

import (
	"fmt"
	"unicode"

	"github.com/jmoiron/sqlx"
)

// Migrate ensures the SQLite schema is up-to-date.
// One sticky row per channel; guild_id is denormalised for dashboard listing.
func Migrate(d *sqlx.DB) error {
	// Base schema (idempotent)
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sticky_messages (
			channel_id      TEXT PRIMARY KEY,
			guild_id        TEXT NOT NULL DEFAULT '',
			content         TEXT NOT NULL,
			has_embed       INTEGER NOT NULL DEFAULT 0,
			title           TEXT NOT NULL DEFAULT '',
			color           INTEGER NOT NULL DEFAULT 0,
			author_id       TEXT NOT NULL DEFAULT '',
			last_message_id TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL DEFAULT 0
		);`,
	}

	for _, q := range stmts {
		if _, err := d.Exec(q); err != nil {
			return err
		}
	}

	// Additive schema upgrades for databases written by the old dashboard,
	// which kept the live copy in message_id and had no embed flag.
	if err := ensureColumn(d, "sticky_messages", "guild_id", `ALTER TABLE sticky_messages ADD COLUMN guild_id TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}
	if err := ensureColumn(d, "sticky_messages", "author_id", `ALTER TABLE sticky_messages ADD COLUMN author_id TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}
	if err := ensureColumn(d, "sticky_messages", "created_at", `ALTER TABLE sticky_messages ADD COLUMN created_at INTEGER NOT NULL DEFAULT 0`); err != nil {
		return err
	}
	if err := migrateLastMessageID(d); err != nil {
		return err
	}
	if err := migrateEmbedFlag(d); err != nil {
		return err
	}

	_, _ = d.Exec(`CREATE INDEX IF NOT EXISTS idx_sticky_messages_guild ON sticky_messages(guild_id);`)

	return nil
}

func ensureColumn(d *sqlx.DB, table, column, alterSQL string) error {
	ok, err := hasColumn(d, table, column)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	_, err = d.Exec(alterSQL)
	return err
}

// IMPORTANT: PRAGMA does not accept bound parameters for identifiers.
// We validate identifiers before formatting.
func hasColumn(d *sqlx.DB, table, column string) (bool, error) {
	if !isSafeSQLiteIdent(table) {
		return false, fmt.Errorf("unsafe table identifier: %q", table)
	}
	rows, err := d.Query(fmt.Sprintf(`PRAGMA table_info(%s);`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var (
		cid       int
		name      string
		typ       string
		notnull   int
		dfltValue any
		pk        int
	)
	for rows.Next() {
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func isSafeSQLiteIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r == '_' {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

func migrateLastMessageID(d *sqlx.DB) error {
	ok, err := hasColumn(d, "sticky_messages", "last_message_id")
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := d.Exec(`ALTER TABLE sticky_messages ADD COLUMN last_message_id TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}

	legacy, err := hasColumn(d, "sticky_messages", "message_id")
	if err != nil || !legacy {
		return err
	}
	_, err = d.Exec(`UPDATE sticky_messages SET last_message_id = COALESCE(message_id, '') WHERE last_message_id = ''`)
	return err
}

func migrateEmbedFlag(d *sqlx.DB) error {
	ok, err := hasColumn(d, "sticky_messages", "has_embed")
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := d.Exec(`ALTER TABLE sticky_messages ADD COLUMN has_embed INTEGER NOT NULL DEFAULT 0`); err != nil {
		return err
	}

	// Old rows were embeds whenever a title or colour had been given.
	_, err = d.Exec(`UPDATE sticky_messages SET has_embed = 1
		WHERE COALESCE(title, '') <> '' OR COALESCE(CAST(color AS TEXT), '') NOT IN ('', '0')`)
	return err
}

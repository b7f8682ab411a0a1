package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/lo"

	"github.com/Tyrowin/chathub/internal/chat"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	username     TEXT UNIQUE NOT NULL,
	avatar_url   TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	is_active    INTEGER NOT NULL DEFAULT 1,
	created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS channels (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	ch_name        TEXT NOT NULL,
	ch_description TEXT NOT NULL DEFAULT '',
	creator_id     INTEGER NOT NULL REFERENCES users(id),
	is_private     INTEGER NOT NULL DEFAULT 0,
	is_archived    INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at     DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS channel_members (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	channel_id  INTEGER NOT NULL REFERENCES channels(id),
	user_id     INTEGER NOT NULL REFERENCES users(id),
	member_role TEXT NOT NULL DEFAULT 'member',
	joined_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (channel_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	channel_id     INTEGER NOT NULL REFERENCES channels(id),
	sender_id      INTEGER REFERENCES users(id),
	parent_msg_id  INTEGER REFERENCES messages(id),
	content_type   TEXT NOT NULL,
	text_content   TEXT NOT NULL DEFAULT '',
	media_url      TEXT,
	media_metadata TEXT,
	created_at     DATETIME,
	updated_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_channel_members_channel ON channel_members(channel_id);
CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id);
`

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// Single writer; avoids SQLITE_BUSY between concurrent sessions.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema if it does not exist yet.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

// ListMembers returns the members of a channel in join order.
func (s *SQLiteStore) ListMembers(ctx context.Context, channelID int64) ([]chat.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, member_role
		FROM channel_members
		WHERE channel_id = ?
		ORDER BY id
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list members of channel %d: %w", channelID, err)
	}
	defer rows.Close()

	var members []chat.Member
	for rows.Next() {
		var m chat.Member
		if err := rows.Scan(&m.UserID, &m.Role); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CreateMessage inserts a message and returns the stored row.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg chat.NewMessage) (chat.Message, error) {
	if err := checkContentType(msg.ContentType); err != nil {
		return chat.Message{}, err
	}

	var metadata sql.NullString
	if len(msg.MediaMetadata) > 0 {
		metadata = sql.NullString{String: string(msg.MediaMetadata), Valid: true}
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (channel_id, sender_id, parent_msg_id, content_type, text_content, media_url, media_metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ChannelID, msg.SenderID, msg.ParentID, string(msg.ContentType), msg.Text, msg.MediaURL, metadata, now, now)
	if err != nil {
		return chat.Message{}, fmt.Errorf("create message in channel %d: %w", msg.ChannelID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return chat.Message{}, err
	}

	return chat.Message{
		ID:            id,
		ChannelID:     msg.ChannelID,
		SenderID:      msg.SenderID,
		ParentID:      msg.ParentID,
		ContentType:   msg.ContentType,
		Text:          msg.Text,
		MediaURL:      msg.MediaURL,
		MediaMetadata: msg.MediaMetadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// GetProfiles returns the profiles of the given users in a single query.
func (s *SQLiteStore) GetProfiles(ctx context.Context, userIDs []int64) ([]chat.Profile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(userIDs)), ",")
	args := lo.Map(userIDs, func(id int64, _ int) any { return id })

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, avatar_url, display_name FROM users WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get profiles: %w", err)
	}
	defer rows.Close()

	var profiles []chat.Profile
	for rows.Next() {
		var p chat.Profile
		if err := rows.Scan(&p.ID, &p.AvatarURL, &p.DisplayName); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// CreateUser inserts a user and returns its id.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, displayName, avatarURL string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, display_name, avatar_url) VALUES (?, ?, ?)
	`, username, displayName, avatarURL)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CreateChannel inserts a channel and returns its id.
func (s *SQLiteStore) CreateChannel(ctx context.Context, name string, creatorID int64, isPrivate bool) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (ch_name, creator_id, is_private) VALUES (?, ?, ?)
	`, name, creatorID, isPrivate)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AddMember joins a user to a channel; joining twice is a no-op.
func (s *SQLiteStore) AddMember(ctx context.Context, channelID, userID int64, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO channel_members (channel_id, user_id, member_role) VALUES (?, ?, ?)
	`, channelID, userID, role)
	return err
}

// ListMessages returns up to limit messages of a channel, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, channelID int64, limit int) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, sender_id, parent_msg_id, content_type, text_content, media_url, media_metadata
		FROM messages
		WHERE channel_id = ?
		ORDER BY id
		LIMIT ?
	`, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var (
			m           chat.Message
			contentType string
			parentID    sql.NullInt64
			mediaURL    sql.NullString
			metadata    sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SenderID, &parentID, &contentType,
			&m.Text, &mediaURL, &metadata); err != nil {
			return nil, err
		}
		m.ContentType = chat.ContentType(contentType)
		if parentID.Valid {
			m.ParentID = &parentID.Int64
		}
		if mediaURL.Valid {
			m.MediaURL = &mediaURL.String
		}
		if metadata.Valid {
			m.MediaMetadata = json.RawMessage(metadata.String)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

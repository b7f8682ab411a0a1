package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tyrowin/chathub/internal/chat"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id           BIGSERIAL PRIMARY KEY,
	username     TEXT UNIQUE NOT NULL,
	avatar_url   TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS channels (
	id             BIGSERIAL PRIMARY KEY,
	ch_name        TEXT NOT NULL,
	ch_description TEXT NOT NULL DEFAULT '',
	creator_id     BIGINT NOT NULL REFERENCES users(id),
	is_private     BOOLEAN NOT NULL DEFAULT FALSE,
	is_archived    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS channel_members (
	id          BIGSERIAL PRIMARY KEY,
	channel_id  BIGINT NOT NULL REFERENCES channels(id),
	user_id     BIGINT NOT NULL REFERENCES users(id),
	member_role TEXT NOT NULL DEFAULT 'member',
	joined_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (channel_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id             BIGSERIAL PRIMARY KEY,
	channel_id     BIGINT NOT NULL REFERENCES channels(id),
	sender_id      BIGINT REFERENCES users(id),
	parent_msg_id  BIGINT REFERENCES messages(id),
	content_type   TEXT NOT NULL CHECK (content_type IN ('text', 'image', 'video', 'file', 'system')),
	text_content   TEXT NOT NULL DEFAULT '',
	media_url      TEXT,
	media_metadata JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_channel_members_channel ON channel_members(channel_id);
CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages(channel_id, created_at);
`

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the schema if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

// ListMembers returns the members of a channel in join order.
func (s *PostgresStore) ListMembers(ctx context.Context, channelID int64) ([]chat.Member, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, member_role
		FROM channel_members
		WHERE channel_id = $1
		ORDER BY joined_at, id
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
func (s *PostgresStore) CreateMessage(ctx context.Context, msg chat.NewMessage) (chat.Message, error) {
	if err := checkContentType(msg.ContentType); err != nil {
		return chat.Message{}, err
	}

	var metadata []byte
	if len(msg.MediaMetadata) > 0 {
		metadata = msg.MediaMetadata
	}

	out := chat.Message{}
	var contentType string
	var storedMeta []byte
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (channel_id, sender_id, parent_msg_id, content_type, text_content, media_url, media_metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, channel_id, sender_id, parent_msg_id, content_type, text_content, media_url, media_metadata, created_at, updated_at
	`, msg.ChannelID, msg.SenderID, msg.ParentID, string(msg.ContentType), msg.Text, msg.MediaURL, metadata).Scan(
		&out.ID,
		&out.ChannelID,
		&out.SenderID,
		&out.ParentID,
		&contentType,
		&out.Text,
		&out.MediaURL,
		&storedMeta,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return chat.Message{}, fmt.Errorf("create message in channel %d: %w", msg.ChannelID, err)
	}
	out.ContentType = chat.ContentType(contentType)
	out.MediaMetadata = json.RawMessage(storedMeta)
	return out, nil
}

// GetProfiles returns the profiles of the given users in a single query.
func (s *PostgresStore) GetProfiles(ctx context.Context, userIDs []int64) ([]chat.Profile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, avatar_url, display_name
		FROM users
		WHERE id = ANY($1)
	`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("get profiles: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (chat.Profile, error) {
		var p chat.Profile
		err := row.Scan(&p.ID, &p.AvatarURL, &p.DisplayName)
		return p, err
	})
}

// CreateUser inserts a user and returns its id.
func (s *PostgresStore) CreateUser(ctx context.Context, username, displayName, avatarURL string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, display_name, avatar_url)
		VALUES ($1, $2, $3)
		RETURNING id
	`, username, displayName, avatarURL).Scan(&id)
	return id, err
}

// CreateChannel inserts a channel and returns its id.
func (s *PostgresStore) CreateChannel(ctx context.Context, name string, creatorID int64, isPrivate bool) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO channels (ch_name, creator_id, is_private)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name, creatorID, isPrivate).Scan(&id)
	return id, err
}

// AddMember joins a user to a channel; joining twice is a no-op.
func (s *PostgresStore) AddMember(ctx context.Context, channelID, userID int64, role string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channel_members (channel_id, user_id, member_role)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel_id, user_id) DO NOTHING
	`, channelID, userID, role)
	return err
}

// ListMessages returns up to limit messages of a channel, oldest first.
func (s *PostgresStore) ListMessages(ctx context.Context, channelID int64, limit int) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, channel_id, sender_id, parent_msg_id, content_type, text_content, media_url, media_metadata, created_at, updated_at
		FROM messages
		WHERE channel_id = $1
		ORDER BY id
		LIMIT $2
	`, channelID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (chat.Message, error) {
		var m chat.Message
		var contentType string
		var meta []byte
		err := row.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.ParentID, &contentType,
			&m.Text, &m.MediaURL, &meta, &m.CreatedAt, &m.UpdatedAt)
		m.ContentType = chat.ContentType(contentType)
		m.MediaMetadata = json.RawMessage(meta)
		return m, err
	})
}

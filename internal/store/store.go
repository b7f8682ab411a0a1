// Package store implements the relational collaborators of the hub:
// channel membership, message persistence and profile lookup.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tyrowin/chathub/internal/chat"
)

// ErrUnsupportedContentType is returned when a message carries an unknown content type.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// DataStore is implemented by PostgresStore and SQLiteStore.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error

	// Hub collaborators
	ListMembers(ctx context.Context, channelID int64) ([]chat.Member, error)
	CreateMessage(ctx context.Context, msg chat.NewMessage) (chat.Message, error)
	GetProfiles(ctx context.Context, userIDs []int64) ([]chat.Profile, error)

	// Seeding and inspection
	CreateUser(ctx context.Context, username, displayName, avatarURL string) (int64, error)
	CreateChannel(ctx context.Context, name string, creatorID int64, isPrivate bool) (int64, error)
	AddMember(ctx context.Context, channelID, userID int64, role string) error
	ListMessages(ctx context.Context, channelID int64, limit int) ([]chat.Message, error)
}

func checkContentType(ct chat.ContentType) error {
	if !ct.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedContentType, ct)
	}
	return nil
}

var (
	_ DataStore = (*PostgresStore)(nil)
	_ DataStore = (*SQLiteStore)(nil)
)

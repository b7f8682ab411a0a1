// Package chat holds the domain types shared by the hub and the relational
// store: channel membership, user profiles and persisted messages.
package chat

import (
	"encoding/json"
	"time"
)

// ContentType classifies the payload of a message.
type ContentType string

const (
	ContentText   ContentType = "text"
	ContentImage  ContentType = "image"
	ContentVideo  ContentType = "video"
	ContentFile   ContentType = "file"
	ContentSystem ContentType = "system"
)

// Valid reports whether c is one of the known content types.
func (c ContentType) Valid() bool {
	switch c {
	case ContentText, ContentImage, ContentVideo, ContentFile, ContentSystem:
		return true
	}
	return false
}

// Member is one row of a channel's membership.
type Member struct {
	UserID int64
	Role   string
}

// Profile is the lightweight public view of a user.
type Profile struct {
	ID          int64  `json:"id"`
	AvatarURL   string `json:"avatar_url"`
	DisplayName string `json:"display_name"`
}

// NewMessage carries everything needed to persist a message.
type NewMessage struct {
	ChannelID     int64
	SenderID      int64
	ParentID      *int64
	ContentType   ContentType
	Text          string
	MediaURL      *string
	MediaMetadata json.RawMessage
}

// Message is a persisted chat message.
type Message struct {
	ID            int64
	ChannelID     int64
	SenderID      int64
	ParentID      *int64
	ContentType   ContentType
	Text          string
	MediaURL      *string
	MediaMetadata json.RawMessage
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

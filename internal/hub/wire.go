package hub

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/Tyrowin/chathub/internal/chat"
)

// ErrInvalidBatch is returned when a decoded frame fails validation.
var ErrInvalidBatch = errors.New("invalid inbound batch")

// InboundMessage is one chat message inside an inbound frame.
// SenderID is accepted on the wire but ignored; the session's user is the sender.
type InboundMessage struct {
	SenderID      *int64           `json:"sender_id"`
	ParentID      *int64           `json:"parent_msg_id"`
	ContentType   chat.ContentType `json:"content_type" validate:"required,oneof=text image video file system"`
	Text          string           `json:"text_content"`
	MediaURL      *string          `json:"media_url"`
	MediaMetadata json.RawMessage  `json:"media_metadata"`
}

// InboundBatch is the decoded form of one client frame.
type InboundBatch struct {
	ChannelID int64            `json:"channel_id" validate:"gt=0"`
	Messages  []InboundMessage `json:"msgs" validate:"min=1,dive"`
}

// OutboundFrame is what a recipient receives for each persisted message.
type OutboundFrame struct {
	Sender        chat.Profile     `json:"sender"`
	ParentID      *int64           `json:"parent_msg_id"`
	ContentType   chat.ContentType `json:"content_type"`
	Text          string           `json:"text_content"`
	MediaURL      *string          `json:"media_url"`
	MediaMetadata json.RawMessage  `json:"media_metadata"`
}

var validate = validator.New()

// DecodeBatch parses and validates a raw inbound frame.
func DecodeBatch(raw []byte) (InboundBatch, error) {
	var batch InboundBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return InboundBatch{}, fmt.Errorf("decode batch: %w", err)
	}
	if err := validate.Struct(batch); err != nil {
		return InboundBatch{}, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	return batch, nil
}

// EncodeFrame serializes an outbound frame as a single wire message.
func EncodeFrame(frame OutboundFrame) ([]byte, error) {
	return json.Marshal(frame)
}

// newOutboundFrame renders a persisted message with the sender's profile.
func newOutboundFrame(sender chat.Profile, msg chat.Message) OutboundFrame {
	return OutboundFrame{
		Sender:        sender,
		ParentID:      msg.ParentID,
		ContentType:   msg.ContentType,
		Text:          msg.Text,
		MediaURL:      msg.MediaURL,
		MediaMetadata: nullIfEmpty(msg.MediaMetadata),
	}
}

func nullIfEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

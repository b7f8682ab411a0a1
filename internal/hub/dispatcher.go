package hub

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Tyrowin/chathub/internal/chat"
	"github.com/Tyrowin/chathub/internal/metrics"
)

//go:generate mockgen -source=dispatcher.go -destination=mocks/collaborators.go -package=mocks

// MembershipLookup resolves the current members of a channel.
type MembershipLookup interface {
	ListMembers(ctx context.Context, channelID int64) ([]chat.Member, error)
}

// MessageStore persists chat messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg chat.NewMessage) (chat.Message, error)
}

// ProfileLookup resolves public profiles for a set of users in one round trip.
type ProfileLookup interface {
	GetProfiles(ctx context.Context, userIDs []int64) ([]chat.Profile, error)
}

// Dispatcher persists inbound batches and fans each stored message out to
// the online members of the target channel.
//
// Delivery never blocks: a recipient whose outbound backlog is full loses
// that frame, other recipients are unaffected.
type Dispatcher struct {
	log      zerolog.Logger
	registry *Registry
	members  MembershipLookup
	messages MessageStore
	profiles ProfileLookup
}

// NewDispatcher wires a Dispatcher to its collaborators.
func NewDispatcher(
	log zerolog.Logger,
	registry *Registry,
	members MembershipLookup,
	messages MessageStore,
	profiles ProfileLookup,
) *Dispatcher {
	return &Dispatcher{
		log:      log,
		registry: registry,
		members:  members,
		messages: messages,
		profiles: profiles,
	}
}

// Dispatch handles one batch from senderID addressed to channelID. Messages
// are persisted and delivered strictly in order; nothing is reported back.
func (d *Dispatcher) Dispatch(ctx context.Context, channelID, senderID int64, msgs []InboundMessage) {
	start := time.Now()
	defer func() { metrics.DispatchDuration.Observe(time.Since(start).Seconds()) }()

	log := d.log.With().Int64("channel_id", channelID).Int64("sender_id", senderID).Logger()

	members, err := d.members.ListMembers(ctx, channelID)
	if err != nil {
		metrics.DispatchAborted.Inc()
		log.Error().Err(err).Int("batch_size", len(msgs)).Msg("membership lookup failed, batch dropped")
		return
	}

	sender := d.senderProfile(ctx, log, senderID, members)

	for i, in := range msgs {
		stored, err := d.messages.CreateMessage(ctx, chat.NewMessage{
			ChannelID:     channelID,
			SenderID:      senderID,
			ParentID:      in.ParentID,
			ContentType:   in.ContentType,
			Text:          in.Text,
			MediaURL:      in.MediaURL,
			MediaMetadata: nullIfEmpty(in.MediaMetadata),
		})
		if err != nil {
			metrics.PersistFailures.Inc()
			log.Error().Err(err).Int("index", i).Msg("persisting message failed, skipping")
			continue
		}
		metrics.MessagesPersisted.Inc()

		d.deliver(log, members, newOutboundFrame(sender, stored))
	}
}

// senderProfile looks up profiles for the member set plus the sender. A
// failed lookup degrades to a profile carrying only the sender's id.
func (d *Dispatcher) senderProfile(ctx context.Context, log zerolog.Logger, senderID int64, members []chat.Member) chat.Profile {
	fallback := chat.Profile{ID: senderID}

	ids := lo.Uniq(append(lo.Map(members, func(m chat.Member, _ int) int64 { return m.UserID }), senderID))
	profiles, err := d.profiles.GetProfiles(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Msg("profile lookup failed, delivering with bare sender id")
		return fallback
	}

	byID := lo.KeyBy(profiles, func(p chat.Profile) int64 { return p.ID })
	if p, ok := byID[senderID]; ok {
		return p
	}
	return fallback
}

func (d *Dispatcher) deliver(log zerolog.Logger, members []chat.Member, frame OutboundFrame) {
	for _, m := range members {
		ch, ok := d.registry.Lookup(m.UserID)
		if !ok {
			continue
		}
		select {
		case ch <- frame:
			metrics.FramesDelivered.Inc()
		default:
			metrics.FramesDropped.WithLabelValues(metrics.ReasonBacklogFull).Inc()
			log.Warn().Int64("recipient_id", m.UserID).Msg("outbound backlog full, frame dropped")
		}
	}
}

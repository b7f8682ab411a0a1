package hub

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Tyrowin/chathub/internal/chat"
	"github.com/Tyrowin/chathub/internal/hub/mocks"
	"github.com/Tyrowin/chathub/internal/metrics"
)

const (
	userA int64 = 1
	userB int64 = 2
	userC int64 = 3
	chan7 int64 = 7
)

type dispatcherFixture struct {
	registry   *Registry
	members    *mocks.MockMembershipLookup
	messages   *mocks.MockMessageStore
	profiles   *mocks.MockProfileLookup
	dispatcher *Dispatcher
}

func newDispatcherFixture(t *testing.T) dispatcherFixture {
	ctrl := gomock.NewController(t)
	f := dispatcherFixture{
		registry: NewRegistry(),
		members:  mocks.NewMockMembershipLookup(ctrl),
		messages: mocks.NewMockMessageStore(ctrl),
		profiles: mocks.NewMockProfileLookup(ctrl),
	}
	f.dispatcher = NewDispatcher(zerolog.Nop(), f.registry, f.members, f.messages, f.profiles)
	return f
}

func channelMembers() []chat.Member {
	return []chat.Member{
		{UserID: userA, Role: "admin"},
		{UserID: userB, Role: "member"},
		{UserID: userC, Role: "member"},
	}
}

func profileSet() []chat.Profile {
	return []chat.Profile{
		{ID: userA, DisplayName: "Alice", AvatarURL: "http://img.test/a.png"},
		{ID: userB, DisplayName: "Bob"},
		{ID: userC, DisplayName: "Carol"},
	}
}

// storeEcho turns a NewMessage into a persisted Message with the given id.
func storeEcho(id int64) func(context.Context, chat.NewMessage) (chat.Message, error) {
	return func(_ context.Context, m chat.NewMessage) (chat.Message, error) {
		return chat.Message{
			ID:          id,
			ChannelID:   m.ChannelID,
			SenderID:    m.SenderID,
			ParentID:    m.ParentID,
			ContentType: m.ContentType,
			Text:        m.Text,
			MediaURL:    m.MediaURL,
		}, nil
	}
}

func textMessage(text string) InboundMessage {
	return InboundMessage{ContentType: chat.ContentText, Text: text}
}

func TestDispatchDeliversOnlyToOnlineMembers(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)

	chA := make(chan OutboundFrame, 10)
	chB := make(chan OutboundFrame, 10)
	stranger := make(chan OutboundFrame, 10)
	f.registry.Register(userA, chA)
	f.registry.Register(userB, chB)
	f.registry.Register(99, stranger)

	f.members.EXPECT().ListMembers(gomock.Any(), chan7).Return(channelMembers(), nil)
	f.profiles.EXPECT().GetProfiles(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ids []int64) ([]chat.Profile, error) {
			req.ElementsMatch([]int64{userA, userB, userC}, ids)
			return profileSet(), nil
		})
	f.messages.EXPECT().CreateMessage(gomock.Any(), chat.NewMessage{
		ChannelID:   chan7,
		SenderID:    userA,
		ContentType: chat.ContentText,
		Text:        "hi",
	}).DoAndReturn(storeEcho(100))

	f.dispatcher.Dispatch(context.Background(), chan7, userA, []InboundMessage{textMessage("hi")})

	req.Len(chB, 1)
	frame := <-chB
	req.Equal("hi", frame.Text)
	req.Equal(chat.Profile{ID: userA, DisplayName: "Alice", AvatarURL: "http://img.test/a.png"}, frame.Sender)

	req.Len(chA, 1, "sender's own connection receives the echo")
	req.Empty(stranger, "non-members never receive channel traffic")
}

func TestDispatchIgnoresClientSuppliedSender(t *testing.T) {
	f := newDispatcherFixture(t)
	spoofed := userB

	f.members.EXPECT().ListMembers(gomock.Any(), chan7).Return(channelMembers(), nil)
	f.profiles.EXPECT().GetProfiles(gomock.Any(), gomock.Any()).Return(profileSet(), nil)
	f.messages.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, m chat.NewMessage) (chat.Message, error) {
			require.Equal(t, userA, m.SenderID)
			return storeEcho(1)(ctx, m)
		})

	f.dispatcher.Dispatch(context.Background(), chan7, userA, []InboundMessage{
		{SenderID: &spoofed, ContentType: chat.ContentText, Text: "x"},
	})
}

func TestDispatchNeverDeliversBeforePersist(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	chB := make(chan OutboundFrame, 10)
	f.registry.Register(userB, chB)

	f.members.EXPECT().ListMembers(gomock.Any(), chan7).Return(channelMembers(), nil)
	f.profiles.EXPECT().GetProfiles(gomock.Any(), gomock.Any()).Return(profileSet(), nil)

	persisted := 0
	f.messages.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, m chat.NewMessage) (chat.Message, error) {
			req.Len(chB, persisted, "frame for %q enqueued before its persistence returned", m.Text)
			persisted++
			return storeEcho(int64(persisted))(ctx, m)
		}).Times(3)

	f.dispatcher.Dispatch(context.Background(), chan7, userA, []InboundMessage{
		textMessage("one"), textMessage("two"), textMessage("three"),
	})

	req.Len(chB, 3)
	req.Equal("one", (<-chB).Text)
	req.Equal("two", (<-chB).Text)
	req.Equal("three", (<-chB).Text)
}

func TestDispatchSkipsFailedPersistAndContinues(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	chB := make(chan OutboundFrame, 10)
	f.registry.Register(userB, chB)

	failuresBefore := testutil.ToFloat64(metrics.PersistFailures)

	f.members.EXPECT().ListMembers(gomock.Any(), chan7).Return(channelMembers(), nil)
	f.profiles.EXPECT().GetProfiles(gomock.Any(), gomock.Any()).Return(profileSet(), nil)
	gomock.InOrder(
		f.messages.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).DoAndReturn(storeEcho(1)),
		f.messages.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(chat.Message{}, errors.New("disk full")),
		f.messages.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).DoAndReturn(storeEcho(3)),
	)

	f.dispatcher.Dispatch(context.Background(), chan7, userA, []InboundMessage{
		textMessage("first"), textMessage("second"), textMessage("third"),
	})

	req.Len(chB, 2)
	req.Equal("first", (<-chB).Text)
	req.Equal("third", (<-chB).Text)
	req.Equal(failuresBefore+1, testutil.ToFloat64(metrics.PersistFailures))
}

func TestDispatchAbortsWhenMembershipLookupFails(t *testing.T) {
	f := newDispatcherFixture(t)
	chB := make(chan OutboundFrame, 10)
	f.registry.Register(userB, chB)

	abortedBefore := testutil.ToFloat64(metrics.DispatchAborted)

	// No profile or persistence calls are expected; gomock fails the test on any.
	f.members.EXPECT().ListMembers(gomock.Any(), chan7).Return(nil, errors.New("connection refused"))

	f.dispatcher.Dispatch(context.Background(), chan7, userA, []InboundMessage{textMessage("lost")})

	require.Empty(t, chB)
	require.Equal(t, abortedBefore+1, testutil.ToFloat64(metrics.DispatchAborted))
}

func TestDispatchDegradesWhenProfileLookupFails(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	chB := make(chan OutboundFrame, 10)
	f.registry.Register(userB, chB)

	f.members.EXPECT().ListMembers(gomock.Any(), chan7).Return(channelMembers(), nil)
	f.profiles.EXPECT().GetProfiles(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))
	f.messages.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).DoAndReturn(storeEcho(1))

	f.dispatcher.Dispatch(context.Background(), chan7, userA, []InboundMessage{textMessage("still here")})

	req.Len(chB, 1)
	frame := <-chB
	req.Equal(chat.Profile{ID: userA}, frame.Sender)
	req.Equal("still here", frame.Text)
}

func TestDispatchDropsNewestForFullBacklog(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)

	slow := make(chan OutboundFrame, 1)
	slow <- OutboundFrame{Text: "already queued"}
	chB := make(chan OutboundFrame, 10)
	f.registry.Register(userC, slow)
	f.registry.Register(userB, chB)

	droppedBefore := testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.ReasonBacklogFull))

	f.members.EXPECT().ListMembers(gomock.Any(), chan7).Return(channelMembers(), nil)
	f.profiles.EXPECT().GetProfiles(gomock.Any(), gomock.Any()).Return(profileSet(), nil)
	f.messages.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).DoAndReturn(storeEcho(1)).Times(2)

	f.dispatcher.Dispatch(context.Background(), chan7, userA, []InboundMessage{textMessage("a"), textMessage("b")})

	req.Len(chB, 2, "a full backlog for one member does not block others")
	req.Len(slow, 1)
	req.Equal("already queued", (<-slow).Text, "oldest frame is kept, new ones are dropped")
	req.Equal(droppedBefore+2, testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.ReasonBacklogFull)))
}

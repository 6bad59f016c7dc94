package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"social-realtime/apperror"
	"social-realtime/chat"
	"social-realtime/model"
	"social-realtime/presence"
	"social-realtime/socketio/sockettest"
	"social-realtime/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	event   string
	payload any
}

type fakeConn struct {
	id     string
	claims *utils.TokenMetadata

	mu    sync.Mutex
	rooms map[string]bool
	emits []emitted
}

func newConn(id string) *fakeConn {
	return &fakeConn{id: id, rooms: map[string]bool{}}
}

func (c *fakeConn) ID() string                   { return c.id }
func (c *fakeConn) Claims() *utils.TokenMetadata { return c.claims }

func (c *fakeConn) Join(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = true
}

func (c *fakeConn) Leave(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}

func (c *fakeConn) Emit(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emits = append(c.emits, emitted{event: event, payload: payload})
}

func (c *fakeConn) last(t *testing.T) emitted {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.emits)
	return c.emits[len(c.emits)-1]
}

type fakeChat struct {
	sent    []chat.SendMessage
	sendErr error
	read    []chat.MarkRead
	typing  []bool
	signals []string
	payload any
	panics  bool
}

func (f *fakeChat) Send(_ context.Context, req chat.SendMessage) (*model.Message, error) {
	if f.panics {
		panic("boom")
	}
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, req)
	return &model.Message{ID: "m1", ChatID: "c1", SenderID: req.SenderID, Content: req.Content}, nil
}

func (f *fakeChat) MarkRead(_ context.Context, req chat.MarkRead) error {
	f.read = append(f.read, req)
	return nil
}

func (f *fakeChat) Typing(_ context.Context, _ chat.TypingEvent, typing bool) error {
	f.typing = append(f.typing, typing)
	return nil
}

func (f *fakeChat) Signal(_ context.Context, event, chatID, fromID, to string, payload any) error {
	f.signals = append(f.signals, event+":"+chatID+":"+fromID+":"+to)
	f.payload = payload
	return nil
}

type toggle struct {
	kind      model.ReactionKind
	contentID string
	on        bool
}

type fakeToggler struct{ toggles []toggle }

func (f *fakeToggler) Toggle(kind model.ReactionKind, contentID, _ string, on bool) error {
	f.toggles = append(f.toggles, toggle{kind: kind, contentID: contentID, on: on})
	return nil
}

type fakeReactions struct {
	likes []bool
	winks []string
}

func (f *fakeReactions) LikePost(_ context.Context, postID, _ string) (int64, error) {
	f.likes = append(f.likes, true)
	return 1, nil
}

func (f *fakeReactions) UnlikePost(_ context.Context, postID, _ string) (int64, error) {
	f.likes = append(f.likes, false)
	return 0, nil
}

func (f *fakeReactions) WinkProfile(_ context.Context, profileID, userID string) (int64, error) {
	if profileID == userID {
		return 0, apperror.ErrSelfWink
	}
	f.winks = append(f.winks, profileID)
	return 1, nil
}

type fixture struct {
	dispatcher *Dispatcher
	registry   *presence.Registry
	recorder   *sockettest.Recorder
	chat       *fakeChat
	toggles    *fakeToggler
	reactions  *fakeReactions
}

func newFixture() *fixture {
	rec := &sockettest.Recorder{}
	registry := presence.NewRegistry(presence.NewWriter(nil, time.Hour), rec, time.Second)
	f := &fixture{
		registry:  registry,
		recorder:  rec,
		chat:      &fakeChat{},
		toggles:   &fakeToggler{},
		reactions: &fakeReactions{},
	}
	f.dispatcher = NewDispatcher(registry, f.chat, f.toggles, f.reactions, time.Second)
	return f
}

func (f *fixture) joined(userID, connID string) *fakeConn {
	conn := newConn(connID)
	f.dispatcher.Handle(conn, "join-user", map[string]any{"userId": userID})
	return conn
}

func TestJoinUser(t *testing.T) {
	f := newFixture()

	conn := newConn("s1")
	f.dispatcher.Handle(conn, "join-user", "alice")

	assert.True(t, conn.rooms["user-alice"])
	assert.True(t, f.registry.IsOnline("alice"))
	assert.Len(t, f.recorder.Events(presence.EventUserOnline), 1)

	t.Run("switching user leaves the old room", func(t *testing.T) {
		f.dispatcher.Handle(conn, "join-user", map[string]any{"userId": "bob"})
		assert.False(t, conn.rooms["user-alice"])
		assert.True(t, conn.rooms["user-bob"])
		assert.False(t, f.registry.IsOnline("alice"))
	})

	t.Run("token for another user is rejected", func(t *testing.T) {
		other := newConn("s2")
		other.claims = &utils.TokenMetadata{Id: "carol"}
		f.dispatcher.Handle(other, "join-user", "dave")

		last := other.last(t)
		assert.Equal(t, EventError, last.event)
		assert.Equal(t, apperror.CodeUnauthenticated, last.payload.(ErrorEvent).Code)
		assert.False(t, f.registry.IsOnline("dave"))
		assert.Empty(t, other.rooms)
	})

	t.Run("missing user id", func(t *testing.T) {
		other := newConn("s3")
		f.dispatcher.Handle(other, "join-user")
		assert.Equal(t, ErrorEvent{Event: "join-user", Code: apperror.CodeInvalidArgument, Message: "userId is required"}, other.last(t).payload)
	})
}

func TestSendMessage(t *testing.T) {
	f := newFixture()
	conn := f.joined("alice", "s1")

	f.dispatcher.Handle(conn, "send-message", map[string]any{
		"senderId": "alice", "receiverId": "bob", "content": "hi", "type": "text", "tempId": "t1",
	})

	require.Len(t, f.chat.sent, 1)
	last := conn.last(t)
	assert.Equal(t, chat.EventMessageSent, last.event)
	sent := last.payload.(chat.SentEvent)
	assert.Equal(t, "t1", sent.TempID)
	assert.Equal(t, "m1", sent.Message.ID)
}

func TestSendMessage_Errors(t *testing.T) {
	cases := []struct {
		name    string
		joinAs  string
		sendErr error
		payload any
		code    apperror.Code
		message string
	}{
		{
			name:    "not joined",
			payload: map[string]any{"senderId": "alice", "tempId": "t1"},
			code:    apperror.CodeUnauthenticated,
			message: "join-user must be sent first",
		},
		{
			name:    "sender is someone else",
			joinAs:  "mallory",
			payload: map[string]any{"senderId": "alice", "tempId": "t1"},
			code:    apperror.CodeUnauthenticated,
			message: "token does not belong to this user",
		},
		{
			name:    "relay rejection is passed through",
			joinAs:  "alice",
			sendErr: apperror.ErrNotFriends,
			payload: map[string]any{"senderId": "alice", "tempId": "t1"},
			code:    apperror.CodePermissionDenied,
			message: "you can only message users who accepted your friend request",
		},
		{
			name:    "internal errors are hidden",
			joinAs:  "alice",
			sendErr: apperror.Internal("failed to send message", errors.New("pq: connection refused")),
			payload: map[string]any{"senderId": "alice", "tempId": "t1"},
			code:    apperror.CodeInternal,
			message: "failed to send message",
		},
		{
			name:    "malformed payload",
			joinAs:  "alice",
			payload: []any{"not", "an", "object"},
			code:    apperror.CodeInvalidArgument,
			message: "malformed payload",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.chat.sendErr = tc.sendErr
			conn := newConn("s1")
			if tc.joinAs != "" {
				conn = f.joined(tc.joinAs, "s1")
			}

			f.dispatcher.Handle(conn, "send-message", tc.payload)

			last := conn.last(t)
			assert.Equal(t, chat.EventMessageErr, last.event)
			event := last.payload.(chat.ErrorEvent)
			assert.Equal(t, tc.code, event.Code)
			assert.Equal(t, tc.message, event.Message)
			assert.Empty(t, f.chat.sent)
		})
	}
}

func TestHandle_RecoversFromPanic(t *testing.T) {
	f := newFixture()
	f.chat.panics = true
	conn := f.joined("alice", "s1")

	assert.NotPanics(t, func() {
		f.dispatcher.Handle(conn, "send-message", map[string]any{"senderId": "alice"})
	})
	last := conn.last(t)
	assert.Equal(t, EventError, last.event)
	assert.Equal(t, apperror.CodeInternal, last.payload.(ErrorEvent).Code)
}

func TestReactionEvents(t *testing.T) {
	f := newFixture()
	conn := f.joined("alice", "s1")

	f.dispatcher.Handle(conn, "like-post", map[string]any{"postId": "p1", "userId": "alice"})
	f.dispatcher.Handle(conn, "unlike-post", map[string]any{"postId": "p1", "userId": "alice"})
	f.dispatcher.Handle(conn, "forum-like-toggle", map[string]any{"postId": "f1", "userId": "alice", "isLiked": true})
	f.dispatcher.Handle(conn, "wink-post", map[string]any{"postId": "p2", "userId": "alice"})
	f.dispatcher.Handle(conn, "unwink-post", map[string]any{"postId": "p2", "userId": "alice"})
	f.dispatcher.Handle(conn, "wink-profile", map[string]any{"profileId": "bob", "userId": "alice"})

	assert.Equal(t, []bool{true, false}, f.reactions.likes)
	assert.Equal(t, []toggle{
		{kind: model.ForumLike, contentID: "f1", on: true},
		{kind: model.PostWink, contentID: "p2", on: true},
		{kind: model.PostWink, contentID: "p2", on: false},
	}, f.toggles.toggles)
	assert.Equal(t, []string{"bob"}, f.reactions.winks)

	f.dispatcher.Handle(conn, "wink-profile", map[string]any{"profileId": "alice", "userId": "alice"})
	assert.Equal(t, ErrorEvent{Event: "wink-profile", Code: apperror.CodeInvalidArgument, Message: "cannot wink at your own profile"}, conn.last(t).payload)

	f.dispatcher.Handle(conn, "forum-like-toggle", map[string]any{"postId": "f1", "userId": "bob", "isLiked": true})
	assert.Len(t, f.toggles.toggles, 3)
}

func TestChatEvents(t *testing.T) {
	f := newFixture()
	conn := f.joined("alice", "s1")

	f.dispatcher.Handle(conn, "chat-mark-read", map[string]any{"chatId": "c1", "userId": "alice"})
	f.dispatcher.Handle(conn, "typing", map[string]any{"chatId": "c1", "userId": "alice"})
	f.dispatcher.Handle(conn, "stop-typing", map[string]any{"chatId": "c1", "userId": "alice"})

	offer := map[string]any{"chatId": "c1", "userId": "alice", "to": "bob", "sdp": "v=0"}
	f.dispatcher.Handle(conn, "offer", offer)

	assert.Equal(t, []chat.MarkRead{{ChatID: "c1", UserID: "alice"}}, f.chat.read)
	assert.Equal(t, []bool{true, false}, f.chat.typing)
	assert.Equal(t, []string{"offer:c1:alice:bob"}, f.chat.signals)
	assert.Equal(t, offer, f.chat.payload)
}

func TestUserActivityAndDisconnect(t *testing.T) {
	f := newFixture()
	conn := f.joined("alice", "s1")

	f.dispatcher.Handle(conn, "user-activity", "bob")
	assert.Equal(t, EventError, conn.last(t).event)

	f.dispatcher.Handle(conn, "user-activity", "alice")
	f.dispatcher.Disconnect(conn)

	assert.False(t, f.registry.IsOnline("alice"))
	assert.Len(t, f.recorder.Events(presence.EventUserOffline), 1)
}

func TestEvents(t *testing.T) {
	f := newFixture()
	assert.ElementsMatch(t, append([]string{
		"join-user", "user-activity", "send-message", "chat-mark-read", "typing", "stop-typing",
		"like-post", "unlike-post", "forum-like-toggle", "wink-post", "unwink-post", "wink-profile",
	}, chat.SignalEvents...), f.dispatcher.Events())
}

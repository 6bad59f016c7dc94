package router

import (
	"context"
	"fmt"
	"time"

	"social-realtime/apperror"
	"social-realtime/chat"
	"social-realtime/model"
	"social-realtime/socketio"
	"social-realtime/utils"

	"github.com/zishang520/engine.io/v2/log"
)

var dispatchLog = log.NewLog("realtime:router")

const EventError = "error"

// Conn is the connection a client event arrived on.
type Conn interface {
	ID() string
	Claims() *utils.TokenMetadata
	Join(room string)
	Leave(room string)
	Emit(event string, payload any)
}

type Presence interface {
	Join(connID, userID string) bool
	Activity(userID string) bool
	Disconnect(connID string)
	UserOf(connID string) (string, bool)
}

type Chat interface {
	Send(ctx context.Context, req chat.SendMessage) (*model.Message, error)
	MarkRead(ctx context.Context, req chat.MarkRead) error
	Typing(ctx context.Context, event chat.TypingEvent, typing bool) error
	Signal(ctx context.Context, event, chatID, fromID, to string, payload any) error
}

type Toggler interface {
	Toggle(kind model.ReactionKind, contentID, userID string, on bool) error
}

type Reactions interface {
	LikePost(ctx context.Context, postID, userID string) (int64, error)
	UnlikePost(ctx context.Context, postID, userID string) (int64, error)
	WinkProfile(ctx context.Context, profileID, userID string) (int64, error)
}

// ErrorEvent is emitted on "error" when an event other than send-message is
// rejected.
type ErrorEvent struct {
	Event   string        `json:"event"`
	Code    apperror.Code `json:"code"`
	Message string        `json:"message"`
}

type postEvent struct {
	PostID  string `json:"postId"`
	UserID  string `json:"userId"`
	IsLiked bool   `json:"isLiked"`
}

type profileEvent struct {
	ProfileID string `json:"profileId"`
	UserID    string `json:"userId"`
}

type signalEvent struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
	To     string `json:"to"`
}

type handler func(ctx context.Context, conn Conn, args []any) error

// Dispatcher turns client events into calls on the real-time core.
type Dispatcher struct {
	presence  Presence
	chat      Chat
	toggles   Toggler
	reactions Reactions
	timeout   time.Duration
	handlers  map[string]handler
}

func NewDispatcher(presence Presence, relay Chat, toggles Toggler, reactions Reactions, timeout time.Duration) *Dispatcher {
	d := &Dispatcher{
		presence:  presence,
		chat:      relay,
		toggles:   toggles,
		reactions: reactions,
		timeout:   timeout,
	}
	d.handlers = map[string]handler{
		"join-user":         d.joinUser,
		"user-activity":     d.userActivity,
		"send-message":      d.sendMessage,
		"chat-mark-read":    d.markRead,
		"typing":            d.typing(true),
		"stop-typing":       d.typing(false),
		"like-post":         d.likePost(true),
		"unlike-post":       d.likePost(false),
		"forum-like-toggle": d.forumLike,
		"wink-post":         d.winkPost(true),
		"unwink-post":       d.winkPost(false),
		"wink-profile":      d.winkProfile,
	}
	for _, event := range chat.SignalEvents {
		d.handlers[event] = d.signal(event)
	}
	return d
}

// Events lists every client event the dispatcher understands.
func (d *Dispatcher) Events() []string {
	events := make([]string, 0, len(d.handlers))
	for event := range d.handlers {
		events = append(events, event)
	}
	return events
}

// Handle runs one client event. Rejections go back to conn only, panics are
// logged and never escape.
func (d *Dispatcher) Handle(conn Conn, event string, args ...any) {
	h, ok := d.handlers[event]
	if !ok {
		dispatchLog.Debug("ignoring unknown event %s from %s", event, conn.ID())
		return
	}

	defer func() {
		if r := recover(); r != nil {
			dispatchLog.Error("panic while handling %s from %s: %v", event, conn.ID(), r)
			d.reject(conn, event, apperror.Internal("panic", fmt.Errorf("%v", r)))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := h(ctx, conn, args); err != nil {
		d.reject(conn, event, err)
	}
}

// Disconnect forgets conn.
func (d *Dispatcher) Disconnect(conn Conn) {
	defer func() {
		if r := recover(); r != nil {
			dispatchLog.Error("panic while disconnecting %s: %v", conn.ID(), r)
		}
	}()
	d.presence.Disconnect(conn.ID())
}

func (d *Dispatcher) reject(conn Conn, event string, err error) {
	logRejection(conn, event, err)
	public := apperror.Public(err, "failed to handle "+event)
	conn.Emit(EventError, ErrorEvent{Event: event, Code: public.Code, Message: public.Message})
}

func logRejection(conn Conn, event string, err error) {
	switch apperror.CodeOf(err) {
	case apperror.CodeInternal, apperror.CodeUnknown:
		dispatchLog.Error("%s from %s failed: %v", event, conn.ID(), err)
	default:
		dispatchLog.Debug("%s from %s rejected: %v", event, conn.ID(), err)
	}
}

// actor checks that userID is who the connection joined as. An empty id is
// left for the handler's own validation.
func (d *Dispatcher) actor(conn Conn, userID string) error {
	if userID == "" {
		return nil
	}
	joined, ok := d.presence.UserOf(conn.ID())
	if !ok {
		return apperror.ErrNotJoined
	}
	if joined != userID {
		return apperror.ErrIdentityMismatch
	}
	return nil
}

func decode(args []any, out any) error {
	if err := utils.DecodePayload(args, out); err != nil {
		return apperror.Wrap(apperror.CodeInvalidArgument, "malformed payload", err)
	}
	return nil
}

func (d *Dispatcher) joinUser(_ context.Context, conn Conn, args []any) error {
	userID, err := utils.UserIDArg(args)
	if err != nil || userID == "" {
		return apperror.ErrMissingUser
	}
	if claims := conn.Claims(); claims != nil && claims.Id != userID {
		return apperror.ErrIdentityMismatch
	}

	if previous, ok := d.presence.UserOf(conn.ID()); ok && previous != userID {
		conn.Leave(socketio.UserRoom(previous))
	}
	conn.Join(socketio.UserRoom(userID))
	d.presence.Join(conn.ID(), userID)
	return nil
}

func (d *Dispatcher) userActivity(_ context.Context, conn Conn, args []any) error {
	userID, err := utils.UserIDArg(args)
	if err != nil || userID == "" {
		return apperror.ErrMissingUser
	}
	if err := d.actor(conn, userID); err != nil {
		return err
	}
	d.presence.Activity(userID)
	return nil
}

// sendMessage answers on message-sent or message-error so the client can
// settle its optimistic copy by tempId.
func (d *Dispatcher) sendMessage(ctx context.Context, conn Conn, args []any) error {
	var req chat.SendMessage
	err := decode(args, &req)
	if err == nil {
		err = d.actor(conn, req.SenderID)
	}

	var msg *model.Message
	if err == nil {
		msg, err = d.chat.Send(ctx, req)
	}
	if err != nil {
		logRejection(conn, "send-message", err)
		public := apperror.Public(err, "failed to send message")
		conn.Emit(chat.EventMessageErr, chat.ErrorEvent{TempID: req.TempID, Code: public.Code, Message: public.Message})
		return nil
	}

	conn.Emit(chat.EventMessageSent, chat.SentEvent{TempID: req.TempID, Message: msg})
	return nil
}

func (d *Dispatcher) markRead(ctx context.Context, conn Conn, args []any) error {
	var req chat.MarkRead
	if err := decode(args, &req); err != nil {
		return err
	}
	if err := d.actor(conn, req.UserID); err != nil {
		return err
	}
	return d.chat.MarkRead(ctx, req)
}

func (d *Dispatcher) typing(typing bool) handler {
	return func(ctx context.Context, conn Conn, args []any) error {
		var event chat.TypingEvent
		if err := decode(args, &event); err != nil {
			return err
		}
		if err := d.actor(conn, event.UserID); err != nil {
			return err
		}
		return d.chat.Typing(ctx, event, typing)
	}
}

// signal forwards the raw payload so SDP and ICE fields pass through as sent.
func (d *Dispatcher) signal(name string) handler {
	return func(ctx context.Context, conn Conn, args []any) error {
		var event signalEvent
		if err := decode(args, &event); err != nil {
			return err
		}
		if err := d.actor(conn, event.UserID); err != nil {
			return err
		}
		return d.chat.Signal(ctx, name, event.ChatID, event.UserID, event.To, args[0])
	}
}

func (d *Dispatcher) likePost(on bool) handler {
	return func(ctx context.Context, conn Conn, args []any) error {
		var event postEvent
		if err := decode(args, &event); err != nil {
			return err
		}
		if err := d.actor(conn, event.UserID); err != nil {
			return err
		}
		var err error
		if on {
			_, err = d.reactions.LikePost(ctx, event.PostID, event.UserID)
		} else {
			_, err = d.reactions.UnlikePost(ctx, event.PostID, event.UserID)
		}
		return err
	}
}

func (d *Dispatcher) forumLike(_ context.Context, conn Conn, args []any) error {
	var event postEvent
	if err := decode(args, &event); err != nil {
		return err
	}
	if err := d.actor(conn, event.UserID); err != nil {
		return err
	}
	return d.toggles.Toggle(model.ForumLike, event.PostID, event.UserID, event.IsLiked)
}

func (d *Dispatcher) winkPost(on bool) handler {
	return func(_ context.Context, conn Conn, args []any) error {
		var event postEvent
		if err := decode(args, &event); err != nil {
			return err
		}
		if err := d.actor(conn, event.UserID); err != nil {
			return err
		}
		return d.toggles.Toggle(model.PostWink, event.PostID, event.UserID, on)
	}
}

func (d *Dispatcher) winkProfile(ctx context.Context, conn Conn, args []any) error {
	var event profileEvent
	if err := decode(args, &event); err != nil {
		return err
	}
	if err := d.actor(conn, event.UserID); err != nil {
		return err
	}
	_, err := d.reactions.WinkProfile(ctx, event.ProfileID, event.UserID)
	return err
}

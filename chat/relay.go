package chat

import (
	"context"
	"strings"
	"time"

	"social-realtime/apperror"
	"social-realtime/mailer"
	"social-realtime/model"
	"social-realtime/repository"

	"github.com/pkg/errors"
	"github.com/zishang520/engine.io/v2/log"
)

var relayLog = log.NewLog("realtime:chat")

const (
	EventNewMessage  = "new-message"
	EventMessageSent = "message-sent"
	EventMessageErr  = "message-error"
	EventUnreadReset = "chat-unread-reset"
)

const (
	notificationPreview = 100
	emailSnapshot       = 200
)

type Store interface {
	ChatByID(ctx context.Context, id string) (*model.Chat, error)
	FindPrivateChat(ctx context.Context, a, b string) (*model.Chat, error)
	CreatePrivateChat(ctx context.Context, a, b string) (*model.Chat, error)
	CountMessagesSince(ctx context.Context, senderID string, since time.Time) (int64, error)
	SaveMessage(ctx context.Context, msg *model.Message, recipients []string) (map[string]int, error)
	MarkChatRead(ctx context.Context, chatID, userID string) (int64, error)
}

type Friends interface {
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

type Entitlements interface {
	HasActiveSubscription(ctx context.Context, userID string, now time.Time) (bool, error)
}

type Directory interface {
	UserByID(ctx context.Context, id string) (*model.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, recipientID string, n *model.Notification) error
}

type MissedScheduler interface {
	Schedule(msg mailer.MissedMessage) bool
	Cancel(chatID, recipientID string) bool
}

type Emitter interface {
	ToUser(userID, event string, payload any)
}

// SendMessage is the send-message payload.
type SendMessage struct {
	ChatID     string `json:"chatId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	Type       string `json:"type"`
	TempID     string `json:"tempId"`
}

type MessageEvent struct {
	ChatID      string         `json:"chatId"`
	Message     *model.Message `json:"message"`
	UnreadCount int            `json:"unreadCount"`
}

type SentEvent struct {
	TempID  string         `json:"tempId,omitempty"`
	Message *model.Message `json:"message"`
}

type ErrorEvent struct {
	TempID  string        `json:"tempId,omitempty"`
	Code    apperror.Code `json:"code"`
	Message string        `json:"message"`
}

type Config struct {
	// DailyLimit is how many messages a user without an active subscription
	// may send per day. Zero disables the quota.
	DailyLimit int
}

// Relay authorizes, stores and fans out chat messages.
type Relay struct {
	store        Store
	friends      Friends
	entitlements Entitlements
	users        Directory
	notifier     Notifier
	missed       MissedScheduler
	emitter      Emitter
	cfg          Config
	now          func() time.Time
}

func NewRelay(store Store, friends Friends, entitlements Entitlements, users Directory,
	notifier Notifier, missed MissedScheduler, emitter Emitter, cfg Config) *Relay {
	return &Relay{
		store:        store,
		friends:      friends,
		entitlements: entitlements,
		users:        users,
		notifier:     notifier,
		missed:       missed,
		emitter:      emitter,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Send delivers req and returns the stored message. Rejections are
// *apperror.AppError values and leave nothing behind.
func (r *Relay) Send(ctx context.Context, req SendMessage) (*model.Message, error) {
	content := strings.TrimSpace(req.Content)
	switch {
	case req.SenderID == "":
		return nil, apperror.ErrMissingSender
	case content == "":
		return nil, apperror.ErrEmptyContent
	case !model.ValidMessageType(req.Type):
		return nil, apperror.ErrInvalidType
	case req.ChatID == "" && req.ReceiverID == "":
		return nil, apperror.ErrMissingReceiver
	case req.ReceiverID == req.SenderID:
		return nil, apperror.ErrSelfMessage
	}

	var chat *model.Chat
	if req.ChatID != "" {
		var err error
		if chat, err = r.memberChat(ctx, req.ChatID, req.SenderID); err != nil {
			return nil, err
		}
	} else {
		ok, err := r.friends.AreFriends(ctx, req.SenderID, req.ReceiverID)
		if err != nil {
			return nil, apperror.Internal("failed to send message", err)
		}
		if !ok {
			return nil, apperror.ErrNotFriends
		}
	}

	if err := r.checkQuota(ctx, req.SenderID); err != nil {
		return nil, err
	}

	if chat == nil {
		var err error
		if chat, err = r.privateChat(ctx, req.SenderID, req.ReceiverID); err != nil {
			return nil, apperror.Internal("failed to send message", err)
		}
	}

	recipients := chat.Others(req.SenderID)
	msg := &model.Message{
		ChatID:    chat.ID,
		SenderID:  req.SenderID,
		Content:   content,
		Type:      req.Type,
		Status:    model.StatusSent,
		CreatedAt: r.now(),
	}
	if chat.Kind == model.ChatPrivate && len(recipients) == 1 {
		receiver := recipients[0]
		msg.ReceiverID = &receiver
	}

	unread, err := r.store.SaveMessage(ctx, msg, recipients)
	if err != nil {
		return nil, apperror.Internal("failed to send message", err)
	}

	r.notifyRecipients(ctx, chat, msg, recipients, unread)
	for _, userID := range recipients {
		r.emitter.ToUser(userID, EventNewMessage, MessageEvent{ChatID: chat.ID, Message: msg, UnreadCount: unread[userID]})
	}
	relayLog.Debug("message %s from %s delivered to %d members of chat %s", msg.ID, msg.SenderID, len(recipients), chat.ID)
	return msg, nil
}

func (r *Relay) memberChat(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	chat, err := r.store.ChatByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.ErrChatNotFound
		}
		return nil, apperror.Internal("failed to load chat", err)
	}
	if !chat.HasMember(userID) {
		return nil, apperror.ErrNotMember
	}
	return chat, nil
}

// privateChat returns the chat of the pair, creating it on first contact.
// Losing a create race to the other member reuses their chat.
func (r *Relay) privateChat(ctx context.Context, a, b string) (*model.Chat, error) {
	chat, err := r.store.FindPrivateChat(ctx, a, b)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	chat, err = r.store.CreatePrivateChat(ctx, a, b)
	if errors.Is(err, repository.ErrDuplicate) {
		relayLog.Debug("private chat %s:%s created concurrently, reusing it", a, b)
		return r.store.FindPrivateChat(ctx, a, b)
	}
	return chat, err
}

func (r *Relay) checkQuota(ctx context.Context, senderID string) error {
	if r.cfg.DailyLimit <= 0 {
		return nil
	}
	now := r.now()
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	sent, err := r.store.CountMessagesSince(ctx, senderID, midnight)
	if err != nil {
		return apperror.Internal("failed to send message", err)
	}
	if sent < int64(r.cfg.DailyLimit) {
		return nil
	}

	active, err := r.entitlements.HasActiveSubscription(ctx, senderID, now)
	if err != nil {
		return apperror.Internal("failed to send message", err)
	}
	if !active {
		return apperror.ErrDailyLimit
	}
	return nil
}

// notifyRecipients creates the message notifications and arms the missed
// message email of every recipient whose unread streak just started.
// Failures here never fail the send.
func (r *Relay) notifyRecipients(ctx context.Context, chat *model.Chat, msg *model.Message, recipients []string, unread map[string]int) {
	senderName := "Someone"
	if sender, err := r.users.UserByID(ctx, msg.SenderID); err == nil {
		senderName = sender.DisplayName()
	} else {
		relayLog.Warning("sender %s lookup failed: %v", msg.SenderID, err)
	}

	for _, userID := range recipients {
		err := r.notifier.Notify(ctx, userID, &model.Notification{
			SenderID: msg.SenderID,
			Type:     model.NotificationMessage,
			Title:    "New message from " + senderName,
			Body:     msg.Preview(notificationPreview),
			Link:     "/messages/" + chat.ID,
			ChatID:   chat.ID,
		})
		if err != nil {
			relayLog.Error("message notification for %s failed: %v", userID, err)
		}

		if unread[userID] != 1 {
			continue
		}
		recipient, err := r.users.UserByID(ctx, userID)
		if err != nil {
			relayLog.Warning("recipient %s lookup failed: %v", userID, err)
			continue
		}
		if !recipient.MessageEmails {
			continue
		}
		r.missed.Schedule(mailer.MissedMessage{
			ChatID:         chat.ID,
			RecipientID:    userID,
			RecipientEmail: recipient.Email,
			RecipientName:  recipient.DisplayName(),
			SenderName:     senderName,
			Snapshot:       msg.Preview(emailSnapshot),
		})
	}
}

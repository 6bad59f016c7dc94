package notification

import (
	"context"

	"social-realtime/apperror"
	"social-realtime/model"

	"github.com/zishang520/engine.io/v2/log"
)

var fanoutLog = log.NewLog("realtime:notification")

const (
	EventNewNotification = "new-notification"
	EventUnreadCount     = "unread-count-update"
)

type Store interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	CountUnreadNotifications(ctx context.Context, userID string) (int64, error)
}

type Emitter interface {
	ToUser(userID, event string, payload any)
}

type UnreadCountEvent struct {
	Count int64 `json:"count"`
}

// Fanout persists notifications and pushes them to every connection of the
// recipient.
type Fanout struct {
	store   Store
	emitter Emitter
}

func NewFanout(store Store, emitter Emitter) *Fanout {
	return &Fanout{store: store, emitter: emitter}
}

// Notify stores n for recipientID, pushes it and then pushes the new unread
// count. Only the write can fail the call.
func (f *Fanout) Notify(ctx context.Context, recipientID string, n *model.Notification) error {
	if recipientID == "" {
		return apperror.ErrMissingUser
	}
	n.RecipientID = recipientID
	if err := f.store.CreateNotification(ctx, n); err != nil {
		return apperror.Internal("failed to create notification", err)
	}

	f.emitter.ToUser(recipientID, EventNewNotification, n)
	f.PushUnreadCount(ctx, recipientID)
	return nil
}

// PushUnreadCount recomputes the unread notification count of userID and
// pushes it.
func (f *Fanout) PushUnreadCount(ctx context.Context, userID string) {
	count, err := f.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		fanoutLog.Error("counting unread notifications of %s failed: %v", userID, err)
		return
	}
	f.emitter.ToUser(userID, EventUnreadCount, UnreadCountEvent{Count: count})
}
